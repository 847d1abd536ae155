package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/idgen"
	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

// Group is the extractor's consumer group name.
const Group = "extractor"

// Service consumes conversation.message_received events, runs the configured
// strategy, and publishes one task.extracted event per draft.
type Service struct {
	bus      bus.Bus
	store    store.Store
	strategy Strategy
	logger   *slog.Logger

	now func() time.Time
}

func NewService(b bus.Bus, st store.Store, strategy Strategy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: b, store: st, strategy: strategy, logger: logger, now: time.Now}
}

// Start registers the consumer. Handlers run until the bus is closed.
func (s *Service) Start() error {
	return s.bus.Subscribe(events.TopicMessageReceived, Group, s.handle)
}

func (s *Service) handle(ctx context.Context, d bus.Delivery) error {
	var payload events.MessageReceived
	if err := events.UnmarshalPayload(d.Envelope, &payload); err != nil {
		return bus.Permanent(fmt.Errorf("decode message payload: %w", err))
	}
	msg := payload.Message

	// Audit write. A duplicate delivery re-saves the same row, which the
	// store treats as a no-op; a failed write is logged but does not block
	// extraction.
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.logger.Warn("save message failed", "message_id", msg.ID, "error", err)
	}

	drafts, err := s.strategy.Extract(ctx, msg.Text, Context{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Author:         msg.Author,
		Source:         msg.Source,
		Metadata:       msg.Metadata,
	})
	if err != nil {
		return fmt.Errorf("extract from %s: %w", msg.ID, err)
	}

	if len(drafts) == 0 {
		s.logger.Debug("no tasks extracted", "message_id", msg.ID)
		return nil
	}

	for _, draft := range drafts {
		task := s.taskFromDraft(msg.ID, draft)
		if err := s.store.SaveTask(ctx, task); err != nil {
			s.logger.Warn("save task failed", "task_id", task.ID, "error", err)
		}

		env, err := events.NewEnvelope(events.TopicTaskExtracted, d.Envelope.CorrelationID, events.TaskExtracted{Task: task})
		if err != nil {
			return fmt.Errorf("build task event: %w", err)
		}
		if err := s.bus.Publish(ctx, events.TopicTaskExtracted, env); err != nil {
			return fmt.Errorf("publish task %s: %w", task.ID, err)
		}
		s.logger.Info("task extracted",
			"task_id", task.ID,
			"message_id", msg.ID,
			"title", task.Title,
			"correlation_id", d.Envelope.CorrelationID,
		)
	}
	return nil
}

func (s *Service) taskFromDraft(messageID string, d Draft) *model.ExtractedTask {
	return &model.ExtractedTask{
		ID:              idgen.MustGenerate(idgen.TaskPrefix),
		SourceMessageID: messageID,
		Title:           d.Title,
		Description:     d.Description,
		Assignee:        d.Assignee,
		DueDate:         d.DueDate,
		Priority:        d.Priority,
		Labels:          d.Labels,
		ExtractedAt:     s.now().UTC(),
	}
}
