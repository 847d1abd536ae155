package platform

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

// Group is the platform manager's consumer group name.
const Group = "platform-manager"

// Service consumes task.extracted events, creates tasks on the configured
// sink, and publishes one task.created or task.failed per consumed event.
//
// Deliveries are idempotent on the consumed event ID: the first processing
// records an outcome, and every redelivery re-publishes that recorded
// outcome instead of calling the sink again.
type Service struct {
	bus    bus.Bus
	store  store.Store
	sink   Sink
	logger *slog.Logger

	now func() time.Time
}

func NewService(b bus.Bus, st store.Store, sink Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: b, store: st, sink: sink, logger: logger, now: time.Now}
}

// Start registers the consumer. Handlers run until the bus is closed.
func (s *Service) Start() error {
	return s.bus.Subscribe(events.TopicTaskExtracted, Group, s.handle)
}

func (s *Service) handle(ctx context.Context, d bus.Delivery) error {
	var payload events.TaskExtracted
	if err := events.UnmarshalPayload(d.Envelope, &payload); err != nil {
		return bus.Permanent(fmt.Errorf("decode task payload: %w", err))
	}
	task := payload.Task
	eventID := d.Envelope.EventID

	// Duplicate delivery: the outcome is already recorded, so publish it
	// again and ack. The sink is never called twice for one event.
	existing, err := s.store.PlatformTaskForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", eventID, err)
	}
	if existing != nil {
		s.logger.Info("duplicate delivery, re-publishing recorded outcome",
			"event_id", eventID, "platform_task_id", existing.ID)
		return s.publishOutcome(ctx, d.Envelope.CorrelationID, existing)
	}

	ref, sinkErr := s.sink.Create(ctx, task)
	if sinkErr != nil && !bus.IsPermanent(sinkErr) {
		// Transient: no outcome is recorded, the delivery is retried.
		return fmt.Errorf("create task %s on %s: %w", task.ID, s.sink.Name(), sinkErr)
	}

	outcome := &model.PlatformTask{
		ID:           idgen.MustGenerate(idgen.PlatformTaskPrefix),
		SourceTaskID: task.ID,
		Platform:     s.sink.Name(),
		CreatedAt:    s.now().UTC(),
	}
	if sinkErr != nil {
		outcome.Status = model.StatusFailed
		outcome.ErrorReason = sinkErr.Error()
	} else {
		outcome.Status = model.StatusCreated
		outcome.ExternalRef = ref
	}

	// Record before publishing: if the publish fails and the delivery is
	// retried, the duplicate path above re-publishes this outcome rather
	// than re-running the sink.
	if err := s.store.SavePlatformTask(ctx, eventID, outcome); err != nil {
		return fmt.Errorf("record outcome for %s: %w", eventID, err)
	}

	if outcome.Status == model.StatusFailed {
		s.logger.Warn("platform task failed",
			"task_id", task.ID,
			"platform", string(outcome.Platform),
			"reason", outcome.ErrorReason,
			"correlation_id", d.Envelope.CorrelationID,
		)
	} else {
		s.logger.Info("platform task created",
			"task_id", task.ID,
			"platform", string(outcome.Platform),
			"external_ref", outcome.ExternalRef,
			"correlation_id", d.Envelope.CorrelationID,
		)
	}

	return s.publishOutcome(ctx, d.Envelope.CorrelationID, outcome)
}

func (s *Service) publishOutcome(ctx context.Context, correlationID string, outcome *model.PlatformTask) error {
	topic := events.TopicTaskCreated
	var payload any = events.TaskCreated{Task: outcome}
	if outcome.Status == model.StatusFailed {
		topic = events.TopicTaskFailed
		payload = events.TaskFailed{Task: outcome}
	}

	env, err := events.NewEnvelope(topic, correlationID, payload)
	if err != nil {
		return fmt.Errorf("build outcome event: %w", err)
	}
	if err := s.bus.Publish(ctx, topic, env); err != nil {
		return fmt.Errorf("publish outcome for %s: %w", outcome.SourceTaskID, err)
	}
	return nil
}
