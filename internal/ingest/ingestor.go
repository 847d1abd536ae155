// Package ingest accepts raw conversational messages and publishes them onto
// the bus as conversation.message_received events.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/idgen"
	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Input is a raw message as captured at an intake boundary, before any
// identifiers have been assigned.
type Input struct {
	Source         model.Source
	Text           string
	Author         string
	ConversationID string
	Metadata       map[string]string
}

// Ingestor validates raw messages and publishes them. It holds no
// extraction logic; downstream consumers decide what a message means.
type Ingestor struct {
	bus    bus.Bus
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(b bus.Bus, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{bus: b, logger: logger, now: time.Now}
}

// Submit validates the input, assigns identifiers, and publishes a
// conversation.message_received event. It returns the new message ID only
// after the broker has confirmed the publish, so a non-error return means
// the message is durably accepted.
func (i *Ingestor) Submit(ctx context.Context, in Input) (string, error) {
	msg := &model.Message{
		ID:             idgen.MustGenerate(idgen.MessagePrefix),
		Source:         in.Source,
		Text:           in.Text,
		Author:         in.Author,
		ConversationID: in.ConversationID,
		ReceivedAt:     i.now().UTC(),
		Metadata:       in.Metadata,
	}
	if msg.ConversationID == "" {
		msg.ConversationID = idgen.MustGenerate(idgen.ConversationPrefix)
	}

	if err := model.ValidateMessage(msg); err != nil {
		return "", fmt.Errorf("validate message: %w", err)
	}

	// Each submission starts a fresh lineage.
	correlationID := idgen.MustGenerate(idgen.CorrelationPrefix)

	env, err := events.NewEnvelope(events.TopicMessageReceived, correlationID, events.MessageReceived{Message: msg})
	if err != nil {
		return "", fmt.Errorf("build envelope: %w", err)
	}

	if err := i.bus.Publish(ctx, events.TopicMessageReceived, env); err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}

	i.logger.Info("message accepted",
		"message_id", msg.ID,
		"source", msg.Source.String(),
		"conversation_id", msg.ConversationID,
		"correlation_id", correlationID,
	)
	return msg.ID, nil
}
