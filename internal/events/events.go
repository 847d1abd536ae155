// Package events defines the typed, versioned event contract shared by every
// component: the envelope that wraps each payload on the bus, the topic names,
// and the schema registry used to reject envelopes a consumer cannot decode.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/idgen"
	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Event topic constants. Topics double as event types: the routing key and
// the envelope's event_type carry the same string.
const (
	TopicMessageReceived = "conversation.message_received"
	TopicTaskExtracted   = "task.extracted"
	TopicTaskCreated     = "task.created"
	TopicTaskFailed      = "task.failed"
)

// DeadLetterTopic returns the dead-letter topic for a consumer group.
func DeadLetterTopic(group string) string {
	return "deadletter." + group
}

// SchemaVersion is the version stamped on envelopes produced by this build.
const SchemaVersion = 1

// supportedVersions maps each known event type to the schema versions this
// build can decode. Consumers may support several versions during a rollout.
var supportedVersions = map[string]map[int]bool{
	TopicMessageReceived: {1: true},
	TopicTaskExtracted:   {1: true},
	TopicTaskCreated:     {1: true},
	TopicTaskFailed:      {1: true},
}

// Event payloads, one per entity in the data model.

type MessageReceived struct {
	Message *model.Message `json:"message"`
}

type TaskExtracted struct {
	Task *model.ExtractedTask `json:"task"`
}

type TaskCreated struct {
	Task *model.PlatformTask `json:"task"`
}

type TaskFailed struct {
	Task *model.PlatformTask `json:"task"`
}

// DeadLetter wraps an envelope that exhausted its retry budget. It is
// published to the consumer group's dead-letter topic for inspection and
// manual replay.
type DeadLetter struct {
	Group          string    `json:"group"`
	Topic          string    `json:"topic"`
	LastError      string    `json:"last_error"`
	Attempts       int       `json:"attempts"`
	Envelope       Envelope  `json:"envelope"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
	// Raw holds the original message bytes when the envelope could not be
	// decoded at all; the envelope is empty in that case, so the raw bytes
	// are what an operator inspects and what a replay republishes.
	Raw []byte `json:"raw,omitempty"`
}

// Envelope wraps every payload crossing the bus. Serialization is
// self-describing: event_type and schema_version travel with the payload so
// a consumer can refuse an envelope it does not understand without decoding
// the payload.
type Envelope struct {
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in an envelope with a fresh event ID and the
// current schema version. The correlation ID is propagated verbatim from the
// originating message's lineage.
func NewEnvelope(eventType, correlationID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}
	eventID, err := idgen.Generate(idgen.EventPrefix)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		EventID:       eventID,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}, nil
}

// UnknownSchemaError is returned when an envelope carries an event type or
// schema version this build does not understand. It is a permanent condition:
// retrying the same bytes cannot succeed, so consumers dead-letter instead.
type UnknownSchemaError struct {
	EventType     string
	SchemaVersion int
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("unknown schema: %s v%d", e.EventType, e.SchemaVersion)
}

// Decode parses raw envelope bytes and verifies the event type and schema
// version against the registry. The payload is left undecoded.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	versions, ok := supportedVersions[env.EventType]
	if !ok || !versions[env.SchemaVersion] {
		return env, &UnknownSchemaError{EventType: env.EventType, SchemaVersion: env.SchemaVersion}
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes the envelope payload into v.
func UnmarshalPayload(env Envelope, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("unmarshaling %s payload: %w", env.EventType, err)
	}
	return nil
}
