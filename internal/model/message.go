package model

import "time"

// Source identifies where a conversational message entered the system.
type Source string

const (
	SourceCLI   Source = "cli"
	SourceWeb   Source = "web"
	SourceSlack Source = "slack"
)

// String returns the string representation of the source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks whether the source is a known value.
func (s Source) IsValid() bool {
	switch s {
	case SourceCLI, SourceWeb, SourceSlack:
		return true
	}
	return false
}

// Message is a normalized conversational message accepted by the ingestor.
// It is immutable once published; downstream components only read it.
type Message struct {
	ID             string            `json:"id"`
	Source         Source            `json:"source"`
	Text           string            `json:"text"`
	Author         string            `json:"author,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
