package model

import (
	"fmt"
	"strings"
)

// ValidationError indicates bad input at the ingestion boundary. It is
// returned to the caller synchronously; nothing reaches the bus.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateMessage checks the fields a caller controls before a message is
// admitted. Fields assigned by the ingestor (ID, ReceivedAt) are not checked.
func ValidateMessage(m *Message) error {
	if strings.TrimSpace(m.Text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !m.Source.IsValid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", m.Source)}
	}
	return nil
}
