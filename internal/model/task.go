package model

import "time"

// Priority is the urgency classification assigned during extraction.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks whether the priority is a known value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ExtractedTask is an action item derived from a message. One message may
// yield zero, one, or many tasks. SourceMessageID references the message
// the task came from; it is a reference, not ownership.
type ExtractedTask struct {
	ID              string     `json:"id"`
	SourceMessageID string     `json:"source_message_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Assignee        string     `json:"assignee,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Priority        Priority   `json:"priority"`
	Labels          []string   `json:"labels,omitempty"`
	ExtractedAt     time.Time  `json:"extracted_at"`
}
