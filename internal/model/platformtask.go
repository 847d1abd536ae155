package model

import "time"

// Platform identifies the external system a task is materialized in.
type Platform string

const (
	PlatformMock    Platform = "mock"
	PlatformTrello  Platform = "trello"
	PlatformClickUp Platform = "clickup"
)

// String returns the string representation of the platform.
func (p Platform) String() string {
	return string(p)
}

// IsValid checks whether the platform is a known value.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformMock, PlatformTrello, PlatformClickUp:
		return true
	}
	return false
}

// TaskStatus is the terminal outcome of a platform task.
type TaskStatus string

const (
	StatusCreated TaskStatus = "created"
	StatusFailed  TaskStatus = "failed"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusFailed:
		return true
	}
	return false
}

// PlatformTask records the terminal outcome of materializing an extracted
// task in a platform. ExternalRef is set only on success, ErrorReason only
// on failure. There are no further transitions after either.
type PlatformTask struct {
	ID           string     `json:"id"`
	SourceTaskID string     `json:"source_task_id"`
	Platform     Platform   `json:"platform"`
	ExternalRef  string     `json:"external_ref,omitempty"`
	Status       TaskStatus `json:"status"`
	ErrorReason  string     `json:"error_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
