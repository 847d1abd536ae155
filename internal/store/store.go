// Package store defines the persistence collaborator used by the pipeline
// for idempotency bookkeeping and the audit trail.
package store

import (
	"context"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Store is the persistence interface. Implementations must make a completed
// save visible to a subsequent read from any process; the Platform Manager's
// idempotency check depends on it.
type Store interface {
	// Messages (audit trail, written by the extractor on first delivery).
	SaveMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, limit int) ([]*model.Message, error)

	// Extracted tasks (audit trail).
	SaveTask(ctx context.Context, t *model.ExtractedTask) error
	GetTask(ctx context.Context, id string) (*model.ExtractedTask, error)
	ListTasks(ctx context.Context, limit int) ([]*model.ExtractedTask, error)

	// Platform task outcomes, keyed by the consumed TaskExtracted event ID.
	// SavePlatformTask is idempotent on eventID: recording a second outcome
	// for the same event is a no-op. PlatformTaskForEvent returns nil, nil
	// when no outcome has been recorded; together they form the
	// exists(event_id) dedup check.
	SavePlatformTask(ctx context.Context, eventID string, t *model.PlatformTask) error
	PlatformTaskForEvent(ctx context.Context, eventID string) (*model.PlatformTask, error)
	ListPlatformTasks(ctx context.Context, limit int) ([]*model.PlatformTask, error)

	// Lifecycle
	Close() error
}
