package postgres

import (
	"context"
	"database/sql"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Column lists used for SELECT statements.
const (
	messageColumns      = `id, source, text, author, conversation_id, received_at, metadata`
	taskColumns         = `id, source_message_id, title, description, assignee, due_date, priority, labels, extracted_at`
	platformTaskColumns = `id, source_task_id, platform, external_ref, status, error_reason, created_at`
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySaveMessage(ctx context.Context, db executor, m *model.Message) error {
	// Redeliveries re-save the same message; the first row wins.
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (
			id, source, text, author, conversation_id, received_at, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (id) DO NOTHING`,
		m.ID,
		string(m.Source),
		m.Text,
		m.Author,
		m.ConversationID,
		m.ReceivedAt,
		jsonbMap(m.Metadata),
	)
	return err
}

func queryGetMessage(ctx context.Context, db executor, id string) (*model.Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func queryListMessages(ctx context.Context, db executor, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY received_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func querySaveTask(ctx context.Context, db executor, t *model.ExtractedTask) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, source_message_id, title, description, assignee, due_date, priority, labels, extracted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO NOTHING`,
		t.ID,
		t.SourceMessageID,
		t.Title,
		t.Description,
		t.Assignee,
		nullTimePtr(t.DueDate),
		string(t.Priority),
		jsonbStrings(t.Labels),
		t.ExtractedAt,
	)
	return err
}

func queryGetTask(ctx context.Context, db executor, id string) (*model.ExtractedTask, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func queryListTasks(ctx context.Context, db executor, limit int) ([]*model.ExtractedTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY extracted_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ExtractedTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func querySavePlatformTask(ctx context.Context, db executor, eventID string, t *model.PlatformTask) error {
	// First write wins: a redelivered event must not overwrite the
	// outcome recorded for its first processing.
	_, err := db.ExecContext(ctx, `
		INSERT INTO platform_tasks (
			id, source_event_id, source_task_id, platform, external_ref, status, error_reason, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (source_event_id) DO NOTHING`,
		t.ID,
		eventID,
		t.SourceTaskID,
		string(t.Platform),
		t.ExternalRef,
		string(t.Status),
		t.ErrorReason,
		t.CreatedAt,
	)
	return err
}

func queryPlatformTaskForEvent(ctx context.Context, db executor, eventID string) (*model.PlatformTask, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+platformTaskColumns+` FROM platform_tasks WHERE source_event_id = $1`, eventID)
	t, err := scanPlatformTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func queryListPlatformTasks(ctx context.Context, db executor, limit int) ([]*model.PlatformTask, error) {
	query := `SELECT ` + platformTaskColumns + ` FROM platform_tasks ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PlatformTask
	for rows.Next() {
		t, err := scanPlatformTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
