package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMessage scans a row with columns in messageColumns order.
func scanMessage(row scannable) (*model.Message, error) {
	var m model.Message
	var (
		author   sql.NullString
		convID   sql.NullString
		metadata []byte
	)

	err := row.Scan(
		&m.ID,
		&m.Source,
		&m.Text,
		&author,
		&convID,
		&m.ReceivedAt,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	m.Author = author.String
	m.ConversationID = convID.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// scanTask scans a row with columns in taskColumns order.
func scanTask(row scannable) (*model.ExtractedTask, error) {
	var t model.ExtractedTask
	var (
		description sql.NullString
		assignee    sql.NullString
		dueDate     sql.NullTime
		labels      []byte
	)

	err := row.Scan(
		&t.ID,
		&t.SourceMessageID,
		&t.Title,
		&description,
		&assignee,
		&dueDate,
		&t.Priority,
		&labels,
		&t.ExtractedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Assignee = assignee.String
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &t.Labels); err != nil {
			return nil, err
		}
	}

	return &t, nil
}

// scanPlatformTask scans a row with columns in platformTaskColumns order.
func scanPlatformTask(row scannable) (*model.PlatformTask, error) {
	var t model.PlatformTask
	var (
		externalRef sql.NullString
		errorReason sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.SourceTaskID,
		&t.Platform,
		&externalRef,
		&t.Status,
		&errorReason,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ExternalRef = externalRef.String
	t.ErrorReason = errorReason.String

	return &t, nil
}

// nullTimePtr converts a *time.Time to sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// jsonbMap marshals a string map for a JSONB column; nil maps store NULL.
func jsonbMap(m map[string]string) any {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// jsonbStrings marshals a string slice for a JSONB column; empty slices store NULL.
func jsonbStrings(s []string) any {
	if len(s) == 0 {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
