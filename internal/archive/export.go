package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version           string    `json:"version"`
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	MessageCount      int       `json:"message_count"`
	TaskCount         int       `json:"task_count"`
	PlatformTaskCount int       `json:"platform_task_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the full audit trail (messages, extracted tasks,
// platform task outcomes) as JSONL to w, oldest first within each type.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	messages, err := s.ListMessages(ctx, 0)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	tasks, err := s.ListTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	platformTasks, err := s.ListPlatformTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("list platform tasks: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:           "1",
		Type:              "header",
		Timestamp:         time.Now().UTC(),
		MessageCount:      len(messages),
		TaskCount:         len(tasks),
		PlatformTaskCount: len(platformTasks),
	}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, m := range messages {
		if err := enc.Encode(record{Type: "message", Data: m}); err != nil {
			return fmt.Errorf("write message %s: %w", m.ID, err)
		}
	}
	for _, t := range tasks {
		if err := enc.Encode(record{Type: "task", Data: t}); err != nil {
			return fmt.Errorf("write task %s: %w", t.ID, err)
		}
	}
	for _, t := range platformTasks {
		if err := enc.Encode(record{Type: "platform_task", Data: t}); err != nil {
			return fmt.Errorf("write platform task %s: %w", t.ID, err)
		}
	}

	return nil
}
