// Package extract turns conversational messages into structured task drafts
// and runs the extractor consumer.
package extract

import (
	"context"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Context carries everything a strategy may know about the message beyond
// its text. Strategies must not mutate it.
type Context struct {
	MessageID      string
	ConversationID string
	Author         string
	Source         model.Source
	Metadata       map[string]string
}

// Draft is a task candidate produced by a strategy, before identifiers are
// assigned. A strategy returning zero drafts is a normal outcome: most
// conversation contains no tasks.
type Draft struct {
	Title       string
	Description string
	Assignee    string
	DueDate     *time.Time
	Priority    model.Priority
	Labels      []string
}

// Strategy extracts task drafts from message text. Implementations report
// failure through the error; they never invent a partial result.
type Strategy interface {
	Extract(ctx context.Context, text string, mctx Context) ([]Draft, error)
}
