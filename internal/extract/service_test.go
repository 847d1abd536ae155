package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

// strategyFunc adapts a function to the Strategy interface.
type strategyFunc func(ctx context.Context, text string, mctx Context) ([]Draft, error)

func (f strategyFunc) Extract(ctx context.Context, text string, mctx Context) ([]Draft, error) {
	return f(ctx, text, mctx)
}

func publishMessage(t *testing.T, b bus.Bus, text string) events.Envelope {
	t.Helper()
	msg := &model.Message{
		ID:             "msg-1",
		Source:         model.SourceCLI,
		Text:           text,
		ConversationID: "conv-1",
		ReceivedAt:     time.Now().UTC(),
	}
	env, err := events.NewEnvelope(events.TopicMessageReceived, "corr-test", events.MessageReceived{Message: msg})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	if err := b.Publish(context.Background(), events.TopicMessageReceived, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	return env
}

func TestServicePublishesExtractedTasks(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultPolicy(), nil)
	t.Cleanup(func() { b.Close() })
	st := store.NewMemoryStore()

	svc := NewService(b, st, NewRulesStrategy(), nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	got := make(chan events.Envelope, 1)
	if err := b.Subscribe(events.TopicTaskExtracted, "observer", func(_ context.Context, d bus.Delivery) error {
		got <- d.Envelope
		return nil
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	publishMessage(t, b, "We need to fix the login bug")

	select {
	case env := <-got:
		if env.CorrelationID != "corr-test" {
			t.Errorf("CorrelationID = %q, want corr-test (lineage must carry over)", env.CorrelationID)
		}
		var payload events.TaskExtracted
		if err := events.UnmarshalPayload(env, &payload); err != nil {
			t.Fatalf("UnmarshalPayload error: %v", err)
		}
		if payload.Task.Title != "Fix the login bug" {
			t.Errorf("Title = %q", payload.Task.Title)
		}
		if payload.Task.SourceMessageID != "msg-1" {
			t.Errorf("SourceMessageID = %q, want msg-1", payload.Task.SourceMessageID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task.extracted")
	}

	// Message and task are persisted for the audit trail.
	msg, err := st.GetMessage(context.Background(), "msg-1")
	if err != nil || msg == nil {
		t.Errorf("GetMessage = %v, %v; want saved message", msg, err)
	}
	tasks, err := st.ListTasks(context.Background(), 0)
	if err != nil || len(tasks) != 1 {
		t.Errorf("ListTasks = %d tasks, err %v; want 1", len(tasks), err)
	}
}

func TestServiceZeroDraftsIsSuccess(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultPolicy(), nil)
	t.Cleanup(func() { b.Close() })
	st := store.NewMemoryStore()

	calls := make(chan struct{}, 4)
	svc := NewService(b, st, strategyFunc(func(context.Context, string, Context) ([]Draft, error) {
		calls <- struct{}{}
		return nil, nil
	}), nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	publishMessage(t, b, "good morning")

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("strategy never ran")
	}

	// No retry follows a clean zero-task outcome.
	select {
	case <-calls:
		t.Error("strategy ran again; zero drafts must ack, not retry")
	case <-time.After(100 * time.Millisecond):
	}
	if len(b.Published(events.TopicTaskExtracted)) != 0 {
		t.Error("task.extracted published for a message with no tasks")
	}
}

func TestServiceRetriesOnStrategyError(t *testing.T) {
	b := bus.NewMemoryBus(bus.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { b.Close() })
	st := store.NewMemoryStore()

	calls := make(chan int, 4)
	attempt := 0
	svc := NewService(b, st, strategyFunc(func(context.Context, string, Context) ([]Draft, error) {
		attempt++
		calls <- attempt
		if attempt < 2 {
			return nil, errors.New("model overloaded")
		}
		return []Draft{{Title: "Fix the login bug", Priority: model.PriorityMedium}}, nil
	}), nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	publishMessage(t, b, "we need to fix the login bug")

	for _, want := range []int{1, 2} {
		select {
		case got := <-calls:
			if got != want {
				t.Errorf("attempt = %d, want %d", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for attempt %d", want)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(b.Published(events.TopicTaskExtracted)) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task.extracted not published after retry succeeded")
}

func TestServiceMalformedPayloadIsPermanent(t *testing.T) {
	b := bus.NewMemoryBus(bus.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { b.Close() })
	st := store.NewMemoryStore()

	calls := make(chan struct{}, 4)
	svc := NewService(b, st, strategyFunc(func(context.Context, string, Context) ([]Draft, error) {
		calls <- struct{}{}
		return nil, nil
	}), nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// An envelope whose payload is not a MessageReceived object.
	env, err := events.NewEnvelope(events.TopicMessageReceived, "corr-bad", map[string]any{"message": "not an object"})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	if err := b.Publish(context.Background(), events.TopicMessageReceived, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		letters, err := b.DeadLetters(context.Background(), Group)
		if err != nil {
			t.Fatalf("DeadLetters error: %v", err)
		}
		if len(letters) == 1 {
			if letters[0].Attempts != 1 {
				t.Errorf("Attempts = %d, want 1 (permanent errors skip retry)", letters[0].Attempts)
			}
			select {
			case <-calls:
				t.Error("strategy ran for an undecodable payload")
			default:
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for dead letter")
}
