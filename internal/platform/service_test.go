package platform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

// fakeSink counts Create calls and returns a scripted result.
type fakeSink struct {
	mu    sync.Mutex
	calls int
	ref   string
	err   error
}

func (f *fakeSink) Name() model.Platform { return model.PlatformMock }

func (f *fakeSink) Create(context.Context, *model.ExtractedTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ref, f.err
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testBusAndStore(t *testing.T, policy bus.Policy) (*bus.MemoryBus, *store.MemoryStore) {
	t.Helper()
	b := bus.NewMemoryBus(policy, nil)
	t.Cleanup(func() { b.Close() })
	return b, store.NewMemoryStore()
}

func extractedEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	task := &model.ExtractedTask{
		ID:              "tsk-1",
		SourceMessageID: "msg-1",
		Title:           "Fix the login bug",
		Priority:        model.PriorityMedium,
		ExtractedAt:     time.Now().UTC(),
	}
	env, err := events.NewEnvelope(events.TopicTaskExtracted, "corr-test", events.TaskExtracted{Task: task})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	return env
}

func collectOutcomes(t *testing.T, b *bus.MemoryBus) (created, failed chan events.Envelope) {
	t.Helper()
	created = make(chan events.Envelope, 4)
	failed = make(chan events.Envelope, 4)
	if err := b.Subscribe(events.TopicTaskCreated, "observer", func(_ context.Context, d bus.Delivery) error {
		created <- d.Envelope
		return nil
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if err := b.Subscribe(events.TopicTaskFailed, "observer", func(_ context.Context, d bus.Delivery) error {
		failed <- d.Envelope
		return nil
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	return created, failed
}

func TestServicePublishesTaskCreated(t *testing.T) {
	b, st := testBusAndStore(t, bus.DefaultPolicy())
	sink := &fakeSink{ref: "mock_1a2b3c4d"}
	svc := NewService(b, st, sink, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	created, failed := collectOutcomes(t, b)

	env := extractedEnvelope(t)
	if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case out := <-created:
		if out.CorrelationID != "corr-test" {
			t.Errorf("CorrelationID = %q, want corr-test", out.CorrelationID)
		}
		var payload events.TaskCreated
		if err := events.UnmarshalPayload(out, &payload); err != nil {
			t.Fatalf("UnmarshalPayload error: %v", err)
		}
		if payload.Task.ExternalRef != "mock_1a2b3c4d" {
			t.Errorf("ExternalRef = %q", payload.Task.ExternalRef)
		}
		if payload.Task.SourceTaskID != "tsk-1" {
			t.Errorf("SourceTaskID = %q, want tsk-1", payload.Task.SourceTaskID)
		}
	case <-failed:
		t.Fatal("unexpected task.failed")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task.created")
	}

	// The outcome is recorded under the consumed event's ID.
	recorded, err := st.PlatformTaskForEvent(context.Background(), env.EventID)
	if err != nil || recorded == nil {
		t.Fatalf("PlatformTaskForEvent = %v, %v; want recorded outcome", recorded, err)
	}
	if recorded.Status != model.StatusCreated {
		t.Errorf("Status = %q, want created", recorded.Status)
	}
}

func TestServiceDuplicateDeliveryReusesOutcome(t *testing.T) {
	b, st := testBusAndStore(t, bus.DefaultPolicy())
	sink := &fakeSink{ref: "mock_1a2b3c4d"}
	svc := NewService(b, st, sink, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	created, _ := collectOutcomes(t, b)

	env := extractedEnvelope(t)
	for i := 0; i < 2; i++ {
		if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}

	var refs []string
	for i := 0; i < 2; i++ {
		select {
		case out := <-created:
			var payload events.TaskCreated
			if err := events.UnmarshalPayload(out, &payload); err != nil {
				t.Fatalf("UnmarshalPayload error: %v", err)
			}
			refs = append(refs, payload.Task.ExternalRef)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for outcome %d", i+1)
		}
	}

	if sink.callCount() != 1 {
		t.Errorf("sink called %d times, want 1", sink.callCount())
	}
	if refs[0] != refs[1] {
		t.Errorf("outcomes diverged: %q vs %q", refs[0], refs[1])
	}
	all, err := st.ListPlatformTasks(context.Background(), 0)
	if err != nil || len(all) != 1 {
		t.Errorf("ListPlatformTasks = %d, err %v; want exactly 1", len(all), err)
	}
}

func TestServicePermanentFailurePublishesTaskFailed(t *testing.T) {
	b, st := testBusAndStore(t, bus.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	sink := &fakeSink{err: bus.Permanent(errors.New("status 422: invalid list id"))}
	svc := NewService(b, st, sink, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	created, failed := collectOutcomes(t, b)

	env := extractedEnvelope(t)
	if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case out := <-failed:
		var payload events.TaskFailed
		if err := events.UnmarshalPayload(out, &payload); err != nil {
			t.Fatalf("UnmarshalPayload error: %v", err)
		}
		if payload.Task.Status != model.StatusFailed {
			t.Errorf("Status = %q, want failed", payload.Task.Status)
		}
		if !strings.Contains(payload.Task.ErrorReason, "invalid list id") {
			t.Errorf("ErrorReason = %q", payload.Task.ErrorReason)
		}
	case <-created:
		t.Fatal("unexpected task.created")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task.failed")
	}

	// Failure is a terminal outcome, not a retry: exactly one sink call,
	// exactly one task.failed, nothing in the DLQ.
	time.Sleep(50 * time.Millisecond)
	if sink.callCount() != 1 {
		t.Errorf("sink called %d times, want 1", sink.callCount())
	}
	select {
	case <-failed:
		t.Error("task.failed published more than once")
	default:
	}
	letters, err := b.DeadLetters(context.Background(), Group)
	if err != nil {
		t.Fatalf("DeadLetters error: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("got %d dead letters, want 0 (outcome was recorded)", len(letters))
	}
}

func TestServiceTransientFailureRetriesThenDeadLetters(t *testing.T) {
	policy := bus.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	b, st := testBusAndStore(t, policy)
	sink := &fakeSink{err: errors.New("status 503: upstream unavailable")}
	svc := NewService(b, st, sink, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	env := extractedEnvelope(t)
	if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		letters, err := b.DeadLetters(context.Background(), Group)
		if err != nil {
			t.Fatalf("DeadLetters error: %v", err)
		}
		if len(letters) == 1 {
			if letters[0].Attempts != policy.MaxAttempts {
				t.Errorf("Attempts = %d, want %d", letters[0].Attempts, policy.MaxAttempts)
			}
			if sink.callCount() != policy.MaxAttempts {
				t.Errorf("sink called %d times, want %d", sink.callCount(), policy.MaxAttempts)
			}
			// No outcome was recorded, so a replay starts clean.
			recorded, err := st.PlatformTaskForEvent(context.Background(), env.EventID)
			if err != nil {
				t.Fatalf("PlatformTaskForEvent error: %v", err)
			}
			if recorded != nil {
				t.Errorf("outcome recorded for exhausted delivery: %+v", recorded)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for dead letter")
}

func TestServiceTransientThenSuccess(t *testing.T) {
	b, st := testBusAndStore(t, bus.Policy{MaxAttempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	sink := &fakeSink{err: errors.New("status 429: rate limited")}
	svc := NewService(b, st, sink, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	created, _ := collectOutcomes(t, b)

	// Heal the sink after the first failure.
	go func() {
		for sink.callCount() < 1 {
			time.Sleep(time.Millisecond)
		}
		sink.mu.Lock()
		sink.err = nil
		sink.ref = "mock_5e6f7a8b"
		sink.mu.Unlock()
	}()

	if err := b.Publish(context.Background(), events.TopicTaskExtracted, extractedEnvelope(t)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case out := <-created:
		var payload events.TaskCreated
		if err := events.UnmarshalPayload(out, &payload); err != nil {
			t.Fatalf("UnmarshalPayload error: %v", err)
		}
		if payload.Task.ExternalRef != "mock_5e6f7a8b" {
			t.Errorf("ExternalRef = %q", payload.Task.ExternalRef)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task.created after recovery")
	}
}
