package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/model"
)

// testPolicy keeps retries fast enough for unit tests.
func testPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}
}

func testEnvelope(t *testing.T, text string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.TopicMessageReceived, "corr-test", events.MessageReceived{
		Message: &model.Message{ID: "msg-1", Source: model.SourceCLI, Text: text},
	})
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}
	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	} {
		if got := p.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPermanentClassification(t *testing.T) {
	base := errors.New("bad credentials")
	if IsPermanent(base) {
		t.Error("plain error should default to transient")
	}
	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent(err) should classify as permanent")
	}
	if !IsPermanent(fmt.Errorf("creating task: %w", Permanent(base))) {
		t.Error("wrapped permanent error should stay permanent")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent should preserve the error chain")
	}
	if !IsPermanent(&events.UnknownSchemaError{EventType: "x", SchemaVersion: 9}) {
		t.Error("unknown schema should classify as permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	got := make(chan events.Envelope, 1)
	if err := b.Subscribe(events.TopicMessageReceived, "extractor", func(_ context.Context, d Delivery) error {
		got <- d.Envelope
		return nil
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	env := testEnvelope(t, "fix the build")
	if err := b.Publish(context.Background(), events.TopicMessageReceived, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case d := <-got:
		if d.EventID != env.EventID {
			t.Errorf("got event %q, want %q", d.EventID, env.EventID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBus_OrderPreservedPerGroup(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	const n = 20

	if err := b.Subscribe(events.TopicMessageReceived, "extractor", func(_ context.Context, d Delivery) error {
		mu.Lock()
		order = append(order, d.Envelope.CorrelationID)
		if len(order) == n {
			close(done)
		}
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	for i := 0; i < n; i++ {
		env := testEnvelope(t, "task")
		env.CorrelationID = fmt.Sprintf("corr-%03d", i)
		if err := b.Publish(context.Background(), events.TopicMessageReceived, env); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, corr := range order {
		if want := fmt.Sprintf("corr-%03d", i); corr != want {
			t.Fatalf("delivery %d out of order: got %s, want %s", i, corr, want)
		}
	}
}

func TestMemoryBus_EachGroupSeesEveryMessage(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	a := make(chan struct{}, 1)
	c := make(chan struct{}, 1)
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", func(_ context.Context, d Delivery) error {
		a <- struct{}{}
		return nil
	})
	mustSubscribe(t, b, events.TopicTaskExtracted, "auditor", func(_ context.Context, d Delivery) error {
		c <- struct{}{}
		return nil
	})

	if err := b.Publish(context.Background(), events.TopicTaskExtracted, testEnvelope(t, "x")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	for name, ch := range map[string]chan struct{}{"platform-manager": a, "auditor": c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("group %s did not receive the message", name)
		}
	}
}

func TestMemoryBus_DuplicateGroupSubscription(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	handler := func(_ context.Context, _ Delivery) error { return nil }
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", handler)
	if err := b.Subscribe(events.TopicTaskExtracted, "platform-manager", handler); err == nil {
		t.Fatal("expected error for duplicate group subscription")
	}
}

func TestMemoryBus_RetryThenSuccess(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	attempts := make(chan int, 4)
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", func(_ context.Context, d Delivery) error {
		attempts <- d.Attempt
		if d.Attempt < 2 {
			return errors.New("transient: connection reset")
		}
		return nil
	})

	if err := b.Publish(context.Background(), events.TopicTaskExtracted, testEnvelope(t, "x")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	for _, want := range []int{1, 2} {
		select {
		case got := <-attempts:
			if got != want {
				t.Errorf("attempt = %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for attempt %d", want)
		}
	}

	dls, _ := b.DeadLetters(context.Background(), "platform-manager")
	if len(dls) != 0 {
		t.Errorf("expected no dead letters after eventual success, got %d", len(dls))
	}
}

func TestMemoryBus_ExhaustionDeadLetters(t *testing.T) {
	policy := testPolicy()
	b := NewMemoryBus(policy, nil)
	defer b.Close()

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", func(_ context.Context, d Delivery) error {
		mu.Lock()
		calls++
		if calls == policy.MaxAttempts {
			defer close(done)
		}
		mu.Unlock()
		return errors.New("sink timeout")
	})

	env := testEnvelope(t, "x")
	if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retries")
	}

	// Total attempts equals MaxAttempts, not unbounded.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if calls != policy.MaxAttempts {
		t.Errorf("handler called %d times, want %d", calls, policy.MaxAttempts)
	}
	mu.Unlock()

	dls, err := b.DeadLetters(context.Background(), "platform-manager")
	if err != nil {
		t.Fatalf("DeadLetters error: %v", err)
	}
	if len(dls) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dls))
	}
	dl := dls[0]
	if dl.Attempts != policy.MaxAttempts {
		t.Errorf("Attempts = %d, want %d", dl.Attempts, policy.MaxAttempts)
	}
	if dl.LastError != "sink timeout" {
		t.Errorf("LastError = %q, want %q", dl.LastError, "sink timeout")
	}
	if dl.Envelope.EventID != env.EventID {
		t.Errorf("dead letter envelope = %q, want %q", dl.Envelope.EventID, env.EventID)
	}
}

func TestMemoryBus_PermanentErrorSkipsRetry(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	defer b.Close()

	var calls int
	var mu sync.Mutex
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", func(_ context.Context, _ Delivery) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return Permanent(errors.New("malformed payload"))
	})

	if err := b.Publish(context.Background(), events.TopicTaskExtracted, testEnvelope(t, "x")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		dls, _ := b.DeadLetters(context.Background(), "platform-manager")
		if len(dls) == 1 {
			if dls[0].Attempts != 1 {
				t.Errorf("Attempts = %d, want 1 (no retry for permanent)", dls[0].Attempts)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dead letter")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestMemoryBus_Replay(t *testing.T) {
	b := NewMemoryBus(Policy{MaxAttempts: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil)
	defer b.Close()

	var fail = true
	var mu sync.Mutex
	delivered := make(chan string, 2)
	mustSubscribe(t, b, events.TopicTaskExtracted, "platform-manager", func(_ context.Context, d Delivery) error {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f {
			return errors.New("sink down")
		}
		delivered <- d.Envelope.EventID
		return nil
	})

	env := testEnvelope(t, "x")
	if err := b.Publish(context.Background(), events.TopicTaskExtracted, env); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	// Wait for the dead letter, heal the handler, then replay.
	deadline := time.After(time.Second)
	for {
		dls, _ := b.DeadLetters(context.Background(), "platform-manager")
		if len(dls) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dead letter")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	fail = false
	mu.Unlock()

	n, err := b.Replay(context.Background(), "platform-manager")
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if n != 1 {
		t.Errorf("Replay returned %d, want 1", n)
	}

	select {
	case id := <-delivered:
		if id != env.EventID {
			t.Errorf("replayed event = %q, want %q", id, env.EventID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replayed delivery")
	}

	dls, _ := b.DeadLetters(context.Background(), "platform-manager")
	if len(dls) != 0 {
		t.Errorf("expected empty dead-letter queue after replay, got %d", len(dls))
	}
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	b := NewMemoryBus(testPolicy(), nil)
	b.Close()
	if err := b.Publish(context.Background(), events.TopicMessageReceived, testEnvelope(t, "x")); err == nil {
		t.Fatal("expected error publishing on closed bus")
	}
}

func mustSubscribe(t *testing.T, b Bus, topic, group string, h Handler) {
	t.Helper()
	if err := b.Subscribe(topic, group, h); err != nil {
		t.Fatalf("Subscribe(%s, %s) error: %v", topic, group, err)
	}
}
