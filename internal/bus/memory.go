package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/events"
)

// MemoryBus is an in-process Bus with the same retry and dead-letter
// semantics as the NATS adapter. It backs single-process demo mode and lets
// the services be tested in isolation without a broker.
type MemoryBus struct {
	policy Policy
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	subs   map[string][]*memorySub        // topic -> one sub per consumer group
	log    map[string][]events.Envelope   // everything published, per topic
	dead   map[string][]events.DeadLetter // dead letters, per consumer group
}

type memorySub struct {
	group   string
	handler Handler
	ch      chan events.Envelope
}

// Compile-time checks.
var (
	_ Bus              = (*MemoryBus)(nil)
	_ DeadLetterReader = (*MemoryBus)(nil)
)

// NewMemoryBus creates an in-memory bus applying the given retry policy.
func NewMemoryBus(policy Policy, logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBus{
		policy: policy,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string][]*memorySub),
		log:    make(map[string][]events.Envelope),
		dead:   make(map[string][]events.DeadLetter),
	}
}

// Publish appends the envelope to the topic log and hands it to every
// consumer group subscribed to the topic. Each group sees publish order;
// delivery to the group's handler happens on the group's own goroutine.
func (b *MemoryBus) Publish(ctx context.Context, topic string, env events.Envelope) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("publish on closed bus")
	}
	b.log[topic] = append(b.log[topic], env)
	targets := make([]*memorySub, len(b.subs[topic]))
	copy(targets, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.ctx.Done():
			return fmt.Errorf("bus closed during publish")
		}
	}
	return nil
}

// Subscribe registers a handler for the topic under the given consumer
// group. One handler per topic+group; a second registration is an error.
func (b *MemoryBus) Subscribe(topic, group string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscribe on closed bus")
	}
	for _, sub := range b.subs[topic] {
		if sub.group == group {
			return fmt.Errorf("group %q already subscribed to %s", group, topic)
		}
	}

	sub := &memorySub{group: group, handler: handler, ch: make(chan events.Envelope, 256)}
	b.subs[topic] = append(b.subs[topic], sub)

	b.wg.Add(1)
	go b.consume(topic, sub)
	return nil
}

// consume processes the group's deliveries sequentially, preserving publish
// order, and applies the retry policy in place.
func (b *MemoryBus) consume(topic string, sub *memorySub) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case env := <-sub.ch:
			b.deliver(topic, sub, env)
		}
	}
}

func (b *MemoryBus) deliver(topic string, sub *memorySub, env events.Envelope) {
	var lastErr error
	for attempt := 1; attempt <= b.policy.MaxAttempts; attempt++ {
		err := sub.handler(b.ctx, Delivery{Topic: topic, Attempt: attempt, Envelope: env})
		if err == nil {
			return
		}
		lastErr = err
		if IsPermanent(err) {
			b.logger.Warn("permanent handler failure, dead-lettering",
				"topic", topic, "group", sub.group, "event_id", env.EventID, "err", err)
			b.deadLetter(sub.group, topic, env, err, attempt)
			return
		}
		if attempt < b.policy.MaxAttempts {
			select {
			case <-time.After(b.policy.Backoff(attempt)):
			case <-b.ctx.Done():
				return
			}
		}
	}
	b.logger.Warn("retries exhausted, dead-lettering",
		"topic", topic, "group", sub.group, "event_id", env.EventID,
		"attempts", b.policy.MaxAttempts, "err", lastErr)
	b.deadLetter(sub.group, topic, env, lastErr, b.policy.MaxAttempts)
}

func (b *MemoryBus) deadLetter(group, topic string, env events.Envelope, cause error, attempts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[group] = append(b.dead[group], events.DeadLetter{
		Group:          group,
		Topic:          topic,
		LastError:      cause.Error(),
		Attempts:       attempts,
		Envelope:       env,
		DeadLetteredAt: time.Now().UTC(),
	})
}

// DeadLetters returns the dead letters accumulated for a consumer group.
func (b *MemoryBus) DeadLetters(_ context.Context, group string) ([]events.DeadLetter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.DeadLetter, len(b.dead[group]))
	copy(out, b.dead[group])
	return out, nil
}

// Replay republishes each of the group's dead letters to its original topic
// and clears the group's dead-letter queue. Returns the number replayed.
func (b *MemoryBus) Replay(ctx context.Context, group string) (int, error) {
	b.mu.Lock()
	letters := b.dead[group]
	b.dead[group] = nil
	b.mu.Unlock()

	for i, dl := range letters {
		if err := b.Publish(ctx, dl.Topic, dl.Envelope); err != nil {
			return i, fmt.Errorf("replaying %s: %w", dl.Envelope.EventID, err)
		}
	}
	return len(letters), nil
}

// Published returns a copy of everything published to the topic, in order.
// Test helper; production consumers use Subscribe.
func (b *MemoryBus) Published(topic string) []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Envelope, len(b.log[topic]))
	copy(out, b.log[topic])
	return out
}

// Close stops all consumer goroutines and rejects further publishes.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}
