package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/taskflow/internal/events"
)

const (
	// streamName holds all live pipeline topics.
	streamName = "TASKFLOW"
	// dlqStreamPrefix prefixes the per-consumer-group dead-letter streams.
	// One stream per group keeps replay-then-purge scoped to that group.
	dlqStreamPrefix = "TASKFLOW_DLQ_"

	defaultAckWait = 30 * time.Second
)

// NATSBus is a Bus backed by NATS JetStream. Durable streams give
// at-least-once delivery; queue-group consumers give consumer-group
// semantics; MaxAckPending bounds in-flight deliveries per group member,
// which is the backpressure mechanism.
type NATSBus struct {
	conn        *nats.Conn
	js          nats.JetStreamContext
	policy      Policy
	concurrency int
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Compile-time checks.
var (
	_ Bus              = (*NATSBus)(nil)
	_ DeadLetterReader = (*NATSBus)(nil)
)

// NewNATSBus connects to NATS with automatic reconnection, provisions the
// pipeline stream, and applies the given retry policy to every subscription.
// Extra nats.Option values (e.g. disconnect handlers) can be appended.
func NewNATSBus(url string, policy Policy, concurrency int, logger *slog.Logger, opts ...nats.Option) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &NATSBus{
		conn:        nc,
		js:          js,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := b.ensureStream(streamName, []string{"conversation.>", "task.>"}); err != nil {
		cancel()
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *NATSBus) ensureStream(name string, subjects []string) error {
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("provisioning stream %s: %w", name, err)
	}
	return nil
}

func dlqStream(group string) string {
	return dlqStreamPrefix + strings.ToUpper(strings.ReplaceAll(group, ".", "_"))
}

// Publish confirms with the broker before returning. The envelope's event ID
// doubles as the JetStream message ID, so broker-side duplicate detection
// suppresses accidental double publishes within the dedup window.
func (b *NATSBus) Publish(ctx context.Context, topic string, env events.Envelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}
	if _, err := b.js.Publish(topic, data, nats.Context(ctx), nats.MsgId(env.EventID)); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a durable queue-group consumer for the topic. Handlers
// run one delivery at a time per subscription, preserving per-topic publish
// order within the group; MaxAckPending caps unacknowledged deliveries.
func (b *NATSBus) Subscribe(topic, group string, handler Handler) error {
	if err := b.ensureStream(dlqStream(group), []string{events.DeadLetterTopic(group)}); err != nil {
		return err
	}

	durable := group + "-" + strings.ReplaceAll(topic, ".", "-")
	sub, err := b.js.QueueSubscribe(topic, group,
		func(m *nats.Msg) { b.dispatch(group, m, handler) },
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(defaultAckWait),
		nats.MaxAckPending(b.concurrency),
		nats.MaxDeliver(b.policy.MaxAttempts),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("subscribing %s to %s: %w", group, topic, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *NATSBus) dispatch(group string, m *nats.Msg, handler Handler) {
	attempt := 1
	if meta, err := m.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}

	env, err := events.Decode(m.Data)
	if err != nil {
		// Malformed or unknown schema: retrying the same bytes cannot
		// succeed, so route straight to the dead-letter topic. When the
		// JSON itself is broken the decoded envelope is empty; keep the
		// raw bytes so the dead letter stays inspectable.
		var raw []byte
		if env.EventID == "" {
			raw = m.Data
		}
		b.logger.Warn("undecodable envelope, dead-lettering",
			"topic", m.Subject, "group", group, "err", err)
		b.deadLetter(group, m.Subject, env, raw, err, attempt)
		_ = m.Ack()
		return
	}

	err = handler(b.ctx, Delivery{Topic: m.Subject, Attempt: attempt, Envelope: env})
	if err == nil {
		_ = m.Ack()
		return
	}

	if IsPermanent(err) || attempt >= b.policy.MaxAttempts {
		b.logger.Warn("dead-lettering delivery",
			"topic", m.Subject, "group", group, "event_id", env.EventID,
			"attempts", attempt, "permanent", IsPermanent(err), "err", err)
		b.deadLetter(group, m.Subject, env, nil, err, attempt)
		_ = m.Ack()
		return
	}

	b.logger.Warn("handler failed, scheduling redelivery",
		"topic", m.Subject, "group", group, "event_id", env.EventID,
		"attempt", attempt, "err", err)
	_ = m.NakWithDelay(b.policy.Backoff(attempt))
}

// deadLetter publishes the envelope, tagged with the last error and attempt
// count, to the group's dead-letter topic. The original delivery is then
// acknowledged by the caller so it is not retried forever.
func (b *NATSBus) deadLetter(group, topic string, env events.Envelope, raw []byte, cause error, attempts int) {
	dl := events.DeadLetter{
		Group:          group,
		Topic:          topic,
		LastError:      cause.Error(),
		Attempts:       attempts,
		Envelope:       env,
		DeadLetteredAt: time.Now().UTC(),
		Raw:            raw,
	}
	data, err := json.Marshal(dl)
	if err != nil {
		b.logger.Error("failed to marshal dead letter", "group", group, "err", err)
		return
	}
	if _, err := b.js.Publish(events.DeadLetterTopic(group), data); err != nil {
		b.logger.Error("failed to publish dead letter", "group", group, "err", err)
	}
}

// DeadLetters reads the group's dead-letter topic without consuming it.
func (b *NATSBus) DeadLetters(ctx context.Context, group string) ([]events.DeadLetter, error) {
	if err := b.ensureStream(dlqStream(group), []string{events.DeadLetterTopic(group)}); err != nil {
		return nil, err
	}
	sub, err := b.js.SubscribeSync(events.DeadLetterTopic(group), nats.OrderedConsumer())
	if err != nil {
		return nil, fmt.Errorf("reading dead letters for %s: %w", group, err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	var letters []events.DeadLetter
	for {
		msgCtx, cancelMsg := context.WithTimeout(ctx, 2*time.Second)
		m, err := sub.NextMsgWithContext(msgCtx)
		cancelMsg()
		if err != nil {
			// Timeout means the topic is drained (or empty).
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return nil, fmt.Errorf("reading dead letters for %s: %w", group, err)
		}
		var dl events.DeadLetter
		if err := json.Unmarshal(m.Data, &dl); err != nil {
			b.logger.Warn("skipping undecodable dead letter", "group", group, "err", err)
			continue
		}
		letters = append(letters, dl)
		if meta, err := m.Metadata(); err == nil && meta.NumPending == 0 {
			break
		}
	}
	return letters, nil
}

// Replay republishes each dead letter to its original topic, then purges the
// group's dead-letter stream. This is the manual operator action; nothing in
// the pipeline replays automatically. The purge runs only after every
// republish has been confirmed by the broker.
func (b *NATSBus) Replay(ctx context.Context, group string) (int, error) {
	letters, err := b.DeadLetters(ctx, group)
	if err != nil {
		return 0, err
	}
	for i, dl := range letters {
		data := dl.Raw
		if len(data) == 0 {
			data, err = events.Encode(dl.Envelope)
			if err != nil {
				return i, fmt.Errorf("replaying %s: %w", dl.Envelope.EventID, err)
			}
		}
		// No MsgId here: the original publish stamped the event ID, and
		// the stream's duplicate-detection window would silently drop a
		// replay carrying the same ID.
		if _, err := b.js.Publish(dl.Topic, data, nats.Context(ctx)); err != nil {
			return i, fmt.Errorf("replaying %s: %w", dl.Envelope.EventID, err)
		}
	}
	if len(letters) > 0 {
		if err := b.js.PurgeStream(dlqStream(group)); err != nil {
			return len(letters), fmt.Errorf("purging dead letters for %s: %w", group, err)
		}
	}
	return len(letters), nil
}

// Close stops consuming and closes the connection. In-flight deliveries that
// do not finish remain unacknowledged and are redelivered to another group
// member after the ack wait elapses.
func (b *NATSBus) Close() error {
	b.cancel()
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Drain()
	}
	b.conn.Close()
	return nil
}
