// Package bus provides the publish/subscribe abstraction the pipeline
// components communicate through. Delivery is at-least-once: a handler error
// triggers the uniform retry policy, and deliveries that exhaust their
// attempts are moved to the consumer group's dead-letter topic.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/events"
)

// Delivery is one attempt to hand an envelope to a consumer group member.
// Attempt starts at 1 and counts redeliveries of the same envelope.
type Delivery struct {
	Topic    string
	Attempt  int
	Envelope events.Envelope
}

// Handler processes a delivery. A nil return acknowledges the delivery; an
// error negatively acknowledges it and engages the retry policy, unless the
// error is marked permanent, in which case the delivery is dead-lettered
// immediately.
type Handler func(ctx context.Context, d Delivery) error

// Bus is the broker-agnostic publish/subscribe contract. Publish returns
// only after the broker has confirmed the message; Subscribe registers a
// consumer-group handler. Messages published to one topic by a single
// producer reach a given group in publish order; there is no cross-topic
// ordering.
type Bus interface {
	Publish(ctx context.Context, topic string, env events.Envelope) error
	Subscribe(topic, group string, handler Handler) error
	Close() error
}

// DeadLetterReader is implemented by buses whose dead-letter topics can be
// inspected and replayed by an operator. Replay republishes each dead letter
// to its original topic and removes it from the dead-letter topic.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context, group string) ([]events.DeadLetter, error)
	Replay(ctx context.Context, group string) (int, error)
}

// Policy is the retry/dead-letter policy applied uniformly by every
// consumer, independent of which component the handler belongs to.
type Policy struct {
	// MaxAttempts is the total delivery attempts (first try included)
	// before an envelope is dead-lettered.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt; each further
	// attempt doubles it, capped at MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseBackoff: 2 * time.Second, MaxBackoff: time.Minute}
}

// Backoff returns the delay before redelivering after the given attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// permanentError marks a handler failure that retrying cannot fix
// (malformed payload, rejected credentials, unknown schema). The bus
// dead-letters it without further attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry policy will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err is marked permanent. Unwrapped errors are
// treated as transient: the default is to retry.
func IsPermanent(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return true
	}
	var unknown *events.UnknownSchemaError
	return errors.As(err, &unknown)
}
