// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Entity ID prefixes. Every identifier in the system carries one so that a
// bare ID in a log line is self-describing.
const (
	MessagePrefix      = "msg-"
	TaskPrefix         = "tsk-"
	PlatformTaskPrefix = "pt-"
	EventPrefix        = "evt-"
	CorrelationPrefix  = "corr-"
	ConversationPrefix = "conv-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Generate returns a new unique ID with the given prefix.
func Generate(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustGenerate is Generate for call sites where the only failure mode is the
// OS entropy source going away; it panics on error.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(err)
	}
	return id
}
