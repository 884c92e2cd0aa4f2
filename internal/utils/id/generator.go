package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID generates a new session identifier with a stable prefix for display.
func NewSessionID() string {
	return newIdentifier("session")
}

// NewMessageID generates a new message identifier with a stable prefix for display.
func NewMessageID() string {
	return newIdentifier("msg")
}

// NewRunID generates a new graph-run identifier with a stable prefix for display.
func NewRunID() string {
	return newIdentifier("run")
}

func newIdentifier(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, NewUUIDv7())
}

// NewUUIDv7 exposes raw UUIDv7 generation for callers that need unprefixed
// identifiers. UUIDv7 is time-ordered, so identifiers sort by creation time.
func NewUUIDv7() string {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does, fall back to v4.
		return uuid.New().String()
	}
	return uuidv7.String()
}
