package model

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall-clock time. Stores stamp updated_at through it so
// tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC with the monotonic reading
// stripped, so values compare equal after a round trip through a document.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Round(0)
}

// IDGenerator produces unique identifiers for events and transactions.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 strings.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
