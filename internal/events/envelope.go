package events

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps one event payload with the metadata stamped at publish
// time. Envelopes are immutable once built and exist only for the duration
// of in-process delivery; they are never persisted.
type Envelope struct {
	EventID       string  `json:"eventId"`
	Kind          Kind    `json:"eventKind"`
	Timestamp     int64   `json:"timestamp"`
	Source        string  `json:"source"`
	SchemaVersion string  `json:"schemaVersion"`
	Payload       Payload `json:"payload"`
}

// Builder stamps payloads into envelopes. The clock and ID source are
// pluggable so envelope construction is deterministic under test.
type Builder struct {
	source        string
	schemaVersion string
	now           func() time.Time
	newID         func() string
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithClock replaces the wall clock used for envelope timestamps.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDSource replaces the event ID generator.
func WithIDSource(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a Builder stamping the given source and schema version.
func NewBuilder(source, schemaVersion string, opts ...BuilderOption) *Builder {
	b := &Builder{
		source:        source,
		schemaVersion: schemaVersion,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build wraps a payload in a stamped envelope. Pure aside from the clock and
// ID source; it always succeeds.
func (b *Builder) Build(kind Kind, payload Payload) Envelope {
	return Envelope{
		EventID:       b.newID(),
		Kind:          kind,
		Timestamp:     b.now().Unix(),
		Source:        b.source,
		SchemaVersion: b.schemaVersion,
		Payload:       payload,
	}
}
