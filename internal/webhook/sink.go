package webhook

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Event is a verified, deduplicated notification handed to the sink.
type Event struct {
	// MessageID is the platform's delivery id, unique per notification.
	MessageID string

	// Type is the subscription type, e.g. "stream.online".
	Type string

	// Payload is the event object from the notification body.
	Payload json.RawMessage

	// ReceivedAt is when the ingest accepted the delivery.
	ReceivedAt time.Time
}

// Sink receives validated events exactly once per message id. Deliver
// must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log. The admin gateway tails
// the log stream, so this is the production default.
type LogSink struct {
	log logr.Logger
}

// NewLogSink creates a sink logging through the given logger.
func NewLogSink(log logr.Logger) *LogSink {
	return &LogSink{log: log}
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, event Event) error {
	s.log.Info("Webhook event delivered",
		"messageId", event.MessageID,
		"type", event.Type,
		"receivedAt", event.ReceivedAt)
	return nil
}

// MemorySink collects events in memory, for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Deliver appends the event.
func (s *MemorySink) Deliver(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything delivered so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
