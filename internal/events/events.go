// Package events publishes a record of each successful branch copy so
// downstream consumers can audit where a build's inputs came from.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/lei/simple-copy/internal/models"
)

// CopyEvent describes one successful branch copy.
type CopyEvent struct {
	RequestID   string        `json:"request_id"`
	ConsumerJob string        `json:"consumer_job,omitempty"`
	SourceJob   string        `json:"source_job"`
	BuildNumber int           `json:"build_number"`
	Result      models.Result `json:"result"`
	Files       int           `json:"files"`
	Target      string        `json:"target"`
	At          time.Time     `json:"at"`
}

// Sink receives copy events.
type Sink interface {
	Publish(ctx context.Context, ev CopyEvent) error
	Close() error
}

// NopSink discards everything. Used when no event backend is
// configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, CopyEvent) error { return nil }
func (NopSink) Close() error                             { return nil }

// RecordingSink keeps published events in memory, for tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []CopyEvent
}

func (s *RecordingSink) Publish(_ context.Context, ev CopyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *RecordingSink) Close() error { return nil }

// Events returns a copy of everything published so far.
func (s *RecordingSink) Events() []CopyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CopyEvent, len(s.events))
	copy(out, s.events)
	return out
}
