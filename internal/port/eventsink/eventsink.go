// Package eventsink defines the port run lifecycle events flow through.
package eventsink

import (
	"context"
	"time"
)

// Event types emitted over a run's lifetime.
const (
	TypeRunStarted    = "run_started"
	TypeStepCompleted = "step_completed"
	TypeRunCompleted  = "run_completed"
)

// Event is one run lifecycle notification.
type Event struct {
	Type   string         `json:"type"`
	RunID  string         `json:"run_id"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink publishes run events. Publishing is best-effort from the
// controller's point of view; a failing sink must not fail the run.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
