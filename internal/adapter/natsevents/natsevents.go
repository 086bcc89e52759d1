// Package natsevents implements the event sink port using NATS
// JetStream, so run lifecycle events survive a restart of any consumer.
package natsevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wardenworks/warden/internal/port/eventsink"
)

const streamName = "WARDEN"

// Sink publishes run events to subjects under "runs.".
type Sink struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection and ensures the stream exists.
func Connect(ctx context.Context, url string) (*Sink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"runs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Sink{nc: nc, js: js}, nil
}

// Publish sends one event to runs.<run_id>.<type>.
func (s *Sink) Publish(ctx context.Context, ev eventsink.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal event: %w", err)
	}
	subject := fmt.Sprintf("runs.%s.%s", ev.RunID, ev.Type)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (s *Sink) Close() error {
	s.nc.Close()
	return nil
}
