package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "warden"

// Metrics holds all warden metric instruments.
type Metrics struct {
	RunsStarted      metric.Int64Counter
	RunsCompleted    metric.Int64Counter
	ScopeDenials     metric.Int64Counter
	VerifierFailures metric.Int64Counter
	RunDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("warden.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("warden.runs.completed",
		metric.WithDescription("Number of runs completed, labelled by outcome"))
	if err != nil {
		return nil, err
	}

	m.ScopeDenials, err = meter.Int64Counter("warden.scope.denials",
		metric.WithDescription("Number of denied write attempts"))
	if err != nil {
		return nil, err
	}

	m.VerifierFailures, err = meter.Int64Counter("warden.verifier.failures",
		metric.WithDescription("Number of failed verification passes"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("warden.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
