// Package otel holds the codenav metric instruments.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codenav"

// Metrics holds all codenav metric instruments.
type Metrics struct {
	Requests             metric.Int64Counter
	Timeouts             metric.Int64Counter
	LateResponsesDropped metric.Int64Counter
	ServerRestarts       metric.Int64Counter
	CacheHits            metric.Int64Counter
	CacheMisses          metric.Int64Counter
	RequestDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Requests, err = meter.Int64Counter("codenav.lsp.requests",
		metric.WithDescription("Number of protocol requests sent"))
	if err != nil {
		return nil, err
	}

	m.Timeouts, err = meter.Int64Counter("codenav.lsp.timeouts",
		metric.WithDescription("Number of protocol requests that timed out"))
	if err != nil {
		return nil, err
	}

	m.LateResponsesDropped, err = meter.Int64Counter("codenav.lsp.late_responses_dropped",
		metric.WithDescription("Number of responses discarded after their request timed out"))
	if err != nil {
		return nil, err
	}

	m.ServerRestarts, err = meter.Int64Counter("codenav.lsp.server_restarts",
		metric.WithDescription("Number of language server restarts after process death"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("codenav.cache.hits",
		metric.WithDescription("Number of query results served from cache"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("codenav.cache.misses",
		metric.WithDescription("Number of query results that missed the cache"))
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram("codenav.lsp.request_duration_seconds",
		metric.WithDescription("Protocol request duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
