package service

import (
	"context"
	"errors"
	"time"

	lspAdapter "github.com/codenav-io/codenav/internal/adapter/lsp"
	otelAdapter "github.com/codenav-io/codenav/internal/adapter/otel"
	"github.com/codenav-io/codenav/internal/adapter/ws"
	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventObserver bridges protocol-level events into metric instruments and
// the WebSocket hub. It also satisfies the service's cacheMetrics needs
// so one object carries all instrumentation.
type EventObserver struct {
	metrics *otelAdapter.Metrics // nil disables metrics
	hub     *ws.Hub              // nil disables event broadcast

	// svc is set after construction; a server restart invalidates the
	// service's didOpen tracking for that language.
	svc *LSPService
}

// NewEventObserver creates the bridge. Either dependency may be nil.
func NewEventObserver(metrics *otelAdapter.Metrics, hub *ws.Hub) *EventObserver {
	return &EventObserver{metrics: metrics, hub: hub}
}

// Bind attaches the service whose per-session state the observer resets
// on restarts. Call before any session is created.
func (o *EventObserver) Bind(svc *LSPService) {
	o.svc = svc
}

var _ lspAdapter.Observer = (*EventObserver)(nil)

// RequestCompleted records request count, duration, and timeouts.
func (o *EventObserver) RequestCompleted(language, method string, elapsed time.Duration, err error) {
	if o.metrics == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("method", method),
	)
	o.metrics.Requests.Add(ctx, 1, attrs)
	o.metrics.RequestDuration.Record(ctx, elapsed.Seconds(), attrs)
	if errors.Is(err, lspAdapter.ErrTimeout) {
		o.metrics.Timeouts.Add(ctx, 1, attrs)
	}
}

// LateResponseDropped counts responses discarded after their request
// timed out.
func (o *EventObserver) LateResponseDropped(language string, _ int64) {
	if o.metrics == nil {
		return
	}
	o.metrics.LateResponsesDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("language", language)))
}

// Progress forwards server work-done progress to subscribers.
func (o *EventObserver) Progress(language, token string, state lspDomain.ProgressState, done bool) {
	if o.hub == nil {
		return
	}
	kind := state.Kind
	if done {
		kind = "end"
	}
	o.hub.BroadcastEvent(context.Background(), ws.EventLSPProgress, ws.LSPProgressEvent{
		Language:   language,
		Token:      token,
		Kind:       kind,
		Title:      state.Title,
		Message:    state.Message,
		Percentage: state.Percentage,
	})
}

// ServerRestarted counts restarts, resets per-session service state, and
// notifies subscribers.
func (o *EventObserver) ServerRestarted(language string) {
	ctx := context.Background()
	if o.metrics != nil {
		o.metrics.ServerRestarts.Add(ctx, 1,
			metric.WithAttributes(attribute.String("language", language)))
	}
	if o.svc != nil {
		o.svc.forgetOpened(language)
	}
	if o.hub != nil {
		o.hub.BroadcastEvent(ctx, ws.EventLSPStatus, ws.LSPStatusEvent{
			Language: language,
			Status:   "restarting",
		})
	}
}

// CacheHit implements the service's cache instrumentation.
func (o *EventObserver) CacheHit(ctx context.Context, language, op string) {
	if o.metrics == nil {
		return
	}
	o.metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("op", op),
	))
}

// CacheMiss implements the service's cache instrumentation.
func (o *EventObserver) CacheMiss(ctx context.Context, language, op string) {
	if o.metrics == nil {
		return
	}
	o.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("op", op),
	))
}
