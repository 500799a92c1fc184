package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/agenciamidas/capi-gateway/internal/domain"
	"github.com/agenciamidas/capi-gateway/internal/metrics"
)

// ErrNoDestinations means the filtered pixel set came up empty. That is an
// operator configuration problem, not a quiet success.
var ErrNoDestinations = errors.New("no destinations configured or eligible")

// AuditLog persists per-pixel dispatch attempts. Nil disables persistence.
type AuditLog interface {
	RecordDispatch(ctx context.Context, eventID, eventName string, result domain.DispatchResult) error
}

// Filter narrows the configured pixel set for one dispatch.
type Filter struct {
	// FluxlabsOnly keeps only pixels flagged as eligible for the fluxlabs
	// inbound channel.
	FluxlabsOnly bool
	// PixelIDs, when non-empty, keeps only the named pixels.
	PixelIDs []string
}

// Dispatcher sends one canonical event to every selected pixel concurrently
// and aggregates the per-pixel results. One destination failing never blocks
// or delays the others.
type Dispatcher struct {
	client *Client
	pixels []domain.Pixel
	audit  AuditLog
	logger *slog.Logger
}

func New(client *Client, pixels []domain.Pixel, audit AuditLog, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		pixels: pixels,
		audit:  audit,
		logger: logger,
	}
}

// Dispatch fans ev out to the filtered destination set and waits for every
// call to finish. Results keep the configured pixel order. The event is
// already admitted at this point, so in-flight calls run on a context that
// survives a caller disconnect.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.CanonicalEvent, filter Filter) (*domain.Aggregate, error) {
	selected := d.selectPixels(filter)
	if len(selected) == 0 {
		return nil, ErrNoDestinations
	}

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	results := make([]domain.DispatchResult, len(selected))
	var wg sync.WaitGroup
	for i, pixel := range selected {
		wg.Add(1)
		go func(i int, pixel domain.Pixel) {
			defer wg.Done()
			results[i] = d.client.Send(ctx, pixel, ev)
		}(i, pixel)
	}
	wg.Wait()

	agg := &domain.Aggregate{Results: results}
	d.record(ctx, ev, agg, time.Since(start))
	return agg, nil
}

func (d *Dispatcher) selectPixels(filter Filter) []domain.Pixel {
	var selected []domain.Pixel
	for _, p := range d.pixels {
		if filter.FluxlabsOnly && !p.FluxlabsEnabled {
			continue
		}
		if len(filter.PixelIDs) > 0 && !containsID(filter.PixelIDs, p.ID) {
			continue
		}
		selected = append(selected, p)
	}
	return selected
}

func (d *Dispatcher) record(ctx context.Context, ev *domain.CanonicalEvent, agg *domain.Aggregate, elapsed time.Duration) {
	metrics.DispatchDuration.Observe(elapsed.Seconds())

	for _, r := range agg.Results {
		if r.OK() {
			metrics.EventsDispatched.WithLabelValues(r.PixelID, "success").Inc()
			d.logger.Info("dispatch delivered",
				"event_name", ev.EventName,
				"event_id", ev.EventID,
				"pixel_id", r.PixelID,
				"status", r.Status,
			)
		} else {
			metrics.EventsDispatched.WithLabelValues(r.PixelID, "failed").Inc()
			d.logger.Warn("dispatch failed",
				"event_name", ev.EventName,
				"event_id", ev.EventID,
				"pixel_id", r.PixelID,
				"status", r.Status,
				"error", r.Err,
			)
		}

		if d.audit != nil {
			if err := d.audit.RecordDispatch(ctx, ev.EventID, ev.EventName, r); err != nil {
				d.logger.Error("failed to record dispatch",
					"event_id", ev.EventID,
					"pixel_id", r.PixelID,
					"error", err,
				)
			}
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
