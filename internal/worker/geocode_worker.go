package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chargelog/internal/amqp"
	"chargelog/internal/core"
	"chargelog/internal/geocode"
)

// SessionEnricher is the slice of the session service the worker needs to
// write resolved coordinates back to the ledger.
type SessionEnricher interface {
	ApplyCoordinates(ctx context.Context, name string, coords core.Coordinates) (int, error)
	EnrichMissing(ctx context.Context) (int, error)
}

// GeocodeWorker consumes location resolve messages, runs them through the
// shared geocode cache and patches the ledger with the results.
type GeocodeWorker struct {
	enricher SessionEnricher
	geocoder *geocode.Cache
}

func NewGeocodeWorker(enricher SessionEnricher, geocoder *geocode.Cache) *GeocodeWorker {
	return &GeocodeWorker{
		enricher: enricher,
		geocoder: geocoder,
	}
}

// HandleResolveMessage processes a single resolve request from AMQP. A
// definitive miss is acked, not retried: the cache already remembers it, and
// a later explicit Forget is the only path back to the provider.
func (w *GeocodeWorker) HandleResolveMessage(ctx context.Context, msg *amqp.LocationResolveMessage) error {
	if msg.Name == "" {
		return nil
	}

	slog.InfoContext(ctx, "Processing resolve message",
		"location", msg.Name,
		"requested_at", msg.RequestedAt)

	coords, err := w.geocoder.Resolve(ctx, msg.Name)
	if err != nil {
		return fmt.Errorf("resolve location: %w", err)
	}
	if coords == nil {
		slog.InfoContext(ctx, "Location did not resolve, leaving rows unresolved",
			"location", msg.Name)
		return nil
	}

	changed, err := w.enricher.ApplyCoordinates(ctx, msg.Name, *coords)
	if err != nil {
		return fmt.Errorf("apply coordinates: %w", err)
	}

	slog.InfoContext(ctx, "Resolved location",
		"location", msg.Name,
		"lat", coords.Lat,
		"lon", coords.Lon,
		"rows_updated", changed)

	return nil
}

// StartupSweep resolves everything still unresolved at worker startup.
// This recovers from resolve messages lost while the worker was down.
func (w *GeocodeWorker) StartupSweep(ctx context.Context) error {
	patched, err := w.enricher.EnrichMissing(ctx)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	if patched == 0 {
		slog.InfoContext(ctx, "No unresolved locations found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sweep completed", "rows_updated", patched)
	return nil
}

// RunPeriodicSweep re-runs the sweep on a fixed interval until the context
// ends. The cache makes repeat sweeps cheap: names already tried resolve
// locally without touching the provider.
func (w *GeocodeWorker) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			patched, err := w.enricher.EnrichMissing(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
				continue
			}
			if patched > 0 {
				slog.InfoContext(ctx, "Periodic sweep updated rows", "rows_updated", patched)
			}
		}
	}
}
