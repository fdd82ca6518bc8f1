package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"chargelog/internal/amqp"
	"chargelog/internal/core"
	"chargelog/internal/geocode"
)

type fakeEnricher struct {
	applied    map[string]core.Coordinates
	applyErr   error
	enrichRuns int
}

func newFakeEnricher() *fakeEnricher {
	return &fakeEnricher{applied: make(map[string]core.Coordinates)}
}

func (f *fakeEnricher) ApplyCoordinates(_ context.Context, name string, coords core.Coordinates) (int, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	f.applied[name] = coords
	return 1, nil
}

func (f *fakeEnricher) EnrichMissing(_ context.Context) (int, error) {
	f.enrichRuns++
	return 0, nil
}

type tableResolver struct {
	known map[string]core.Coordinates
}

func (r *tableResolver) Lookup(_ context.Context, query string) (core.Coordinates, bool, error) {
	c, ok := r.known[query]
	return c, ok, nil
}

func testGeocoder(known map[string]core.Coordinates) *geocode.Cache {
	return geocode.NewCache(&tableResolver{known: known}, geocode.Config{
		Country:     "Malaysia",
		MinInterval: time.Millisecond,
		Concurrency: 2,
	})
}

func TestHandleResolveMessageAppliesCoordinates(t *testing.T) {
	enricher := newFakeEnricher()
	w := NewGeocodeWorker(enricher, testGeocoder(map[string]core.Coordinates{
		"Mall A, Malaysia": {Lat: 3.15, Lon: 101.71},
	}))

	msg := &amqp.LocationResolveMessage{Name: "Mall A", RequestedAt: time.Now()}
	if err := w.HandleResolveMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleResolveMessage: %v", err)
	}

	coords, ok := enricher.applied["Mall A"]
	if !ok {
		t.Fatal("coordinates were not applied")
	}
	if coords.Lat != 3.15 || coords.Lon != 101.71 {
		t.Errorf("applied coords = %+v", coords)
	}
}

func TestHandleResolveMessageMissIsAcked(t *testing.T) {
	enricher := newFakeEnricher()
	w := NewGeocodeWorker(enricher, testGeocoder(nil))

	msg := &amqp.LocationResolveMessage{Name: "Nowhere", RequestedAt: time.Now()}
	if err := w.HandleResolveMessage(context.Background(), msg); err != nil {
		t.Fatalf("a definitive miss must not be retried, got %v", err)
	}
	if len(enricher.applied) != 0 {
		t.Errorf("applied = %v, want nothing", enricher.applied)
	}
}

func TestHandleResolveMessageEmptyName(t *testing.T) {
	enricher := newFakeEnricher()
	w := NewGeocodeWorker(enricher, testGeocoder(nil))

	msg := &amqp.LocationResolveMessage{RequestedAt: time.Now()}
	if err := w.HandleResolveMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleResolveMessage: %v", err)
	}
}

func TestHandleResolveMessagePropagatesApplyFailure(t *testing.T) {
	enricher := newFakeEnricher()
	enricher.applyErr = errors.New("ledger unavailable")
	w := NewGeocodeWorker(enricher, testGeocoder(map[string]core.Coordinates{
		"Mall A, Malaysia": {Lat: 3.15, Lon: 101.71},
	}))

	msg := &amqp.LocationResolveMessage{Name: "Mall A", RequestedAt: time.Now()}
	if err := w.HandleResolveMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
}

func TestStartupSweep(t *testing.T) {
	enricher := newFakeEnricher()
	w := NewGeocodeWorker(enricher, testGeocoder(nil))

	if err := w.StartupSweep(context.Background()); err != nil {
		t.Fatalf("StartupSweep: %v", err)
	}
	if enricher.enrichRuns != 1 {
		t.Errorf("enrich runs = %d, want 1", enricher.enrichRuns)
	}
}
