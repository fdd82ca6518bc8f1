package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chargelog/internal/cache"
	"chargelog/internal/core"
	"chargelog/internal/geocode"
	"chargelog/internal/ledger"
)

// ErrPartialDataset is returned by Replace when the incoming row set is
// suspiciously smaller than the last full dataset this process has seen.
// Saving a filtered view over the full ledger silently drops every row
// outside the filter; callers must pass force=true to do that on purpose.
var ErrPartialDataset = errors.New("refusing to replace ledger with a smaller dataset")

// ResolvePublisher enqueues an async geocode request for a location name.
// *amqp.Client satisfies it; a nil publisher disables async resolution.
type ResolvePublisher interface {
	PublishLocationResolve(ctx context.Context, name string) error
}

const snapshotKey = "sessions"

type Options struct {
	SnapshotTTL     time.Duration
	ShrinkTolerance int
}

func DefaultOptions() Options {
	return Options{
		SnapshotTTL:     30 * time.Second,
		ShrinkTolerance: 0,
	}
}

// SessionService orchestrates the ledger, the geocode cache and the async
// resolve queue behind one API surface. All reads go through a short-lived
// snapshot so a remote spreadsheet backend is not hit on every request.
type SessionService struct {
	store           ledger.Ledger
	geocoder        *geocode.Cache
	publisher       ResolvePublisher
	snapshots       *cache.TTL[[]core.Session]
	shrinkTolerance int

	mu            sync.Mutex
	lastFullCount int // raw rows seen on the last full load, -1 until known
}

func NewSessionService(store ledger.Ledger, geocoder *geocode.Cache, publisher ResolvePublisher, opts Options) *SessionService {
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = DefaultOptions().SnapshotTTL
	}
	if opts.ShrinkTolerance < 0 {
		opts.ShrinkTolerance = 0
	}
	return &SessionService{
		store:           store,
		geocoder:        geocoder,
		publisher:       publisher,
		snapshots:       cache.NewTTL[[]core.Session](opts.SnapshotTTL),
		shrinkTolerance: opts.ShrinkTolerance,
		lastFullCount:   -1,
	}
}

// Snapshot returns the full derived session set. Rows that cannot be derived
// (unparseable dates) are skipped with a warning rather than failing the
// whole read.
func (s *SessionService) Snapshot(ctx context.Context) ([]core.Session, error) {
	if sessions, ok := s.snapshots.Get(snapshotKey); ok {
		return sessions, nil
	}

	raws, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	sessions, skipped := core.DeriveAll(raws)
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped sessions with underivable fields",
			"skipped", skipped, "total", len(raws))
	}

	s.mu.Lock()
	s.lastFullCount = len(raws)
	s.mu.Unlock()

	s.snapshots.Set(snapshotKey, sessions)
	return sessions, nil
}

// Append validates and persists one new session, then asks the worker to
// resolve its location in the background. A failed publish never fails the
// append; the row is already durable.
func (s *SessionService) Append(ctx context.Context, raw core.RawSession) error {
	if err := raw.Validate(); err != nil {
		return err
	}

	if raw.Coords == nil && raw.Location != "" && s.geocoder != nil {
		raw.Coords = s.geocoder.Cached(raw.Location)
	}

	if err := s.store.AppendOne(ctx, raw); err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	s.snapshots.Invalidate(snapshotKey)
	s.mu.Lock()
	if s.lastFullCount >= 0 {
		s.lastFullCount++
	}
	s.mu.Unlock()

	if raw.Coords == nil && raw.Location != "" && s.publisher != nil {
		if err := s.publisher.PublishLocationResolve(ctx, raw.Location); err != nil {
			slog.ErrorContext(ctx, "Failed to publish location resolve message",
				"location", raw.Location, "error", err)
		}
	}

	return nil
}

// Replace overwrites the whole ledger with rows. Unless force is set, a row
// set smaller than the last observed full dataset (minus the configured
// tolerance) is rejected with ErrPartialDataset, because it is almost always
// a filtered view saved by mistake. A successful replace becomes the new
// full-dataset baseline.
//
// Rows are not held to the entry-time rules here: the ledger legitimately
// contains historical rows the entry form would reject (zero energy, odd
// providers), and a full save-back must not strand them. Only a valid date
// is required, since a dateless row can never derive.
func (s *SessionService) Replace(ctx context.Context, rows []core.RawSession, force bool) error {
	for i, raw := range rows {
		if raw.Date.IsZero() {
			return fmt.Errorf("row %d: %w", i, core.ErrInvalidDate)
		}
	}

	s.mu.Lock()
	last := s.lastFullCount
	s.mu.Unlock()

	if !force && last >= 0 && len(rows) < last-s.shrinkTolerance {
		return fmt.Errorf("%w: %d rows incoming, %d rows on record",
			ErrPartialDataset, len(rows), last)
	}

	if err := s.store.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	s.mu.Lock()
	s.lastFullCount = len(rows)
	s.mu.Unlock()
	s.snapshots.Invalidate(snapshotKey)
	return nil
}

// UnresolvedLocations returns the distinct location names that have at least
// one session without coordinates, in first-seen order.
func (s *SessionService) UnresolvedLocations(ctx context.Context) ([]string, error) {
	raws, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	seen := map[string]struct{}{}
	var names []string
	for _, raw := range raws {
		if raw.Location == "" || raw.Coords != nil {
			continue
		}
		if _, ok := seen[raw.Location]; ok {
			continue
		}
		seen[raw.Location] = struct{}{}
		names = append(names, raw.Location)
	}
	return names, nil
}

// EnrichMissing resolves every unresolved location through the geocode cache
// and writes the coordinates back to the ledger in one replace. It returns
// the number of rows that gained coordinates.
func (s *SessionService) EnrichMissing(ctx context.Context) (int, error) {
	if s.geocoder == nil {
		return 0, nil
	}

	names, err := s.UnresolvedLocations(ctx)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, nil
	}

	resolved, err := s.geocoder.ResolveMissing(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("resolve locations: %w", err)
	}

	patched := 0
	for _, coords := range resolved {
		if coords != nil {
			patched++
		}
	}
	if patched == 0 {
		return 0, nil
	}

	return s.applyCoordinates(ctx, func(raw *core.RawSession) bool {
		coords, ok := resolved[raw.Location]
		if !ok || coords == nil {
			return false
		}
		c := *coords
		raw.Coords = &c
		return true
	})
}

// ApplyCoordinates writes coords onto every session for one location that
// still lacks them. The geocode worker calls this after a successful lookup.
func (s *SessionService) ApplyCoordinates(ctx context.Context, name string, coords core.Coordinates) (int, error) {
	if name == "" {
		return 0, nil
	}
	return s.applyCoordinates(ctx, func(raw *core.RawSession) bool {
		if raw.Location != name {
			return false
		}
		c := coords
		raw.Coords = &c
		return true
	})
}

// applyCoordinates loads the full ledger, patches rows without coordinates
// via patch, and replaces the ledger when anything changed. The full-set
// read-then-replace keeps the write honest against the shrink guard.
func (s *SessionService) applyCoordinates(ctx context.Context, patch func(*core.RawSession) bool) (int, error) {
	raws, err := s.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}

	changed := 0
	for i := range raws {
		if raws[i].Coords != nil {
			continue
		}
		if patch(&raws[i]) {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	if err := s.store.ReplaceAll(ctx, raws); err != nil {
		return 0, fmt.Errorf("replace ledger: %w", err)
	}

	s.mu.Lock()
	s.lastFullCount = len(raws)
	s.mu.Unlock()
	s.snapshots.Invalidate(snapshotKey)

	slog.InfoContext(ctx, "Applied coordinates to ledger rows", "rows", changed)
	return changed, nil
}

// Forget drops one location from the geocode cache so the next resolve
// retries the provider.
func (s *SessionService) Forget(name string) {
	if s.geocoder != nil {
		s.geocoder.Forget(name)
	}
}
