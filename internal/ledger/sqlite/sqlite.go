package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chargelog/internal/core"
	"chargelog/internal/ledger"

	_ "modernc.org/sqlite"
)

// Store is the SQLite ledger backend. Unlike the file and sheet backends it
// never persists derived columns; the schema holds raw fields plus the
// coordinate cache.
type Store struct {
	db *sql.DB
}

var _ ledger.Ledger = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]core.RawSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, provider, location, charge_type, energy_kwh, total_cost, latitude, longitude
		FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", ledger.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []core.RawSession
	for rows.Next() {
		var (
			dateStr  string
			raw      core.RawSession
			lat, lon sql.NullFloat64
		)
		var typeStr string
		if err := rows.Scan(&dateStr, &raw.Provider, &raw.Location, &typeStr,
			&raw.EnergyKWh, &raw.TotalCost, &lat, &lon); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", ledger.ErrUnavailable, err)
		}
		if t, ok := core.ParseDate(dateStr); ok {
			raw.Date = t
		}
		raw.Type = core.ChargeType(typeStr)
		if lat.Valid && lon.Valid {
			raw.Coords = &core.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate sessions: %v", ledger.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) AppendOne(ctx context.Context, raw core.RawSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (date, provider, location, charge_type, energy_kwh, total_cost, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatDate(raw), raw.Provider, raw.Location, string(raw.Type),
		raw.EnergyKWh, raw.TotalCost, coord(raw, true), coord(raw, false))
	if err != nil {
		return fmt.Errorf("%w: insert session: %v", ledger.ErrUnavailable, err)
	}
	return nil
}

// ReplaceAll swaps the full table content in one transaction, so readers
// never observe a half-written dataset.
func (s *Store) ReplaceAll(ctx context.Context, rowsIn []core.RawSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ledger.ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("%w: clear sessions: %v", ledger.ErrUnavailable, err)
	}
	for _, raw := range rowsIn {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (date, provider, location, charge_type, energy_kwh, total_cost, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			formatDate(raw), raw.Provider, raw.Location, string(raw.Type),
			raw.EnergyKWh, raw.TotalCost, coord(raw, true), coord(raw, false)); err != nil {
			return fmt.Errorf("%w: insert session: %v", ledger.ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %v", ledger.ErrUnavailable, err)
	}

	slog.InfoContext(ctx, "Replaced sqlite ledger", "rows", len(rowsIn))
	return nil
}

func formatDate(raw core.RawSession) string {
	if raw.Date.IsZero() {
		return ""
	}
	return raw.Date.Format(ledger.DateLayout)
}

func coord(raw core.RawSession, lat bool) any {
	if raw.Coords == nil {
		return nil
	}
	if lat {
		return raw.Coords.Lat
	}
	return raw.Coords.Lon
}
