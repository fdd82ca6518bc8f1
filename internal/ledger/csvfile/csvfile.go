package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"chargelog/internal/core"
	"chargelog/internal/ledger"
)

// Store is the local delimited-file backend. One Store owns one file; all
// mutations serialize through a single-writer mutex per instance.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ ledger.Ledger = (*Store)(nil)

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("csv path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Load reads every stored record in file order. A missing or empty file is
// "no data yet", not an error.
func (s *Store) Load(ctx context.Context) ([]core.RawSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ledger.ErrUnavailable, s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // hand-edited files have ragged rows
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ledger.ErrUnavailable, s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx, missing, unknown := ledger.ColumnIndex(records[0])
	if len(missing) > 0 {
		slog.WarnContext(ctx, "CSV header missing columns, padding with empties",
			"path", s.path, "missing", missing)
	}
	if len(unknown) > 0 {
		slog.WarnContext(ctx, "CSV header has unknown columns, dropped on next save",
			"path", s.path, "unknown", unknown)
	}

	rows := make([]core.RawSession, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, ledger.DecodeRow(rec, idx))
	}
	return rows, nil
}

// AppendOne appends a single line, creating the file with a header first
// when absent. This is the fast near-atomic path; existing rows are never
// rewritten.
func (s *Store) AppendOne(ctx context.Context, raw core.RawSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	needHeader, err := s.needsHeader()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ledger.ErrUnavailable, s.path, err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ledger.ErrUnavailable, s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(ledger.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(ledger.EncodeRow(raw)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ledger.ErrUnavailable, s.path, err)
	}
	return nil
}

// ReplaceAll overwrites the whole file with exactly the given rows. The new
// content goes to a temp file in the same directory first and is renamed
// over the original, so a crash mid-write never leaves a torn store.
func (s *Store) ReplaceAll(ctx context.Context, rows []core.RawSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ledger.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(ledger.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, raw := range rows {
		if err := w.Write(ledger.EncodeRow(raw)); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush temp file: %v", ledger.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ledger.ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename temp file: %v", ledger.ErrUnavailable, err)
	}

	slog.InfoContext(ctx, "Replaced CSV ledger", "path", s.path, "rows", len(rows))
	return nil
}

func (s *Store) needsHeader() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}
