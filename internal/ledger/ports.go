package ledger

import (
	"context"
	"errors"

	"chargelog/internal/core"
)

// Ledger is the capability set every persistence backend must honor.
//
// Load returns every stored record in store order. An absent or empty store
// is not an error: callers get an empty slice and treat it as "no data yet".
// A malformed or unreachable store surfaces as an error wrapping
// ErrUnavailable, so callers can tell "no sessions" from "failed to read".
//
// AppendOne adds exactly one record. The local-file backend appends a single
// line; the spreadsheet backend has no native append and does a
// read-then-write of the next row, which a concurrent reader could observe
// mid-flight. Callers must treat AppendOne as atomic-or-failed from their
// own perspective only.
//
// ReplaceAll overwrites the entire store with exactly the given rows in the
// given order. The caller is responsible for passing the full intended
// dataset: a filtered subset silently deletes whatever it omits. The
// services layer guards this; backends do not.
type Ledger interface {
	Load(ctx context.Context) ([]core.RawSession, error)
	AppendOne(ctx context.Context, raw core.RawSession) error
	ReplaceAll(ctx context.Context, rows []core.RawSession) error
}

// ErrUnavailable marks a store that could not be read or written, as
// opposed to one that is merely empty.
var ErrUnavailable = errors.New("ledger backend unavailable")
