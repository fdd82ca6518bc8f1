package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"chargelog/internal/core"
	"chargelog/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client is the remote-spreadsheet backend: one named worksheet holding the
// fixed column schema, accessed with full-sheet reads and writes only. All
// operations serialize through a single-writer mutex per instance, so two
// in-process mutations never interleave their multi-call sequences. An
// out-of-process reader can still observe the sheet mid-sequence.
type Client struct {
	mu            sync.Mutex
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ledger.Ledger = (*Client)(nil)

// NewFromEnv creates a Sheets-backed ledger using environment variables.
// Required: GOOGLE_SPREADSHEET_ID. Sheet name from GOOGLE_SHEET_NAME
// (default "Sessions"). Credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Sessions"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Load reads the whole worksheet. An empty or header-only sheet is "no data
// yet"; an unreachable spreadsheet surfaces as ErrUnavailable.
func (c *Client) Load(ctx context.Context) ([]core.RawSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc == nil {
		return nil, fmt.Errorf("%w: sheets service not initialized", ledger.ErrUnavailable)
	}
	values, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	idx, missing, unknown := ledger.ColumnIndex(toStrings(values[0]))
	if len(missing) > 0 {
		slog.WarnContext(ctx, "Sheet header missing columns, padding with empties",
			"sheet", c.sheetName, "missing", missing)
	}
	if len(unknown) > 0 {
		slog.WarnContext(ctx, "Sheet header has unknown columns, dropped on next save",
			"sheet", c.sheetName, "unknown", unknown)
	}

	rows := make([]core.RawSession, 0, len(values)-1)
	for _, v := range values[1:] {
		rows = append(rows, ledger.DecodeRow(toStrings(v), idx))
	}
	return rows, nil
}

// AppendOne writes one record to the first free row, creating the header
// when the sheet is empty. The read-then-write sequence runs under the
// instance lock; only an out-of-process writer can race it.
func (c *Client) AppendOne(ctx context.Context, raw core.RawSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc == nil {
		return fmt.Errorf("%w: sheets service not initialized", ledger.ErrUnavailable)
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: get sheet dimensions: %v", ledger.ErrUnavailable, err)
	}

	startRow := len(resp.Values) + 1
	var values [][]any
	if startRow == 1 {
		// Empty sheet: write the header along with the first record.
		values = append(values, toAnys(ledger.Columns))
	}
	values = append(values, toAnys(ledger.EncodeRow(raw)))

	dataRange := fmt.Sprintf("%s!A%d", c.sheetName, startRow)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: update sheet %s: %v", ledger.ErrUnavailable, c.sheetName, err)
	}

	slog.InfoContext(ctx, "Appended session to sheet",
		"sheet", c.sheetName, "row", startRow+len(values)-1, "provider", raw.Provider)
	return nil
}

// ReplaceAll clears the worksheet and writes header plus rows in one
// update. The clear and the write are two calls held under the instance
// lock; an out-of-process reader could still see the gap between them.
func (c *Client) ReplaceAll(ctx context.Context, rows []core.RawSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc == nil {
		return fmt.Errorf("%w: sheets service not initialized", ledger.ErrUnavailable)
	}

	clearRng := fmt.Sprintf("%s!A:Z", c.sheetName)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: clear sheet %s: %v", ledger.ErrUnavailable, c.sheetName, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, toAnys(ledger.Columns))
	for _, raw := range rows {
		values = append(values, toAnys(ledger.EncodeRow(raw)))
	}

	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", c.sheetName), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: write sheet %s: %v", ledger.ErrUnavailable, c.sheetName, err)
	}

	slog.InfoContext(ctx, "Replaced sheet ledger", "sheet", c.sheetName, "rows", len(rows))
	return nil
}

func (c *Client) readAll(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:%c", c.sheetName, 'A'+len(ledger.Columns)-1)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ledger.ErrUnavailable, rng, err)
	}
	return resp.Values, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAnys(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
