package ledger

import (
	"strconv"
	"strings"

	"chargelog/internal/core"
)

// Columns is the fixed ordered schema shared by every backend. Cost_per_kWh
// and Month are derived fields persisted only for spreadsheet
// interoperability; they are recomputed on every load and unconditionally
// overwritten on every save. Latitude and Longitude hold the durable form
// of the enrichment cache and stay empty until a location resolves.
var Columns = []string{
	"Date", "Provider", "Location", "Type", "kWh",
	"Total Cost", "Cost_per_kWh", "Month", "Latitude", "Longitude",
}

const (
	colDate = iota
	colProvider
	colLocation
	colType
	colKWh
	colTotalCost
	colCostPerKWh
	colMonth
	colLatitude
	colLongitude
)

// DateLayout is the layout written to storage. Load accepts more via
// core.ParseDate.
const DateLayout = "2006-01-02"

// ColumnIndex maps a stored header row onto the fixed schema. Matching is
// case-insensitive on the trimmed column name. Missing columns map to -1
// and are padded with empties at decode time. Unknown stored columns are
// returned by name so backends can log them for audit before the next save
// drops them; they are never referenced during decode.
func ColumnIndex(header []string) (idx []int, missing, unknown []string) {
	idx = make([]int, len(Columns))
	matched := make([]bool, len(header))
	for i, want := range Columns {
		idx[i] = -1
		for j, got := range header {
			if strings.EqualFold(strings.TrimSpace(got), want) {
				idx[i] = j
				matched[j] = true
				break
			}
		}
		if idx[i] == -1 {
			missing = append(missing, want)
		}
	}
	for j, got := range header {
		if !matched[j] {
			unknown = append(unknown, strings.TrimSpace(got))
		}
	}
	return idx, missing, unknown
}

// DecodeRow converts one stored row into a RawSession using a column index
// from ColumnIndex. Rows whose date cell does not parse are returned with a
// zero Date; derivation excludes and counts them, so one bad row never
// aborts a load.
func DecodeRow(row []string, idx []int) core.RawSession {
	cell := func(col int) string {
		j := idx[col]
		if j < 0 || j >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[j])
	}

	raw := core.RawSession{
		Provider: cell(colProvider),
		Location: cell(colLocation),
	}
	if t, ok := core.ParseDate(cell(colDate)); ok {
		raw.Date = t
	}
	if ct, err := core.ParseChargeType(cell(colType)); err == nil {
		raw.Type = ct
	} else {
		raw.Type = core.ChargeType(cell(colType))
	}
	raw.EnergyKWh = parseFloat(cell(colKWh))
	raw.TotalCost = parseFloat(cell(colTotalCost))

	latStr, lonStr := cell(colLatitude), cell(colLongitude)
	if latStr != "" && lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr == nil && lonErr == nil {
			raw.Coords = &core.Coordinates{Lat: lat, Lon: lon}
		}
	}
	return raw
}

// EncodeRow converts a RawSession into a stored row following the fixed
// schema. Derived columns are recomputed here so storage never carries a
// stale Cost_per_kWh or Month, even when the caller hands over rows read
// straight back from Load.
func EncodeRow(raw core.RawSession) []string {
	row := make([]string, len(Columns))
	if !raw.Date.IsZero() {
		row[colDate] = raw.Date.Format(DateLayout)
		row[colMonth] = raw.Date.Format("2006-01")
	}
	row[colProvider] = raw.Provider
	row[colLocation] = raw.Location
	row[colType] = string(raw.Type)
	row[colKWh] = formatFloat(raw.EnergyKWh)
	row[colTotalCost] = formatFloat(raw.TotalCost)
	row[colCostPerKWh] = formatFloat(core.CostPerKWh(raw.TotalCost, raw.EnergyKWh))
	if raw.Coords != nil {
		row[colLatitude] = strconv.FormatFloat(raw.Coords.Lat, 'f', -1, 64)
		row[colLongitude] = strconv.FormatFloat(raw.Coords.Lon, 'f', -1, 64)
	}
	return row
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	// Tolerate a decimal comma from hand-edited cells.
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
