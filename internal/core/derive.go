package core

import (
	"math"
	"strings"
	"time"
)

// Date layouts accepted on load, tried in order. Storage writes the first
// one; the rest tolerate hand-edited spreadsheet cells.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// ParseDate parses a stored date string. The zero time and false are
// returned when no layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CostPerKWh computes the per-unit cost rounded to 3 decimals. Zero energy
// yields 0 rather than dividing; edited data may carry zero energy even
// though entry validation forbids it.
func CostPerKWh(totalCost, energyKWh float64) float64 {
	if energyKWh == 0 {
		return 0
	}
	return math.Round(totalCost/energyKWh*1000) / 1000
}

// Derive computes the derived fields for one raw session. It is pure and
// total: any raw session with a non-zero date derives to the same Session
// every time.
func Derive(raw RawSession) (Session, bool) {
	if raw.Date.IsZero() {
		return Session{}, false
	}
	return Session{
		RawSession: raw,
		CostPerKWh: CostPerKWh(raw.TotalCost, raw.EnergyKWh),
		PeriodKey:  raw.Date.Format("2006-01"),
		Weekday:    raw.Date.Weekday().String(),
	}, true
}

// DeriveAll derives a batch, excluding records without a valid date and
// reporting how many were skipped. A bad row never aborts the batch.
func DeriveAll(raws []RawSession) ([]Session, int) {
	out := make([]Session, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		s, ok := Derive(raw)
		if !ok {
			skipped++
			continue
		}
		out = append(out, s)
	}
	return out, skipped
}
