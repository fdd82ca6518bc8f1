// Package analytics computes the read-side views over an in-memory set of
// derived sessions. Every function is pure: it never mutates its input and
// never touches the ledger, so filtered views can be computed freely without
// any risk of persisting a narrowed dataset.
package analytics

import (
	"sort"
	"time"

	"chargelog/internal/core"
)

type (
	// Totals is the headline summary for a (possibly filtered) session set.
	// AvgCostPerKWh is the exact sum-ratio sum(cost)/sum(energy), not the
	// mean of per-row ratios; the latter skews when session sizes differ
	// widely. Unlike the per-session figure it is not rounded; rounding is
	// left to the display layer.
	Totals struct {
		TotalCost     float64
		TotalEnergy   float64
		AvgCostPerKWh float64
		SessionCount  int
	}

	DailySpend struct {
		Date      time.Time
		TotalCost float64
	}

	TypeStats struct {
		Count         int
		TotalCost     float64
		AvgCostPerKWh float64
	}

	LocationSpend struct {
		Location  string
		TotalCost float64
	}

	HeatmapCell struct {
		Weekday     string
		Type        core.ChargeType
		TotalEnergy float64
	}

	LocationRollup struct {
		Location     string
		Lat          float64
		Lon          float64
		SessionCount int
		TotalCost    float64
		TotalEnergy  float64
	}

	ProviderStats struct {
		Provider    string
		Count       int
		TotalCost   float64
		TotalEnergy float64
	}
)

// FilterPeriod narrows a session set to one period key (YYYY-MM). The empty
// period means "all". The result is a fresh slice; the input is never
// touched.
func FilterPeriod(sessions []core.Session, period string) []core.Session {
	if period == "" {
		out := make([]core.Session, len(sessions))
		copy(out, sessions)
		return out
	}
	var out []core.Session
	for _, s := range sessions {
		if s.PeriodKey == period {
			out = append(out, s)
		}
	}
	return out
}

// Periods returns the distinct period keys, newest first.
func Periods(sessions []core.Session) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range sessions {
		if _, ok := seen[s.PeriodKey]; ok {
			continue
		}
		seen[s.PeriodKey] = struct{}{}
		out = append(out, s.PeriodKey)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// ComputeTotals returns a zero-valued record for empty input, not an error.
func ComputeTotals(sessions []core.Session) Totals {
	var t Totals
	for _, s := range sessions {
		t.TotalCost += s.TotalCost
		t.TotalEnergy += s.EnergyKWh
		t.SessionCount++
	}
	t.AvgCostPerKWh = sumRatio(t.TotalCost, t.TotalEnergy)
	return t
}

// sumRatio is the exact aggregate cost per unit, 0 when no energy was
// recorded.
func sumRatio(totalCost, totalEnergy float64) float64 {
	if totalEnergy == 0 {
		return 0
	}
	return totalCost / totalEnergy
}

// DailySpendSeries is the daily spend time series, ascending by calendar
// day.
func DailySpendSeries(sessions []core.Session) []DailySpend {
	byDay := map[time.Time]float64{}
	for _, s := range sessions {
		day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] += s.TotalCost
	}
	out := make([]DailySpend, 0, len(byDay))
	for day, cost := range byDay {
		out = append(out, DailySpend{Date: day, TotalCost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// TypeBreakdown groups by AC/DC.
func TypeBreakdown(sessions []core.Session) map[core.ChargeType]TypeStats {
	cost := map[core.ChargeType]float64{}
	energy := map[core.ChargeType]float64{}
	count := map[core.ChargeType]int{}
	for _, s := range sessions {
		cost[s.Type] += s.TotalCost
		energy[s.Type] += s.EnergyKWh
		count[s.Type]++
	}
	out := make(map[core.ChargeType]TypeStats, len(count))
	for ct := range count {
		out[ct] = TypeStats{
			Count:         count[ct],
			TotalCost:     cost[ct],
			AvgCostPerKWh: sumRatio(cost[ct], energy[ct]),
		}
	}
	return out
}

// TopLocations ranks locations by summed cost, descending, ties broken by
// first-seen order. Sessions without a location are excluded.
func TopLocations(sessions []core.Session, k int) []LocationSpend {
	cost := map[string]float64{}
	firstSeen := map[string]int{}
	var order []string
	for _, s := range sessions {
		if s.Location == "" {
			continue
		}
		if _, ok := cost[s.Location]; !ok {
			firstSeen[s.Location] = len(order)
			order = append(order, s.Location)
		}
		cost[s.Location] += s.TotalCost
	}

	out := make([]LocationSpend, 0, len(order))
	for _, loc := range order {
		out = append(out, LocationSpend{Location: loc, TotalCost: cost[loc]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalCost != out[j].TotalCost {
			return out[i].TotalCost > out[j].TotalCost
		}
		return firstSeen[out[i].Location] < firstSeen[out[j].Location]
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// WeekdayHeatmap sums energy per (weekday, type) cell, ordered
// Monday→Sunday regardless of input order. Cells with no sessions are
// omitted.
func WeekdayHeatmap(sessions []core.Session) []HeatmapCell {
	type key struct {
		weekday string
		ct      core.ChargeType
	}
	energy := map[key]float64{}
	for _, s := range sessions {
		energy[key{s.Weekday, s.Type}] += s.EnergyKWh
	}

	var out []HeatmapCell
	for _, weekday := range core.WeekdayOrder {
		for _, ct := range []core.ChargeType{core.AC, core.DC} {
			if e, ok := energy[key{weekday, ct}]; ok {
				out = append(out, HeatmapCell{Weekday: weekday, Type: ct, TotalEnergy: e})
			}
		}
	}
	return out
}

// LocationRollups produces one row per distinct resolved location, in
// first-seen order. Locations without resolved coordinates are omitted;
// they still appear in every other view.
func LocationRollups(sessions []core.Session) []LocationRollup {
	idx := map[string]int{}
	var out []LocationRollup
	for _, s := range sessions {
		if s.Location == "" || s.Coords == nil {
			continue
		}
		i, ok := idx[s.Location]
		if !ok {
			i = len(out)
			idx[s.Location] = i
			out = append(out, LocationRollup{
				Location: s.Location,
				Lat:      s.Coords.Lat,
				Lon:      s.Coords.Lon,
			})
		}
		out[i].SessionCount++
		out[i].TotalCost += s.TotalCost
		out[i].TotalEnergy += s.EnergyKWh
	}
	return out
}

// ProviderBreakdown sums per provider, descending by total cost.
func ProviderBreakdown(sessions []core.Session) []ProviderStats {
	idx := map[string]int{}
	var out []ProviderStats
	for _, s := range sessions {
		i, ok := idx[s.Provider]
		if !ok {
			i = len(out)
			idx[s.Provider] = i
			out = append(out, ProviderStats{Provider: s.Provider})
		}
		out[i].Count++
		out[i].TotalCost += s.TotalCost
		out[i].TotalEnergy += s.EnergyKWh
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCost > out[j].TotalCost })
	return out
}
