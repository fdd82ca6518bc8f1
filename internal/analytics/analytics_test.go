package analytics

import (
	"reflect"
	"testing"

	"chargelog/internal/core"
)

func session(t *testing.T, date string, provider, location string, ct core.ChargeType, kwh, cost float64) core.Session {
	t.Helper()
	d, ok := core.ParseDate(date)
	if !ok {
		t.Fatalf("bad test date %q", date)
	}
	s, ok := core.Derive(core.RawSession{
		Date:      d,
		Provider:  provider,
		Location:  location,
		Type:      ct,
		EnergyKWh: kwh,
		TotalCost: cost,
	})
	if !ok {
		t.Fatalf("derive failed for %q", date)
	}
	return s
}

func TestComputeTotals(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Gentari", "Mall A", core.DC, 20.0, 30.0),
	}

	got := ComputeTotals(sessions)
	want := Totals{TotalCost: 30.0, TotalEnergy: 20.0, AvgCostPerKWh: 1.5, SessionCount: 1}
	if got != want {
		t.Errorf("ComputeTotals = %+v, want %+v", got, want)
	}
}

func TestComputeTotalsEmptyInput(t *testing.T) {
	got := ComputeTotals(nil)
	if got != (Totals{}) {
		t.Errorf("ComputeTotals(nil) = %+v, want zero value", got)
	}
}

func TestAvgCostIsSumRatioNotMeanOfRatios(t *testing.T) {
	// A big cheap session and a tiny expensive one. Mean of per-row ratios
	// would be (0.5+2.0)/2 = 1.25; the sum-ratio is 52/101.
	sessions := []core.Session{
		session(t, "2024-03-01", "Home", "", core.AC, 100.0, 50.0), // 0.5/kWh
		session(t, "2024-03-02", "Gentari", "", core.DC, 1.0, 2.0), // 2.0/kWh
	}

	got := ComputeTotals(sessions)
	want := 52.0 / 101.0
	if got.AvgCostPerKWh != want {
		t.Errorf("AvgCostPerKWh = %v, want sum-ratio %v", got.AvgCostPerKWh, want)
	}
	if got.AvgCostPerKWh == 1.25 {
		t.Error("AvgCostPerKWh is the mean of per-row ratios, want sum-ratio")
	}
	// The aggregate is exact; only the per-session figure is rounded.
	if got.AvgCostPerKWh == core.CostPerKWh(52.0, 101.0) {
		t.Error("AvgCostPerKWh was rounded, want the exact quotient")
	}
}

func TestDailySpendSeries(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-02", "Gentari", "", core.DC, 10, 15.0),
		session(t, "2024-03-01", "Home", "", core.AC, 5, 10.0),
		session(t, "2024-03-01", "Gentari", "", core.DC, 8, 15.0),
	}

	got := DailySpendSeries(sessions)
	if len(got) != 2 {
		t.Fatalf("series length = %d, want 2", len(got))
	}
	// Two same-day sessions collapse into one ascending-ordered entry.
	if got[0].Date.Day() != 1 || got[0].TotalCost != 25.0 {
		t.Errorf("first entry = %+v, want day 1 with 25.0", got[0])
	}
	if got[1].Date.Day() != 2 || got[1].TotalCost != 15.0 {
		t.Errorf("second entry = %+v, want day 2 with 15.0", got[1])
	}
}

func TestTypeBreakdown(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Home", "", core.AC, 10, 5.0),
		session(t, "2024-03-02", "Gentari", "", core.DC, 20, 30.0),
		session(t, "2024-03-03", "Gentari", "", core.DC, 10, 20.0),
	}

	got := TypeBreakdown(sessions)
	if got[core.AC].Count != 1 || got[core.AC].TotalCost != 5.0 {
		t.Errorf("AC stats = %+v", got[core.AC])
	}
	dc := got[core.DC]
	if dc.Count != 2 || dc.TotalCost != 50.0 {
		t.Errorf("DC stats = %+v", dc)
	}
	if want := 50.0 / 30.0; dc.AvgCostPerKWh != want {
		t.Errorf("DC avg = %v, want exact quotient %v", dc.AvgCostPerKWh, want)
	}
}

func TestTopLocations(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Gentari", "Mall A", core.DC, 20, 30.0),
		session(t, "2024-03-02", "Gentari", "", core.DC, 20, 99.0), // no location, excluded
		session(t, "2024-03-03", "JomCharge", "Mall B", core.AC, 10, 12.0),
		session(t, "2024-03-04", "Gentari", "Mall A", core.DC, 20, 25.0),
		session(t, "2024-03-05", "chargEV", "Mall C", core.AC, 10, 12.0), // ties Mall B
	}

	got := TopLocations(sessions, 5)
	want := []LocationSpend{
		{Location: "Mall A", TotalCost: 55.0},
		{Location: "Mall B", TotalCost: 12.0}, // tie broken by first-seen order
		{Location: "Mall C", TotalCost: 12.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopLocations = %+v, want %+v", got, want)
	}

	for i := 1; i < len(got); i++ {
		if got[i].TotalCost > got[i-1].TotalCost {
			t.Errorf("not sorted descending at %d: %+v", i, got)
		}
	}

	if top1 := TopLocations(sessions, 1); len(top1) != 1 || top1[0].Location != "Mall A" {
		t.Errorf("TopLocations k=1 = %+v", top1)
	}
}

func TestWeekdayHeatmapOrder(t *testing.T) {
	// 2024-03-03 is a Sunday, 2024-03-04 a Monday.
	sessions := []core.Session{
		session(t, "2024-03-03", "Home", "", core.AC, 7, 3.0),
		session(t, "2024-03-04", "Gentari", "", core.DC, 20, 30.0),
		session(t, "2024-03-11", "Gentari", "", core.AC, 5, 7.0), // also Monday
	}

	got := WeekdayHeatmap(sessions)
	if len(got) != 3 {
		t.Fatalf("cells = %d, want 3", len(got))
	}
	// Monday cells come before Sunday regardless of input order.
	if got[0].Weekday != "Monday" || got[0].Type != core.AC || got[0].TotalEnergy != 5 {
		t.Errorf("first cell = %+v", got[0])
	}
	if got[1].Weekday != "Monday" || got[1].Type != core.DC || got[1].TotalEnergy != 20 {
		t.Errorf("second cell = %+v", got[1])
	}
	if got[2].Weekday != "Sunday" || got[2].TotalEnergy != 7 {
		t.Errorf("third cell = %+v", got[2])
	}
}

func TestLocationRollupsOmitUnresolved(t *testing.T) {
	resolved := session(t, "2024-03-01", "Gentari", "Mall A", core.DC, 20, 30.0)
	resolved.Coords = &core.Coordinates{Lat: 3.15, Lon: 101.71}
	resolvedAgain := session(t, "2024-03-02", "Gentari", "Mall A", core.DC, 10, 16.0)
	resolvedAgain.Coords = resolved.Coords
	unresolved := session(t, "2024-03-03", "JomCharge", "Mall B", core.AC, 5, 6.0)

	got := LocationRollups([]core.Session{resolved, resolvedAgain, unresolved})
	if len(got) != 1 {
		t.Fatalf("rollups = %+v, want 1 row", got)
	}
	r := got[0]
	if r.Location != "Mall A" || r.SessionCount != 2 || r.TotalCost != 46.0 || r.TotalEnergy != 30.0 {
		t.Errorf("rollup = %+v", r)
	}
	if r.Lat != 3.15 || r.Lon != 101.71 {
		t.Errorf("rollup coords = (%v, %v)", r.Lat, r.Lon)
	}
}

func TestFilterPeriodIsPure(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Gentari", "Mall A", core.DC, 20, 30.0),
		session(t, "2024-04-01", "Home", "", core.AC, 5, 2.0),
	}
	before := make([]core.Session, len(sessions))
	copy(before, sessions)

	march := FilterPeriod(sessions, "2024-03")
	if len(march) != 1 || march[0].PeriodKey != "2024-03" {
		t.Errorf("FilterPeriod = %+v", march)
	}
	all := FilterPeriod(sessions, "")
	if len(all) != 2 {
		t.Errorf("FilterPeriod(\"\") = %d sessions, want 2", len(all))
	}
	if !reflect.DeepEqual(sessions, before) {
		t.Error("FilterPeriod mutated its input")
	}
}

func TestPeriodsNewestFirst(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Gentari", "", core.DC, 20, 30.0),
		session(t, "2024-01-15", "Home", "", core.AC, 5, 2.0),
		session(t, "2024-03-20", "Gentari", "", core.DC, 10, 15.0),
	}

	got := Periods(sessions)
	want := []string{"2024-03", "2024-01"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Periods = %v, want %v", got, want)
	}
}

func TestProviderBreakdown(t *testing.T) {
	sessions := []core.Session{
		session(t, "2024-03-01", "Gentari", "", core.DC, 20, 30.0),
		session(t, "2024-03-02", "Home", "", core.AC, 40, 10.0),
		session(t, "2024-03-03", "Gentari", "", core.DC, 10, 15.0),
	}

	got := ProviderBreakdown(sessions)
	if len(got) != 2 {
		t.Fatalf("providers = %d, want 2", len(got))
	}
	if got[0].Provider != "Gentari" || got[0].Count != 2 || got[0].TotalCost != 45.0 {
		t.Errorf("first provider = %+v", got[0])
	}
	if got[1].Provider != "Home" || got[1].TotalEnergy != 40.0 {
		t.Errorf("second provider = %+v", got[1])
	}
}
