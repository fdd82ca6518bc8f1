package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chargelog/internal/analytics"
	"chargelog/internal/core"
	"chargelog/internal/ledger"
	"chargelog/internal/services"
)

const dateLayout = "2006-01-02"

// sessionPayload is the wire shape of a session. Derived fields are present
// on responses and ignored on requests; they are always recomputed.
type sessionPayload struct {
	Date       string   `json:"date"`
	Provider   string   `json:"provider"`
	Location   string   `json:"location,omitempty"`
	Type       string   `json:"type"`
	EnergyKWh  float64  `json:"energy_kwh"`
	TotalCost  float64  `json:"total_cost"`
	CostPerKWh float64  `json:"cost_per_kwh,omitempty"`
	Month      string   `json:"month,omitempty"`
	Weekday    string   `json:"weekday,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

func (p sessionPayload) toRaw() (core.RawSession, error) {
	date, ok := core.ParseDate(p.Date)
	if !ok {
		return core.RawSession{}, core.ErrInvalidDate
	}
	ct, err := core.ParseChargeType(p.Type)
	if err != nil {
		return core.RawSession{}, err
	}
	raw := core.RawSession{
		Date:      date,
		Provider:  strings.TrimSpace(p.Provider),
		Location:  strings.TrimSpace(p.Location),
		Type:      ct,
		EnergyKWh: p.EnergyKWh,
		TotalCost: p.TotalCost,
	}
	if p.Lat != nil && p.Lon != nil {
		raw.Coords = &core.Coordinates{Lat: *p.Lat, Lon: *p.Lon}
	}
	return raw, nil
}

func fromSession(s core.Session) sessionPayload {
	p := sessionPayload{
		Date:       s.Date.Format(dateLayout),
		Provider:   s.Provider,
		Location:   s.Location,
		Type:       string(s.Type),
		EnergyKWh:  s.EnergyKWh,
		TotalCost:  s.TotalCost,
		CostPerKWh: s.CostPerKWh,
		Month:      s.PeriodKey,
		Weekday:    s.Weekday,
	}
	if s.Coords != nil {
		lat, lon := s.Coords.Lat, s.Coords.Lon
		p.Lat, p.Lon = &lat, &lon
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses: validation failures are
// the client's fault, an unreachable backend is not.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrPartialDataset):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrEmptyProvider) ||
		errors.Is(err, core.ErrInvalidType) ||
		errors.Is(err, core.ErrInvalidEnergy) ||
		errors.Is(err, core.ErrNegativeCost)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (s *Server) filteredSnapshot(r *http.Request) ([]core.Session, string, error) {
	sessions, err := s.sessions.Snapshot(r.Context())
	if err != nil {
		return nil, "", err
	}
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	return analytics.FilterPeriod(sessions, period), period, nil
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodPut:
		s.handleReplaceSessions(w, r)
	default:
		methodNotAllowed(w, "GET, POST, PUT")
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, period, err := s.filteredSnapshot(r)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load sessions", "error", err)
		writeError(w, err)
		return
	}

	payloads := make([]sessionPayload, 0, len(sessions))
	for _, sess := range sessions {
		payloads = append(payloads, fromSession(sess))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": payloads,
		"count":    len(payloads),
		"period":   period,
		"currency": core.Currency,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	raw, err := payload.toRaw()
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	if err := s.sessions.Append(r.Context(), raw); err != nil {
		slog.ErrorContext(r.Context(), "Failed to append session",
			"error", err,
			"provider", raw.Provider,
			"location", raw.Location)
		writeError(w, err)
		return
	}

	created, ok := core.Derive(raw)
	if !ok {
		// Derive only fails on a zero date, which Validate already rejected.
		writeJSON(w, http.StatusCreated, map[string]any{"status": "created"})
		return
	}
	writeJSON(w, http.StatusCreated, fromSession(created))
}

type replaceRequest struct {
	Sessions []sessionPayload `json:"sessions"`
	Force    bool             `json:"force"`
}

func (s *Server) handleReplaceSessions(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rows := make([]core.RawSession, 0, len(req.Sessions))
	for _, payload := range req.Sessions {
		raw, err := payload.toRaw()
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		rows = append(rows, raw)
	}

	force := req.Force || r.URL.Query().Get("force") == "1"
	if err := s.sessions.Replace(r.Context(), rows, force); err != nil {
		if !errors.Is(err, services.ErrPartialDataset) {
			slog.ErrorContext(r.Context(), "Failed to replace sessions", "error", err)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	sessions, period, err := s.filteredSnapshot(r)
	if err != nil {
		writeError(w, err)
		return
	}

	totals := analytics.ComputeTotals(sessions)
	daily := analytics.DailySpendSeries(sessions)
	byType := analytics.TypeBreakdown(sessions)
	providers := analytics.ProviderBreakdown(sessions)

	dailyOut := make([]map[string]any, 0, len(daily))
	for _, d := range daily {
		dailyOut = append(dailyOut, map[string]any{
			"date":       d.Date.Format(dateLayout),
			"total_cost": d.TotalCost,
		})
	}

	typeOut := map[string]any{}
	for ct, stats := range byType {
		typeOut[string(ct)] = map[string]any{
			"count":            stats.Count,
			"total_cost":       stats.TotalCost,
			"avg_cost_per_kwh": stats.AvgCostPerKWh,
		}
	}

	providerOut := make([]map[string]any, 0, len(providers))
	for _, p := range providers {
		providerOut = append(providerOut, map[string]any{
			"provider":     p.Provider,
			"count":        p.Count,
			"total_cost":   p.TotalCost,
			"total_energy": p.TotalEnergy,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":   period,
		"currency": core.Currency,
		"totals": map[string]any{
			"total_cost":       totals.TotalCost,
			"total_energy":     totals.TotalEnergy,
			"avg_cost_per_kwh": totals.AvgCostPerKWh,
			"session_count":    totals.SessionCount,
		},
		"daily_spend": dailyOut,
		"by_type":     typeOut,
		"by_provider": providerOut,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	sessions, period, err := s.filteredSnapshot(r)
	if err != nil {
		writeError(w, err)
		return
	}

	heatmap := analytics.WeekdayHeatmap(sessions)
	top := analytics.TopLocations(sessions, 5)

	heatmapOut := make([]map[string]any, 0, len(heatmap))
	for _, cell := range heatmap {
		heatmapOut = append(heatmapOut, map[string]any{
			"weekday":      cell.Weekday,
			"type":         string(cell.Type),
			"total_energy": cell.TotalEnergy,
		})
	}

	topOut := make([]map[string]any, 0, len(top))
	for _, loc := range top {
		topOut = append(topOut, map[string]any{
			"location":   loc.Location,
			"total_cost": loc.TotalCost,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":          period,
		"weekday_heatmap": heatmapOut,
		"top_locations":   topOut,
	})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	sessions, _, err := s.filteredSnapshot(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rollups := analytics.LocationRollups(sessions)
	unresolved, err := s.sessions.UnresolvedLocations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	rollupOut := make([]map[string]any, 0, len(rollups))
	for _, roll := range rollups {
		rollupOut = append(rollupOut, map[string]any{
			"location":      roll.Location,
			"lat":           roll.Lat,
			"lon":           roll.Lon,
			"session_count": roll.SessionCount,
			"total_cost":    roll.TotalCost,
			"total_energy":  roll.TotalEnergy,
		})
	}
	if unresolved == nil {
		unresolved = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locations":  rollupOut,
		"unresolved": unresolved,
	})
}

type resolveRequest struct {
	Name string `json:"name"`
}

// handleResolveLocations runs a synchronous enrichment pass. Naming a
// location drops it from the geocode cache first, which is the only way a
// previously failed lookup is retried.
func (s *Server) handleResolveLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name != "" {
		s.sessions.Forget(req.Name)
	}

	updated, err := s.sessions.EnrichMissing(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to enrich locations", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rows_updated": updated})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	periods := []string{}
	if sessions, err := s.sessions.Snapshot(r.Context()); err == nil {
		periods = analytics.Periods(sessions)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"providers":      core.Providers,
		"charge_types":   []string{string(core.AC), string(core.DC)},
		"currency":       core.Currency,
		"min_energy_kwh": core.MinEnergyKWh,
		"periods":        periods,
		"backend":        s.backendType,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady verifies the ledger backend answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.sessions.Snapshot(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
