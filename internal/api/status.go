package api

import (
	"net/http"
	"strconv"
	"time"

	"officeradar/pkg/geo"
	"officeradar/pkg/logging"
	"officeradar/pkg/version"
)

// handleHealth handles GET /api/health: pure liveness, no dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type statusChecks struct {
	ActiveCentersAtLeastOne bool `json:"activeCentersAtLeastOne"`
	RefreshStatePresent     bool `json:"refreshStatePresent"`
	RefreshRecentEnough     bool `json:"refreshRecentEnough"`
}

type statusMetrics struct {
	ExactCounts            bool   `json:"exactCounts"`
	CentersTotal           int64  `json:"centersTotal"`
	ActiveCenters          int64  `json:"activeCenters"`
	OfficesTotal           *int64 `json:"officesTotal,omitempty"`
	CenterOfficeLinksTotal *int64 `json:"centerOfficeLinksTotal,omitempty"`
}

type statusRefresh struct {
	Cursor     int64    `json:"cursor"`
	UpdatedAt  *string  `json:"updatedAt"`
	AgeMinutes *float64 `json:"ageMinutes,omitempty"`
}

type statusResponse struct {
	OK            bool           `json:"ok"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	GeneratedAt   string         `json:"generatedAt"`
	Checks        statusChecks   `json:"checks"`
	Thresholds    map[string]int `json:"thresholds"`
	Metrics       statusMetrics  `json:"metrics"`
	Refresh       statusRefresh  `json:"refresh"`
}

// handleStatus handles GET /api/admin/status. Exact office and link
// counts are only computed on request: they scan whole tables.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	includeCounts := false
	if v := r.URL.Query().Get("includeCounts"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid includeCounts value")
			return
		}
		includeCounts = parsed
	}

	total, active, err := s.store.CountCenters(ctx)
	if err != nil {
		respondInternalError(w, "Failed to count centers", err)
		return
	}

	cursor, cursorPresent, err := s.store.GetRefreshCursor(ctx)
	if err != nil {
		respondInternalError(w, "Failed to read refresh cursor", err)
		return
	}

	maxAge := time.Duration(s.cfg.Refresh.HealthMaxAge)
	resp := statusResponse{
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		Checks: statusChecks{
			ActiveCentersAtLeastOne: active >= 1,
			RefreshStatePresent:     cursorPresent,
		},
		Thresholds: map[string]int{
			"maxRefreshAgeMinutes": int(maxAge.Minutes()),
		},
		Metrics: statusMetrics{
			ExactCounts:   includeCounts,
			CentersTotal:  total,
			ActiveCenters: active,
		},
		Refresh: statusRefresh{Cursor: cursor.Value},
	}

	if cursorPresent {
		age := now.Sub(cursor.UpdatedAt)
		resp.Checks.RefreshRecentEnough = age <= maxAge
		updatedAt := cursor.UpdatedAt.UTC().Format(time.RFC3339)
		ageMinutes := age.Minutes()
		resp.Refresh.UpdatedAt = &updatedAt
		resp.Refresh.AgeMinutes = &ageMinutes
	}

	if includeCounts {
		offices, links, err := s.store.CountOfficesAndLinks(ctx)
		if err != nil {
			respondInternalError(w, "Failed to count offices", err)
			return
		}
		resp.Metrics.OfficesTotal = &offices
		resp.Metrics.CenterOfficeLinksTotal = &links
	}

	resp.OK = resp.Checks.ActiveCentersAtLeastOne &&
		resp.Checks.RefreshStatePresent &&
		resp.Checks.RefreshRecentEnough
	respondJSON(w, http.StatusOK, resp)
}

// handleLogs handles GET /api/admin/logs: the most recent server log
// lines, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, ok := geo.ParseBoundedInt(v, 1, 500, 0)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
		limit = parsed
	}

	lines := logging.GlobalLogRing.Lines(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"lines": lines,
		"count": len(lines),
	})
}
