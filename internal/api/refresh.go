package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"officeradar/pkg/refresh"
)

type refreshStatsResponse struct {
	OK bool `json:"ok"`
	refresh.Stats
}

type refreshCenterRequest struct {
	RadiusKm   *int `json:"radiusKm"`
	MaxOffices *int `json:"maxOffices"`
}

// handleRefreshCenter handles POST /api/admin/refresh-center/{id}: a
// synchronous refresh of one center.
func (s *Server) handleRefreshCenter(w http.ResponseWriter, r *http.Request) {
	centerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid center id")
		return
	}

	var req refreshCenterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	radiusM := 0.0
	if req.RadiusKm != nil {
		if !refresh.AllowedRadiusKm(*req.RadiusKm) {
			respondError(w, http.StatusBadRequest, "radiusKm must be one of 10, 25, 50, 100")
			return
		}
		radiusM = float64(*req.RadiusKm) * 1000
	}

	maxOffices := 0
	if req.MaxOffices != nil {
		if *req.MaxOffices < 1 || *req.MaxOffices > refresh.MaxOfficesCap {
			respondError(w, http.StatusBadRequest, "maxOffices must be a positive integer up to 10000")
			return
		}
		maxOffices = *req.MaxOffices
	}

	ctx := r.Context()
	center, err := s.store.GetCenter(ctx, centerID)
	if err != nil {
		respondInternalError(w, "Failed to load center", err)
		return
	}
	if center == nil || !center.IsActive {
		respondError(w, http.StatusNotFound, "center not found")
		return
	}

	runID := uuid.NewString()
	slog.Info("Admin refresh requested", "run_id", runID, "center", center.CenterCode, "radius_m", radiusM)

	stats, err := s.engine.RefreshOne(ctx, center, radiusM, maxOffices)
	if err != nil {
		slog.Error("Admin refresh failed", "run_id", runID, "center", center.CenterCode, "error", err)
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, refreshStatsResponse{OK: true, Stats: stats})
}

// handleRefreshBatch handles POST /api/admin/refresh-batch: one cursor
// page of the scheduled refresh, run synchronously.
func (s *Server) handleRefreshBatch(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RunScheduledBatch(r.Context())
	if err != nil {
		slog.Error("Admin batch refresh failed", "error", err)
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, refreshStatsResponse{OK: true, Stats: stats})
}

type refreshAllRequest struct {
	DelayMs          *int `json:"delayMs"`
	BatchSize        *int `json:"batchSize"`
	RadiusKm         *int `json:"radiusKm"`
	MaxOffices       *int `json:"maxOffices"`
	FullClean        bool `json:"fullClean"`
	CenterRetryCount *int `json:"centerRetryCount"`
	RetryDelayMs     *int `json:"retryDelayMs"`
}

// handleRefreshAll handles POST /api/admin/refresh-all: a full sweep of
// every active center. Absent fields fall back to the configured
// defaults; out-of-range throttles and sizes are clamped by the engine.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	var req refreshAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := refresh.AllOptions{
		Throttle:   time.Duration(s.cfg.Refresh.Throttle),
		RetryCount: s.cfg.Refresh.CenterRetryCount,
		RetryDelay: time.Duration(s.cfg.Refresh.CenterRetryDelay),
		FullClean:  req.FullClean,
	}
	if req.DelayMs != nil {
		opts.Throttle = time.Duration(*req.DelayMs) * time.Millisecond
	}
	if req.BatchSize != nil {
		opts.BatchSize = *req.BatchSize
	}
	if req.RadiusKm != nil {
		if !refresh.AllowedRadiusKm(*req.RadiusKm) {
			respondError(w, http.StatusBadRequest, "radiusKm must be one of 10, 25, 50, 100")
			return
		}
		opts.RadiusM = float64(*req.RadiusKm) * 1000
	}
	if req.MaxOffices != nil {
		opts.MaxOffices = *req.MaxOffices
	}
	if req.CenterRetryCount != nil {
		opts.RetryCount = *req.CenterRetryCount
	}
	if req.RetryDelayMs != nil {
		opts.RetryDelay = time.Duration(*req.RetryDelayMs) * time.Millisecond
	}

	runID := uuid.NewString()
	slog.Info("Admin full refresh requested", "run_id", runID, "full_clean", req.FullClean)

	res, err := s.engine.RunAll(r.Context(), opts)
	if err != nil {
		slog.Error("Admin full refresh failed", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}
