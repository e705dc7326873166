package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"officeradar/pkg/geo"
	"officeradar/pkg/model"
)

const maxFlagReason = 500

type flagSubmission struct {
	CenterID int64  `json:"centerId"`
	OSMType  string `json:"osmType"`
	OSMID    int64  `json:"osmId"`
	Reason   string `json:"reason"`
}

type flagOutcome struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
	FlagID  *int64 `json:"flagId,omitempty"`
}

// handleFlagSubmission handles POST /api/offices/flag-deletion.
//
// Per (osm_type, osm_id): a banned office reports already_banned, an
// open flag reports already_pending with its id, otherwise a new
// pending flag is created.
func (s *Server) handleFlagSubmission(w http.ResponseWriter, r *http.Request) {
	var req flagSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	osmType, ok := model.ParseOSMType(req.OSMType)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid osmType")
		return
	}
	if req.CenterID < 1 || req.OSMID < 1 {
		respondError(w, http.StatusBadRequest, "centerId and osmId must be positive")
		return
	}
	ref := model.OSMRef{Type: osmType, ID: req.OSMID}
	ctx := r.Context()

	banned, err := s.store.IsBanned(ctx, ref)
	if err != nil {
		respondInternalError(w, "Failed to check ban list", err)
		return
	}
	if banned {
		respondJSON(w, http.StatusOK, flagOutcome{OK: true, Outcome: "already_banned"})
		return
	}

	linked, err := s.store.HasCenterOfficeLink(ctx, req.CenterID, ref)
	if err != nil {
		respondInternalError(w, "Failed to check office link", err)
		return
	}
	if !linked {
		respondError(w, http.StatusNotFound, "office not found for this center")
		return
	}

	pending, err := s.store.GetPendingFlag(ctx, ref)
	if err != nil {
		respondInternalError(w, "Failed to check pending flags", err)
		return
	}
	if pending != nil {
		respondJSON(w, http.StatusOK, flagOutcome{OK: true, Outcome: "already_pending", FlagID: &pending.ID})
		return
	}

	flag := &model.DeletionFlag{
		CenterID:    &req.CenterID,
		OSMType:     osmType,
		OSMID:       req.OSMID,
		Reason:      geo.SanitizeText(req.Reason, maxFlagReason),
		SubmittedAt: time.Now(),
	}
	id, err := s.store.InsertFlag(ctx, flag)
	if err != nil {
		respondInternalError(w, "Failed to insert flag", err)
		return
	}
	respondJSON(w, http.StatusOK, flagOutcome{OK: true, Outcome: "created", FlagID: &id})
}

// handleListFlags handles GET /api/admin/offices/deletion-flags.
func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(model.FlagPending)
	}
	switch status {
	case string(model.FlagPending), string(model.FlagApproved), string(model.FlagRejected):
	case "all":
		status = ""
	default:
		respondError(w, http.StatusBadRequest, "invalid status value")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, ok := geo.ParseBoundedInt(v, 1, 500, 0)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
		limit = parsed
	}

	flags, err := s.store.ListFlags(r.Context(), status, limit)
	if err != nil {
		respondInternalError(w, "Failed to list flags", err)
		return
	}
	if flags == nil {
		flags = []model.DeletionFlag{}
	}
	respondJSON(w, http.StatusOK, flags)
}

type flagDecisionRequest struct {
	Decision string `json:"decision"`
}

type flagDecisionResponse struct {
	OK             bool   `json:"ok"`
	Outcome        string `json:"outcome"`
	DeletedLinks   *int64 `json:"deletedLinks,omitempty"`
	DeletedOffices *int64 `json:"deletedOffices,omitempty"`
}

// handleFlagDecision handles
// POST /api/admin/offices/deletion-flags/{flagId}/decision.
//
// Approving a pending or rejected flag bans the office and deletes its
// point and links. Rejecting an approved flag is a conflict: the ban
// already propagated.
func (s *Server) handleFlagDecision(w http.ResponseWriter, r *http.Request) {
	flagID, err := strconv.ParseInt(chi.URLParam(r, "flagId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid flag id")
		return
	}

	var req flagDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		respondError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}

	ctx := r.Context()
	flag, err := s.store.GetFlag(ctx, flagID)
	if err != nil {
		respondInternalError(w, "Failed to load flag", err)
		return
	}
	if flag == nil {
		respondError(w, http.StatusNotFound, "flag not found")
		return
	}

	switch flag.Status {
	case model.FlagApproved:
		if req.Decision == "reject" {
			respondError(w, http.StatusConflict, "flag already approved")
			return
		}
		respondJSON(w, http.StatusOK, flagDecisionResponse{OK: true, Outcome: "already_approved"})
		return
	case model.FlagRejected:
		if req.Decision == "reject" {
			respondJSON(w, http.StatusOK, flagDecisionResponse{OK: true, Outcome: "already_rejected"})
			return
		}
	}

	ref := model.OSMRef{Type: flag.OSMType, ID: flag.OSMID}
	if req.Decision == "approve" {
		deletedLinks, deletedOffices, err := s.store.ApproveFlag(ctx, flagID, ref, time.Now())
		if err != nil {
			respondInternalError(w, "Failed to approve flag", err)
			return
		}
		respondJSON(w, http.StatusOK, flagDecisionResponse{
			OK:             true,
			Outcome:        "approved",
			DeletedLinks:   &deletedLinks,
			DeletedOffices: &deletedOffices,
		})
		return
	}

	if err := s.store.RejectFlag(ctx, flagID, time.Now()); err != nil {
		respondInternalError(w, "Failed to reject flag", err)
		return
	}
	respondJSON(w, http.StatusOK, flagDecisionResponse{OK: true, Outcome: "rejected"})
}
