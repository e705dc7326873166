package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"officeradar/pkg/ingest"
)

// parseUploadedCSV enforces the upload size cap and returns the "file"
// part of the multipart form. On failure the response is written and nil
// is returned.
func (s *Server) parseUploadedCSV(w http.ResponseWriter, r *http.Request) multipart.File {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.UploadMaxBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.UploadMaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size cap")
			return nil
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return nil
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return nil
	}
	return f
}

type centersUploadResponse struct {
	OK       bool              `json:"ok"`
	Inserted int               `json:"inserted"`
	Updated  int               `json:"updated"`
	Disabled int64             `json:"disabled"`
	Issues   []ingest.RowIssue `json:"issues"`
}

// handleCentersUpload handles POST /api/admin/centers/upload-csv.
// The file replaces the curated center set: rows are upserted under a
// fresh sync token, and active centers absent from the file are
// soft-disabled.
func (s *Server) handleCentersUpload(w http.ResponseWriter, r *http.Request) {
	f := s.parseUploadedCSV(w, r)
	if f == nil {
		return
	}
	defer f.Close()

	parsed, err := ingest.ParseCentersCSV(f)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(parsed.Rows) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "no acceptable rows",
			"issues": issuesOrEmpty(parsed.Issues),
		})
		return
	}

	applied, err := ingest.ApplyCenters(r.Context(), s.store, parsed.Rows)
	if err != nil {
		respondInternalError(w, "Failed to apply centers CSV", err)
		return
	}
	slog.Info("Centers CSV applied",
		"inserted", applied.Inserted,
		"updated", applied.Updated,
		"disabled", applied.Disabled,
		"issues", len(parsed.Issues))

	respondJSON(w, http.StatusOK, centersUploadResponse{
		OK:       true,
		Inserted: applied.Inserted,
		Updated:  applied.Updated,
		Disabled: applied.Disabled,
		Issues:   issuesOrEmpty(parsed.Issues),
	})
}

type companiesUploadResponse struct {
	OK       bool              `json:"ok"`
	Inserted int               `json:"inserted"`
	Skipped  int               `json:"skipped"`
	Issues   []ingest.RowIssue `json:"issues"`
}

// handleCompaniesUpload handles POST /api/admin/companies/upload-csv.
// Known names are skipped; the company index is invalidated so the next
// read or refresh sees the new rows.
func (s *Server) handleCompaniesUpload(w http.ResponseWriter, r *http.Request) {
	f := s.parseUploadedCSV(w, r)
	if f == nil {
		return
	}
	defer f.Close()

	parsed, err := ingest.ParseCompaniesCSV(f)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(parsed.Rows) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "no acceptable rows",
			"issues": issuesOrEmpty(parsed.Issues),
		})
		return
	}

	applied, err := ingest.ApplyCompanies(r.Context(), s.store, parsed.Rows)
	if err != nil {
		respondInternalError(w, "Failed to apply companies CSV", err)
		return
	}
	s.matcher.Invalidate()
	slog.Info("Companies CSV applied",
		"inserted", applied.Inserted,
		"skipped", applied.Skipped,
		"issues", len(parsed.Issues))

	respondJSON(w, http.StatusOK, companiesUploadResponse{
		OK:       true,
		Inserted: applied.Inserted,
		Skipped:  applied.Skipped,
		Issues:   issuesOrEmpty(parsed.Issues),
	})
}

func issuesOrEmpty(issues []ingest.RowIssue) []ingest.RowIssue {
	if issues == nil {
		return []ingest.RowIssue{}
	}
	return issues
}
