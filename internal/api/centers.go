package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"officeradar/pkg/geo"
	"officeradar/pkg/model"
	"officeradar/pkg/store"
)

const (
	defaultRadiusKm = 25
	maxOfficesLimit = 5000
)

// centerSummary is the public list shape of a center.
type centerSummary struct {
	ID         int64   `json:"id"`
	CenterCode string  `json:"centerCode"`
	Name       string  `json:"name"`
	Tier       *string `json:"tier"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Country    *string `json:"country"`
	Region     *string `json:"region"`
}

// handleListCenters handles GET /api/centers.
func (s *Server) handleListCenters(w http.ResponseWriter, r *http.Request) {
	var tier *string
	if v := r.URL.Query().Get("tier"); v != "" {
		tier = &v
	}

	activeOnly := false
	if v := r.URL.Query().Get("activeOnly"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid activeOnly value")
			return
		}
		activeOnly = parsed
	}

	centers, err := s.store.ListCenters(r.Context(), tier, activeOnly)
	if err != nil {
		respondInternalError(w, "Failed to list centers", err)
		return
	}

	out := make([]centerSummary, len(centers))
	for i := range centers {
		c := &centers[i]
		out[i] = centerSummary{
			ID:         c.ID,
			CenterCode: c.CenterCode,
			Name:       c.Name,
			Tier:       c.Tier,
			Lat:        c.Lat,
			Lon:        c.Lon,
			Country:    c.Country,
			Region:     c.Region,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// officeEntry is one office in a center listing, carrying the company
// link resolved at read time.
type officeEntry struct {
	model.OfficeWithDistance
	LinkedCompanyID   *int64  `json:"linkedCompanyId"`
	LinkedCompanyName *string `json:"linkedCompanyName"`
}

type officesResponse struct {
	Center   officesCenter `json:"center"`
	RadiusKm int           `json:"radiusKm"`
	Offices  []officeEntry `json:"offices"`
}

type officesCenter struct {
	ID         int64   `json:"id"`
	CenterCode string  `json:"centerCode"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// handleCenterOffices handles GET /api/centers/{id}/offices.
func (s *Server) handleCenterOffices(w http.ResponseWriter, r *http.Request) {
	center, radiusKm, offices, ok := s.centerOfficesQuery(w, r)
	if !ok {
		return
	}

	resp := officesResponse{
		Center: officesCenter{
			ID:         center.ID,
			CenterCode: center.CenterCode,
			Name:       center.Name,
			Lat:        center.Lat,
			Lon:        center.Lon,
		},
		RadiusKm: radiusKm,
		Offices:  offices,
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCenterOfficesGeoJSON handles GET /api/centers/{id}/offices.geojson.
// Same query semantics as the JSON listing, shaped for map clients.
func (s *Server) handleCenterOfficesGeoJSON(w http.ResponseWriter, r *http.Request) {
	_, _, offices, ok := s.centerOfficesQuery(w, r)
	if !ok {
		return
	}

	fc := geojson.NewFeatureCollection()
	for i := range offices {
		o := &offices[i]
		f := geojson.NewFeature(orb.Point{o.Lon, o.Lat})
		f.ID = string(o.OSMType) + "/" + strconv.FormatInt(o.OSMID, 10)
		f.Properties["name"] = o.Name
		f.Properties["distanceM"] = o.DistanceM
		f.Properties["lowConfidence"] = o.LowConfidence
		f.Properties["linkedCompanyName"] = o.LinkedCompanyName
		fc.Append(f)
	}
	respondJSON(w, http.StatusOK, fc)
}

// centerOfficesQuery validates the shared listing parameters, loads the
// center and its offices, and resolves company links. On failure it has
// already written the error response and returns ok=false.
func (s *Server) centerOfficesQuery(w http.ResponseWriter, r *http.Request) (*model.Center, int, []officeEntry, bool) {
	centerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid center id")
		return nil, 0, nil, false
	}

	q := r.URL.Query()
	radiusCapKm := int(float64(s.cfg.Refresh.DefaultRadius) / 1000)

	radiusKm := defaultRadiusKm
	if radiusKm > radiusCapKm {
		radiusKm = radiusCapKm
	}
	if v := q.Get("radiusKm"); v != "" {
		parsed, ok := geo.ParseBoundedInt(v, 1, radiusCapKm, 0)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid radiusKm value")
			return nil, 0, nil, false
		}
		radiusKm = parsed
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit value")
			return nil, 0, nil, false
		}
		if parsed > maxOfficesLimit {
			parsed = maxOfficesLimit
		}
		limit = parsed
	}

	highConfidenceOnly := false
	if v := q.Get("highConfidenceOnly"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid highConfidenceOnly value")
			return nil, 0, nil, false
		}
		highConfidenceOnly = parsed
	}

	center, err := s.store.GetCenter(r.Context(), centerID)
	if err != nil {
		respondInternalError(w, "Failed to load center", err)
		return nil, 0, nil, false
	}
	if center == nil || !center.IsActive {
		respondError(w, http.StatusNotFound, "center not found")
		return nil, 0, nil, false
	}

	rows, err := s.store.ListOfficesForCenter(r.Context(), store.OfficeQuery{
		CenterID:           center.ID,
		RadiusM:            float64(radiusKm) * 1000,
		Limit:              limit,
		HighConfidenceOnly: highConfidenceOnly,
		Search:             q.Get("search"),
	})
	if err != nil {
		respondInternalError(w, "Failed to list offices", err)
		return nil, 0, nil, false
	}

	idx, err := s.matcher.Index(r.Context())
	if err != nil {
		respondInternalError(w, "Failed to load company index", err)
		return nil, 0, nil, false
	}

	offices := make([]officeEntry, len(rows))
	for i := range rows {
		offices[i] = officeEntry{OfficeWithDistance: rows[i]}
		if m := idx.MatchOffice(&rows[i].Office); m != nil {
			offices[i].LinkedCompanyID = &m.CompanyID
			offices[i].LinkedCompanyName = &m.CompanyName
		}
	}
	return center, radiusKm, offices, true
}
