package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"officeradar/pkg/model"
)

func TestListCenters(t *testing.T) {
	srv, st := newTestServer(t, "")
	ctx := context.Background()

	tier := "A"
	if _, err := st.UpsertCenterFromCSV(ctx, model.CenterUpsert{
		CenterCode: "PM", Name: "Princess Margaret", Tier: &tier,
		Lat: 43.6582, Lon: -79.3907,
	}, "sync-1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := st.UpsertCenterFromCSV(ctx, model.CenterUpsert{
		CenterCode: "DF", Name: "Dana-Farber",
		Lat: 42.3371, Lon: -71.1077,
	}, "sync-2"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// PM missed the second sync and is now inactive.
	if _, err := st.DisableCentersMissingFromSync(ctx, "sync-2"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	t.Run("All", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/centers", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var centers []centerSummary
		decodeBody(t, w, &centers)
		if len(centers) != 2 {
			t.Fatalf("expected 2 centers, got %d", len(centers))
		}
	})

	t.Run("ActiveOnly", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/centers?activeOnly=true", nil))
		var centers []centerSummary
		decodeBody(t, w, &centers)
		if len(centers) != 1 || centers[0].CenterCode != "DF" {
			t.Errorf("expected only DF, got %+v", centers)
		}
	})

	t.Run("TierFilter", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/centers?tier=A", nil))
		var centers []centerSummary
		decodeBody(t, w, &centers)
		if len(centers) != 1 || centers[0].CenterCode != "PM" {
			t.Errorf("expected only PM for tier A, got %+v", centers)
		}
	})

	t.Run("InvalidActiveOnly", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/centers?activeOnly=banana", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestCenterOffices(t *testing.T) {
	srv, st := newTestServer(t, "")

	center := seedTestCenter(t, st, "PM", 43.6582, -79.3907)
	seedTestCompany(t, st, "Acme")
	seedTestOffice(t, st, center.ID, "Acme Corp", 1, 43.66, -79.39, 208)

	w := serve(srv, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/centers/%d/offices", center.ID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp officesResponse
	decodeBody(t, w, &resp)

	if resp.Center.ID != center.ID || resp.Center.CenterCode != "PM" {
		t.Errorf("unexpected center block: %+v", resp.Center)
	}
	if resp.RadiusKm != 25 {
		t.Errorf("expected default radiusKm 25, got %d", resp.RadiusKm)
	}
	if len(resp.Offices) != 1 {
		t.Fatalf("expected 1 office, got %d", len(resp.Offices))
	}
	office := resp.Offices[0]
	if office.Name != "Acme Corp" {
		t.Errorf("unexpected office name %q", office.Name)
	}
	if office.LinkedCompanyName == nil || *office.LinkedCompanyName != "Acme" {
		t.Errorf("expected linked company Acme, got %v", office.LinkedCompanyName)
	}
	if office.LinkedCompanyID == nil {
		t.Error("expected a linked company id")
	}
	if office.DistanceM != 208 {
		t.Errorf("expected stored distance 208, got %f", office.DistanceM)
	}
}

func TestCenterOfficesParamValidation(t *testing.T) {
	srv, st := newTestServer(t, "")
	center := seedTestCenter(t, st, "PM", 43.6582, -79.3907)
	base := fmt.Sprintf("/api/centers/%d/offices", center.ID)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"ZeroLimit", base + "?limit=0", http.StatusBadRequest},
		{"NegativeLimit", base + "?limit=-5", http.StatusBadRequest},
		{"NonIntLimit", base + "?limit=abc", http.StatusBadRequest},
		{"NonIntRadius", base + "?radiusKm=abc", http.StatusBadRequest},
		{"BadConfidence", base + "?highConfidenceOnly=maybe", http.StatusBadRequest},
		{"NonIntCenterID", "/api/centers/abc/offices", http.StatusBadRequest},
		{"UnknownCenter", "/api/centers/9999/offices", http.StatusNotFound},
		{"HugeLimitClamps", base + "?limit=999999", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	t.Run("RadiusClampsToCap", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, base+"?radiusKm=9999", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp officesResponse
		decodeBody(t, w, &resp)
		if resp.RadiusKm != 100 {
			t.Errorf("expected radius clamped to 100, got %d", resp.RadiusKm)
		}
	})

	t.Run("InactiveCenterIs404", func(t *testing.T) {
		ctx := context.Background()
		if _, err := st.UpsertCenterFromCSV(ctx, model.CenterUpsert{
			CenterCode: "XX", Name: "Other", Lat: 1, Lon: 1,
		}, "next-sync"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := st.DisableCentersMissingFromSync(ctx, "next-sync"); err != nil {
			t.Fatalf("disable: %v", err)
		}
		w := serve(srv, httptest.NewRequest(http.MethodGet, base, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404 for inactive center, got %d", w.Code)
		}
	})
}

func TestCenterOfficesGeoJSON(t *testing.T) {
	srv, st := newTestServer(t, "")

	center := seedTestCenter(t, st, "PM", 43.6582, -79.3907)
	seedTestCompany(t, st, "Acme")
	seedTestOffice(t, st, center.ID, "Acme Corp", 1, 43.66, -79.39, 208)

	w := serve(srv, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/centers/%d/offices.geojson", center.ID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string     `json:"type"`
				Coordinates [2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	decodeBody(t, w, &fc)

	if fc.Type != "FeatureCollection" {
		t.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	f := fc.Features[0]
	if f.ID != "node/1" {
		t.Errorf("unexpected feature id %q", f.ID)
	}
	if f.Geometry.Type != "Point" {
		t.Errorf("expected Point geometry, got %q", f.Geometry.Type)
	}
	// GeoJSON coordinates are lon, lat.
	if f.Geometry.Coordinates[0] != -79.39 || f.Geometry.Coordinates[1] != 43.66 {
		t.Errorf("unexpected coordinates %v", f.Geometry.Coordinates)
	}
	if f.Properties["name"] != "Acme Corp" {
		t.Errorf("unexpected name property %v", f.Properties["name"])
	}
	if f.Properties["linkedCompanyName"] != "Acme" {
		t.Errorf("unexpected linkedCompanyName %v", f.Properties["linkedCompanyName"])
	}
}
