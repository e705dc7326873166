package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"officeradar/pkg/db"
	"officeradar/pkg/model"
)

func strP(s string) *string { return &s }

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testCenters(t, ctx, store)
	testCompanies(t, ctx, store)
	testOfficesAndLinks(t, ctx, store)
	testState(t, ctx, store)
}

func testCenters(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Centers", func(t *testing.T) {
		row := model.CenterUpsert{
			CenterCode: "us-nyc-msk",
			Name:       "Memorial Sloan Kettering",
			Tier:       strP("1"),
			Lat:        40.7641,
			Lon:        -73.9568,
			Country:    strP("US"),
		}

		outcome, err := store.UpsertCenterFromCSV(ctx, row, "sync-1")
		if err != nil {
			t.Fatalf("UpsertCenterFromCSV failed: %v", err)
		}
		if outcome != OutcomeInserted {
			t.Errorf("first upsert outcome = %s, want inserted", outcome)
		}

		row.Name = "MSK Cancer Center"
		outcome, err = store.UpsertCenterFromCSV(ctx, row, "sync-2")
		if err != nil {
			t.Fatalf("second UpsertCenterFromCSV failed: %v", err)
		}
		if outcome != OutcomeUpdated {
			t.Errorf("second upsert outcome = %s, want updated", outcome)
		}

		centers, err := store.ListCenters(ctx, nil, true)
		if err != nil {
			t.Fatalf("ListCenters failed: %v", err)
		}
		if len(centers) != 1 {
			t.Fatalf("ListCenters returned %d centers, want 1", len(centers))
		}
		if centers[0].Name != "MSK Cancer Center" {
			t.Errorf("center name = %q, want updated name", centers[0].Name)
		}
		if !centers[0].IsActive {
			t.Error("upserted center should be active")
		}

		got, err := store.GetCenter(ctx, centers[0].ID)
		if err != nil {
			t.Fatalf("GetCenter failed: %v", err)
		}
		if got == nil || got.CenterCode != "us-nyc-msk" {
			t.Errorf("GetCenter = %+v, want us-nyc-msk", got)
		}

		missing, err := store.GetCenter(ctx, 99999)
		if err != nil {
			t.Fatalf("GetCenter(missing) failed: %v", err)
		}
		if missing != nil {
			t.Error("GetCenter for unknown id should return nil")
		}
	})
}

func testCompanies(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Companies", func(t *testing.T) {
		c := model.Company{
			CompanyName:           "Acme Corp",
			CompanyNameNormalized: "acme",
			HQCountry:             strP("US"),
		}

		outcome, err := store.InsertCompanyFromCSV(ctx, c)
		if err != nil {
			t.Fatalf("InsertCompanyFromCSV failed: %v", err)
		}
		if outcome != OutcomeInserted {
			t.Errorf("first insert outcome = %s, want inserted", outcome)
		}

		c.CompanyName = "ACME Corporation"
		outcome, err = store.InsertCompanyFromCSV(ctx, c)
		if err != nil {
			t.Fatalf("duplicate InsertCompanyFromCSV failed: %v", err)
		}
		if outcome != OutcomeSkipped {
			t.Errorf("duplicate insert outcome = %s, want skipped", outcome)
		}

		companies, err := store.ListCompanies(ctx)
		if err != nil {
			t.Fatalf("ListCompanies failed: %v", err)
		}
		if len(companies) != 1 {
			t.Fatalf("ListCompanies returned %d companies, want 1", len(companies))
		}
		if companies[0].CompanyName != "Acme Corp" {
			t.Errorf("duplicate insert should keep the first row, got %q", companies[0].CompanyName)
		}
	})
}

func testOfficesAndLinks(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("OfficesAndLinks", func(t *testing.T) {
		_, err := store.UpsertCenterFromCSV(ctx, model.CenterUpsert{
			CenterCode: "de-hd-nct", Name: "NCT Heidelberg", Lat: 49.4178, Lon: 8.6706,
		}, "sync-o")
		if err != nil {
			t.Fatalf("failed to seed center: %v", err)
		}
		centers, err := store.ListCenters(ctx, nil, true)
		if err != nil {
			t.Fatalf("ListCenters failed: %v", err)
		}
		var centerID int64
		for _, c := range centers {
			if c.CenterCode == "de-hd-nct" {
				centerID = c.ID
			}
		}
		if centerID == 0 {
			t.Fatal("seeded center not found")
		}

		// 85 offices crosses the per-transaction chunk boundary.
		seenAt := time.Now()
		var offices []model.Office
		var links []model.CenterOffice
		for i := 0; i < 85; i++ {
			offices = append(offices, model.Office{
				OSMType: model.OSMNode,
				OSMID:   int64(1000 + i),
				Name:    fmt.Sprintf("Office %d", i),
				Lat:     49.41 + float64(i)*0.0001,
				Lon:     8.67,
			})
			links = append(links, model.CenterOffice{
				CenterID:  centerID,
				OSMType:   model.OSMNode,
				OSMID:     int64(1000 + i),
				DistanceM: float64(100 + i),
				LastSeen:  seenAt,
			})
		}
		if err := store.UpsertOfficesAndLinks(ctx, offices, links); err != nil {
			t.Fatalf("UpsertOfficesAndLinks failed: %v", err)
		}

		nOffices, nLinks, err := store.CountOfficesAndLinks(ctx)
		if err != nil {
			t.Fatalf("CountOfficesAndLinks failed: %v", err)
		}
		if nOffices != 85 || nLinks != 85 {
			t.Errorf("counts = %d offices, %d links, want 85/85", nOffices, nLinks)
		}

		// Upserting the same batch again must not create new rows.
		if err := store.UpsertOfficesAndLinks(ctx, offices, links); err != nil {
			t.Fatalf("second UpsertOfficesAndLinks failed: %v", err)
		}
		nOffices, nLinks, err = store.CountOfficesAndLinks(ctx)
		if err != nil {
			t.Fatalf("CountOfficesAndLinks failed: %v", err)
		}
		if nOffices != 85 || nLinks != 85 {
			t.Errorf("counts after re-upsert = %d offices, %d links, want 85/85", nOffices, nLinks)
		}

		got, err := store.ListOfficesForCenter(ctx, OfficeQuery{
			CenterID: centerID, RadiusM: 100000, Limit: 10,
		})
		if err != nil {
			t.Fatalf("ListOfficesForCenter failed: %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("ListOfficesForCenter returned %d offices, want 10", len(got))
		}
		if got[0].DistanceM != 100 {
			t.Errorf("offices not ordered by distance: first distance %f", got[0].DistanceM)
		}
	})
}

func testState(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("State", func(t *testing.T) {
		if _, ok := store.GetState(ctx, "nope"); ok {
			t.Error("GetState for unknown key should report absent")
		}

		if err := store.SetState(ctx, "centers_csv_mtime", "12345"); err != nil {
			t.Fatalf("SetState failed: %v", err)
		}
		val, ok := store.GetState(ctx, "centers_csv_mtime")
		if !ok || val != "12345" {
			t.Errorf("GetState = %q/%v, want 12345/true", val, ok)
		}

		_, present, err := store.GetRefreshCursor(ctx)
		if err != nil {
			t.Fatalf("GetRefreshCursor failed: %v", err)
		}
		if present {
			t.Error("cursor should be absent before first write")
		}

		if err := store.SetRefreshCursor(ctx, 42); err != nil {
			t.Fatalf("SetRefreshCursor failed: %v", err)
		}
		cursor, present, err := store.GetRefreshCursor(ctx)
		if err != nil {
			t.Fatalf("GetRefreshCursor failed: %v", err)
		}
		if !present || cursor.Value != 42 {
			t.Errorf("cursor = %+v/%v, want value 42 present", cursor, present)
		}
		if cursor.UpdatedAt.IsZero() {
			t.Error("cursor UpdatedAt should be stamped")
		}
	})
}
