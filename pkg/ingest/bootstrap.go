package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"officeradar/pkg/config"
	"officeradar/pkg/model"
	"officeradar/pkg/store"
)

// State keys guarding the startup imports against re-runs.
const (
	centersCSVStateKey   = "centers_csv_mtime"
	companiesCSVStateKey = "companies_csv_mtime"
)

// CentersApplyResult summarizes one centers sync.
type CentersApplyResult struct {
	SyncToken string
	Inserted  int
	Updated   int
	Disabled  int64
}

// CompaniesApplyResult summarizes one companies import.
type CompaniesApplyResult struct {
	Inserted int
	Skipped  int
}

// ApplyCenters upserts parsed center rows under a fresh sync token and
// soft-disables every active center the file no longer mentions.
func ApplyCenters(ctx context.Context, s store.CenterStore, rows []model.CenterUpsert) (*CentersApplyResult, error) {
	res := &CentersApplyResult{SyncToken: uuid.NewString()}
	for _, row := range rows {
		outcome, err := s.UpsertCenterFromCSV(ctx, row, res.SyncToken)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case store.OutcomeInserted:
			res.Inserted++
		case store.OutcomeUpdated:
			res.Updated++
		}
	}
	disabled, err := s.DisableCentersMissingFromSync(ctx, res.SyncToken)
	if err != nil {
		return nil, err
	}
	res.Disabled = disabled
	return res, nil
}

// ApplyCompanies inserts parsed company rows, skipping names already known.
func ApplyCompanies(ctx context.Context, s store.CompanyStore, rows []model.Company) (*CompaniesApplyResult, error) {
	res := &CompaniesApplyResult{}
	for _, row := range rows {
		outcome, err := s.InsertCompanyFromCSV(ctx, row)
		if err != nil {
			return nil, err
		}
		if outcome == store.OutcomeInserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// Bootstrap imports the configured seed CSVs. Each file is imported only
// when its modification time differs from the last recorded import.
func Bootstrap(ctx context.Context, s store.Store, cfg *config.BootstrapConfig) error {
	if cfg.CentersCSV != "" {
		if err := importCentersFile(ctx, s, cfg.CentersCSV); err != nil {
			return fmt.Errorf("centers bootstrap failed: %w", err)
		}
	}
	if cfg.CompaniesCSV != "" {
		if err := importCompaniesFile(ctx, s, cfg.CompaniesCSV); err != nil {
			return fmt.Errorf("companies bootstrap failed: %w", err)
		}
	}
	return nil
}

func importCentersFile(ctx context.Context, s store.Store, path string) error {
	mtime, fresh, err := statForImport(ctx, s, path, centersCSVStateKey)
	if err != nil || !fresh {
		return err
	}

	slog.Info("Importing centers from CSV...", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	parsed, err := ParseCentersCSV(f)
	if err != nil {
		return err
	}
	if len(parsed.Issues) > 0 {
		slog.Warn("Centers CSV rows rejected", "count", len(parsed.Issues))
	}
	if len(parsed.Rows) == 0 {
		// An empty sync would soft-disable every center; leave the DB alone.
		slog.Warn("Centers CSV has no acceptable rows, skipping sync", "path", path)
		return nil
	}

	applied, err := ApplyCenters(ctx, s, parsed.Rows)
	if err != nil {
		return err
	}
	slog.Info("Imported centers", "inserted", applied.Inserted, "updated", applied.Updated, "disabled", applied.Disabled)

	return s.SetState(ctx, centersCSVStateKey, mtime)
}

func importCompaniesFile(ctx context.Context, s store.Store, path string) error {
	mtime, fresh, err := statForImport(ctx, s, path, companiesCSVStateKey)
	if err != nil || !fresh {
		return err
	}

	slog.Info("Importing companies from CSV...", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	parsed, err := ParseCompaniesCSV(f)
	if err != nil {
		return err
	}
	if len(parsed.Issues) > 0 {
		slog.Warn("Companies CSV rows rejected", "count", len(parsed.Issues))
	}

	applied, err := ApplyCompanies(ctx, s, parsed.Rows)
	if err != nil {
		return err
	}
	slog.Info("Imported companies", "inserted", applied.Inserted, "skipped", applied.Skipped)

	return s.SetState(ctx, companiesCSVStateKey, mtime)
}

// statForImport reports whether the file exists and differs from the last
// imported modification time.
func statForImport(ctx context.Context, s store.StateStore, path, stateKey string) (string, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to stat csv: %w", err)
	}
	mtime := info.ModTime().UTC().Format(time.RFC3339)
	if stored, found := s.GetState(ctx, stateKey); found && stored == mtime {
		return "", false, nil
	}
	return mtime, true, nil
}
