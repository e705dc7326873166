package store

import (
	"context"
	"time"

	"officeradar/pkg/model"
)

// UpsertOutcome reports what a CSV write did to a row.
type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeUpdated  UpsertOutcome = "updated"
	OutcomeSkipped  UpsertOutcome = "skipped"
)

// OfficeQuery filters one center's office listing.
type OfficeQuery struct {
	CenterID           int64
	RadiusM            float64
	Limit              int // 0 means no limit
	HighConfidenceOnly bool
	Search             string // name prefix, matched case-insensitively
}

// CenterStore handles curated center persistence.
type CenterStore interface {
	ListCenters(ctx context.Context, tier *string, activeOnly bool) ([]model.Center, error)
	GetCenter(ctx context.Context, id int64) (*model.Center, error)
	ListActiveCentersAfter(ctx context.Context, afterID int64, limit int) ([]model.Center, error)
	CountCenters(ctx context.Context) (total, active int64, err error)
	UpsertCenterFromCSV(ctx context.Context, row model.CenterUpsert, syncToken string) (UpsertOutcome, error)
	DisableCentersMissingFromSync(ctx context.Context, syncToken string) (int64, error)
}

// OfficeStore handles office points and center-office links.
type OfficeStore interface {
	ListOfficesForCenter(ctx context.Context, q OfficeQuery) ([]model.OfficeWithDistance, error)
	UpsertOfficesAndLinks(ctx context.Context, offices []model.Office, links []model.CenterOffice) error
	PruneCenterLinksNotSeenSince(ctx context.Context, centerID int64, seenAt time.Time) (int64, error)
	PruneStaleCenterLinks(ctx context.Context, centerID int64, staleDays int) (int64, error)
	PurgeAllOfficePoints(ctx context.Context) error
	CountOfficesAndLinks(ctx context.Context) (offices, links int64, err error)
}

// EnrichmentStore handles Wikidata facts attached to offices.
type EnrichmentStore interface {
	ListStaleWikidataEntityIDs(ctx context.Context, ids []string, staleDays, max int) ([]string, error)
	ApplyWikidataFacts(ctx context.Context, facts map[string]model.WikidataFacts, enrichedAt time.Time) (int64, error)
}

// CompanyStore handles the curated company index.
type CompanyStore interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
	InsertCompanyFromCSV(ctx context.Context, c model.Company) (UpsertOutcome, error)
	CountCompanies(ctx context.Context) (int64, error)
}

// FlagStore handles deletion flags and the ban list.
type FlagStore interface {
	HasCenterOfficeLink(ctx context.Context, centerID int64, ref model.OSMRef) (bool, error)
	IsBanned(ctx context.Context, ref model.OSMRef) (bool, error)
	ListBannedRefs(ctx context.Context) (map[model.OSMRef]bool, error)
	GetPendingFlag(ctx context.Context, ref model.OSMRef) (*model.DeletionFlag, error)
	InsertFlag(ctx context.Context, f *model.DeletionFlag) (int64, error)
	GetFlag(ctx context.Context, id int64) (*model.DeletionFlag, error)
	ListFlags(ctx context.Context, status string, limit int) ([]model.DeletionFlag, error)
	ApproveFlag(ctx context.Context, id int64, ref model.OSMRef, now time.Time) (deletedLinks, deletedOffices int64, err error)
	RejectFlag(ctx context.Context, id int64, now time.Time) error
}

// StateStore handles persistent key/value state and the refresh cursor.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	GetRefreshCursor(ctx context.Context) (model.RefreshCursor, bool, error)
	SetRefreshCursor(ctx context.Context, value int64) error
}

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CenterStore
	OfficeStore
	EnrichmentStore
	CompanyStore
	FlagStore
	StateStore

	// Close closes the store connection.
	Close() error
}
