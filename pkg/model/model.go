package model

import (
	"math"
	"strings"
	"time"
)

// OSMType is the element kind an office was derived from.
type OSMType string

const (
	OSMNode     OSMType = "node"
	OSMWay      OSMType = "way"
	OSMRelation OSMType = "relation"
)

// ParseOSMType validates a raw element type.
func ParseOSMType(raw string) (OSMType, bool) {
	switch OSMType(raw) {
	case OSMNode, OSMWay, OSMRelation:
		return OSMType(raw), true
	}
	return "", false
}

// OSMRef identifies an office: the composite primary key (osm_type, osm_id).
type OSMRef struct {
	Type OSMType `json:"osmType"`
	ID   int64   `json:"osmId"`
}

// Center is a curated geographic point around which offices are searched.
// Centers are created and mutated only by CSV sync; a CSV that omits a
// previously known center_code soft-disables the row.
type Center struct {
	ID               int64     `json:"id"`
	CenterCode       string    `json:"centerCode"`
	Name             string    `json:"name"`
	Tier             *string   `json:"tier"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	Country          *string   `json:"country"`
	Region           *string   `json:"region"`
	SourceURL        *string   `json:"sourceUrl,omitempty"`
	IsActive         bool      `json:"isActive"`
	LastCSVSyncToken *string   `json:"-"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// Office is a point or polygon tagged as an office upstream, after
// normalization. Identity is (OSMType, OSMID); everything else is mutable
// by refresh.
type Office struct {
	OSMType          OSMType `json:"osmType"`
	OSMID            int64   `json:"osmId"`
	Name             string  `json:"name"`
	Brand            *string `json:"brand"`
	Operator         *string `json:"operator"`
	Website          *string `json:"website"`
	Wikidata         *string `json:"wikidata"`
	WikidataEntityID *string `json:"wikidataEntityId"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	LowConfidence    bool    `json:"lowConfidence"`
	TagsJSON         *string `json:"-"`

	// Wikidata enrichment; nulls mean "no valid claim" at enrich time.
	EmployeeCount        *int64     `json:"employeeCount"`
	EmployeeCountAsOf    *string    `json:"employeeCountAsOf"`
	MarketCap            *float64   `json:"marketCap"`
	MarketCapCurrencyQID *string    `json:"marketCapCurrencyQid"`
	MarketCapAsOf        *string    `json:"marketCapAsOf"`
	WikidataEnrichedAt   *time.Time `json:"wikidataEnrichedAt"`

	UpdatedAt time.Time `json:"-"`
}

// Ref returns the composite identity of the office.
func (o *Office) Ref() OSMRef {
	return OSMRef{Type: o.OSMType, ID: o.OSMID}
}

// OfficeWithDistance is an office read back for one center, carrying the
// stored link distance.
type OfficeWithDistance struct {
	Office
	DistanceM float64 `json:"distanceM"`
}

// DedupeKey identifies near-duplicate offices: the same normalized name at
// the same coordinate rounded to 6 decimals (~0.1 m).
type DedupeKey struct {
	Name string
	Lat  float64
	Lon  float64
}

// OfficeDedupeKey builds the near-duplicate key for a name/coordinate pair.
// The name is lowercased, trimmed and whitespace-collapsed.
func OfficeDedupeKey(name string, lat, lon float64) DedupeKey {
	return DedupeKey{
		Name: strings.Join(strings.Fields(strings.ToLower(name)), " "),
		Lat:  math.Round(lat*1e6) / 1e6,
		Lon:  math.Round(lon*1e6) / 1e6,
	}
}

// CenterOffice links one center to one office with the precomputed
// haversine distance. LastSeen is the seen_at of the refresh run that
// last observed the office for that center.
type CenterOffice struct {
	CenterID  int64
	OSMType   OSMType
	OSMID     int64
	DistanceM float64
	LastSeen  time.Time
}

// CenterUpsert is one validated centers-CSV row, ready for persistence.
type CenterUpsert struct {
	CenterCode string
	Name       string
	Tier       *string
	Lat        float64
	Lon        float64
	Country    *string
	Region     *string
	SourceURL  *string
}

// Company is one row of the curated company index.
type Company struct {
	ID                    int64   `json:"id"`
	CompanyName           string  `json:"companyName"`
	CompanyNameNormalized string  `json:"companyNameNormalized"`
	KnownAliases          *string `json:"knownAliases"`
	HQCountry             *string `json:"hqCountry"`
	Description           *string `json:"description"`
	Type                  *string `json:"type"`
	Geography             *string `json:"geography"`
	Industry              *string `json:"industry"`
	SuitabilityTier       *string `json:"suitabilityTier"`
}

// FlagStatus is the review state of an office deletion flag.
type FlagStatus string

const (
	FlagPending  FlagStatus = "pending"
	FlagApproved FlagStatus = "approved"
	FlagRejected FlagStatus = "rejected"
)

// DeletionFlag is a user request to remove an office, reviewed by an admin.
// At most one pending flag may exist per (osm_type, osm_id).
type DeletionFlag struct {
	ID          int64      `json:"id"`
	CenterID    *int64     `json:"centerId"`
	OSMType     OSMType    `json:"osmType"`
	OSMID       int64      `json:"osmId"`
	Reason      *string    `json:"reason"`
	Status      FlagStatus `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt"`
}

// BannedOffice excludes an (osm_type, osm_id) from all future refreshes
// and reads. Rows are only ever created by approving a deletion flag.
type BannedOffice struct {
	OSMType        OSMType   `json:"osmType"`
	OSMID          int64     `json:"osmId"`
	ApprovedFlagID *int64    `json:"approvedFlagId"`
	ApprovedAt     time.Time `json:"approvedAt"`
}

// RefreshCursor is the persisted scheduled-refresh position plus the
// timestamp of its last write (drives the health check).
type RefreshCursor struct {
	Value     int64
	UpdatedAt time.Time
}

// WikidataFacts carries the claim values extracted for one entity.
// A zero-valued entry is still meaningful: it clears stale enrichment.
type WikidataFacts struct {
	EmployeeCount        *int64
	EmployeeCountAsOf    *string
	MarketCap            *float64
	MarketCapCurrencyQID *string
	MarketCapAsOf        *string
}
