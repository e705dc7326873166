// Package refresh walks cancer centers and rebuilds their nearby-office
// links from OpenStreetMap, enriching matched offices with Wikidata
// facts along the way.
package refresh

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"officeradar/pkg/config"
	"officeradar/pkg/geo"
	"officeradar/pkg/match"
	"officeradar/pkg/model"
	"officeradar/pkg/overpass"
	"officeradar/pkg/store"
	"officeradar/pkg/wikidata"
)

// Stats counts what one refresh did. Field names are the wire format of
// the admin endpoints.
type Stats struct {
	OfficesFetched                   int   `json:"offices_fetched"`
	OfficesMatched                   int   `json:"offices_matched"`
	OfficesFilteredOutNoCompanyMatch int   `json:"offices_filtered_out_no_company_match"`
	LinksUpserted                    int   `json:"links_upserted"`
	PrunedLinks                      int64 `json:"pruned_links"`
	WikidataEntitiesFetched          int   `json:"wikidata_entities_fetched"`
	WikidataOfficesUpdated           int64 `json:"wikidata_offices_updated"`
}

func (s *Stats) add(o Stats) {
	s.OfficesFetched += o.OfficesFetched
	s.OfficesMatched += o.OfficesMatched
	s.OfficesFilteredOutNoCompanyMatch += o.OfficesFilteredOutNoCompanyMatch
	s.LinksUpserted += o.LinksUpserted
	s.PrunedLinks += o.PrunedLinks
	s.WikidataEntitiesFetched += o.WikidataEntitiesFetched
	s.WikidataOfficesUpdated += o.WikidataOfficesUpdated
}

// Options carry the per-run inputs of a single-center refresh. Index and
// Banned are immutable snapshots; a batch loads them once and reuses
// them for every center in the batch.
type Options struct {
	RadiusM    float64 // 0 selects the configured default
	MaxOffices int     // 0 means unlimited
	Index      *match.Index
	Banned     map[model.OSMRef]bool
}

// Engine drives center refreshes against the store and the two upstream
// APIs.
type Engine struct {
	store    store.Store
	overpass *overpass.Client
	wikidata *wikidata.Client
	matcher  *match.Provider
	cfg      *config.Config
}

// NewEngine creates a refresh engine.
func NewEngine(st store.Store, ov *overpass.Client, wd *wikidata.Client, matcher *match.Provider, cfg *config.Config) *Engine {
	return &Engine{
		store:    st,
		overpass: ov,
		wikidata: wd,
		matcher:  matcher,
		cfg:      cfg,
	}
}

// RefreshOne runs a one-off refresh for a single center, loading the
// company index and ban set itself. Admin handlers use this; batches
// share snapshots via RefreshCenter instead.
func (e *Engine) RefreshOne(ctx context.Context, center *model.Center, radiusM float64, maxOffices int) (Stats, error) {
	idx, err := e.matcher.Index(ctx)
	if err != nil {
		return Stats{}, err
	}
	banned, err := e.store.ListBannedRefs(ctx)
	if err != nil {
		return Stats{}, err
	}
	return e.RefreshCenter(ctx, center, Options{
		RadiusM:    radiusM,
		MaxOffices: maxOffices,
		Index:      idx,
		Banned:     banned,
	})
}

// RefreshCenter fetches offices around one center, filters them down to
// known companies, rewrites the center's links, and prunes whatever this
// run no longer saw. On cancellation the prune is skipped so a partial
// run never deletes links.
func (e *Engine) RefreshCenter(ctx context.Context, center *model.Center, opts Options) (Stats, error) {
	var stats Stats

	radiusM := opts.RadiusM
	if radiusM <= 0 {
		radiusM = float64(e.cfg.Refresh.DefaultRadius)
	}

	query := overpass.BuildQuery(center.Lat, center.Lon, int(radiusM))
	elements, err := e.overpass.FetchElements(ctx, query)
	if err != nil {
		return stats, err
	}

	offices := overpass.NormalizeElements(elements)
	stats.OfficesFetched = len(offices)

	offices = capNearest(offices, center, opts.MaxOffices)

	offices, filteredOut := opts.Index.FilterOffices(offices)
	stats.OfficesMatched = len(offices)
	stats.OfficesFilteredOutNoCompanyMatch = filteredOut

	offices = dropBanned(offices, opts.Banned)

	seenAt := time.Now()
	if len(offices) > 0 {
		links := make([]model.CenterOffice, len(offices))
		for i := range offices {
			links[i] = model.CenterOffice{
				CenterID:  center.ID,
				OSMType:   offices[i].OSMType,
				OSMID:     offices[i].OSMID,
				DistanceM: distanceTo(center, &offices[i]),
				LastSeen:  seenAt,
			}
		}
		if err := e.store.UpsertOfficesAndLinks(ctx, offices, links); err != nil {
			return stats, err
		}
		stats.LinksUpserted = len(links)

		e.enrich(ctx, center, offices, &stats)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	pruned, err := e.store.PruneCenterLinksNotSeenSince(ctx, center.ID, seenAt)
	if err != nil {
		return stats, err
	}
	stats.PrunedLinks += pruned

	pruned, err = e.store.PruneStaleCenterLinks(ctx, center.ID, e.cfg.Refresh.StaleLinkDays)
	if err != nil {
		return stats, err
	}
	stats.PrunedLinks += pruned

	return stats, nil
}

// enrich refreshes Wikidata facts for the center's surviving offices.
// Failures here are logged and swallowed: enrichment never fails a
// refresh.
func (e *Engine) enrich(ctx context.Context, center *model.Center, offices []model.Office, stats *Stats) {
	if !e.cfg.Wikidata.EnrichEnabled {
		return
	}

	qids := uniqueEntityIDs(offices)
	if len(qids) == 0 {
		return
	}

	stale, err := e.store.ListStaleWikidataEntityIDs(ctx, qids, e.cfg.Wikidata.StaleDays, e.cfg.Wikidata.MaxIDsPerCenter)
	if err != nil {
		slog.Warn("Wikidata staleness lookup failed", "center", center.CenterCode, "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	facts, err := e.wikidata.FetchFacts(ctx, stale)
	if err != nil {
		slog.Warn("Wikidata fetch failed", "center", center.CenterCode, "ids", len(stale), "error", err)
		return
	}
	stats.WikidataEntitiesFetched = len(facts)

	updated, err := e.store.ApplyWikidataFacts(ctx, facts, time.Now())
	if err != nil {
		slog.Warn("Wikidata apply failed", "center", center.CenterCode, "error", err)
		return
	}
	stats.WikidataOfficesUpdated = updated
}

// capNearest keeps the max nearest offices by distance to the center.
func capNearest(offices []model.Office, center *model.Center, max int) []model.Office {
	if max <= 0 || len(offices) <= max {
		return offices
	}
	sort.SliceStable(offices, func(i, j int) bool {
		return distanceTo(center, &offices[i]) < distanceTo(center, &offices[j])
	})
	return offices[:max]
}

func dropBanned(offices []model.Office, banned map[model.OSMRef]bool) []model.Office {
	if len(banned) == 0 {
		return offices
	}
	kept := offices[:0]
	for i := range offices {
		if !banned[offices[i].Ref()] {
			kept = append(kept, offices[i])
		}
	}
	return kept
}

func distanceTo(center *model.Center, office *model.Office) float64 {
	return geo.Distance(
		geo.Point{Lat: center.Lat, Lon: center.Lon},
		geo.Point{Lat: office.Lat, Lon: office.Lon},
	)
}

func uniqueEntityIDs(offices []model.Office) []string {
	seen := make(map[string]bool)
	var ids []string
	for i := range offices {
		id := offices[i].WikidataEntityID
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		ids = append(ids, *id)
	}
	return ids
}
