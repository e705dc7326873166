package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"officeradar/pkg/db"
	"officeradar/pkg/model"
)

// Timestamps are stored as RFC3339 UTC strings, so lexical comparison
// matches time order and prune cutoffs can be plain string inequalities.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func timePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Centers ---

const centerCols = "id, center_code, name, tier, lat, lon, country, region, source_url, is_active, last_csv_sync_token, created_at, updated_at"

func scanCenter(r rowScanner) (model.Center, error) {
	var c model.Center
	var tier, country, region, sourceURL, syncToken sql.NullString
	var active int64
	var createdAt, updatedAt string
	err := r.Scan(&c.ID, &c.CenterCode, &c.Name, &tier, &c.Lat, &c.Lon, &country, &region,
		&sourceURL, &active, &syncToken, &createdAt, &updatedAt)
	if err != nil {
		return model.Center{}, err
	}
	c.Tier = strPtr(tier)
	c.Country = strPtr(country)
	c.Region = strPtr(region)
	c.SourceURL = strPtr(sourceURL)
	c.IsActive = active != 0
	c.LastCSVSyncToken = strPtr(syncToken)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func (s *SQLiteStore) ListCenters(ctx context.Context, tier *string, activeOnly bool) ([]model.Center, error) {
	query := "SELECT " + centerCols + " FROM centers"
	var conds []string
	var args []any
	if activeOnly {
		conds = append(conds, "is_active = 1")
	}
	if tier != nil {
		conds = append(conds, "tier = ?")
		args = append(args, *tier)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var centers []model.Center
	for rows.Next() {
		c, err := scanCenter(rows)
		if err != nil {
			return nil, err
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

func (s *SQLiteStore) GetCenter(ctx context.Context, id int64) (*model.Center, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+centerCols+" FROM centers WHERE id = ?", id)
	c, err := scanCenter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListActiveCentersAfter(ctx context.Context, afterID int64, limit int) ([]model.Center, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+centerCols+" FROM centers WHERE is_active = 1 AND id > ? ORDER BY id ASC LIMIT ?",
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var centers []model.Center
	for rows.Next() {
		c, err := scanCenter(rows)
		if err != nil {
			return nil, err
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

func (s *SQLiteStore) CountCenters(ctx context.Context) (int64, int64, error) {
	var total, active int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM centers").Scan(&total, &active)
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func (s *SQLiteStore) UpsertCenterFromCSV(ctx context.Context, row model.CenterUpsert, syncToken string) (UpsertOutcome, error) {
	now := fmtTime(time.Now())

	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM centers WHERE center_code = ?", row.CenterCode).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO centers (center_code, name, tier, lat, lon, country, region, source_url, is_active, last_csv_sync_token, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			row.CenterCode, row.Name, row.Tier, row.Lat, row.Lon, row.Country, row.Region, row.SourceURL,
			syncToken, now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert center %s: %w", row.CenterCode, err)
		}
		return OutcomeInserted, nil
	}
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE centers SET name = ?, tier = ?, lat = ?, lon = ?, country = ?, region = ?, source_url = ?,
		 is_active = 1, last_csv_sync_token = ?, updated_at = ?
		 WHERE id = ?`,
		row.Name, row.Tier, row.Lat, row.Lon, row.Country, row.Region, row.SourceURL, syncToken, now, id)
	if err != nil {
		return "", fmt.Errorf("failed to update center %s: %w", row.CenterCode, err)
	}
	return OutcomeUpdated, nil
}

func (s *SQLiteStore) DisableCentersMissingFromSync(ctx context.Context, syncToken string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE centers SET is_active = 0, updated_at = ?
		 WHERE is_active = 1 AND (last_csv_sync_token IS NULL OR last_csv_sync_token <> ?)`,
		fmtTime(time.Now()), syncToken)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Offices ---

// escapeLike caps search input at 120 chars and escapes the LIKE wildcard
// class with backslash.
func escapeLike(s string) string {
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120])
	}
	var b strings.Builder
	for _, r := range s {
		if r == '\\' || r == '%' || r == '_' {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLiteStore) ListOfficesForCenter(ctx context.Context, q OfficeQuery) ([]model.OfficeWithDistance, error) {
	query := `SELECT o.osm_type, o.osm_id, o.name, o.brand, o.operator, o.website, o.wikidata, o.wikidata_entity_id,
			o.lat, o.lon, o.low_confidence,
			o.employee_count, o.employee_count_as_of, o.market_cap, o.market_cap_currency_qid, o.market_cap_as_of, o.wikidata_enriched_at,
			co.distance_m
		  FROM center_office co
		  JOIN offices o ON o.osm_type = co.osm_type AND o.osm_id = co.osm_id
		  WHERE co.center_id = ?
			AND co.distance_m <= ?
			AND o.name IS NOT NULL AND o.name <> ''
			AND NOT EXISTS (SELECT 1 FROM banned_offices b WHERE b.osm_type = o.osm_type AND b.osm_id = o.osm_id)`
	args := []any{q.CenterID, q.RadiusM}
	if q.HighConfidenceOnly {
		query += " AND o.low_confidence = 0"
	}
	if q.Search != "" {
		query += ` AND o.name LIKE ? ESCAPE '\' COLLATE NOCASE`
		args = append(args, escapeLike(q.Search)+"%")
	}
	query += " ORDER BY co.distance_m ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offices []model.OfficeWithDistance
	seen := make(map[model.DedupeKey]bool)
	for rows.Next() {
		var o model.OfficeWithDistance
		var osmType string
		var name, brand, operator, website, wikidata, entityID sql.NullString
		var lowConf int64
		var empCount sql.NullInt64
		var marketCap sql.NullFloat64
		var empAsOf, capCurrency, capAsOf, enrichedAt sql.NullString
		err := rows.Scan(&osmType, &o.OSMID, &name, &brand, &operator, &website, &wikidata, &entityID,
			&o.Lat, &o.Lon, &lowConf,
			&empCount, &empAsOf, &marketCap, &capCurrency, &capAsOf, &enrichedAt,
			&o.DistanceM)
		if err != nil {
			return nil, err
		}
		o.OSMType = model.OSMType(osmType)
		o.Name = name.String
		o.Brand = strPtr(brand)
		o.Operator = strPtr(operator)
		o.Website = strPtr(website)
		o.Wikidata = strPtr(wikidata)
		o.WikidataEntityID = strPtr(entityID)
		o.LowConfidence = lowConf != 0
		o.EmployeeCount = int64Ptr(empCount)
		o.EmployeeCountAsOf = strPtr(empAsOf)
		o.MarketCap = floatPtr(marketCap)
		o.MarketCapCurrencyQID = strPtr(capCurrency)
		o.MarketCapAsOf = strPtr(capAsOf)
		o.WikidataEnrichedAt = timePtr(enrichedAt)

		// Distinct OSM elements can describe the same physical office.
		key := model.OfficeDedupeKey(o.Name, o.Lat, o.Lon)
		if seen[key] {
			continue
		}
		seen[key] = true
		offices = append(offices, o)
	}
	return offices, rows.Err()
}

// txChunk caps the number of statement executions per transaction.
const txChunk = 80

const officeUpsertSQL = `INSERT INTO offices (osm_type, osm_id, name, brand, operator, website, wikidata, wikidata_entity_id, lat, lon, low_confidence, tags_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(osm_type, osm_id) DO UPDATE SET
	name=excluded.name,
	brand=excluded.brand,
	operator=excluded.operator,
	website=excluded.website,
	wikidata=excluded.wikidata,
	wikidata_entity_id=excluded.wikidata_entity_id,
	lat=excluded.lat,
	lon=excluded.lon,
	low_confidence=excluded.low_confidence,
	tags_json=excluded.tags_json,
	updated_at=excluded.updated_at`

const linkUpsertSQL = `INSERT INTO center_office (center_id, osm_type, osm_id, distance_m, last_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(center_id, osm_type, osm_id) DO UPDATE SET
	distance_m=excluded.distance_m,
	last_seen=excluded.last_seen`

func (s *SQLiteStore) UpsertOfficesAndLinks(ctx context.Context, offices []model.Office, links []model.CenterOffice) error {
	for start := 0; start < len(offices); start += txChunk {
		end := min(start+txChunk, len(offices))
		if err := s.upsertOfficeChunk(ctx, offices[start:end]); err != nil {
			return err
		}
	}
	for start := 0; start < len(links); start += txChunk {
		end := min(start+txChunk, len(links))
		if err := s.upsertLinkChunk(ctx, links[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) upsertOfficeChunk(ctx context.Context, offices []model.Office) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Prepared statements live and die with their transaction.
	stmt, err := tx.PrepareContext(ctx, officeUpsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	now := fmtTime(time.Now())
	for i := range offices {
		o := &offices[i]
		_, err := stmt.ExecContext(ctx, string(o.OSMType), o.OSMID, o.Name, o.Brand, o.Operator,
			o.Website, o.Wikidata, o.WikidataEntityID, o.Lat, o.Lon, o.LowConfidence, o.TagsJSON, now)
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to upsert office %s/%d: %w", o.OSMType, o.OSMID, err)
		}
	}
	stmt.Close()
	return tx.Commit()
}

func (s *SQLiteStore) upsertLinkChunk(ctx context.Context, links []model.CenterOffice) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, linkUpsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	for i := range links {
		l := &links[i]
		_, err := stmt.ExecContext(ctx, l.CenterID, string(l.OSMType), l.OSMID, l.DistanceM, fmtTime(l.LastSeen))
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to upsert link %d/%s/%d: %w", l.CenterID, l.OSMType, l.OSMID, err)
		}
	}
	stmt.Close()
	return tx.Commit()
}

func (s *SQLiteStore) PruneCenterLinksNotSeenSince(ctx context.Context, centerID int64, seenAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM center_office WHERE center_id = ? AND last_seen < ?",
		centerID, fmtTime(seenAt))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PruneStaleCenterLinks(ctx context.Context, centerID int64, staleDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -staleDays)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM center_office WHERE center_id = ? AND last_seen < ?",
		centerID, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PurgeAllOfficePoints(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM center_office"); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to purge links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM offices"); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to purge offices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, setStateSQL, stateKeyCursor, "0", fmtTime(time.Now())); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountOfficesAndLinks(ctx context.Context) (int64, int64, error) {
	var offices, links int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offices").Scan(&offices); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM center_office").Scan(&links); err != nil {
		return 0, 0, err
	}
	return offices, links, nil
}

// --- Enrichment ---

func (s *SQLiteStore) ListStaleWikidataEntityIDs(ctx context.Context, ids []string, staleDays, max int) ([]string, error) {
	if len(ids) == 0 || max <= 0 {
		return nil, nil
	}

	query := `SELECT DISTINCT wikidata_entity_id FROM offices WHERE wikidata_entity_id IN (`
	args := make([]any, 0, len(ids)+2)
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += `) AND (wikidata_enriched_at IS NULL OR wikidata_enriched_at < ?) ORDER BY wikidata_entity_id LIMIT ?`
	args = append(args, fmtTime(time.Now().AddDate(0, 0, -staleDays)), max)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		stale = append(stale, id)
	}
	return stale, rows.Err()
}

func (s *SQLiteStore) ApplyWikidataFacts(ctx context.Context, facts map[string]model.WikidataFacts, enrichedAt time.Time) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE offices SET employee_count = ?, employee_count_as_of = ?, market_cap = ?,
		 market_cap_currency_qid = ?, market_cap_as_of = ?, wikidata_enriched_at = ?
		 WHERE wikidata_entity_id = ?`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	var updated int64
	for qid, f := range facts {
		res, err := stmt.ExecContext(ctx, f.EmployeeCount, f.EmployeeCountAsOf, f.MarketCap,
			f.MarketCapCurrencyQID, f.MarketCapAsOf, fmtTime(enrichedAt), qid)
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, fmt.Errorf("failed to apply facts for %s: %w", qid, err)
		}
		n, _ := res.RowsAffected()
		updated += n
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// --- Companies ---

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, company_name_normalized, known_aliases, hq_country, description, type, geography, industry, suitability_tier
		 FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		var aliases, hqCountry, description, typ, geography, industry, tier sql.NullString
		err := rows.Scan(&c.ID, &c.CompanyName, &c.CompanyNameNormalized, &aliases, &hqCountry,
			&description, &typ, &geography, &industry, &tier)
		if err != nil {
			return nil, err
		}
		c.KnownAliases = strPtr(aliases)
		c.HQCountry = strPtr(hqCountry)
		c.Description = strPtr(description)
		c.Type = strPtr(typ)
		c.Geography = strPtr(geography)
		c.Industry = strPtr(industry)
		c.SuitabilityTier = strPtr(tier)
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func (s *SQLiteStore) InsertCompanyFromCSV(ctx context.Context, c model.Company) (UpsertOutcome, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (company_name, company_name_normalized, known_aliases, hq_country, description, type, geography, industry, suitability_tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(company_name_normalized) DO NOTHING`,
		c.CompanyName, c.CompanyNameNormalized, c.KnownAliases, c.HQCountry, c.Description,
		c.Type, c.Geography, c.Industry, c.SuitabilityTier)
	if err != nil {
		return "", fmt.Errorf("failed to insert company %s: %w", c.CompanyName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return OutcomeSkipped, nil
	}
	return OutcomeInserted, nil
}

func (s *SQLiteStore) CountCompanies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies").Scan(&n)
	return n, err
}

// --- Flags and bans ---

const flagCols = "id, center_id, osm_type, osm_id, reason, status, submitted_at, reviewed_at"

func scanFlag(r rowScanner) (model.DeletionFlag, error) {
	var f model.DeletionFlag
	var centerID sql.NullInt64
	var reason, reviewedAt sql.NullString
	var osmType, status, submittedAt string
	err := r.Scan(&f.ID, &centerID, &osmType, &f.OSMID, &reason, &status, &submittedAt, &reviewedAt)
	if err != nil {
		return model.DeletionFlag{}, err
	}
	f.CenterID = int64Ptr(centerID)
	f.OSMType = model.OSMType(osmType)
	f.Reason = strPtr(reason)
	f.Status = model.FlagStatus(status)
	f.SubmittedAt = parseTime(submittedAt)
	f.ReviewedAt = timePtr(reviewedAt)
	return f, nil
}

func (s *SQLiteStore) HasCenterOfficeLink(ctx context.Context, centerID int64, ref model.OSMRef) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM center_office WHERE center_id = ? AND osm_type = ? AND osm_id = ?",
		centerID, string(ref.Type), ref.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) IsBanned(ctx context.Context, ref model.OSMRef) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM banned_offices WHERE osm_type = ? AND osm_id = ?",
		string(ref.Type), ref.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListBannedRefs(ctx context.Context) (map[model.OSMRef]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT osm_type, osm_id FROM banned_offices")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	banned := make(map[model.OSMRef]bool)
	for rows.Next() {
		var typ string
		var id int64
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, err
		}
		banned[model.OSMRef{Type: model.OSMType(typ), ID: id}] = true
	}
	return banned, rows.Err()
}

func (s *SQLiteStore) GetPendingFlag(ctx context.Context, ref model.OSMRef) (*model.DeletionFlag, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+flagCols+" FROM office_deletion_flags WHERE osm_type = ? AND osm_id = ? AND status = 'pending'",
		string(ref.Type), ref.ID)
	f, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) InsertFlag(ctx context.Context, f *model.DeletionFlag) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO office_deletion_flags (center_id, osm_type, osm_id, reason, status, submitted_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)`,
		f.CenterID, string(f.OSMType), f.OSMID, f.Reason, fmtTime(f.SubmittedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert flag for %s/%d: %w", f.OSMType, f.OSMID, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetFlag(ctx context.Context, id int64) (*model.DeletionFlag, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+flagCols+" FROM office_deletion_flags WHERE id = ?", id)
	f, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) ListFlags(ctx context.Context, status string, limit int) ([]model.DeletionFlag, error) {
	query := "SELECT " + flagCols + " FROM office_deletion_flags"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []model.DeletionFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ApproveFlag marks the flag approved, bans the office, and removes its
// point and links, all in one transaction.
func (s *SQLiteStore) ApproveFlag(ctx context.Context, id int64, ref model.OSMRef, now time.Time) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	ts := fmtTime(now)

	if _, err := tx.ExecContext(ctx,
		"UPDATE office_deletion_flags SET status = 'approved', reviewed_at = ? WHERE id = ?", ts, id); err != nil {
		tx.Rollback()
		return 0, 0, fmt.Errorf("failed to approve flag %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO banned_offices (osm_type, osm_id, approved_flag_id, approved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(osm_type, osm_id) DO UPDATE SET
		 approved_flag_id=excluded.approved_flag_id,
		 approved_at=excluded.approved_at`,
		string(ref.Type), ref.ID, id, ts); err != nil {
		tx.Rollback()
		return 0, 0, fmt.Errorf("failed to ban office %s/%d: %w", ref.Type, ref.ID, err)
	}

	linkRes, err := tx.ExecContext(ctx,
		"DELETE FROM center_office WHERE osm_type = ? AND osm_id = ?", string(ref.Type), ref.ID)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	officeRes, err := tx.ExecContext(ctx,
		"DELETE FROM offices WHERE osm_type = ? AND osm_id = ?", string(ref.Type), ref.ID)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}

	deletedLinks, _ := linkRes.RowsAffected()
	deletedOffices, _ := officeRes.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return deletedLinks, deletedOffices, nil
}

func (s *SQLiteStore) RejectFlag(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE office_deletion_flags SET status = 'rejected', reviewed_at = ? WHERE id = ?",
		fmtTime(now), id)
	return err
}

// --- State ---

const stateKeyCursor = "center_cursor"

const setStateSQL = `INSERT INTO refresh_state (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM refresh_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("Failed to read state", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx, setStateSQL, key, val, fmtTime(time.Now()))
	return err
}

func (s *SQLiteStore) GetRefreshCursor(ctx context.Context) (model.RefreshCursor, bool, error) {
	var val, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT value, updated_at FROM refresh_state WHERE key = ?", stateKeyCursor).Scan(&val, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshCursor{}, false, nil
	}
	if err != nil {
		return model.RefreshCursor{}, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		n = 0
	}
	return model.RefreshCursor{Value: n, UpdatedAt: parseTime(updatedAt)}, true, nil
}

func (s *SQLiteStore) SetRefreshCursor(ctx context.Context, value int64) error {
	return s.SetState(ctx, stateKeyCursor, strconv.FormatInt(value, 10))
}
