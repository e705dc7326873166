package db

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// migration is one schema step. Names are ordered lexically and each
// migration runs exactly once; applied_migrations records what ran.
type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{
		name: "0001_centers",
		stmt: `CREATE TABLE centers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			center_code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			tier TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			country TEXT,
			region TEXT,
			source_url TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_csv_sync_token TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	},
	{
		name: "0002_offices",
		stmt: `CREATE TABLE offices (
			osm_type TEXT NOT NULL CHECK (osm_type IN ('node','way','relation')),
			osm_id INTEGER NOT NULL,
			name TEXT,
			brand TEXT,
			operator TEXT,
			website TEXT,
			wikidata TEXT,
			wikidata_entity_id TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			low_confidence INTEGER NOT NULL DEFAULT 0,
			tags_json TEXT,
			employee_count INTEGER,
			employee_count_as_of TEXT,
			market_cap REAL,
			market_cap_currency_qid TEXT,
			market_cap_as_of TEXT,
			wikidata_enriched_at TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (osm_type, osm_id)
		);`,
	},
	{
		name: "0003_center_office",
		stmt: `CREATE TABLE center_office (
			center_id INTEGER NOT NULL REFERENCES centers(id) ON DELETE CASCADE,
			osm_type TEXT NOT NULL,
			osm_id INTEGER NOT NULL,
			distance_m REAL NOT NULL,
			last_seen TEXT NOT NULL,
			PRIMARY KEY (center_id, osm_type, osm_id),
			FOREIGN KEY (osm_type, osm_id) REFERENCES offices(osm_type, osm_id) ON DELETE CASCADE
		);`,
	},
	{
		name: "0004_center_office_office_idx",
		stmt: `CREATE INDEX idx_center_office_office ON center_office (osm_type, osm_id);`,
	},
	{
		name: "0005_companies",
		stmt: `CREATE TABLE companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_name TEXT NOT NULL,
			company_name_normalized TEXT NOT NULL UNIQUE,
			known_aliases TEXT,
			hq_country TEXT,
			description TEXT,
			type TEXT,
			geography TEXT,
			industry TEXT,
			suitability_tier TEXT
		);`,
	},
	{
		name: "0006_refresh_state",
		stmt: `CREATE TABLE refresh_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	},
	{
		name: "0007_office_deletion_flags",
		stmt: `CREATE TABLE office_deletion_flags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			center_id INTEGER,
			osm_type TEXT NOT NULL,
			osm_id INTEGER NOT NULL,
			reason TEXT,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
			submitted_at TEXT NOT NULL,
			reviewed_at TEXT
		);`,
	},
	{
		name: "0008_flags_one_pending_per_office",
		stmt: `CREATE UNIQUE INDEX idx_flags_pending ON office_deletion_flags (osm_type, osm_id) WHERE status = 'pending';`,
	},
	{
		name: "0009_banned_offices",
		stmt: `CREATE TABLE banned_offices (
			osm_type TEXT NOT NULL,
			osm_id INTEGER NOT NULL,
			approved_flag_id INTEGER,
			approved_at TEXT NOT NULL,
			PRIMARY KEY (osm_type, osm_id)
		);`,
	},
	{
		name: "0010_offices_entity_idx",
		stmt: `CREATE INDEX idx_offices_entity ON offices (wikidata_entity_id) WHERE wikidata_entity_id IS NOT NULL;`,
	},
}

func (d *DB) migrate() error {
	if _, err := d.Exec(`CREATE TABLE IF NOT EXISTS applied_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("failed to create applied_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := d.Query("SELECT name FROM applied_migrations")
	if err != nil {
		return fmt.Errorf("failed to read applied_migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.name] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].name < pending[j].name })

	for _, m := range pending {
		tx, err := d.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO applied_migrations (name, applied_at) VALUES (?, ?)",
			m.name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.name, err)
		}
		slog.Info("Applied migration", "name", m.name)
	}

	return nil
}
