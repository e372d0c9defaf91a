package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/redistrict-impact/internal/common"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Voter table",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS voters (
					id TEXT PRIMARY KEY,
					dob TEXT,
					age INTEGER NOT NULL DEFAULT -1,
					age_bracket TEXT NOT NULL,
					county TEXT NOT NULL,
					city TEXT,
					zip TEXT,
					precinct TEXT NOT NULL,
					voted_early INTEGER NOT NULL DEFAULT 0,
					general_votes INTEGER NOT NULL DEFAULT 0,
					pri24 INTEGER NOT NULL DEFAULT 0,
					pri22 INTEGER NOT NULL DEFAULT 0,
					pri20 INTEGER NOT NULL DEFAULT 0,
					pri18 INTEGER NOT NULL DEFAULT 0,
					primary_party TEXT,
					final_party TEXT,
					final_source TEXT,
					score TEXT,
					method TEXT,
					rep_prob REAL,
					dem_prob REAL,
					record_2022_cd INTEGER NOT NULL DEFAULT 0,
					record_2026_cd INTEGER NOT NULL DEFAULT 0,
					record_2022_sd INTEGER NOT NULL DEFAULT 0,
					record_2026_sd INTEGER NOT NULL DEFAULT 0,
					record_2022_hd INTEGER NOT NULL DEFAULT 0,
					record_2026_hd INTEGER NOT NULL DEFAULT 0,
					district_2022_cd INTEGER,
					district_2026_cd INTEGER,
					district_2022_sd INTEGER,
					district_2026_sd INTEGER,
					district_2022_hd INTEGER,
					district_2026_hd INTEGER,
					source_2022_cd TEXT NOT NULL DEFAULT '',
					source_2026_cd TEXT NOT NULL DEFAULT '',
					source_2022_sd TEXT NOT NULL DEFAULT '',
					source_2026_sd TEXT NOT NULL DEFAULT '',
					source_2022_hd TEXT NOT NULL DEFAULT '',
					source_2026_hd TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_voters_precinct ON voters(county, precinct)`,
				`CREATE INDEX idx_voters_final ON voters(final_source, final_party)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Precinct overlap and assignment tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS precinct_overlaps (
					county TEXT NOT NULL,
					precinct TEXT NOT NULL,
					district_type TEXT NOT NULL,
					map_year TEXT NOT NULL,
					district INTEGER NOT NULL,
					area REAL NOT NULL,
					PRIMARY KEY (county, precinct, district_type, map_year, district)
				)`,
				`CREATE TABLE IF NOT EXISTS precinct_assignments (
					county TEXT NOT NULL,
					precinct TEXT NOT NULL,
					district_type TEXT NOT NULL,
					map_year TEXT NOT NULL,
					district INTEGER,
					precinct_area REAL NOT NULL,
					overlap_area REAL NOT NULL,
					residual_area REAL NOT NULL,
					overlap_count INTEGER NOT NULL,
					tie_broken INTEGER NOT NULL DEFAULT 0,
					overcovered INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (county, precinct, district_type, map_year)
				)`,
				`CREATE INDEX idx_precinct_assignments_unassigned ON precinct_assignments(district_type, map_year) WHERE district IS NULL`,
			})
		},
	},
	{
		Version:     3,
		Description: "Model artifacts, stage markers and checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS model_artifacts (
					id TEXT PRIMARY KEY,
					trained_at DATETIME NOT NULL,
					path TEXT,
					artifact BLOB NOT NULL,
					test_accuracy REAL,
					degraded INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS stage_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					stage TEXT NOT NULL,
					status TEXT NOT NULL,
					artifact TEXT,
					reason TEXT,
					error TEXT,
					counts TEXT,
					started_at DATETIME NOT NULL,
					duration_ms INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_stage_runs_stage ON stage_runs(stage, id)`,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Aggregation report tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS report_runs (
					run_id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					voters INTEGER NOT NULL,
					modeled INTEGER NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS district_compositions (
					run_id TEXT NOT NULL,
					district_type TEXT NOT NULL,
					map_year TEXT NOT NULL,
					district INTEGER NOT NULL,
					total INTEGER NOT NULL,
					republican INTEGER NOT NULL,
					democrat INTEGER NOT NULL,
					swing INTEGER NOT NULL,
					unknown INTEGER NOT NULL,
					rep_known INTEGER NOT NULL,
					rep_modeled INTEGER,
					dem_known INTEGER NOT NULL,
					dem_modeled INTEGER,
					early_voters INTEGER NOT NULL,
					rep_pct REAL,
					dem_pct REAL,
					category TEXT NOT NULL,
					PRIMARY KEY (run_id, district_type, map_year, district)
				)`,
				`CREATE TABLE IF NOT EXISTS district_missing (
					run_id TEXT NOT NULL,
					district_type TEXT NOT NULL,
					map_year TEXT NOT NULL,
					missing INTEGER NOT NULL,
					PRIMARY KEY (run_id, district_type, map_year)
				)`,
				`CREATE TABLE IF NOT EXISTS district_gains_losses (
					run_id TEXT NOT NULL,
					district_type TEXT NOT NULL,
					district INTEGER NOT NULL,
					expected_rep_pct REAL,
					expected_dem_pct REAL,
					actual_rep_pct REAL,
					actual_dem_pct REAL,
					expected_republican REAL NOT NULL,
					expected_democrat REAL NOT NULL,
					republican INTEGER NOT NULL,
					democrat INTEGER NOT NULL,
					net_republican REAL NOT NULL,
					net_democrat REAL NOT NULL,
					pct_change_republican REAL,
					pct_change_democrat REAL,
					rep_known INTEGER NOT NULL,
					rep_modeled INTEGER,
					dem_known INTEGER NOT NULL,
					dem_modeled INTEGER,
					sources TEXT NOT NULL,
					PRIMARY KEY (run_id, district_type, district)
				)`,
				`CREATE TABLE IF NOT EXISTS competitiveness_comparison (
					run_id TEXT NOT NULL,
					district_type TEXT NOT NULL,
					category TEXT NOT NULL,
					old_count INTEGER NOT NULL,
					new_count INTEGER NOT NULL,
					change INTEGER NOT NULL,
					PRIMARY KEY (run_id, district_type, category)
				)`,
				`CREATE TABLE IF NOT EXISTS known_vs_modeled (
					run_id TEXT NOT NULL,
					district_type TEXT NOT NULL,
					district INTEGER NOT NULL,
					known_republican INTEGER NOT NULL,
					known_democrat INTEGER NOT NULL,
					known_rep_pct REAL,
					known_dem_pct REAL,
					modeled_republican INTEGER,
					modeled_democrat INTEGER,
					all_republican INTEGER,
					all_democrat INTEGER,
					all_rep_pct REAL,
					all_dem_pct REAL,
					rep_shift REAL,
					PRIMARY KEY (run_id, district_type, district)
				)`,
			})
		},
	},
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("%w: database schema version mismatch: expected %d, got %d",
			common.ErrDatabaseCorrupted, ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
