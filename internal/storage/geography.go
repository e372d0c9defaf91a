package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// SaveResolution replaces the stored overlap and precinct assignment tables.
func (s *SQLiteStorage) SaveResolution(ctx context.Context, overlaps []model.Overlap, assignments []model.PrecinctAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{"DELETE FROM precinct_overlaps", "DELETE FROM precinct_assignments"} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("failed to clear geography: %w", err)
			}
		}

		overlapStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO precinct_overlaps (county, precinct, district_type, map_year, district, area)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare overlap insert: %w", err)
		}
		defer func() { _ = overlapStmt.Close() }()

		for _, o := range overlaps {
			if _, err := overlapStmt.ExecContext(ctx,
				o.Precinct.County, o.Precinct.Precinct, string(o.Key.Type), string(o.Key.Map), o.District, o.Area,
			); err != nil {
				return fmt.Errorf("failed to save overlap for %s: %w", o.Precinct, err)
			}
		}

		assignStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO precinct_assignments
			(county, precinct, district_type, map_year, district, precinct_area, overlap_area, residual_area, overlap_count, tie_broken, overcovered)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare assignment insert: %w", err)
		}
		defer func() { _ = assignStmt.Close() }()

		for _, a := range assignments {
			var district any
			if !a.Unassigned {
				district = a.District
			}
			if _, err := assignStmt.ExecContext(ctx,
				a.Precinct.County, a.Precinct.Precinct, string(a.Key.Type), string(a.Key.Map), district,
				a.PrecinctArea, a.OverlapArea, a.ResidualArea, a.OverlapCount, a.TieBroken, a.Overcovered,
			); err != nil {
				return fmt.Errorf("failed to save assignment for %s: %w", a.Precinct, err)
			}
		}
		return nil
	})
}

// GetPrecinctAssignments returns every stored precinct assignment,
// unassigned precincts included.
func (s *SQLiteStorage) GetPrecinctAssignments(ctx context.Context) ([]model.PrecinctAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT county, precinct, district_type, map_year, district,
		       precinct_area, overlap_area, residual_area, overlap_count, tie_broken, overcovered
		FROM precinct_assignments
		ORDER BY county, precinct, district_type, map_year
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query precinct assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PrecinctAssignment
	for rows.Next() {
		var (
			a            model.PrecinctAssignment
			county, pct  string
			typ, mapYear string
			district     sql.NullInt64
		)
		if err := rows.Scan(&county, &pct, &typ, &mapYear, &district,
			&a.PrecinctArea, &a.OverlapArea, &a.ResidualArea, &a.OverlapCount, &a.TieBroken, &a.Overcovered); err != nil {
			return nil, fmt.Errorf("failed to scan precinct assignment: %w", err)
		}
		a.Precinct = model.PrecinctKey{County: county, Precinct: pct}
		a.Key = model.DistrictKey{Type: model.DistrictType(typ), Map: model.MapYear(mapYear)}
		a.District = int(district.Int64)
		a.Unassigned = !district.Valid
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read precinct assignments: %w", err)
	}
	return out, nil
}
