package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

var reportTables = []string{
	"report_runs",
	"district_compositions",
	"district_missing",
	"district_gains_losses",
	"competitiveness_comparison",
	"known_vs_modeled",
}

// SaveReport replaces the stored aggregation with report. Modeled breakdown
// columns are NULL when the report was built without predictions.
func (s *SQLiteStorage) SaveReport(ctx context.Context, runID string, report *aggregate.Report) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateReport(report); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range reportTables {
			// #nosec G202 - table names come from a fixed list
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_runs (run_id, created_at, voters, modeled) VALUES (?, ?, ?, ?)`,
			runID, time.Now().UTC(), report.Voters, report.Modeled,
		); err != nil {
			return fmt.Errorf("failed to save report run: %w", err)
		}

		for i := range report.Types {
			tr := &report.Types[i]
			for _, pair := range []struct {
				table   *aggregate.Table
				ratings *aggregate.Competitiveness
			}{{tr.Old, tr.OldRatings}, {tr.New, tr.NewRatings}} {
				if err := saveTable(ctx, tx, runID, pair.table, pair.ratings, report.Modeled); err != nil {
					return err
				}
			}
			if err := saveGainsLosses(ctx, tx, runID, tr.GainsLosses, report.Modeled); err != nil {
				return err
			}
			if err := saveComparison(ctx, tx, runID, tr.Comparison); err != nil {
				return err
			}
			if err := saveKnownModeled(ctx, tx, runID, tr.Type, tr.KnownModeled, report.Modeled); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveTable(ctx context.Context, tx *sql.Tx, runID string, t *aggregate.Table, ratings *aggregate.Competitiveness, modeled bool) error {
	typ, mapYear := string(t.Key.Type), string(t.Key.Map)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO district_missing (run_id, district_type, map_year, missing) VALUES (?, ?, ?, ?)`,
		runID, typ, mapYear, t.Missing,
	); err != nil {
		return fmt.Errorf("failed to save %s missing count: %w", t.Key, err)
	}

	categories := make(map[int]aggregate.Category, len(t.Districts))
	if ratings != nil {
		for _, r := range ratings.Ratings {
			categories[r.District] = r.Category
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO district_compositions
		(run_id, district_type, map_year, district, total, republican, democrat, swing, unknown,
		 rep_known, rep_modeled, dem_known, dem_modeled, early_voters, rep_pct, dem_pct, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare composition insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range t.Districts {
		cat, ok := categories[c.District]
		if !ok {
			cat = aggregate.Classify(c.RepPct, c.DemPct)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, typ, mapYear, c.District, c.Total, c.Republican, c.Democrat, c.Swing, c.Unknown,
			c.RepublicanKnown, modeledArg(modeled, c.RepublicanModeled),
			c.DemocratKnown, modeledArg(modeled, c.DemocratModeled),
			c.EarlyVoters, pctArg(c.RepPct), pctArg(c.DemPct), string(cat),
		); err != nil {
			return fmt.Errorf("failed to save %s district %d: %w", t.Key, c.District, err)
		}
	}
	return nil
}

func saveGainsLosses(ctx context.Context, tx *sql.Tx, runID string, r *aggregate.Reconciliation, modeled bool) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO district_gains_losses
		(run_id, district_type, district, expected_rep_pct, expected_dem_pct, actual_rep_pct, actual_dem_pct,
		 expected_republican, expected_democrat, republican, democrat, net_republican, net_democrat,
		 pct_change_republican, pct_change_democrat, rep_known, rep_modeled, dem_known, dem_modeled, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare gains/losses insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, g := range r.Districts {
		sources, err := json.Marshal(g.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode sources: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, string(r.Type), g.District,
			pctArg(g.ExpectedRepPct), pctArg(g.ExpectedDemPct), pctArg(g.ActualRepPct), pctArg(g.ActualDemPct),
			g.ExpectedRepublican, g.ExpectedDemocrat, g.Republican, g.Democrat, g.NetRepublican, g.NetDemocrat,
			pctArg(g.PctChangeRepublican), pctArg(g.PctChangeDemocrat),
			g.RepublicanKnown, modeledArg(modeled, g.RepublicanModeled),
			g.DemocratKnown, modeledArg(modeled, g.DemocratModeled),
			string(sources),
		); err != nil {
			return fmt.Errorf("failed to save %s gains/losses for district %d: %w", r.Type, g.District, err)
		}
	}
	return nil
}

func saveComparison(ctx context.Context, tx *sql.Tx, runID string, c *aggregate.Comparison) error {
	for _, ch := range c.Changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO competitiveness_comparison (run_id, district_type, category, old_count, new_count, change)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, string(c.Type), string(ch.Category), ch.Old, ch.New, ch.Change); err != nil {
			return fmt.Errorf("failed to save %s comparison: %w", c.Type, err)
		}
	}
	return nil
}

func saveKnownModeled(ctx context.Context, tx *sql.Tx, runID string, t model.DistrictType, rows []aggregate.KnownModeled, modeled bool) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO known_vs_modeled
		(run_id, district_type, district, known_republican, known_democrat, known_rep_pct, known_dem_pct,
		 modeled_republican, modeled_democrat, all_republican, all_democrat, all_rep_pct, all_dem_pct, rep_shift)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare known/modeled insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		allRep, allDem, shift := pctArg(row.AllRepPct), pctArg(row.AllDemPct), pctArg(row.RepShift)
		if !modeled {
			allRep, allDem, shift = nil, nil, nil
		}
		if _, err := stmt.ExecContext(ctx,
			runID, string(t), row.District, row.KnownRepublican, row.KnownDemocrat,
			pctArg(row.KnownRepPct), pctArg(row.KnownDemPct),
			modeledArg(modeled, row.ModeledRepublican), modeledArg(modeled, row.ModeledDemocrat),
			modeledArg(modeled, row.AllRepublican), modeledArg(modeled, row.AllDemocrat),
			allRep, allDem, shift,
		); err != nil {
			return fmt.Errorf("failed to save %s known/modeled for district %d: %w", t, row.District, err)
		}
	}
	return nil
}

// GetLatestReport rebuilds the stored aggregation.
func (s *SQLiteStorage) GetLatestReport(ctx context.Context) (*aggregate.Report, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var runID string
	report := &aggregate.Report{}
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, voters, modeled FROM report_runs ORDER BY created_at DESC LIMIT 1`,
	).Scan(&runID, &report.Voters, &report.Modeled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	for _, t := range model.DistrictTypes {
		old, err := s.loadTable(ctx, runID, model.DistrictKey{Type: t, Map: model.OldMap}, report.Modeled)
		if err != nil {
			return nil, err
		}
		updated, err := s.loadTable(ctx, runID, model.DistrictKey{Type: t, Map: model.NewMap}, report.Modeled)
		if err != nil {
			return nil, err
		}

		oldRatings, newRatings := aggregate.Rate(old), aggregate.Rate(updated)
		cmp, err := aggregate.CompareCompetitiveness(oldRatings, newRatings)
		if err != nil {
			return nil, err
		}

		gains, err := s.loadGainsLosses(ctx, runID, t, report.Modeled)
		if err != nil {
			return nil, err
		}
		km, err := s.loadKnownModeled(ctx, runID, t, report.Modeled)
		if err != nil {
			return nil, err
		}

		report.Types = append(report.Types, aggregate.TypeReport{
			Old:          old,
			New:          updated,
			OldRatings:   oldRatings,
			NewRatings:   newRatings,
			Comparison:   cmp,
			GainsLosses:  gains,
			KnownModeled: km,
			Type:         t,
		})
	}
	return report, nil
}

func (s *SQLiteStorage) loadTable(ctx context.Context, runID string, key model.DistrictKey, modeled bool) (*aggregate.Table, error) {
	t := &aggregate.Table{Key: key, Modeled: modeled, Districts: []aggregate.Composition{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT missing FROM district_missing WHERE run_id = ? AND district_type = ? AND map_year = ?`,
		runID, string(key.Type), string(key.Map),
	).Scan(&t.Missing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load %s missing count: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT district, total, republican, democrat, swing, unknown,
		       rep_known, rep_modeled, dem_known, dem_modeled, early_voters, rep_pct, dem_pct
		FROM district_compositions
		WHERE run_id = ? AND district_type = ? AND map_year = ?
		ORDER BY district
	`, runID, string(key.Type), string(key.Map))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s compositions: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			c                      aggregate.Composition
			repModeled, demModeled sql.NullInt64
			repPct, demPct         sql.NullFloat64
		)
		if err := rows.Scan(&c.District, &c.Total, &c.Republican, &c.Democrat, &c.Swing, &c.Unknown,
			&c.RepublicanKnown, &repModeled, &c.DemocratKnown, &demModeled, &c.EarlyVoters, &repPct, &demPct); err != nil {
			return nil, fmt.Errorf("failed to scan %s composition: %w", key, err)
		}
		c.RepublicanModeled = int(repModeled.Int64)
		c.DemocratModeled = int(demModeled.Int64)
		c.RepPct, c.DemPct = pctFrom(repPct), pctFrom(demPct)
		t.Districts = append(t.Districts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s compositions: %w", key, err)
	}
	return t, nil
}

func (s *SQLiteStorage) loadGainsLosses(ctx context.Context, runID string, t model.DistrictType, modeled bool) (*aggregate.Reconciliation, error) {
	r := &aggregate.Reconciliation{Type: t, Modeled: modeled, Districts: []aggregate.GainsLosses{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT district, expected_rep_pct, expected_dem_pct, actual_rep_pct, actual_dem_pct,
		       expected_republican, expected_democrat, republican, democrat, net_republican, net_democrat,
		       pct_change_republican, pct_change_democrat, rep_known, rep_modeled, dem_known, dem_modeled, sources
		FROM district_gains_losses
		WHERE run_id = ? AND district_type = ?
		ORDER BY district
	`, runID, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s gains/losses: %w", t, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			g                              aggregate.GainsLosses
			expRep, expDem, actRep, actDem sql.NullFloat64
			changeRep, changeDem           sql.NullFloat64
			repModeled, demModeled         sql.NullInt64
			sources                        string
		)
		if err := rows.Scan(&g.District, &expRep, &expDem, &actRep, &actDem,
			&g.ExpectedRepublican, &g.ExpectedDemocrat, &g.Republican, &g.Democrat, &g.NetRepublican, &g.NetDemocrat,
			&changeRep, &changeDem, &g.RepublicanKnown, &repModeled, &g.DemocratKnown, &demModeled, &sources); err != nil {
			return nil, fmt.Errorf("failed to scan %s gains/losses: %w", t, err)
		}
		g.ExpectedRepPct, g.ExpectedDemPct = pctFrom(expRep), pctFrom(expDem)
		g.ActualRepPct, g.ActualDemPct = pctFrom(actRep), pctFrom(actDem)
		g.PctChangeRepublican, g.PctChangeDemocrat = pctFrom(changeRep), pctFrom(changeDem)
		g.RepublicanModeled, g.DemocratModeled = int(repModeled.Int64), int(demModeled.Int64)
		if err := json.Unmarshal([]byte(sources), &g.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources for %s district %d: %w", t, g.District, err)
		}
		r.Districts = append(r.Districts, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s gains/losses: %w", t, err)
	}
	return r, nil
}

func (s *SQLiteStorage) loadKnownModeled(ctx context.Context, runID string, t model.DistrictType, modeled bool) ([]aggregate.KnownModeled, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT district, known_republican, known_democrat, known_rep_pct, known_dem_pct,
		       modeled_republican, modeled_democrat, all_republican, all_democrat, all_rep_pct, all_dem_pct, rep_shift
		FROM known_vs_modeled
		WHERE run_id = ? AND district_type = ?
		ORDER BY district
	`, runID, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s known/modeled: %w", t, err)
	}
	defer func() { _ = rows.Close() }()

	out := []aggregate.KnownModeled{}
	for rows.Next() {
		var (
			k                                aggregate.KnownModeled
			knownRep, knownDem               sql.NullFloat64
			modRep, modDem, allRepN, allDemN sql.NullInt64
			allRep, allDem, shift            sql.NullFloat64
		)
		if err := rows.Scan(&k.District, &k.KnownRepublican, &k.KnownDemocrat, &knownRep, &knownDem,
			&modRep, &modDem, &allRepN, &allDemN, &allRep, &allDem, &shift); err != nil {
			return nil, fmt.Errorf("failed to scan %s known/modeled: %w", t, err)
		}
		k.KnownRepPct, k.KnownDemPct = pctFrom(knownRep), pctFrom(knownDem)
		if modeled {
			k.ModeledRepublican, k.ModeledDemocrat = int(modRep.Int64), int(modDem.Int64)
			k.AllRepublican, k.AllDemocrat = int(allRepN.Int64), int(allDemN.Int64)
			k.AllRepPct, k.AllDemPct, k.RepShift = pctFrom(allRep), pctFrom(allDem), pctFrom(shift)
		} else {
			// Without predictions every label is known.
			k.AllRepublican, k.AllDemocrat = k.KnownRepublican, k.KnownDemocrat
			k.AllRepPct, k.AllDemPct = k.KnownRepPct, k.KnownDemPct
			if k.KnownRepPct.Defined {
				k.RepShift = aggregate.Pct{Defined: true}
			}
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s known/modeled: %w", t, err)
	}
	return out, nil
}

func pctArg(p aggregate.Pct) any {
	if !p.Defined {
		return nil
	}
	return p.Value
}

func pctFrom(n sql.NullFloat64) aggregate.Pct {
	return aggregate.Pct{Value: n.Float64, Defined: n.Valid}
}

func modeledArg(modeled bool, n int) any {
	if !modeled {
		return nil
	}
	return n
}
