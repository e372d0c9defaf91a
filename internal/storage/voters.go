package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

const dobLayout = "2006-01-02"

// voterColumns matches voterArgs and scanVoter.
var voterColumns = []string{
	"id", "dob", "age", "age_bracket", "county", "city", "zip", "precinct",
	"voted_early", "general_votes", "pri24", "pri22", "pri20", "pri18",
	"primary_party", "final_party", "final_source", "score", "method", "rep_prob", "dem_prob",
	"record_2022_cd", "record_2026_cd", "record_2022_sd", "record_2026_sd", "record_2022_hd", "record_2026_hd",
	"district_2022_cd", "district_2026_cd", "district_2022_sd", "district_2026_sd", "district_2022_hd", "district_2026_hd",
	"source_2022_cd", "source_2026_cd", "source_2022_sd", "source_2026_sd", "source_2022_hd", "source_2026_hd",
}

var (
	insertVoterSQL = fmt.Sprintf("INSERT OR REPLACE INTO voters (%s) VALUES (%s)",
		strings.Join(voterColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(voterColumns)), ", "))

	selectVotersSQL = fmt.Sprintf("SELECT %s FROM voters WHERE id > ? ORDER BY id LIMIT ?",
		strings.Join(voterColumns, ", "))
)

// districtOrder is the column order of the per-key voter columns.
var districtOrder = []model.DistrictKey{
	{Type: model.Congressional, Map: model.OldMap},
	{Type: model.Congressional, Map: model.NewMap},
	{Type: model.UpperChamber, Map: model.OldMap},
	{Type: model.UpperChamber, Map: model.NewMap},
	{Type: model.LowerChamber, Map: model.OldMap},
	{Type: model.LowerChamber, Map: model.NewMap},
}

// SaveVoters inserts or replaces voters by id in one transaction.
func (s *SQLiteStorage) SaveVoters(ctx context.Context, voters []model.Voter) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(voters) == 0 {
		return nil
	}
	if err := validateVoters(voters); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertVoterSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare voter insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range voters {
			if _, err := stmt.ExecContext(ctx, voterArgs(&voters[i])...); err != nil {
				return fmt.Errorf("failed to save voter %s: %w", voters[i].ID, err)
			}
		}
		return nil
	})
}

// IterateVoters streams voters in id order. Each page is read fully before
// fn runs, so fn may write back to the store.
func (s *SQLiteStorage) IterateVoters(ctx context.Context, batchSize int, fn func([]model.Voter) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if batchSize <= 0 {
		return ErrInvalidBatchSize
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.voterPage(ctx, after, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		after = batch[len(batch)-1].ID
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

func (s *SQLiteStorage) voterPage(ctx context.Context, after string, limit int) ([]model.Voter, error) {
	rows, err := s.db.QueryContext(ctx, selectVotersSQL, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query voters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	batch := make([]model.Voter, 0, limit)
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voters: %w", err)
	}
	return batch, nil
}

// CountVoters returns the number of stored voters.
func (s *SQLiteStorage) CountVoters(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM voters").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count voters: %w", err)
	}
	return n, nil
}

// DeleteVoters removes every voter.
func (s *SQLiteStorage) DeleteVoters(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM voters"); err != nil {
			return fmt.Errorf("failed to delete voters: %w", err)
		}
		return nil
	})
}

func voterArgs(v *model.Voter) []any {
	var dob any
	if !v.DOB.IsZero() {
		dob = v.DOB.Format(dobLayout)
	}

	var score, method, repProb, demProb any
	if p := v.Prediction; p != nil {
		score, method, repProb, demProb = string(p.Score), string(p.Method), p.RepProb, p.DemProb
	}

	args := []any{
		v.ID, dob, v.Age, string(v.AgeBracket), v.County, v.City, v.Zip, v.Precinct,
		v.VotedEarly, v.GeneralVotes,
		int(v.Primaries[0]), int(v.Primaries[1]), int(v.Primaries[2]), int(v.Primaries[3]),
		nullString(string(v.Primary)), nullString(string(v.Final.Party)), nullString(string(v.Final.Source)),
		score, method, repProb, demProb,
	}
	for _, key := range districtOrder {
		args = append(args, v.RecordDistrict(key))
	}
	for _, key := range districtOrder {
		a := v.Assignment(key)
		if a.Missing() {
			args = append(args, nil)
		} else {
			args = append(args, a.ID)
		}
	}
	for _, key := range districtOrder {
		args = append(args, string(v.Assignment(key).Source))
	}
	return args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoter(row rowScanner) (model.Voter, error) {
	var (
		v                                model.Voter
		dob, city, zip                   sql.NullString
		primary, finalParty, finalSource sql.NullString
		score, method                    sql.NullString
		repProb, demProb                 sql.NullFloat64
		ageBracket                       string
		pri                              [4]int
		records                          [6]int
		districts                        [6]sql.NullInt64
		sources                          [6]string
	)

	dest := []any{
		&v.ID, &dob, &v.Age, &ageBracket, &v.County, &city, &zip, &v.Precinct,
		&v.VotedEarly, &v.GeneralVotes, &pri[0], &pri[1], &pri[2], &pri[3],
		&primary, &finalParty, &finalSource, &score, &method, &repProb, &demProb,
	}
	for i := range records {
		dest = append(dest, &records[i])
	}
	for i := range districts {
		dest = append(dest, &districts[i])
	}
	for i := range sources {
		dest = append(dest, &sources[i])
	}

	if err := row.Scan(dest...); err != nil {
		return model.Voter{}, fmt.Errorf("failed to scan voter: %w", err)
	}

	if dob.Valid {
		t, err := time.Parse(dobLayout, dob.String)
		if err != nil {
			return model.Voter{}, fmt.Errorf("voter %s has malformed date of birth: %w", v.ID, err)
		}
		v.DOB = t
	}
	v.AgeBracket = model.AgeBracket(ageBracket)
	v.City, v.Zip = city.String, zip.String
	for i := range pri {
		v.Primaries[i] = model.PrimaryVote(pri[i])
	}
	v.Primary = model.Party(primary.String)
	v.Final = model.FinalLabel{Party: model.Party(finalParty.String), Source: model.LabelSource(finalSource.String)}
	if score.Valid {
		v.Prediction = &model.PartyPrediction{
			Score:   model.PartyScore(score.String),
			Method:  model.PredictionMethod(method.String),
			RepProb: repProb.Float64,
			DemProb: demProb.Float64,
		}
	}

	for i, key := range districtOrder {
		v.SetRecordDistrict(key, records[i])
		if districts[i].Valid {
			v.SetAssignment(key, model.Assignment{
				Source: model.AssignmentSource(sources[i]),
				ID:     int(districts[i].Int64),
			})
		}
	}
	return v, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
