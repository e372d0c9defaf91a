package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// RecordStage appends a stage marker.
func (s *SQLiteStorage) RecordStage(ctx context.Context, r model.StageResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStageResult(r); err != nil {
		return err
	}

	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode stage counts: %w", err)
	}
	var errText any
	if r.Err != nil {
		errText = r.Err.Error()
	}
	startedAt := r.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stage_runs (run_id, stage, status, artifact, reason, error, counts, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.RunID, string(r.Stage), string(r.Status), nullString(r.Artifact), nullString(r.Reason),
			errText, string(counts), startedAt.UTC(), r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to record stage %s: %w", r.Stage, err)
		}
		return nil
	})
}

const selectStageSQL = `
	SELECT run_id, stage, status, artifact, reason, error, counts, started_at, duration_ms
	FROM stage_runs
`

// LastStage returns the most recent marker for stage.
func (s *SQLiteStorage) LastStage(ctx context.Context, stage model.Stage) (*model.StageResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, selectStageSQL+" WHERE stage = ? ORDER BY id DESC LIMIT 1", string(stage))
	r, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %s: %w", stage, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListStages returns the latest marker of every stage that has run, in
// pipeline order.
func (s *SQLiteStorage) ListStages(ctx context.Context) ([]model.StageResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectStageSQL+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	latest := make(map[model.Stage]model.StageResult)
	for rows.Next() {
		r, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		latest[r.Stage] = *r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stages: %w", err)
	}

	out := make([]model.StageResult, 0, len(latest))
	for _, stage := range model.Stages {
		if r, ok := latest[stage]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func scanStage(row rowScanner) (*model.StageResult, error) {
	var (
		r                         model.StageResult
		stage, status             string
		artifact, reason, errText sql.NullString
		counts                    sql.NullString
		durationMS                int64
	)
	if err := row.Scan(&r.RunID, &stage, &status, &artifact, &reason, &errText, &counts, &r.StartedAt, &durationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}

	r.Stage = model.Stage(stage)
	r.Status = model.StageStatus(status)
	r.Artifact = artifact.String
	r.Reason = reason.String
	r.Duration = time.Duration(durationMS) * time.Millisecond
	if errText.Valid {
		r.Err = errors.New(errText.String)
	}
	if counts.Valid && counts.String != "" && counts.String != "null" {
		if err := json.Unmarshal([]byte(counts.String), &r.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode stage counts: %w", err)
		}
	}
	return &r, nil
}
