package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/service"
)

// SaveModelArtifact stores a trained model.
func (s *SQLiteStorage) SaveModelArtifact(ctx context.Context, rec *service.ModelRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateModelRecord(rec); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO model_artifacts (id, trained_at, path, artifact, test_accuracy, degraded)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.TrainedAt.UTC(), nullString(rec.Path), rec.Data, rec.TestAccuracy, rec.Degraded)
		if err != nil {
			return fmt.Errorf("failed to save model artifact: %w", err)
		}
		return nil
	})
}

// GetLatestModelArtifact returns the most recently trained model.
func (s *SQLiteStorage) GetLatestModelArtifact(ctx context.Context) (*service.ModelRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		rec  service.ModelRecord
		path sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trained_at, path, artifact, test_accuracy, degraded
		FROM model_artifacts
		ORDER BY trained_at DESC, created_at DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.TrainedAt, &path, &rec.Data, &rec.TestAccuracy, &rec.Degraded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model artifact: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}
	rec.Path = path.String
	return &rec, nil
}
