// Package storage provides the SQLite persistence layer for the pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/service"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	ErrInvalidVoter     = errors.New("invalid voter")
	ErrInvalidStage     = errors.New("invalid stage result")
	ErrInvalidArtifact  = errors.New("invalid model artifact")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateVoters checks every voter has the fields the schema requires.
func validateVoters(voters []model.Voter) error {
	for i := range voters {
		v := &voters[i]
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("voter at index %d: %w: missing id", i, ErrInvalidVoter)
		}
		if v.County == "" {
			return fmt.Errorf("voter %s: %w: missing county", v.ID, ErrInvalidVoter)
		}
		for _, key := range model.AllDistrictKeys() {
			a := v.Assignment(key)
			if a.Source != model.SourceMissing && a.ID <= 0 {
				return fmt.Errorf("voter %s: %w: %s assigned to district %d", v.ID, ErrInvalidVoter, key, a.ID)
			}
		}
		if p := v.Prediction; p != nil && (p.RepProb < 0 || p.RepProb > 1) {
			return fmt.Errorf("voter %s: %w: probability %v out of range", v.ID, ErrInvalidVoter, p.RepProb)
		}
	}
	return nil
}

// validateStageResult checks a stage marker is well formed.
func validateStageResult(r model.StageResult) error {
	if err := validateString(string(r.Stage), "stage"); err != nil {
		return err
	}
	if err := validateString(r.RunID, "runID"); err != nil {
		return err
	}
	switch r.Status {
	case model.StatusCompleted, model.StatusSkipped:
	case model.StatusFailed:
		if r.Err == nil {
			return fmt.Errorf("%w: failed stage %s has no error", ErrInvalidStage, r.Stage)
		}
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidStage, r.Status)
	}
	return nil
}

// validateModelRecord checks an artifact record before it is stored.
func validateModelRecord(rec *service.ModelRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: model record", ErrNilParameter)
	}
	if err := validateString(rec.ID, "id"); err != nil {
		return err
	}
	if len(rec.Data) == 0 {
		return fmt.Errorf("%w: empty artifact", ErrInvalidArtifact)
	}
	if rec.TrainedAt.IsZero() {
		return fmt.Errorf("%w: missing training time", ErrInvalidArtifact)
	}
	return nil
}

// validateReport checks a report has a table pair per district type.
func validateReport(r *aggregate.Report) error {
	if r == nil {
		return fmt.Errorf("%w: report", ErrNilParameter)
	}
	for _, tr := range r.Types {
		if tr.Old == nil || tr.New == nil || tr.GainsLosses == nil || tr.Comparison == nil {
			return fmt.Errorf("%w: incomplete %s report", ErrNilParameter, tr.Type)
		}
	}
	return nil
}
