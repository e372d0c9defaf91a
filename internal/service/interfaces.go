// Package service defines the interfaces shared between pipeline stages.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// VoterStore persists the enriched voter table.
type VoterStore interface {
	// SaveVoters inserts or replaces voters by id.
	SaveVoters(ctx context.Context, voters []model.Voter) error
	// IterateVoters streams voters in id order, batchSize at a time.
	IterateVoters(ctx context.Context, batchSize int, fn func([]model.Voter) error) error
	CountVoters(ctx context.Context) (int, error)
	DeleteVoters(ctx context.Context) error
}

// GeographyStore persists the precinct overlap table.
type GeographyStore interface {
	SaveResolution(ctx context.Context, overlaps []model.Overlap, assignments []model.PrecinctAssignment) error
	GetPrecinctAssignments(ctx context.Context) ([]model.PrecinctAssignment, error)
}

// ModelStore persists trained model artifacts.
type ModelStore interface {
	SaveModelArtifact(ctx context.Context, record *ModelRecord) error
	GetLatestModelArtifact(ctx context.Context) (*ModelRecord, error)
}

// ReportStore persists aggregation output.
type ReportStore interface {
	SaveReport(ctx context.Context, runID string, report *aggregate.Report) error
	GetLatestReport(ctx context.Context) (*aggregate.Report, error)
}

// StageStore records stage completion markers.
type StageStore interface {
	RecordStage(ctx context.Context, result model.StageResult) error
	LastStage(ctx context.Context, stage model.Stage) (*model.StageResult, error)
	ListStages(ctx context.Context) ([]model.StageResult, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	VoterStore
	GeographyStore
	ModelStore
	ReportStore
	StageStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// ModelRecord is a stored model artifact.
type ModelRecord struct {
	TrainedAt    time.Time
	ID           string
	Path         string
	Data         []byte
	TestAccuracy float64
	Degraded     bool
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
