// Package engine runs the redistricting pipeline stages against storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/config"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/service"
)

// prerequisites lists the stages whose output a stage reads.
var prerequisites = map[model.Stage][]model.Stage{
	model.StageAssign:    {model.StageIngest},
	model.StageClassify:  {model.StageIngest},
	model.StageTrain:     {model.StageClassify},
	model.StagePredict:   {model.StageClassify},
	model.StageAggregate: {model.StageAssign, model.StageClassify},
}

// Engine runs pipeline stages. Each stage reads its inputs from storage and
// writes its outputs back, so stages can run in separate processes.
type Engine struct {
	store       service.Storage
	cfg         *config.Config
	checkpoints Checkpointer
	progress    Progress
	runID       string
	force       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCheckpointer snapshots the database before destructive stages.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpoints = c }
}

// WithProgress reports stage progress.
func WithProgress(p Progress) Option {
	return func(e *Engine) { e.progress = p }
}

// WithForce reruns stages that already completed.
func WithForce(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New creates an engine. cfg is not modified.
func New(store service.Storage, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cfg:      cfg,
		progress: noProgress{},
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunID identifies the stage markers written by this engine.
func (e *Engine) RunID() string {
	return e.runID
}

// Run executes stages in order and stops at the first failure. Unless
// forced, a stage whose last marker succeeded is skipped, until one stage
// reruns; everything after it reruns too.
func (e *Engine) Run(ctx context.Context, stages []model.Stage) ([]model.StageResult, error) {
	results := make([]model.StageResult, 0, len(stages))
	rerun := e.force

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if !rerun {
			last, err := e.store.LastStage(ctx, stage)
			switch {
			case err == nil && last.OK():
				slog.Info("Stage already done, skipping", "stage", stage, "previous_run", last.RunID)
				results = append(results, model.Skipped(stage, fmt.Sprintf("%s in run %s", last.Status, last.RunID)))
				continue
			case err != nil && !errors.Is(err, common.ErrNotFound):
				return results, fmt.Errorf("failed to read %s marker: %w", stage, err)
			}
		}

		rerun = true
		r := e.RunStage(ctx, stage)
		results = append(results, r)
		if !r.OK() {
			return results, r.Err
		}
	}
	return results, nil
}

// RunStage executes one stage unconditionally and records its marker.
func (e *Engine) RunStage(ctx context.Context, stage model.Stage) model.StageResult {
	start := time.Now()
	slog.Info("Starting stage", "stage", stage, "run_id", e.runID)

	var r model.StageResult
	if err := e.requirePrerequisites(ctx, stage); err != nil {
		r = model.Failed(stage, err)
	} else {
		r = e.dispatch(ctx, stage)
	}
	r.RunID = e.runID
	r.StartedAt = start
	r.Duration = time.Since(start)

	switch r.Status {
	case model.StatusCompleted:
		slog.Info("Stage completed", "stage", stage, "artifact", r.Artifact, "duration", r.Duration)
	case model.StatusSkipped:
		slog.Warn("Stage skipped", "stage", stage, "reason", r.Reason)
	case model.StatusFailed:
		common.LogError(r.Err, "Stage failed", common.Fields{"stage": stage, "run_id": e.runID})
	}

	// A cancelled stage still leaves a marker.
	if err := e.store.RecordStage(context.WithoutCancel(ctx), r); err != nil {
		slog.Error("Failed to record stage marker", "stage", stage, "error", err)
	}
	return r
}

func (e *Engine) dispatch(ctx context.Context, stage model.Stage) model.StageResult {
	switch stage {
	case model.StageIngest:
		return e.ingest(ctx)
	case model.StageResolve:
		return e.resolve(ctx)
	case model.StageAssign:
		return e.assign(ctx)
	case model.StageClassify:
		return e.classify(ctx)
	case model.StageTrain:
		return e.train(ctx)
	case model.StagePredict:
		return e.predict(ctx)
	case model.StageAggregate:
		return e.aggregate(ctx)
	default:
		return model.Failed(stage, fmt.Errorf("unknown stage %q", stage))
	}
}

func (e *Engine) requirePrerequisites(ctx context.Context, stage model.Stage) error {
	for _, prior := range prerequisites[stage] {
		last, err := e.store.LastStage(ctx, prior)
		if errors.Is(err, common.ErrNotFound) || (err == nil && !last.OK()) {
			return fmt.Errorf("%w: %s must run before %s", common.ErrStageMissing, prior, stage)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s marker: %w", prior, err)
		}
	}
	return nil
}

// completedAfter reports whether stage's last marker completed after ref's.
func (e *Engine) completedAfter(ctx context.Context, stage, ref model.Stage) (bool, error) {
	last, err := e.store.LastStage(ctx, stage)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if last.Status != model.StatusCompleted {
		return false, nil
	}

	prior, err := e.store.LastStage(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !last.StartedAt.Before(prior.StartedAt), nil
}

func (e *Engine) checkpoint(ctx context.Context, stage model.Stage) error {
	if e.checkpoints == nil {
		return nil
	}
	n, err := e.store.CountVoters(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	info, err := e.checkpoints.AutoCheckpoint(ctx, string(stage))
	if err != nil {
		return err
	}
	common.LogInfo("Created checkpoint", common.Fields{"id": info.ID, "voters": info.Voters})
	return nil
}

// rewriteVoters streams every stored voter through fn and saves each batch.
func (e *Engine) rewriteVoters(ctx context.Context, stage model.Stage, fn func([]model.Voter) error) (int, error) {
	return e.eachBatch(ctx, stage, func(batch []model.Voter) error {
		if err := fn(batch); err != nil {
			return err
		}
		return e.store.SaveVoters(ctx, batch)
	})
}

// readVoters streams every stored voter through fn without writing.
func (e *Engine) readVoters(ctx context.Context, stage model.Stage, fn func([]model.Voter) error) (int, error) {
	return e.eachBatch(ctx, stage, fn)
}

func (e *Engine) eachBatch(ctx context.Context, stage model.Stage, fn func([]model.Voter) error) (int, error) {
	total, err := e.store.CountVoters(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, common.ErrNoVoters
	}

	e.progress.Start(stage, total)
	defer e.progress.Finish()

	seen := 0
	err = e.store.IterateVoters(ctx, e.cfg.ChunkSize, func(batch []model.Voter) error {
		if err := fn(batch); err != nil {
			return err
		}
		seen += len(batch)
		e.progress.Add(len(batch))
		return nil
	})
	return seen, err
}
