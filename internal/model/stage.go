package model

import "time"

// Stage names a pipeline step.
type Stage string

// Pipeline stages in execution order.
const (
	StageIngest    Stage = "ingest"
	StageResolve   Stage = "resolve"
	StageAssign    Stage = "assign"
	StageClassify  Stage = "classify"
	StageTrain     Stage = "train"
	StagePredict   Stage = "predict"
	StageAggregate Stage = "aggregate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageIngest, StageResolve, StageAssign, StageClassify, StageTrain, StagePredict, StageAggregate}

// StageStatus is the outcome tag of a StageResult.
type StageStatus string

// Stage outcomes.
const (
	StatusCompleted StageStatus = "completed"
	StatusSkipped   StageStatus = "skipped"
	StatusFailed    StageStatus = "failed"
)

// StageResult is the tagged outcome of running one stage.
// Completed results name their artifact, Skipped results carry a reason,
// Failed results carry the error.
type StageResult struct {
	StartedAt time.Time
	Err       error
	Counts    map[string]int
	Stage     Stage
	Status    StageStatus
	Artifact  string
	Reason    string
	RunID     string
	Duration  time.Duration
}

// Completed builds a successful result.
func Completed(stage Stage, artifact string, counts map[string]int) StageResult {
	return StageResult{Stage: stage, Status: StatusCompleted, Artifact: artifact, Counts: counts}
}

// Skipped builds a result for a stage that did not need to run.
func Skipped(stage Stage, reason string) StageResult {
	return StageResult{Stage: stage, Status: StatusSkipped, Reason: reason}
}

// Failed builds a result for a stage that aborted.
func Failed(stage Stage, err error) StageResult {
	return StageResult{Stage: stage, Status: StatusFailed, Err: err}
}

// OK reports whether downstream stages may proceed.
func (r StageResult) OK() bool {
	return r.Status != StatusFailed
}
