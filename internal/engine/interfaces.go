package engine

import (
	"context"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/storage"
)

// Checkpointer snapshots the database before a stage rewrites it.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, prefix string) (*storage.CheckpointInfo, error)
}

// Progress receives per-stage progress. Total is -1 when the amount of work
// is not known in advance.
type Progress interface {
	Start(stage model.Stage, total int)
	Add(n int)
	Finish()
}

type noProgress struct{}

func (noProgress) Start(model.Stage, int) {}
func (noProgress) Add(int)                {}
func (noProgress) Finish()                {}
