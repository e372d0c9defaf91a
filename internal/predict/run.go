package predict

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of voters scored per work item.
const DefaultBatchSize = 200_000

// RunOptions configures batch prediction.
type RunOptions struct {
	// Progress is called after each batch with the number of voters finished
	// so far. Calls are serialized.
	Progress  func(done, total int)
	BatchSize int
	Workers   int
}

// DefaultRunOptions returns sensible defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		BatchSize: DefaultBatchSize,
		Workers:   runtime.NumCPU(),
	}
}

// RunSummary counts prediction outcomes.
type RunSummary struct {
	ByScore   map[model.PartyScore]int
	Method    model.PredictionMethod
	Voters    int
	Eligible  int
	Unmodeled int
}

// Merge adds other into s.
func (s *RunSummary) Merge(other *RunSummary) {
	if s.ByScore == nil {
		s.ByScore = make(map[model.PartyScore]int)
	}
	if other.Method != "" {
		s.Method = other.Method
	}
	s.Voters += other.Voters
	s.Eligible += other.Eligible
	s.Unmodeled += other.Unmodeled
	for k, v := range other.ByScore {
		s.ByScore[k] += v
	}
}

// Counts flattens the summary for stage metadata.
func (s *RunSummary) Counts() map[string]int {
	counts := map[string]int{
		"voters":    s.Voters,
		"eligible":  s.Eligible,
		"unmodeled": s.Unmodeled,
	}
	for score, n := range s.ByScore {
		counts[string(score)] = n
	}
	return counts
}

type batchTally struct {
	byScore   map[model.PartyScore]int
	eligible  int
	unmodeled int
}

// Run predicts every eligible voter in place. Batches run in parallel; each
// voter is scored independently, so results do not depend on batch size.
// Cancellation is honored between batches.
func Run(ctx context.Context, voters []model.Voter, p Predictor, opts RunOptions) (*RunSummary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	nBatches := (len(voters) + opts.BatchSize - 1) / opts.BatchSize
	tallies := make([]batchTally, nBatches)

	var (
		progressMu sync.Mutex
		done       int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for b := 0; b < nBatches; b++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			lo := b * opts.BatchSize
			hi := min(lo+opts.BatchSize, len(voters))
			tallies[b] = predictBatch(voters[lo:hi], p)

			if opts.Progress != nil {
				progressMu.Lock()
				done += hi - lo
				opts.Progress(done, len(voters))
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prediction cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("prediction cancelled: %w", err)
	}

	summary := &RunSummary{
		ByScore: make(map[model.PartyScore]int),
		Method:  p.Method(),
		Voters:  len(voters),
	}
	for _, t := range tallies {
		summary.Eligible += t.eligible
		summary.Unmodeled += t.unmodeled
		for k, v := range t.byScore {
			summary.ByScore[k] += v
		}
	}
	return summary, nil
}

func predictBatch(voters []model.Voter, p Predictor) batchTally {
	tally := batchTally{byScore: make(map[model.PartyScore]int)}
	for i := range voters {
		v := &voters[i]
		if !Eligible(v) {
			v.Prediction = nil
			if v.Final.Source != model.SourceKnown {
				v.Final = model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}
				tally.unmodeled++
			}
			continue
		}

		pred := p.Predict(v)
		v.Prediction = &pred
		v.Final = model.FinalLabel{Party: pred.Score.Party(), Source: model.SourceModeled}
		tally.eligible++
		tally.byScore[pred.Score]++
	}
	return tally
}
