package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

var stageDescriptions = map[model.Stage]string{
	model.StageIngest:    "Reading voter file",
	model.StageResolve:   "Overlaying precincts",
	model.StageAssign:    "Assigning districts",
	model.StageClassify:  "Classifying primaries",
	model.StageTrain:     "Collecting training data",
	model.StagePredict:   "Predicting affiliation",
	model.StageAggregate: "Aggregating districts",
}

// StageProgress renders one progress bar per pipeline pass. It is safe for
// concurrent use.
type StageProgress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	mu     sync.Mutex
}

// NewStageProgress creates a progress reporter writing to w (stderr if nil).
func NewStageProgress(w io.Writer) *StageProgress {
	if w == nil {
		w = os.Stderr
	}
	return &StageProgress{writer: w}
}

// Start begins a new bar. A negative total renders a spinner.
func (p *StageProgress) Start(stage model.Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishLocked()
	desc, ok := stageDescriptions[stage]
	if !ok {
		desc = string(stage)
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetDescription("[cyan][bold]"+desc+"...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Add advances the current bar.
func (p *StageProgress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if err := p.bar.Add(n); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the current bar, if any.
func (p *StageProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *StageProgress) finishLocked() {
	if p.bar == nil {
		return
	}
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	p.bar = nil
}
