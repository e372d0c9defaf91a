package predict

import (
	"math/rand/v2"

	"github.com/Veraticus/redistrict-impact/internal/features"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// SampleCollector gathers labeled rows across chunks without holding the
// whole labeled population. Each class keeps a reservoir of up to the cap.
type SampleCollector struct {
	builder   *features.Builder
	rng       *rand.Rand
	reservoir [2][]Sample
	seen      [2]int
	limit     int
}

// NewSampleCollector creates a collector that keeps at most limit rows per class.
func NewSampleCollector(builder *features.Builder, limit int, seed uint64) *SampleCollector {
	if limit <= 0 {
		limit = DefaultTrainerOptions().SampleCap
	}
	return &SampleCollector{
		builder: builder,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		limit:   limit,
	}
}

// Label maps a primary classification to a training class.
// Swing and Unknown voters are not training rows.
func Label(p model.Party) (int, bool) {
	switch p {
	case model.Republican:
		return ClassRepublican, true
	case model.Democrat:
		return ClassDemocrat, true
	default:
		return 0, false
	}
}

// Add offers one voter to the collector.
func (c *SampleCollector) Add(v *model.Voter) {
	label, ok := Label(v.Primary)
	if !ok {
		return
	}

	c.seen[label]++
	if len(c.reservoir[label]) < c.limit {
		c.reservoir[label] = append(c.reservoir[label], Sample{Row: c.builder.Vector(v, nil), Label: label})
		return
	}

	// Algorithm R: replace with probability limit/seen
	j := c.rng.IntN(c.seen[label])
	if j < c.limit {
		c.reservoir[label][j] = Sample{Row: c.builder.Vector(v, nil), Label: label}
	}
}

// AddAll offers every voter in a chunk.
func (c *SampleCollector) AddAll(voters []model.Voter) {
	for i := range voters {
		c.Add(&voters[i])
	}
}

// Seen returns the number of labeled voters offered per class.
func (c *SampleCollector) Seen() (republican, democrat int) {
	return c.seen[ClassRepublican], c.seen[ClassDemocrat]
}

// Samples returns the collected rows, trimmed so the class mix matches the
// population mix when the total exceeds the cap.
func (c *SampleCollector) Samples() []Sample {
	total := c.seen[0] + c.seen[1]
	out := make([]Sample, 0, len(c.reservoir[0])+len(c.reservoir[1]))
	for label := range c.reservoir {
		keep := len(c.reservoir[label])
		if total > c.limit {
			want := int(float64(c.limit)*float64(c.seen[label])/float64(total) + 0.5)
			if want < keep {
				keep = want
			}
		}
		out = append(out, c.reservoir[label][:keep]...)
	}
	return out
}
