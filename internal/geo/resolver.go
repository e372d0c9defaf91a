package geo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"golang.org/x/sync/errgroup"
)

// ResolverOptions configures precinct resolution.
type ResolverOptions struct {
	// Epsilon is the tie tolerance as a fraction of precinct area. Overlaps
	// within it of the maximum are ties and go to the lower district id.
	Epsilon float64
	Workers int
}

// DefaultResolverOptions returns sensible defaults.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		Epsilon: 1e-9,
		Workers: runtime.NumCPU(),
	}
}

// DistrictLayers maps each district system to its boundary layer.
type DistrictLayers map[model.DistrictKey]*Layer

// Resolution is the full overlap table plus the winning district per precinct.
type Resolution struct {
	Overlaps    []model.Overlap
	Assignments []model.PrecinctAssignment
	Keys        []model.DistrictKey
	Precincts   int
	Duration    time.Duration
}

// Unassigned returns precinct assignments with no intersecting district.
func (r *Resolution) Unassigned() []model.PrecinctAssignment {
	var out []model.PrecinctAssignment
	for _, a := range r.Assignments {
		if a.Unassigned {
			out = append(out, a)
		}
	}
	return out
}

// Overcovered returns precinct assignments whose district features overlap
// each other inside the precinct.
func (r *Resolution) Overcovered() []model.PrecinctAssignment {
	var out []model.PrecinctAssignment
	for _, a := range r.Assignments {
		if a.Overcovered {
			out = append(out, a)
		}
	}
	return out
}

// Table builds the precinct lookup consumed by voter assignment.
func (r *Resolution) Table() PrecinctTable {
	return NewPrecinctTable(r.Assignments)
}

// Resolver computes precinct-to-district overlaps.
type Resolver struct {
	opts ResolverOptions
}

// NewResolver creates a resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Epsilon < 0 {
		opts.Epsilon = 0
	}
	return &Resolver{opts: opts}
}

type precinctResult struct {
	overlaps    []model.Overlap
	assignments []model.PrecinctAssignment
}

// Resolve intersects every precinct with every district layer named in keys.
// Precincts are processed in parallel; each writes only its own result slot.
func (r *Resolver) Resolve(ctx context.Context, precincts *Layer, districts DistrictLayers, keys []model.DistrictKey) (*Resolution, error) {
	start := time.Now()

	if precincts == nil || len(precincts.Features) == 0 {
		return nil, fmt.Errorf("%w: precincts", ErrEmptyLayer)
	}

	layers := make([]*Layer, len(keys))
	for i, key := range keys {
		layer, ok := districts[key]
		if !ok || layer == nil || len(layer.Features) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingLayer, key)
		}
		layers[i] = layer
	}
	if err := CheckReferenceFrames(precincts, layers...); err != nil {
		return nil, err
	}

	results := make([]precinctResult, len(precincts.Features))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i := range precincts.Features {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.resolvePrecinct(&precincts.Features[i], keys, layers)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("precinct resolution cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("precinct resolution cancelled: %w", err)
	}

	res := &Resolution{
		Keys:      keys,
		Precincts: len(precincts.Features),
	}
	for _, pr := range results {
		res.Overlaps = append(res.Overlaps, pr.overlaps...)
		res.Assignments = append(res.Assignments, pr.assignments...)
	}
	res.Duration = time.Since(start)

	slog.Info("Resolved precincts",
		"precincts", res.Precincts,
		"overlaps", len(res.Overlaps),
		"unassigned", len(res.Unassigned()),
		"overcovered", len(res.Overcovered()),
		"duration", res.Duration)

	return res, nil
}

func (r *Resolver) resolvePrecinct(p *Feature, keys []model.DistrictKey, layers []*Layer) precinctResult {
	var out precinctResult

	for k, key := range keys {
		var overlaps []model.Overlap
		var covered float64

		for d := range layers[k].Features {
			district := &layers[k].Features[d]
			if !p.Bound.Intersects(district.Bound) {
				continue
			}
			area := IntersectionArea(p.Geometry, district.Geometry)
			if area <= 0 {
				continue
			}
			covered += area
			overlaps = append(overlaps, model.Overlap{
				Precinct: p.Precinct,
				Key:      key,
				District: district.District,
				Area:     area,
			})
		}

		// District layers may carry multiple features per district
		overlaps = mergeByDistrict(overlaps)

		assignment := model.PrecinctAssignment{
			Precinct:     p.Precinct,
			Key:          key,
			PrecinctArea: p.Area,
			ResidualArea: p.Area - covered,
			OverlapCount: len(overlaps),
		}

		if assignment.ResidualArea < -overcoverTolerance(r.opts.Epsilon, p.Area) {
			assignment.Overcovered = true
			slog.Warn("District features overlap inside precinct",
				"precinct", p.Precinct,
				"key", key,
				"precinct_area", p.Area,
				"covered_area", covered)
		}

		winner, tie, ok := pickWinner(overlaps, r.opts.Epsilon*p.Area)
		if ok {
			assignment.District = winner.District
			assignment.OverlapArea = winner.Area
			assignment.TieBroken = tie
		} else {
			assignment.Unassigned = true
		}

		out.overlaps = append(out.overlaps, overlaps...)
		out.assignments = append(out.assignments, assignment)
	}

	return out
}

// overcoverTolerance absorbs clipping round-off even when ties use no tolerance.
func overcoverTolerance(epsilon, area float64) float64 {
	return math.Max(epsilon, 1e-9) * area
}

func mergeByDistrict(overlaps []model.Overlap) []model.Overlap {
	if len(overlaps) < 2 {
		return overlaps
	}
	sort.Slice(overlaps, func(i, j int) bool { return overlaps[i].District < overlaps[j].District })

	merged := overlaps[:1]
	for _, o := range overlaps[1:] {
		last := &merged[len(merged)-1]
		if o.District == last.District {
			last.Area += o.Area
			continue
		}
		merged = append(merged, o)
	}
	return merged
}

// pickWinner chooses the maximum-area overlap. Overlaps within tolerance of
// the maximum tie, and ties go to the lowest district id.
func pickWinner(overlaps []model.Overlap, tolerance float64) (model.Overlap, bool, bool) {
	var best model.Overlap
	found := false
	for _, o := range overlaps {
		if o.Area <= tolerance {
			continue
		}
		if !found || o.Area > best.Area {
			best = o
			found = true
		}
	}
	if !found {
		return model.Overlap{}, false, false
	}

	winner := best
	tied := 0
	for _, o := range overlaps {
		if best.Area-o.Area <= tolerance {
			tied++
			if o.District < winner.District {
				winner = o
			}
		}
	}
	return winner, tied > 1, true
}
