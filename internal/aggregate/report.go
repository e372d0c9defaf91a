package aggregate

import (
	"fmt"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// TypeReport holds every table for one district type.
type TypeReport struct {
	Old          *Table
	New          *Table
	OldRatings   *Competitiveness
	NewRatings   *Competitiveness
	Comparison   *Comparison
	GainsLosses  *Reconciliation
	KnownModeled []KnownModeled
	Type         model.DistrictType
}

// Report is the full aggregation output.
type Report struct {
	Types []TypeReport
	// Voters is the number of voters aggregated.
	Voters int
	// Modeled records whether predicted labels were included. When false the
	// modeled breakdowns are not meaningful and are persisted as NULL.
	Modeled bool
}

// Type returns the report for t.
func (r *Report) Type(t model.DistrictType) (*TypeReport, bool) {
	for i := range r.Types {
		if r.Types[i].Type == t {
			return &r.Types[i], true
		}
	}
	return nil, false
}

// Missing returns unassigned voter counts keyed like "2026_CD".
func (r *Report) Missing() map[string]int {
	out := make(map[string]int, len(r.Types)*2)
	for _, tr := range r.Types {
		out[tr.Old.Key.String()] = tr.Old.Missing
		out[tr.New.Key.String()] = tr.New.Missing
	}
	return out
}

// Builder accumulates every table at once over streamed voter chunks.
type Builder struct {
	composers   map[model.DistrictKey]*Composer
	known       map[model.DistrictType]*Composer
	transitions map[model.DistrictType]*transitions
	opts        Options
	voters      int
}

// NewBuilder creates an empty report accumulator.
func NewBuilder(opts Options) *Builder {
	b := &Builder{
		composers:   make(map[model.DistrictKey]*Composer),
		known:       make(map[model.DistrictType]*Composer),
		transitions: make(map[model.DistrictType]*transitions),
		opts:        opts,
	}
	for _, key := range model.AllDistrictKeys() {
		b.composers[key] = NewComposer(key, opts)
	}
	for _, t := range model.DistrictTypes {
		b.known[t] = NewComposer(model.DistrictKey{Type: t, Map: model.NewMap}, Options{})
		b.transitions[t] = newTransitions(t)
	}
	return b
}

// Add counts one voter in every table.
func (b *Builder) Add(v *model.Voter) {
	b.voters++
	for _, c := range b.composers {
		c.Add(v)
	}
	for _, t := range model.DistrictTypes {
		b.known[t].Add(v)
		b.transitions[t].add(v)
	}
}

// AddAll counts a chunk of voters.
func (b *Builder) AddAll(voters []model.Voter) {
	for i := range voters {
		b.Add(&voters[i])
	}
}

// Report finalizes every table. District types appear in a fixed order and
// districts in id order.
func (b *Builder) Report() (*Report, error) {
	r := &Report{
		Types:   make([]TypeReport, 0, len(model.DistrictTypes)),
		Voters:  b.voters,
		Modeled: b.opts.IncludeModeled,
	}

	for _, t := range model.DistrictTypes {
		old := b.composers[model.DistrictKey{Type: t, Map: model.OldMap}].Table()
		updated := b.composers[model.DistrictKey{Type: t, Map: model.NewMap}].Table()

		oldRatings, newRatings := Rate(old), Rate(updated)
		cmp, err := CompareCompetitiveness(oldRatings, newRatings)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s competitiveness: %w", t, err)
		}

		r.Types = append(r.Types, TypeReport{
			Old:          old,
			New:          updated,
			OldRatings:   oldRatings,
			NewRatings:   newRatings,
			Comparison:   cmp,
			GainsLosses:  reconcile(b.transitions[t], old, updated),
			KnownModeled: knownVsModeled(b.known[t].Table(), updated),
			Type:         t,
		})
	}
	return r, nil
}

// Build aggregates an in-memory voter slice.
func Build(voters []model.Voter, opts Options) (*Report, error) {
	b := NewBuilder(opts)
	b.AddAll(voters)
	return b.Report()
}
