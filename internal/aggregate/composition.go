// Package aggregate turns enriched voters into per-district composition,
// competitiveness, and old-vs-new reconciliation tables.
package aggregate

import (
	"slices"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Pct is a percentage that may be undefined, e.g. when a district has no
// Republican or Democratic voters to divide by.
type Pct struct {
	Value   float64
	Defined bool
}

// Of returns part/whole as a percentage, undefined when whole is zero.
func Of(part, whole int) Pct {
	if whole <= 0 {
		return Pct{}
	}
	return Pct{Value: 100 * float64(part) / float64(whole), Defined: true}
}

// Options controls which labels are counted.
type Options struct {
	// IncludeModeled counts predicted labels alongside primary history.
	// When false, modeled voters are counted as Unknown.
	IncludeModeled bool
}

// Composition is the party makeup of one district.
type Composition struct {
	RepPct   Pct
	DemPct   Pct
	District int

	Total      int
	Republican int
	Democrat   int
	Swing      int
	Unknown    int

	RepublicanKnown   int
	RepublicanModeled int
	DemocratKnown     int
	DemocratModeled   int

	EarlyVoters int
}

// Partisan returns the R+D denominator.
func (c Composition) Partisan() int {
	return c.Republican + c.Democrat
}

// Table holds the compositions of every district under one key.
type Table struct {
	Key       model.DistrictKey
	Districts []Composition
	// Missing counts voters with no assignment under Key.
	Missing int
	Modeled bool
}

// District returns the composition for id.
func (t *Table) District(id int) (Composition, bool) {
	i, ok := slices.BinarySearchFunc(t.Districts, id, func(c Composition, id int) int {
		return c.District - id
	})
	if !ok {
		return Composition{}, false
	}
	return t.Districts[i], true
}

// Composer accumulates a Table voter by voter so callers can stream chunks.
type Composer struct {
	byID    map[int]*Composition
	key     model.DistrictKey
	opts    Options
	missing int
}

// NewComposer creates an empty accumulator for key.
func NewComposer(key model.DistrictKey, opts Options) *Composer {
	return &Composer{
		byID: make(map[int]*Composition),
		key:  key,
		opts: opts,
	}
}

// Add counts one voter.
func (c *Composer) Add(v *model.Voter) {
	a := v.Assignment(c.key)
	if a.Missing() {
		c.missing++
		return
	}

	comp, ok := c.byID[a.ID]
	if !ok {
		comp = &Composition{District: a.ID}
		c.byID[a.ID] = comp
	}

	comp.Total++
	if v.VotedEarly {
		comp.EarlyVoters++
	}

	party, source := labelFor(v, c.opts)
	switch party {
	case model.Republican:
		comp.Republican++
		if source == model.SourceModeled {
			comp.RepublicanModeled++
		} else {
			comp.RepublicanKnown++
		}
	case model.Democrat:
		comp.Democrat++
		if source == model.SourceModeled {
			comp.DemocratModeled++
		} else {
			comp.DemocratKnown++
		}
	case model.Swing:
		comp.Swing++
	default:
		comp.Unknown++
	}
}

// AddAll counts every voter in a chunk.
func (c *Composer) AddAll(voters []model.Voter) {
	for i := range voters {
		c.Add(&voters[i])
	}
}

// Table finalizes percentages and returns districts ordered by id.
func (c *Composer) Table() *Table {
	t := &Table{
		Key:       c.key,
		Districts: make([]Composition, 0, len(c.byID)),
		Missing:   c.missing,
		Modeled:   c.opts.IncludeModeled,
	}
	for _, comp := range c.byID {
		out := *comp
		out.RepPct = Of(out.Republican, out.Partisan())
		out.DemPct = Of(out.Democrat, out.Partisan())
		t.Districts = append(t.Districts, out)
	}
	slices.SortFunc(t.Districts, func(a, b Composition) int {
		return a.District - b.District
	})
	return t
}

// Compose builds the composition table for key.
func Compose(voters []model.Voter, key model.DistrictKey, opts Options) *Table {
	c := NewComposer(key, opts)
	c.AddAll(voters)
	return c.Table()
}

func labelFor(v *model.Voter, opts Options) (model.Party, model.LabelSource) {
	switch v.Final.Source {
	case model.SourceKnown:
		return v.Final.Party, model.SourceKnown
	case model.SourceModeled:
		if opts.IncludeModeled {
			return v.Final.Party, model.SourceModeled
		}
	}
	return model.Unknown, model.SourceUnmodeled
}
