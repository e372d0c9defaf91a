// Package features turns voters into numeric rows for the party model.
package features

import (
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Level is a geographic or demographic granularity for neighbor composition.
type Level string

// Aggregation levels, in fallback order.
const (
	LevelPrecinct   Level = "precinct"
	LevelZip        Level = "zip"
	LevelCounty     Level = "county"
	LevelAgeBracket Level = "age_bracket"
)

// FallbackOrder is the order the geographic heuristic consults levels.
var FallbackOrder = []Level{LevelPrecinct, LevelZip, LevelCounty, LevelAgeBracket}

// Composition counts labeled voters in one group.
type Composition struct {
	Republican int `json:"r"`
	Democrat   int `json:"d"`
	Swing      int `json:"s"`
}

// Total counts every labeled voter, Swing included.
func (c Composition) Total() int {
	return c.Republican + c.Democrat + c.Swing
}

// RepShare is the Republican share of labeled voters.
func (c Composition) RepShare() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Republican) / float64(c.Total())
}

// DemShare is the Democratic share of labeled voters.
func (c Composition) DemShare() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Democrat) / float64(c.Total())
}

func (c *Composition) add(p model.Party) {
	switch p {
	case model.Republican:
		c.Republican++
	case model.Democrat:
		c.Democrat++
	case model.Swing:
		c.Swing++
	}
}

// Aggregates holds labeled-voter composition at each level.
// It is built once from the labeled population and joined onto voters by key.
type Aggregates struct {
	Precinct   map[string]Composition `json:"precinct"`
	Zip        map[string]Composition `json:"zip"`
	County     map[string]Composition `json:"county"`
	AgeBracket map[string]Composition `json:"age_bracket"`
}

// NewAggregates creates empty aggregates.
func NewAggregates() *Aggregates {
	return &Aggregates{
		Precinct:   make(map[string]Composition),
		Zip:        make(map[string]Composition),
		County:     make(map[string]Composition),
		AgeBracket: make(map[string]Composition),
	}
}

// BuildAggregates computes aggregates from voters with a known primary label.
func BuildAggregates(voters []model.Voter) *Aggregates {
	a := NewAggregates()
	for i := range voters {
		a.Add(&voters[i])
	}
	return a
}

// Add counts v if it has partisan primary history.
func (a *Aggregates) Add(v *model.Voter) {
	if v.Primary != model.Republican && v.Primary != model.Democrat && v.Primary != model.Swing {
		return
	}
	for _, level := range FallbackOrder {
		key, ok := groupKey(level, v)
		if !ok {
			continue
		}
		m := a.levelMap(level)
		c := m[key]
		c.add(v.Primary)
		m[key] = c
	}
}

// Lookup returns the composition of v's group at level.
func (a *Aggregates) Lookup(level Level, v *model.Voter) (Composition, bool) {
	key, ok := groupKey(level, v)
	if !ok {
		return Composition{}, false
	}
	c, ok := a.levelMap(level)[key]
	if !ok || c.Total() == 0 {
		return Composition{}, false
	}
	return c, true
}

func (a *Aggregates) levelMap(level Level) map[string]Composition {
	switch level {
	case LevelPrecinct:
		return a.Precinct
	case LevelZip:
		return a.Zip
	case LevelCounty:
		return a.County
	default:
		return a.AgeBracket
	}
}

func groupKey(level Level, v *model.Voter) (string, bool) {
	switch level {
	case LevelPrecinct:
		k := v.PrecinctKey()
		return k.String(), !k.Empty()
	case LevelZip:
		return v.Zip, v.Zip != ""
	case LevelCounty:
		return v.County, v.County != ""
	case LevelAgeBracket:
		return string(v.AgeBracket), v.HasAge()
	default:
		return "", false
	}
}
