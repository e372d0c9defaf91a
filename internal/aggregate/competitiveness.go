package aggregate

import (
	"fmt"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// CompetitiveThreshold is the party share, in percent, at which a district
// stops being competitive.
const CompetitiveThreshold = 57.0

// Category is a district's competitiveness rating.
type Category string

// Competitiveness categories.
const (
	SolidRepublican Category = "Solidly Republican"
	SolidDemocrat   Category = "Solidly Democrat"
	Competitive     Category = "Competitive"
	NoKnownVoters   Category = "No known voters"
)

// Categories lists ratings in report order.
var Categories = []Category{SolidRepublican, Competitive, SolidDemocrat, NoKnownVoters}

// Classify rates a district from its Republican and Democratic shares.
// Undefined shares never rate as Competitive.
func Classify(rep, dem Pct) Category {
	if !rep.Defined || !dem.Defined {
		return NoKnownVoters
	}
	switch {
	case rep.Value >= CompetitiveThreshold:
		return SolidRepublican
	case dem.Value >= CompetitiveThreshold:
		return SolidDemocrat
	default:
		return Competitive
	}
}

// Rating is one district's category.
type Rating struct {
	Category Category
	RepPct   Pct
	DemPct   Pct
	District int
}

// Competitiveness rates every district in a table.
type Competitiveness struct {
	Counts  map[Category]int
	Key     model.DistrictKey
	Ratings []Rating
}

// Rate classifies every district in t.
func Rate(t *Table) *Competitiveness {
	c := &Competitiveness{
		Counts:  make(map[Category]int, len(Categories)),
		Key:     t.Key,
		Ratings: make([]Rating, 0, len(t.Districts)),
	}
	for _, d := range t.Districts {
		cat := Classify(d.RepPct, d.DemPct)
		c.Ratings = append(c.Ratings, Rating{
			Category: cat,
			RepPct:   d.RepPct,
			DemPct:   d.DemPct,
			District: d.District,
		})
		c.Counts[cat]++
	}
	return c
}

// CategoryChange is the count of one category under both maps.
type CategoryChange struct {
	Category Category
	Old      int
	New      int
	Change   int
}

// Comparison counts categories under the old and new maps for one type.
type Comparison struct {
	Type    model.DistrictType
	Changes []CategoryChange
}

// Change returns the row for cat.
func (c *Comparison) Change(cat Category) CategoryChange {
	for _, ch := range c.Changes {
		if ch.Category == cat {
			return ch
		}
	}
	return CategoryChange{Category: cat}
}

// CompareCompetitiveness counts each category under both maps.
func CompareCompetitiveness(old, updated *Competitiveness) (*Comparison, error) {
	if old.Key.Type != updated.Key.Type {
		return nil, fmt.Errorf("cannot compare %s ratings with %s ratings", old.Key.Type, updated.Key.Type)
	}
	if old.Key.Map != model.OldMap || updated.Key.Map != model.NewMap {
		return nil, fmt.Errorf("comparison expects %s then %s, got %s then %s",
			model.OldMap, model.NewMap, old.Key.Map, updated.Key.Map)
	}

	cmp := &Comparison{Type: old.Key.Type}
	for _, cat := range Categories {
		o, n := old.Counts[cat], updated.Counts[cat]
		cmp.Changes = append(cmp.Changes, CategoryChange{
			Category: cat,
			Old:      o,
			New:      n,
			Change:   n - o,
		})
	}
	return cmp, nil
}
