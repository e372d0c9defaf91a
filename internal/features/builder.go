package features

import (
	"math"

	"github.com/Veraticus/redistrict-impact/internal/classification"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Columns is the feature manifest. Row vectors follow this order. District ids
// are deliberately absent: the model must not learn from the boundaries it is
// used to compare.
var Columns = []string{
	"age",
	"county_encoded",
	"city_encoded",
	"age_bracket_encoded",
	"precinct_rep_pct",
	"precinct_dem_pct",
	"zip_rep_pct",
	"zip_dem_pct",
	"county_rep_pct",
	"county_dem_pct",
	"age_bracket_rep_pct",
	"age_bracket_dem_pct",
	"rep_primary_votes",
	"dem_primary_votes",
	"total_primary_votes",
	"participation_rate",
	"consistency",
}

// Builder produces feature rows from shared, read-only aggregates and encoders.
type Builder struct {
	agg *Aggregates
	enc *Encoders
}

// NewBuilder creates a builder.
func NewBuilder(agg *Aggregates, enc *Encoders) *Builder {
	if agg == nil {
		agg = NewAggregates()
	}
	if enc == nil {
		enc = &Encoders{}
	}
	return &Builder{agg: agg, enc: enc}
}

// Aggregates returns the builder's neighbor composition.
func (b *Builder) Aggregates() *Aggregates {
	return b.agg
}

// Vector writes v's features into dst (reallocated if short) and returns it.
// Missing values are NaN.
func (b *Builder) Vector(v *model.Voter, dst []float64) []float64 {
	if cap(dst) < len(Columns) {
		dst = make([]float64, len(Columns))
	}
	dst = dst[:len(Columns)]

	if v.HasAge() && v.Age >= 0 {
		dst[0] = float64(v.Age)
	} else {
		dst[0] = math.NaN()
	}
	dst[1] = float64(b.enc.County.Encode(v.County))
	dst[2] = float64(b.enc.City.Encode(v.City))
	if v.HasAge() {
		dst[3] = float64(b.enc.AgeBracket.Encode(string(v.AgeBracket)))
	} else {
		dst[3] = -1
	}

	col := 4
	for _, level := range FallbackOrder {
		if c, ok := b.agg.Lookup(level, v); ok {
			dst[col] = c.RepShare()
			dst[col+1] = c.DemShare()
		} else {
			dst[col] = math.NaN()
			dst[col+1] = math.NaN()
		}
		col += 2
	}

	history := History(v)
	dst[12] = float64(history.Republican)
	dst[13] = float64(history.Democrat)
	dst[14] = float64(history.Total)
	dst[15] = history.ParticipationRate
	dst[16] = history.Consistency

	return dst
}

// PrimaryHistory summarizes a voter's partisan primary ballots.
type PrimaryHistory struct {
	Republican        int
	Democrat          int
	Total             int
	ParticipationRate float64
	// Consistency is 1 when every ballot was one party, 0 when mixed and NaN
	// without ballots.
	Consistency float64
}

// History computes primary-history features.
func History(v *model.Voter) PrimaryHistory {
	rep, dem := classification.CountPrimaryVotes(v)
	h := PrimaryHistory{
		Republican:        rep,
		Democrat:          dem,
		Total:             rep + dem,
		ParticipationRate: float64(rep+dem) / float64(len(v.Primaries)),
	}
	switch {
	case h.Total == 0:
		h.Consistency = math.NaN()
	case rep == 0 || dem == 0:
		h.Consistency = 1
	default:
		h.Consistency = 0
	}
	return h
}
