package aggregate

import "github.com/Veraticus/redistrict-impact/internal/model"

// KnownModeled shows how much of a new district's composition comes from
// predicted labels rather than primary history.
type KnownModeled struct {
	KnownRepPct Pct
	KnownDemPct Pct
	AllRepPct   Pct
	AllDemPct   Pct
	// RepShift is AllRepPct minus KnownRepPct, defined only when both are.
	RepShift Pct

	District          int
	KnownRepublican   int
	KnownDemocrat     int
	ModeledRepublican int
	ModeledDemocrat   int
	AllRepublican     int
	AllDemocrat       int
}

// KnownVsModeled compares known-only and with-modeled composition for every
// new-map district of type t.
func KnownVsModeled(voters []model.Voter, t model.DistrictType) []KnownModeled {
	key := model.DistrictKey{Type: t, Map: model.NewMap}
	return knownVsModeled(
		Compose(voters, key, Options{IncludeModeled: false}),
		Compose(voters, key, Options{IncludeModeled: true}),
	)
}

func knownVsModeled(known, all *Table) []KnownModeled {
	out := make([]KnownModeled, 0, len(all.Districts))
	for _, a := range all.Districts {
		k, _ := known.District(a.District)
		row := KnownModeled{
			KnownRepPct:       k.RepPct,
			KnownDemPct:       k.DemPct,
			AllRepPct:         a.RepPct,
			AllDemPct:         a.DemPct,
			District:          a.District,
			KnownRepublican:   k.Republican,
			KnownDemocrat:     k.Democrat,
			ModeledRepublican: a.RepublicanModeled,
			ModeledDemocrat:   a.DemocratModeled,
			AllRepublican:     a.Republican,
			AllDemocrat:       a.Democrat,
		}
		if k.RepPct.Defined && a.RepPct.Defined {
			row.RepShift = Pct{Value: a.RepPct.Value - k.RepPct.Value, Defined: true}
		}
		out = append(out, row)
	}
	return out
}
