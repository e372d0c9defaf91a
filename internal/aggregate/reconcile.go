package aggregate

import (
	"slices"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Contribution is the number of voters one old district sent to a new one.
type Contribution struct {
	RepPct      Pct
	DemPct      Pct
	OldDistrict int
	Voters      int
}

// GainsLosses compares a new district with what its contributing old
// districts would have predicted.
type GainsLosses struct {
	ExpectedRepPct      Pct
	ExpectedDemPct      Pct
	ActualRepPct        Pct
	ActualDemPct        Pct
	PctChangeRepublican Pct
	PctChangeDemocrat   Pct

	Sources []Contribution

	ExpectedRepublican float64
	ExpectedDemocrat   float64
	NetRepublican      float64
	NetDemocrat        float64

	District          int
	Republican        int
	Democrat          int
	RepublicanKnown   int
	RepublicanModeled int
	DemocratKnown     int
	DemocratModeled   int
}

// Reconciliation holds gains and losses for every new district of one type.
type Reconciliation struct {
	Type      model.DistrictType
	Districts []GainsLosses
	Modeled   bool
}

// District returns the row for id.
func (r *Reconciliation) District(id int) (GainsLosses, bool) {
	for _, g := range r.Districts {
		if g.District == id {
			return g, true
		}
	}
	return GainsLosses{}, false
}

// transitions counts voters by (new district, old district) for one type.
// Voters missing either assignment are not counted.
type transitions struct {
	counts map[[2]int]int
	typ    model.DistrictType
}

func newTransitions(t model.DistrictType) *transitions {
	return &transitions{counts: make(map[[2]int]int), typ: t}
}

func (tr *transitions) add(v *model.Voter) {
	oldA := v.Assignment(model.DistrictKey{Type: tr.typ, Map: model.OldMap})
	newA := v.Assignment(model.DistrictKey{Type: tr.typ, Map: model.NewMap})
	if oldA.Missing() || newA.Missing() {
		return
	}
	tr.counts[[2]int{newA.ID, oldA.ID}]++
}

func (tr *transitions) sources(newID int) []Contribution {
	var out []Contribution
	for k, n := range tr.counts {
		if k[0] == newID {
			out = append(out, Contribution{OldDistrict: k[1], Voters: n})
		}
	}
	slices.SortFunc(out, func(a, b Contribution) int {
		return a.OldDistrict - b.OldDistrict
	})
	return out
}

// Reconcile computes gains and losses for each new district of type t.
// old and updated must be the old-map and new-map tables for t built from
// the same voters.
func Reconcile(voters []model.Voter, t model.DistrictType, old, updated *Table) *Reconciliation {
	tr := newTransitions(t)
	for i := range voters {
		tr.add(&voters[i])
	}
	return reconcile(tr, old, updated)
}

func reconcile(tr *transitions, old, updated *Table) *Reconciliation {
	r := &Reconciliation{
		Type:      tr.typ,
		Districts: make([]GainsLosses, 0, len(updated.Districts)),
		Modeled:   updated.Modeled,
	}

	for _, comp := range updated.Districts {
		g := GainsLosses{
			ActualRepPct:      comp.RepPct,
			ActualDemPct:      comp.DemPct,
			District:          comp.District,
			Republican:        comp.Republican,
			Democrat:          comp.Democrat,
			RepublicanKnown:   comp.RepublicanKnown,
			RepublicanModeled: comp.RepublicanModeled,
			DemocratKnown:     comp.DemocratKnown,
			DemocratModeled:   comp.DemocratModeled,
		}

		g.Sources = tr.sources(comp.District)
		var weight, repSum, demSum float64
		for i := range g.Sources {
			src := &g.Sources[i]
			oc, ok := old.District(src.OldDistrict)
			if !ok {
				continue
			}
			src.RepPct, src.DemPct = oc.RepPct, oc.DemPct
			// Old districts with no partisan voters carry no composition to inherit.
			if !oc.RepPct.Defined {
				continue
			}
			w := float64(src.Voters)
			weight += w
			repSum += w * oc.RepPct.Value
			demSum += w * oc.DemPct.Value
		}

		if weight > 0 {
			g.ExpectedRepPct = Pct{Value: repSum / weight, Defined: true}
			g.ExpectedDemPct = Pct{Value: demSum / weight, Defined: true}
			partisan := float64(comp.Partisan())
			g.ExpectedRepublican = g.ExpectedRepPct.Value / 100 * partisan
			g.ExpectedDemocrat = g.ExpectedDemPct.Value / 100 * partisan
			g.NetRepublican = float64(comp.Republican) - g.ExpectedRepublican
			g.NetDemocrat = float64(comp.Democrat) - g.ExpectedDemocrat
			g.PctChangeRepublican = change(g.NetRepublican, g.ExpectedRepublican)
			g.PctChangeDemocrat = change(g.NetDemocrat, g.ExpectedDemocrat)
		}

		r.Districts = append(r.Districts, g)
	}
	return r
}

func change(net, expected float64) Pct {
	if expected <= 0 {
		return Pct{}
	}
	return Pct{Value: net / expected * 100, Defined: true}
}
