// Package assign gives every voter a district id for each district system.
package assign

import (
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// PrecinctLookup resolves a precinct to a district.
type PrecinctLookup interface {
	Lookup(p model.PrecinctKey, key model.DistrictKey) (int, bool)
}

// Mapper assigns districts from the voter record first, then from the precinct
// table, and otherwise records an explicit missing assignment.
type Mapper struct {
	lookup PrecinctLookup
	keys   []model.DistrictKey
}

// NewMapper creates a mapper over all six district systems.
func NewMapper(lookup PrecinctLookup) *Mapper {
	return &Mapper{lookup: lookup, keys: model.AllDistrictKeys()}
}

// Assign fills every assignment on v. It never guesses a default district.
func (m *Mapper) Assign(v *model.Voter) {
	precinct := v.PrecinctKey()
	for _, key := range m.keys {
		v.SetAssignment(key, m.resolve(v, precinct, key))
	}
}

func (m *Mapper) resolve(v *model.Voter, precinct model.PrecinctKey, key model.DistrictKey) model.Assignment {
	if id := v.RecordDistrict(key); id > 0 {
		return model.Assignment{ID: id, Source: model.SourceRecord}
	}
	if m.lookup != nil && !precinct.Empty() {
		if id, ok := m.lookup.Lookup(precinct, key); ok {
			return model.Assignment{ID: id, Source: model.SourcePrecinct}
		}
	}
	return model.Assignment{}
}

// KeySummary counts assignment sources for one district system.
type KeySummary struct {
	Record   int
	Precinct int
	Missing  int
}

// Summary counts assignment sources across voters.
type Summary struct {
	ByKey  map[model.DistrictKey]*KeySummary
	Voters int
}

// Counts flattens the summary for stage metadata.
func (s *Summary) Counts() map[string]int {
	counts := map[string]int{"voters": s.Voters}
	for key, ks := range s.ByKey {
		counts[key.String()+"_record"] = ks.Record
		counts[key.String()+"_precinct"] = ks.Precinct
		counts[key.String()+"_missing"] = ks.Missing
	}
	return counts
}

// Merge adds other into s.
func (s *Summary) Merge(other *Summary) {
	if s.ByKey == nil {
		s.ByKey = make(map[model.DistrictKey]*KeySummary)
	}
	s.Voters += other.Voters
	for key, ks := range other.ByKey {
		dst, ok := s.ByKey[key]
		if !ok {
			dst = &KeySummary{}
			s.ByKey[key] = dst
		}
		dst.Record += ks.Record
		dst.Precinct += ks.Precinct
		dst.Missing += ks.Missing
	}
}

// AssignAll assigns every voter in place and reports where ids came from.
func (m *Mapper) AssignAll(voters []model.Voter) *Summary {
	summary := &Summary{ByKey: make(map[model.DistrictKey]*KeySummary, len(m.keys))}
	for _, key := range m.keys {
		summary.ByKey[key] = &KeySummary{}
	}

	for i := range voters {
		m.Assign(&voters[i])
		summary.Voters++
		for _, key := range m.keys {
			ks := summary.ByKey[key]
			switch a := voters[i].Assignment(key); {
			case a.Missing():
				ks.Missing++
			case a.Source == model.SourceRecord:
				ks.Record++
			default:
				ks.Precinct++
			}
		}
	}

	return summary
}
