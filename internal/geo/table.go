package geo

import "github.com/Veraticus/redistrict-impact/internal/model"

// PrecinctTable maps a precinct to its winning district for each district system.
type PrecinctTable struct {
	rows map[model.PrecinctKey][3][2]int
}

// NewPrecinctTable indexes resolved assignments. Unassigned rows are skipped.
func NewPrecinctTable(assignments []model.PrecinctAssignment) PrecinctTable {
	t := PrecinctTable{rows: make(map[model.PrecinctKey][3][2]int, len(assignments)/6+1)}
	for _, a := range assignments {
		if a.Unassigned || a.District <= 0 {
			continue
		}
		t.Set(a.Precinct, a.Key, a.District)
	}
	return t
}

// Set records a district for a precinct.
func (t *PrecinctTable) Set(p model.PrecinctKey, key model.DistrictKey, district int) {
	ti, mi := key.Type.Index(), key.Map.Index()
	if ti < 0 || mi < 0 {
		return
	}
	if t.rows == nil {
		t.rows = make(map[model.PrecinctKey][3][2]int)
	}
	row := t.rows[p]
	row[ti][mi] = district
	t.rows[p] = row
}

// Lookup returns the district for a precinct, or false when unresolved.
func (t PrecinctTable) Lookup(p model.PrecinctKey, key model.DistrictKey) (int, bool) {
	ti, mi := key.Type.Index(), key.Map.Index()
	if ti < 0 || mi < 0 {
		return 0, false
	}
	row, ok := t.rows[p]
	if !ok || row[ti][mi] <= 0 {
		return 0, false
	}
	return row[ti][mi], true
}

// Len returns the number of precincts with at least one resolved district.
func (t PrecinctTable) Len() int {
	return len(t.rows)
}
