package assign

import (
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/geo"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	oldCD = model.DistrictKey{Type: model.Congressional, Map: model.OldMap}
	newCD = model.DistrictKey{Type: model.Congressional, Map: model.NewMap}
	newHD = model.DistrictKey{Type: model.LowerChamber, Map: model.NewMap}
)

func table() geo.PrecinctTable {
	var t geo.PrecinctTable
	t.Set(model.NewPrecinctKey("TRAVIS", "101"), newCD, 37)
	t.Set(model.NewPrecinctKey("TRAVIS", "101"), oldCD, 99)
	return t
}

func TestAssignPrefersRecordThenPrecinct(t *testing.T) {
	v := model.Voter{ID: "1", County: "Travis", Precinct: "101"}
	v.SetRecordDistrict(oldCD, 10)

	NewMapper(table()).Assign(&v)

	assert.Equal(t, model.Assignment{ID: 10, Source: model.SourceRecord}, v.Assignment(oldCD))
	assert.Equal(t, model.Assignment{ID: 37, Source: model.SourcePrecinct}, v.Assignment(newCD))
	assert.True(t, v.Assignment(newHD).Missing())
}

func TestAssignNeverDefaults(t *testing.T) {
	v := model.Voter{ID: "2", County: "Harris", Precinct: "0001"}

	NewMapper(table()).Assign(&v)

	for _, key := range model.AllDistrictKeys() {
		assert.True(t, v.Assignment(key).Missing(), key.String())
	}
}

func TestAssignAllSummary(t *testing.T) {
	voters := []model.Voter{
		{ID: "1", County: "Travis", Precinct: "101"},
		{ID: "2", County: "Travis", Precinct: ""},
		{ID: "3", County: "Harris", Precinct: "0001"},
	}
	voters[2].SetRecordDistrict(newCD, 7)

	summary := NewMapper(table()).AssignAll(voters)

	assert.Equal(t, 3, summary.Voters)
	ks := summary.ByKey[newCD]
	require.NotNil(t, ks)
	assert.Equal(t, 1, ks.Record)
	assert.Equal(t, 1, ks.Precinct)
	assert.Equal(t, 1, ks.Missing)

	assert.Equal(t, 3, summary.ByKey[newHD].Missing)

	counts := summary.Counts()
	assert.Equal(t, 1, counts["2026_CD_missing"])
	assert.Equal(t, 3, counts["voters"])
}

func TestSummaryMerge(t *testing.T) {
	a := NewMapper(table()).AssignAll([]model.Voter{{ID: "1", County: "Travis", Precinct: "101"}})
	b := NewMapper(table()).AssignAll([]model.Voter{{ID: "2", County: "Harris", Precinct: "1"}})

	var total Summary
	total.Merge(a)
	total.Merge(b)

	assert.Equal(t, 2, total.Voters)
	assert.Equal(t, 1, total.ByKey[newCD].Precinct)
	assert.Equal(t, 1, total.ByKey[newCD].Missing)
}
