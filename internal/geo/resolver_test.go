package geo

import (
	"context"
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func precinctFeature(t *testing.T, county, pct string, poly orb.Polygon) Feature {
	t.Helper()
	key := model.NewPrecinctKey(county, pct)
	f, err := NewFeature(key.String(), poly)
	require.NoError(t, err)
	f.Precinct = key
	return f
}

func districtFeature(t *testing.T, id int, poly orb.Polygon) Feature {
	t.Helper()
	f, err := NewFeature("d", poly)
	require.NoError(t, err)
	f.District = id
	return f
}

var oldCD = model.DistrictKey{Type: model.Congressional, Map: model.OldMap}

func TestResolveLargestOverlapWins(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Kind: PrecinctLayer, Features: []Feature{
		precinctFeature(t, "Travis", "101", square(0, 0, 10, 10)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: DefaultCRS, Kind: DistrictLayer, Features: []Feature{
			districtFeature(t, 2, square(6, -5, 20, 15)),
			districtFeature(t, 1, square(-5, -5, 6, 15)),
		}},
	}

	res, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, districts, []model.DistrictKey{oldCD})
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	a := res.Assignments[0]
	assert.Equal(t, 1, a.District)
	assert.False(t, a.Unassigned)
	assert.False(t, a.TieBroken)
	assert.InDelta(t, 60.0, a.OverlapArea, 1e-6)
	assert.InDelta(t, 0.6, a.Share(), 1e-9)
	assert.InDelta(t, 0.0, a.ResidualArea, 1e-6)

	require.Len(t, res.Overlaps, 2)
	var total float64
	for _, o := range res.Overlaps {
		total += o.Area
	}
	assert.InDelta(t, 100.0, total, 1e-6)
}

func TestResolveTieGoesToLowerID(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "102", square(0, 0, 10, 10)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: DefaultCRS, Features: []Feature{
			districtFeature(t, 7, square(-5, -5, 5, 15)),
			districtFeature(t, 3, square(5, -5, 15, 15)),
		}},
	}

	res, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, districts, []model.DistrictKey{oldCD})
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, 3, res.Assignments[0].District)
	assert.True(t, res.Assignments[0].TieBroken)
}

func TestResolveReportsUnassignedAndResidual(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "103", square(0, 0, 10, 10)),
		precinctFeature(t, "Travis", "999", square(100, 100, 110, 110)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: DefaultCRS, Features: []Feature{
			districtFeature(t, 4, square(-5, -5, 6, 15)),
		}},
	}

	res, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, districts, []model.DistrictKey{oldCD})
	require.NoError(t, err)

	unassigned := res.Unassigned()
	require.Len(t, unassigned, 1)
	assert.Equal(t, "999", unassigned[0].Precinct.Precinct)
	assert.InDelta(t, 100.0, unassigned[0].PrecinctArea, 1e-9)

	table := res.Table()
	id, ok := table.Lookup(model.NewPrecinctKey("TRAVIS", "103"), oldCD)
	require.True(t, ok)
	assert.Equal(t, 4, id)

	_, ok = table.Lookup(model.NewPrecinctKey("TRAVIS", "999"), oldCD)
	assert.False(t, ok)

	for _, a := range res.Assignments {
		if a.Precinct.Precinct == "103" {
			assert.InDelta(t, 40.0, a.ResidualArea, 1e-6)
		}
	}
}

func TestResolveRejectsReferenceFrameMismatch(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "101", square(0, 0, 10, 10)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: "EPSG:3083", Features: []Feature{
			districtFeature(t, 1, square(0, 0, 10, 10)),
		}},
	}

	_, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, districts, []model.DistrictKey{oldCD})
	assert.ErrorIs(t, err, ErrReferenceFrameMismatch)
}

func TestResolveRequiresEveryLayer(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "101", square(0, 0, 10, 10)),
	}}

	_, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, DistrictLayers{}, []model.DistrictKey{oldCD})
	assert.ErrorIs(t, err, ErrMissingLayer)
}

func TestResolveHonorsCancellation(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "101", square(0, 0, 10, 10)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: DefaultCRS, Features: []Feature{
			districtFeature(t, 1, square(-5, -5, 15, 15)),
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(DefaultResolverOptions()).Resolve(ctx, precincts, districts, []model.DistrictKey{oldCD})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntersectionAreaSubtractsHoles(t *testing.T) {
	withHole := orb.Polygon{
		orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		orb.Ring{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}},
	}
	cover := square(-1, -1, 11, 11)

	got := IntersectionArea(orb.MultiPolygon{withHole}, orb.MultiPolygon{cover})
	assert.InDelta(t, 96.0, got, 1e-6)
}

func TestIntersectionAreaDisjoint(t *testing.T) {
	got := IntersectionArea(orb.MultiPolygon{square(0, 0, 1, 1)}, orb.MultiPolygon{square(5, 5, 6, 6)})
	assert.Zero(t, got)
}

func TestNewFeatureRejectsInvalidGeometry(t *testing.T) {
	tests := []struct {
		geom orb.Geometry
		name string
	}{
		{name: "nil", geom: nil},
		{name: "point", geom: orb.Point{1, 2}},
		{name: "open ring", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}},
		{name: "too few points", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {0, 0}}}},
		{name: "zero area", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}},
		{name: "bowtie", geom: orb.Polygon{orb.Ring{{0, 0}, {2, 2}, {2, 0}, {0, 1}, {0, 0}}}},
		{name: "touches itself", geom: orb.Polygon{orb.Ring{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 1}, {0, 0}}}},
		{name: "crossing hole", geom: orb.Polygon{
			orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			orb.Ring{{2, 2}, {4, 4}, {4, 2}, {2, 3}, {2, 2}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFeature("bad", tt.geom)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}
}

func TestNewFeatureAcceptsRepeatedVertices(t *testing.T) {
	f, err := NewFeature("dup", orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.Area, 1e-12)
}

func TestSelfIntersectionNamesCrossingEdges(t *testing.T) {
	a, b, ok := selfIntersection(orb.Ring{{0, 0}, {2, 2}, {2, 0}, {0, 1}, {0, 0}})
	require.True(t, ok)
	assert.Equal(t, 0, a)
	assert.Equal(t, 2, b)

	_, _, ok = selfIntersection(square(0, 0, 3, 3)[0])
	assert.False(t, ok)
}

func TestResolveFlagsOverlappingDistrictFeatures(t *testing.T) {
	precincts := &Layer{Name: "precincts", CRS: DefaultCRS, Features: []Feature{
		precinctFeature(t, "Travis", "201", square(0, 0, 10, 10)),
		precinctFeature(t, "Travis", "202", square(20, 0, 30, 10)),
	}}
	districts := DistrictLayers{
		oldCD: {Name: "cd", CRS: DefaultCRS, Features: []Feature{
			districtFeature(t, 4, square(0, 0, 10, 10)),
			districtFeature(t, 5, square(0, 0, 5, 10)),
			districtFeature(t, 6, square(20, 0, 30, 10)),
		}},
	}

	res, err := NewResolver(DefaultResolverOptions()).Resolve(context.Background(), precincts, districts, []model.DistrictKey{oldCD})
	require.NoError(t, err)

	over := res.Overcovered()
	require.Len(t, over, 1)
	assert.Equal(t, "201", over[0].Precinct.Precinct)
	assert.InDelta(t, -50.0, over[0].ResidualArea, 1e-6)
	assert.Equal(t, 4, over[0].District)

	for _, a := range res.Assignments {
		if a.Precinct.Precinct == "202" {
			assert.False(t, a.Overcovered)
			assert.InDelta(t, 0.0, a.ResidualArea, 1e-6)
		}
	}
}
