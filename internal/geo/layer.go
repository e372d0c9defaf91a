// Package geo resolves precincts to districts by polygon overlap.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Geometry and layer errors.
var (
	ErrInvalidGeometry        = errors.New("invalid geometry")
	ErrReferenceFrameMismatch = errors.New("layers use different coordinate reference systems")
	ErrMissingLayer           = errors.New("required district layer is missing")
	ErrEmptyLayer             = errors.New("layer contains no valid features")
)

// DefaultCRS is the GeoJSON default (WGS84 longitude/latitude).
const DefaultCRS = "EPSG:4326"

// LayerKind distinguishes precinct layers from district layers.
type LayerKind int

// Layer kinds.
const (
	PrecinctLayer LayerKind = iota
	DistrictLayer
)

// Feature is one validated polygonal unit.
type Feature struct {
	Geometry orb.MultiPolygon
	Bound    orb.Bound
	Precinct model.PrecinctKey
	ID       string
	District int
	Area     float64
}

// Layer is a set of features sharing one coordinate reference system.
type Layer struct {
	Name     string
	CRS      string
	Features []Feature
	Kind     LayerKind
}

// NewFeature validates geometry and computes its bound and area.
// Polygons are accepted and promoted to multipolygons.
func NewFeature(id string, g orb.Geometry) (Feature, error) {
	var mp orb.MultiPolygon
	switch geom := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{geom}
	case orb.MultiPolygon:
		mp = geom
	case nil:
		return Feature{}, fmt.Errorf("%w: %s has no geometry", ErrInvalidGeometry, id)
	default:
		return Feature{}, fmt.Errorf("%w: %s is a %s, not a polygon", ErrInvalidGeometry, id, g.GeoJSONType())
	}

	if len(mp) == 0 {
		return Feature{}, fmt.Errorf("%w: %s is empty", ErrInvalidGeometry, id)
	}

	for _, poly := range mp {
		if len(poly) == 0 {
			return Feature{}, fmt.Errorf("%w: %s has a polygon without rings", ErrInvalidGeometry, id)
		}
		for _, ring := range poly {
			if err := validateRing(ring); err != nil {
				return Feature{}, fmt.Errorf("%w: %s: %v", ErrInvalidGeometry, id, err)
			}
		}
	}

	area := multiPolygonArea(mp)
	if !(area > 0) {
		return Feature{}, fmt.Errorf("%w: %s has zero area", ErrInvalidGeometry, id)
	}

	return Feature{
		ID:       id,
		Geometry: mp,
		Bound:    mp.Bound(),
		Area:     area,
	}, nil
}

func validateRing(r orb.Ring) error {
	if len(r) < 4 {
		return fmt.Errorf("ring has %d points, need at least 4", len(r))
	}
	if !r.Closed() {
		return errors.New("ring is not closed")
	}
	for _, p := range r {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return errors.New("ring has non-finite coordinates")
		}
	}
	if a, b, ok := selfIntersection(r); ok {
		return fmt.Errorf("ring crosses itself between edges %d and %d", a, b)
	}
	return nil
}

type edge struct {
	a, b  orb.Point
	bound orb.Bound
	index int
}

// selfIntersection reports the first pair of non-adjacent edges that touch
// or cross. Repeated consecutive vertices are ignored.
func selfIntersection(r orb.Ring) (int, int, bool) {
	pts := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	n := len(pts) - 1
	if n < 3 {
		return 0, 0, false
	}

	edges := make([]edge, n)
	for i := range edges {
		a, b := pts[i], pts[i+1]
		edges[i] = edge{a: a, b: b, index: i, bound: orb.Bound{Min: a, Max: a}.Extend(b)}
	}
	// Sweep along x so only edges with overlapping x ranges are compared.
	sort.Slice(edges, func(i, j int) bool { return edges[i].bound.Min[0] < edges[j].bound.Min[0] })

	for i := range edges {
		e := &edges[i]
		for j := i + 1; j < len(edges) && edges[j].bound.Min[0] <= e.bound.Max[0]; j++ {
			o := &edges[j]
			if adjacent(e.index, o.index, n) || !e.bound.Intersects(o.bound) {
				continue
			}
			if segmentsTouch(e.a, e.b, o.a, o.b) {
				return min(e.index, o.index), max(e.index, o.index), true
			}
		}
	}
	return 0, 0, false
}

func adjacent(i, j, n int) bool {
	d := i - j
	if d < 0 {
		d = -d
	}
	return d == 1 || d == n-1
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// within reports whether c, known to be collinear with a and b, lies on ab.
func within(a, b, c orb.Point) bool {
	return math.Min(a[0], b[0]) <= c[0] && c[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= c[1] && c[1] <= math.Max(a[1], b[1])
}

func segmentsTouch(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && within(q1, q2, p1)) ||
		(d2 == 0 && within(q1, q2, p2)) ||
		(d3 == 0 && within(p1, p2, q1)) ||
		(d4 == 0 && within(p1, p2, q2))
}

// multiPolygonArea sums outer ring areas and subtracts holes regardless of winding.
func multiPolygonArea(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for i, ring := range poly {
			a := math.Abs(planar.Area(ring))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}
