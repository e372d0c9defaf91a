package geo

import (
	"math"

	polyclip "github.com/akavel/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// IntersectionArea returns the planar area shared by two multipolygons.
func IntersectionArea(a, b orb.MultiPolygon) float64 {
	if !a.Bound().Intersects(b.Bound()) {
		return 0
	}

	result := toClip(a).Construct(polyclip.INTERSECTION, toClip(b))
	return clipArea(result)
}

// toClip flattens every ring into one contour set; polyclip fills by even-odd.
func toClip(mp orb.MultiPolygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(mp))
	for _, poly := range mp {
		for _, ring := range poly {
			n := len(ring)
			if n > 1 && ring[0] == ring[n-1] {
				n--
			}
			contour := make(polyclip.Contour, 0, n)
			for _, p := range ring[:n] {
				contour = append(contour, polyclip.Point{X: p[0], Y: p[1]})
			}
			out = append(out, contour)
		}
	}
	return out
}

// clipArea sums contour areas, treating contours nested an odd number of
// times as holes.
func clipArea(p polyclip.Polygon) float64 {
	rings := make([]orb.Ring, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		ring = append(ring, ring[0])
		rings = append(rings, ring)
	}

	var total float64
	for i, ring := range rings {
		depth := 0
		vertex := ring[0]
		for j, other := range rings {
			if i == j {
				continue
			}
			if planar.RingContains(other, vertex) {
				depth++
			}
		}

		a := math.Abs(planar.Area(ring))
		if depth%2 == 0 {
			total += a
		} else {
			total -= a
		}
	}

	if total < 0 {
		return 0
	}
	return total
}
