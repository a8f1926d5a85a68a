// Package hittest decides which polygon, if any, contains a point in
// image-intrinsic space, using even-odd ray casting.
package hittest

import "github.com/menta2k/spywhere/pkg/types"

// Contains reports whether p lies inside poly.
//
// An edge counts when p.Y falls in its half-open vertical span and p.X lies
// left of the crossing, so horizontal edges never count. Points on the
// boundary land on whichever side the arithmetic gives.
func Contains(p types.ImagePoint, poly types.Polygon) bool {
	inside := false

	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		vi, vj := poly[i], poly[j]
		if ((vi.Y <= p.Y && p.Y < vj.Y) || (vj.Y <= p.Y && p.Y < vi.Y)) &&
			p.X < (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
	}

	return inside
}

// FindContainingPolygon returns the index of the first polygon containing p.
// Earlier polygons win when they overlap. When ok is false no polygon
// matched and the returned index (-1) must not be used.
func FindContainingPolygon(p types.ImagePoint, polygons []types.Polygon) (index int, ok bool) {
	for i, poly := range polygons {
		if Contains(p, poly) {
			return i, true
		}
	}
	return -1, false
}

// Match is the outcome of resolving one point against a polygon set
type Match struct {
	Point   types.ImagePoint `json:"point"`
	Polygon int              `json:"polygon"`
	Hit     bool             `json:"hit"`
}

// FindAll resolves every point against polygons, preserving input order
func FindAll(points []types.ImagePoint, polygons []types.Polygon) []Match {
	matches := make([]Match, len(points))
	for i, p := range points {
		idx, ok := FindContainingPolygon(p, polygons)
		matches[i] = Match{Point: p, Polygon: idx, Hit: ok}
	}
	return matches
}
