// Package mesh builds the triangulated face mesh used to warp one face onto
// another: a convex hull over the destination landmarks and a Delaunay
// triangulation of the hull points, expressed as index triples so the same
// cells can be looked up in the source hull.
package mesh

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fogleman/delaunay"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// ErrDegenerateGeometry is returned when the landmark geometry cannot produce
// a usable mesh (fewer than three distinct points, all points collinear, or no
// triangle left inside the image).
var ErrDegenerateGeometry = errors.New("degenerate face geometry")

// minArea2 is the smallest doubled triangle area, in px², that is still warped
const minArea2 = 2e-6

// Hull is the convex hull of a landmark set.
// Indices point into the landmark slice the hull was built from; Points[i]
// is landmarks[Indices[i]].
type Hull struct {
	Indices []int
	Points  []geometry.Point
}

// Triangle is a mesh cell as three indices into a hull-point slice
type Triangle [3]int

// Points resolves the triangle against a hull-point slice
func (t Triangle) Points(hullPoints []geometry.Point) [3]geometry.Point {
	return [3]geometry.Point{hullPoints[t[0]], hullPoints[t[1]], hullPoints[t[2]]}
}

// BuildHull computes the convex hull of landmarks, keeping the index of every
// selected landmark in hull order.
func BuildHull(landmarks []geometry.Point) Hull {
	if len(landmarks) == 0 {
		return Hull{}
	}

	pv := gocv.NewPointVectorFromPoints(geometry.RoundAll(landmarks))
	defer pv.Close()

	idx := gocv.NewMat()
	defer idx.Close()
	gocv.ConvexHull(pv, &idx, false, false)

	n := idx.Rows() * idx.Cols()
	hull := Hull{
		Indices: make([]int, 0, n),
		Points:  make([]geometry.Point, 0, n),
	}
	for i := 0; i < n; i++ {
		j := int(idx.GetIntAt(i, 0))
		if idx.Rows() == 1 {
			j = int(idx.GetIntAt(0, i))
		}
		hull.Indices = append(hull.Indices, j)
		hull.Points = append(hull.Points, landmarks[j])
	}
	return hull
}

// Select applies the hull's index list to another landmark set. This is how the
// source hull is derived from the destination hull: hull vertex i of the
// destination corresponds to hull vertex i of the source.
func (h Hull) Select(landmarks []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(h.Indices))
	for i, j := range h.Indices {
		out[i] = landmarks[j]
	}
	return out
}

// Triangulate computes a Delaunay triangulation of hullPoints and returns the
// cells as index triples into hullPoints. Cells with a vertex outside bounds
// are dropped.
func Triangulate(hullPoints []geometry.Point, bounds image.Rectangle) ([]Triangle, error) {
	if len(hullPoints) < 3 {
		return nil, fmt.Errorf("%w: need 3 hull points, got %d", ErrDegenerateGeometry, len(hullPoints))
	}

	pts := make([]delaunay.Point, len(hullPoints))
	for i, p := range hullPoints {
		pts[i] = delaunay.Point{X: p.X, Y: p.Y}
	}

	tri, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	triangles := make([]Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		t := Triangle{tri.Triangles[i], tri.Triangles[i+1], tri.Triangles[i+2]}
		if !insideAll(t.Points(hullPoints), bounds) {
			continue
		}
		triangles = append(triangles, t)
	}

	if len(triangles) == 0 {
		return nil, fmt.Errorf("%w: no triangle inside %v", ErrDegenerateGeometry, bounds)
	}
	return triangles, nil
}

// Filter splits triangles into those that can be warped and those whose source
// or destination cell has (near) zero area. An affine map from or onto a
// collinear triple is singular, so such cells are skipped.
func Filter(triangles []Triangle, src, dst []geometry.Point) (kept, skipped []Triangle) {
	kept = make([]Triangle, 0, len(triangles))
	for _, t := range triangles {
		s := t.Points(src)
		d := t.Points(dst)
		if math.Abs(geometry.Area2(s[0], s[1], s[2])) < minArea2 ||
			math.Abs(geometry.Area2(d[0], d[1], d[2])) < minArea2 {
			skipped = append(skipped, t)
			continue
		}
		kept = append(kept, t)
	}
	return kept, skipped
}

func insideAll(pts [3]geometry.Point, bounds image.Rectangle) bool {
	for _, p := range pts {
		if !geometry.Inside(p, bounds) {
			return false
		}
	}
	return true
}
