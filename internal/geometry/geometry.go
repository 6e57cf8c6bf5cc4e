package geometry

import (
	"image"
	"math"
)

// Point is a real-valued 2D point in pixel space
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Round returns the nearest integer pixel
func (p Point) Round() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// FromImagePoint converts an integer pixel to a Point
func FromImagePoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// BoundingRect returns the smallest integer-aligned rectangle enclosing points.
// Coordinates are floored, so a point at 3.7 lands in pixel column 3 and the
// rectangle spans [floor(min), floor(max)+1). Panics on empty input.
func BoundingRect(points []Point) image.Rectangle {
	if len(points) == 0 {
		panic("geometry: BoundingRect of empty point set")
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	return image.Rect(
		int(math.Floor(minX)),
		int(math.Floor(minY)),
		int(math.Floor(maxX))+1,
		int(math.Floor(maxY))+1,
	)
}

// Translate returns points shifted so that origin becomes (0, 0)
func Translate(points []Point, origin image.Point) []Point {
	o := FromImagePoint(origin)
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p.Sub(o)
	}
	return out
}

// RoundAll converts points to integer pixels
func RoundAll(points []Point) []image.Point {
	out := make([]image.Point, len(points))
	for i, p := range points {
		out[i] = p.Round()
	}
	return out
}

// Area2 returns twice the signed area of triangle abc.
// Positive when a->b->c turns counter-clockwise in a y-up frame.
func Area2(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Inside reports whether p lies in the half-open rectangle r
func Inside(p Point, r image.Rectangle) bool {
	return p.X >= float64(r.Min.X) && p.X < float64(r.Max.X) &&
		p.Y >= float64(r.Min.Y) && p.Y < float64(r.Max.Y)
}

// Center returns the integer center of r, rounding toward the top-left
func Center(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}
