package detector

import (
	"image"
	"math"

	"github.com/dudu/faceswap/internal/geometry"
)

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float64 // top-left
	X2, Y2 float64 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() geometry.Point {
	return geometry.Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Rect returns the integer rectangle covering the box
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)),
	)
}

// BoxFromRect converts an integer rectangle to a BoundingBox
func BoxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{
		X1: float64(r.Min.X), Y1: float64(r.Min.Y),
		X2: float64(r.Max.X), Y2: float64(r.Max.Y),
	}
}

// Landmarks represents 5 facial landmark points. Left and right are as seen
// in the image, so LeftEye is the subject's right eye.
type Landmarks struct {
	LeftEye    geometry.Point // index 0
	RightEye   geometry.Point // index 1
	Nose       geometry.Point // index 2
	LeftMouth  geometry.Point // index 3
	RightMouth geometry.Point // index 4
}

// Points returns the landmarks in index order
func (l Landmarks) Points() []geometry.Point {
	return []geometry.Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// Face represents a detected face region
type Face struct {
	BoundingBox BoundingBox
	Landmarks   *Landmarks // 5-point, when the backend provides them
	Score       float64
}

// Landmarks68 are the 68 facial landmarks in the iBUG 300-W layout
type Landmarks68 [68]geometry.Point

// Points returns the landmarks as a slice
func (l *Landmarks68) Points() []geometry.Point {
	return l[:]
}

// GetPoints returns the landmarks at the given indices
func (l *Landmarks68) GetPoints(indices []int) []geometry.Point {
	points := make([]geometry.Point, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(l) {
			points = append(points, l[idx])
		}
	}
	return points
}

// FivePoint derives eye centres, nose tip and mouth corners
func (l *Landmarks68) FivePoint() Landmarks {
	return Landmarks{
		LeftEye:    centroid(l.GetPoints(RightEyeIndices)),
		RightEye:   centroid(l.GetPoints(LeftEyeIndices)),
		Nose:       l[30],
		LeftMouth:  l[48],
		RightMouth: l[54],
	}
}

// BoundingBox computes tight bounding box around all 68 points
func (l *Landmarks68) BoundingBox() BoundingBox {
	minX, minY := l[0].X, l[0].Y
	maxX, maxY := l[0].X, l[0].Y
	for _, p := range l[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return BoundingBox{X1: minX, Y1: minY, X2: maxX, Y2: maxY}
}

// Index groups of the 68-point layout
var (
	JawIndices       = span(0, 16)
	RightBrowIndices = span(17, 21)
	LeftBrowIndices  = span(22, 26)
	NoseIndices      = span(27, 35)
	RightEyeIndices  = span(36, 41)
	LeftEyeIndices   = span(42, 47)
	MouthIndices     = span(48, 67)
)

func span(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func centroid(points []geometry.Point) geometry.Point {
	var c geometry.Point
	if len(points) == 0 {
		return c
	}
	for _, p := range points {
		c = c.Add(p)
	}
	return geometry.Point{X: c.X / float64(len(points)), Y: c.Y / float64(len(points))}
}
