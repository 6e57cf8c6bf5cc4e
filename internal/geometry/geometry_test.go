package geometry

import (
	"image"
	"math"
	"testing"
)

func TestBoundingRect(t *testing.T) {
	tests := []struct {
		name     string
		points   []Point
		expected image.Rectangle
	}{
		{
			name:     "single point",
			points:   []Point{{X: 4, Y: 7}},
			expected: image.Rect(4, 7, 5, 8),
		},
		{
			name:     "integer triangle",
			points:   []Point{{X: 10, Y: 20}, {X: 30, Y: 25}, {X: 15, Y: 40}},
			expected: image.Rect(10, 20, 31, 41),
		},
		{
			name:     "fractional coordinates are floored",
			points:   []Point{{X: 1.2, Y: 2.9}, {X: 5.7, Y: 3.1}},
			expected: image.Rect(1, 2, 6, 4),
		},
		{
			name:     "negative coordinates",
			points:   []Point{{X: -3.5, Y: -1}, {X: 2, Y: 2}},
			expected: image.Rect(-4, -1, 3, 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BoundingRect(tt.points)
			if got != tt.expected {
				t.Errorf("BoundingRect(%v) = %v, want %v", tt.points, got, tt.expected)
			}
			for _, p := range tt.points {
				if !Inside(p, got) {
					t.Errorf("point %v not inside %v", p, got)
				}
			}
		})
	}
}

func TestBoundingRectEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty input")
		}
	}()
	BoundingRect(nil)
}

func TestTranslate(t *testing.T) {
	points := []Point{{X: 10, Y: 20}, {X: 12.5, Y: 21}}
	got := Translate(points, image.Pt(10, 20))

	want := []Point{{X: 0, Y: 0}, {X: 2.5, Y: 1}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Translate[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if points[0].X != 10 {
		t.Error("Translate modified its input")
	}
}

func TestArea2(t *testing.T) {
	a, b, c := Pt(0, 0), Pt(4, 0), Pt(0, 3)
	if got := Area2(a, b, c); math.Abs(got-12) > 1e-9 {
		t.Errorf("Area2 = %v, want 12", got)
	}
	if got := Area2(a, c, b); math.Abs(got+12) > 1e-9 {
		t.Errorf("Area2 reversed = %v, want -12", got)
	}
	if got := Area2(a, Pt(1, 1), Pt(2, 2)); got != 0 {
		t.Errorf("Area2 collinear = %v, want 0", got)
	}
}

func TestInside(t *testing.T) {
	r := image.Rect(0, 0, 10, 5)
	tests := []struct {
		p    Point
		want bool
	}{
		{Pt(0, 0), true},
		{Pt(9.99, 4.99), true},
		{Pt(10, 0), false},
		{Pt(0, 5), false},
		{Pt(-0.01, 2), false},
	}
	for _, tt := range tests {
		if got := Inside(tt.p, r); got != tt.want {
			t.Errorf("Inside(%v, %v) = %v, want %v", tt.p, r, got, tt.want)
		}
	}
}

func TestCenter(t *testing.T) {
	if got := Center(image.Rect(10, 20, 31, 41)); got != image.Pt(20, 30) {
		t.Errorf("Center = %v, want (20,30)", got)
	}
}

func TestRound(t *testing.T) {
	if got := Pt(2.5, -1.4).Round(); got != image.Pt(3, -1) {
		t.Errorf("Round = %v, want (3,-1)", got)
	}
}
