package swapper

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// Affine is a 2x3 affine matrix [a b tx; c d ty]
type Affine [2][3]float64

// ComputeAffine solves the affine map taking the three src vertices exactly
// onto the three dst vertices. Collinear src vertices give a singular system;
// callers filter those triangles out beforehand.
func ComputeAffine(src, dst [3]geometry.Point) Affine {
	srcVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(src))
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(dst))
	defer dstVec.Close()

	m := gocv.GetAffineTransform2f(srcVec, dstVec)
	defer m.Close()

	var a Affine
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			a[r][c] = m.GetDoubleAt(r, c)
		}
	}
	return a
}

// Apply maps p through the transform
func (a Affine) Apply(p geometry.Point) geometry.Point {
	return geometry.Point{
		X: a[0][0]*p.X + a[0][1]*p.Y + a[0][2],
		Y: a[1][0]*p.X + a[1][1]*p.Y + a[1][2],
	}
}

// Mat returns the transform as a 2x3 CV64F Mat. The caller must Close it.
func (a Affine) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, a[r][c])
		}
	}
	return m
}

// Warp resamples patch through a into a buffer of the given size using
// bilinear interpolation. Samples falling outside patch are reflected at the
// border without repeating the edge pixel (BORDER_REFLECT_101), which keeps
// triangle edges near the patch boundary free of black fringes.
func Warp(patch gocv.Mat, a Affine, size image.Point) gocv.Mat {
	m := a.Mat()
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(patch, &out, m, size,
		gocv.InterpolationLinear, gocv.BorderReflect101, color.RGBA{})
	return out
}

func toPoint2f(tri [3]geometry.Point) []gocv.Point2f {
	pts := make([]gocv.Point2f, len(tri))
	for i, p := range tri {
		pts[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return pts
}
