package swapper

import (
	"errors"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

var (
	colorBlack = color.RGBA{}
	colorWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// ErrDegenerateAlignment is returned when alignment points do not span an area
var ErrDegenerateAlignment = errors.New("alignment points are degenerate")

// EstimateSimilarity computes the least-squares similarity transform
// (rotation, uniform scale, translation) taking src onto dst.
func EstimateSimilarity(src, dst []geometry.Point) (Affine, error) {
	n := len(src)
	if n < 2 || n != len(dst) {
		return Affine{}, ErrDegenerateAlignment
	}

	// Compute centroids
	var srcC, dstC geometry.Point
	for i := range src {
		srcC = srcC.Add(src[i])
		dstC = dstC.Add(dst[i])
	}
	srcC = geometry.Pt(srcC.X/float64(n), srcC.Y/float64(n))
	dstC = geometry.Pt(dstC.X/float64(n), dstC.Y/float64(n))

	// dot and cross accumulate s·d and s×d over centred points
	var dot, cross, srcVar float64
	for i := range src {
		s := src[i].Sub(srcC)
		d := dst[i].Sub(dstC)
		dot += s.X*d.X + s.Y*d.Y
		cross += s.X*d.Y - s.Y*d.X
		srcVar += s.X*s.X + s.Y*s.Y
	}
	if srcVar < 1e-12 {
		return Affine{}, ErrDegenerateAlignment
	}

	// scale*cos and scale*sin of the optimal rotation
	a := dot / srcVar
	b := cross / srcVar

	return Affine{
		{a, -b, dstC.X - (a*srcC.X - b*srcC.Y)},
		{b, a, dstC.Y - (b*srcC.X + a*srcC.Y)},
	}, nil
}

// Invert returns the inverse transform
func (m Affine) Invert() (Affine, error) {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if math.Abs(det) < 1e-12 {
		return Affine{}, ErrDegenerateAlignment
	}
	a := m[1][1] / det
	b := -m[0][1] / det
	c := -m[1][0] / det
	d := m[0][0] / det
	return Affine{
		{a, b, -(a*m[0][2] + b*m[1][2])},
		{c, d, -(c*m[0][2] + d*m[1][2])},
	}, nil
}

// AlignCrop warps img through m into a size x size crop
func AlignCrop(img gocv.Mat, m Affine, size int) gocv.Mat {
	return Warp(img, m, image.Pt(size, size))
}

// PasteBack maps an aligned crop back into a copy of dst through the inverse
// of m, fading it in with a feathered mask scaled by strength in [0,1].
func PasteBack(dst, crop gocv.Mat, m Affine, strength float64) (gocv.Mat, error) {
	out := dst.Clone()
	if strength <= 0 {
		return out, nil
	}
	strength = math.Min(strength, 1)

	inv, err := m.Invert()
	if err != nil {
		return out, err
	}
	size := image.Pt(dst.Cols(), dst.Rows())

	invMat := inv.Mat()
	defer invMat.Close()

	back := gocv.NewMat()
	defer back.Close()
	gocv.WarpAffineWithParams(crop, &back, invMat, size,
		gocv.InterpolationLinear, gocv.BorderConstant, colorBlack)

	feather := featherMask(crop.Cols(), crop.Rows())
	defer feather.Close()

	alpha := gocv.NewMat()
	defer alpha.Close()
	gocv.WarpAffineWithParams(feather, &alpha, invMat, size,
		gocv.InterpolationLinear, gocv.BorderConstant, colorBlack)

	outBytes := out.ToBytes()
	backBytes := back.ToBytes()
	alphaBytes := alpha.ToBytes()
	for i := range outBytes {
		w := float64(alphaBytes[i/3]) / 255 * strength
		if w == 0 {
			continue
		}
		v := float64(outBytes[i])*(1-w) + float64(backBytes[i])*w
		outBytes[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}

	blended, err := gocv.NewMatFromBytes(dst.Rows(), dst.Cols(), gocv.MatTypeCV8UC3, outBytes)
	if err != nil {
		return out, err
	}
	out.Close()
	return blended, nil
}

// featherMask is a CV8U mask, 255 in the middle fading to 0 over the
// outer tenth of each side.
func featherMask(cols, rows int) gocv.Mat {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
	border := max(1, min(cols, rows)/10)
	inner := image.Rect(border, border, cols-border, rows-border)
	if inner.Empty() {
		return mask
	}
	gocv.Rectangle(&mask, inner, colorWhite, -1)

	k := border | 1
	gocv.GaussianBlur(mask, &mask, image.Pt(k, k), 0, 0, gocv.BorderConstant)
	return mask
}
