package swapper

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// ErrEmptyMask is returned when the hull mask has no pixels left inside the
// image once the one-pixel border is removed
var ErrEmptyMask = errors.New("hull mask is empty inside the image")

// HullMask fills the destination hull into a full-canvas CV8U mask (0/255).
// The outermost pixel ring is always left at zero and the returned rect is
// the hull's bounding rect clipped to the image interior.
func HullMask(hull []geometry.Point, size image.Point) (gocv.Mat, image.Rectangle) {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8U)
	if len(hull) < 3 {
		return mask, image.Rectangle{}
	}
	fillPolygon(&mask, hull)

	inner := image.Rect(1, 1, size.X-1, size.Y-1)
	if inner.Empty() {
		clearRect(&mask, image.Rect(0, 0, size.X, size.Y))
		return mask, image.Rectangle{}
	}
	clearRect(&mask, image.Rect(0, 0, size.X, 1))
	clearRect(&mask, image.Rect(0, size.Y-1, size.X, size.Y))
	clearRect(&mask, image.Rect(0, 0, 1, size.Y))
	clearRect(&mask, image.Rect(size.X-1, 0, size.X, size.Y))

	rounded := make([]geometry.Point, len(hull))
	for i, p := range hull {
		rounded[i] = geometry.FromImagePoint(p.Round())
	}
	return mask, geometry.BoundingRect(rounded).Intersect(inner)
}

// SeamlessBlend clones the hull region of newFace into dst with gradient
// domain (Poisson) blending. The clone is centred on the hull's bounding rect
// so the cloned region lands exactly where the hull is.
func SeamlessBlend(newFace, dst gocv.Mat, hull []geometry.Point) (gocv.Mat, error) {
	mask, rect := HullMask(hull, image.Pt(dst.Cols(), dst.Rows()))
	defer mask.Close()
	if rect.Empty() {
		return gocv.NewMat(), ErrEmptyMask
	}

	out := gocv.NewMat()
	gocv.SeamlessClone(newFace, dst, mask, geometry.Center(rect), &out, gocv.NormalClone)
	return out, nil
}

// ColorTransfer shifts the Lab colour statistics of face towards those of
// target, measured over the pixels set in mask. Only masked pixels of face
// are rewritten.
func ColorTransfer(face *gocv.Mat, target gocv.Mat, mask gocv.Mat) {
	faceLab := gocv.NewMat()
	defer faceLab.Close()
	targetLab := gocv.NewMat()
	defer targetLab.Close()

	gocv.CvtColor(*face, &faceLab, gocv.ColorBGRToLab)
	gocv.CvtColor(target, &targetLab, gocv.ColorBGRToLab)

	m := mask.ToBytes()
	fb := faceLab.ToBytes()
	tb := targetLab.ToBytes()

	fMean, fStd, ok := maskedStats(fb, m)
	if !ok {
		return
	}
	tMean, tStd, _ := maskedStats(tb, m)

	for i, v := range m {
		if v == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			s := fStd[c]
			if s < 1e-6 {
				s = 1e-6
			}
			x := (float64(fb[i*3+c])-fMean[c])*(tStd[c]/s) + tMean[c]
			fb[i*3+c] = uint8(math.Max(0, math.Min(255, math.Round(x))))
		}
	}

	shifted, err := gocv.NewMatFromBytes(faceLab.Rows(), faceLab.Cols(), gocv.MatTypeCV8UC3, fb)
	if err != nil {
		return
	}
	defer shifted.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(shifted, &bgr, gocv.ColorLabToBGR)
	bgr.CopyToWithMask(face, mask)
}

// maskedStats returns per-channel mean and standard deviation of a packed
// 3-channel buffer over the pixels where mask is non-zero
func maskedStats(pix, mask []byte) (mean, std [3]float64, ok bool) {
	var sum, sq [3]float64
	var n float64
	for i, v := range mask {
		if v == 0 {
			continue
		}
		n++
		for c := 0; c < 3; c++ {
			x := float64(pix[i*3+c])
			sum[c] += x
			sq[c] += x * x
		}
	}
	if n == 0 {
		return mean, std, false
	}
	for c := 0; c < 3; c++ {
		mean[c] = sum[c] / n
		std[c] = math.Sqrt(math.Max(0, sq[c]/n-mean[c]*mean[c]))
	}
	return mean, std, true
}

func clearRect(m *gocv.Mat, r image.Rectangle) {
	roi := m.Region(r)
	defer roi.Close()
	roi.SetTo(gocv.NewScalar(0, 0, 0, 0))
}
