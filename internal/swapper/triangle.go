package swapper

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// Patch is one source triangle warped into destination space.
// Warped is Rect-sized; LocalTri is the destination triangle relative to Rect.Min.
type Patch struct {
	Rect     image.Rectangle
	Warped   gocv.Mat
	LocalTri [3]geometry.Point
}

// Close releases the warped buffer
func (p *Patch) Close() error {
	return p.Warped.Close()
}

// WarpTriangle warps the srcTri region of src so that it lands on dstTri.
// Only the triangles' bounding rectangles are touched: the source patch is cut
// to srcTri's bounding rect and the warp output is sized to dstTri's bounding
// rect, both clipped to their images. Returns nil when either rect falls
// entirely outside its image.
func WarpTriangle(src gocv.Mat, srcTri, dstTri [3]geometry.Point, dstBounds image.Rectangle) *Patch {
	srcBounds := image.Rect(0, 0, src.Cols(), src.Rows())
	r1 := geometry.BoundingRect(srcTri[:]).Intersect(srcBounds)
	r2 := geometry.BoundingRect(dstTri[:]).Intersect(dstBounds)
	if r1.Empty() || r2.Empty() {
		return nil
	}

	var t1, t2 [3]geometry.Point
	copy(t1[:], geometry.Translate(srcTri[:], r1.Min))
	copy(t2[:], geometry.Translate(dstTri[:], r2.Min))

	srcPatch := src.Region(r1)
	defer srcPatch.Close()

	return &Patch{
		Rect:     r2,
		Warped:   Warp(srcPatch, ComputeAffine(t1, t2), r2.Size()),
		LocalTri: t2,
	}
}

// CompositeTriangle copies the pixels of warped that fall inside localTri into
// dst at rect. warped must be rect-sized and localTri relative to rect.Min.
// Pixels of dst outside rect are never touched; a rect that misses dst is a
// no-op.
//
// The mask is binary. OpenCV only antialiases polygons on 8-bit buffers, so a
// float coverage mask drawn with LINE_AA is binary in practice, and binary
// masks keep shared edges between neighbouring triangles free of dark seams.
// With a 0/1 mask dst*(1-mask) + warped*mask is exactly a masked copy.
func CompositeTriangle(dst *gocv.Mat, warped gocv.Mat, localTri [3]geometry.Point, rect image.Rectangle) {
	clip := rect.Intersect(image.Rect(0, 0, dst.Cols(), dst.Rows()))
	if clip.Empty() {
		return
	}

	// Shift into the clipped frame when rect hangs off the destination
	off := clip.Min.Sub(rect.Min)
	local := geometry.Translate(localTri[:], off)

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), clip.Dy(), clip.Dx(), gocv.MatTypeCV8U)
	defer mask.Close()
	fillPolygon(&mask, local)

	src := warped.Region(image.Rectangle{Min: off, Max: off.Add(clip.Size())})
	defer src.Close()
	roi := dst.Region(clip)
	defer roi.Close()

	src.CopyToWithMask(&roi, mask)
}

// fillPolygon paints the filled convex polygon pts with 255 into an 8-bit mask
func fillPolygon(mask *gocv.Mat, pts []geometry.Point) {
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{geometry.RoundAll(pts)})
	defer pv.Close()
	gocv.FillPoly(mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}
