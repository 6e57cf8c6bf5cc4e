// Package preview renders swap results and their landmark mesh for inspection.
package preview

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/mesh"
	"github.com/dudu/faceswap/internal/pipeline"
)

// Overlay colours
var (
	MeshColor     = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	HullColor     = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	LandmarkColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	BoxColor      = color.RGBA{R: 255, G: 200, B: 0, A: 255}
)

// contours of the 68-point layout; eyes and lips are closed
var contours = []struct {
	indices []int
	closed  bool
}{
	{detector.JawIndices, false},
	{detector.RightBrowIndices, false},
	{detector.LeftBrowIndices, false},
	{detector.NoseIndices, false},
	{detector.RightEyeIndices, true},
	{detector.LeftEyeIndices, true},
	{detector.MouthIndices[:12], true},
	{detector.MouthIndices[12:], true},
}

// DrawLandmarks marks every landmark and joins each facial contour
func DrawLandmarks(img *gocv.Mat, lm *detector.Landmarks68, c color.RGBA) {
	for _, group := range contours {
		drawPolyline(img, lm.GetPoints(group.indices), group.closed, c, 1)
	}
	for _, p := range lm {
		gocv.Circle(img, p.Round(), 2, c, -1)
	}
}

// DrawMesh outlines every triangle of the mesh over hullPoints
func DrawMesh(img *gocv.Mat, hullPoints []geometry.Point, triangles []mesh.Triangle, c color.RGBA) {
	for _, t := range triangles {
		pts := t.Points(hullPoints)
		drawPolyline(img, pts[:], true, c, 1)
	}
}

// DrawHull outlines the convex hull
func DrawHull(img *gocv.Mat, hullPoints []geometry.Point, c color.RGBA) {
	drawPolyline(img, hullPoints, true, c, 2)
}

// DrawBox outlines a detection box
func DrawBox(img *gocv.Mat, box detector.BoundingBox, c color.RGBA) {
	gocv.Rectangle(img, box.Rect(), c, 2)
}

// Annotate returns a copy of the result image with the destination box,
// mesh, hull and landmarks drawn over it. The caller must Close it.
func Annotate(res *pipeline.Result) gocv.Mat {
	out := res.Image.Clone()
	DrawBox(&out, res.DestinationFace.BoundingBox, BoxColor)
	DrawMesh(&out, res.DestinationHull, res.Mesh, MeshColor)
	DrawHull(&out, res.DestinationHull, HullColor)
	DrawLandmarks(&out, &res.DestinationLandmarks, LandmarkColor)
	return out
}

func drawPolyline(img *gocv.Mat, pts []geometry.Point, closed bool, c color.RGBA, thickness int) {
	if len(pts) < 2 {
		return
	}
	for i := 1; i < len(pts); i++ {
		gocv.Line(img, pts[i-1].Round(), pts[i].Round(), c, thickness)
	}
	if closed {
		gocv.Line(img, pts[len(pts)-1].Round(), pts[0].Round(), c, thickness)
	}
}

// SideBySide joins images horizontally, scaling each to the height of the
// first. The caller must Close the result.
func SideBySide(images ...gocv.Mat) gocv.Mat {
	if len(images) == 0 {
		return gocv.NewMat()
	}
	height := images[0].Rows()

	scaled := make([]gocv.Mat, len(images))
	width := 0
	for i, img := range images {
		if img.Rows() == height {
			scaled[i] = img.Clone()
		} else {
			w := max(1, img.Cols()*height/img.Rows())
			scaled[i] = gocv.NewMat()
			gocv.Resize(img, &scaled[i], image.Pt(w, height), 0, 0, gocv.InterpolationArea)
		}
		width += scaled[i].Cols()
	}

	out := gocv.NewMatWithSize(height, width, images[0].Type())
	x := 0
	for _, s := range scaled {
		roi := out.Region(image.Rect(x, 0, x+s.Cols(), height))
		s.CopyTo(&roi)
		roi.Close()
		x += s.Cols()
		s.Close()
	}
	return out
}
