package pipeline

import (
	"bytes"
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/geometry"
)

const (
	srcW, srcH = 160, 160
	dstW, dstH = 200, 180
)

var (
	srcBox = detector.BoundingBox{X1: 40, Y1: 30, X2: 120, Y2: 130}
	dstBox = detector.BoundingBox{X1: 50, Y1: 30, X2: 150, Y2: 150}
)

// fakeDetector returns faces keyed by image width
type fakeDetector struct {
	faces    map[int][]detector.Face
	err      error
	closeErr error
	closed   bool
}

func (d *fakeDetector) Detect(img gocv.Mat) ([]detector.Face, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.faces[img.Cols()], nil
}

func (d *fakeDetector) Close() error {
	d.closed = true
	return d.closeErr
}

// fakePredictor lays landmarks on two concentric ellipses inside the box
type fakePredictor struct {
	boxes    []detector.BoundingBox
	err      error
	collapse bool
	closed   bool
}

func (p *fakePredictor) Predict(img gocv.Mat, box detector.BoundingBox) (detector.Landmarks68, error) {
	p.boxes = append(p.boxes, box)
	if p.err != nil {
		return detector.Landmarks68{}, p.err
	}
	return ellipseLandmarks(box, p.collapse), nil
}

func (p *fakePredictor) Close() error {
	p.closed = true
	return nil
}

func ellipseLandmarks(box detector.BoundingBox, collapse bool) detector.Landmarks68 {
	var lm detector.Landmarks68
	c := box.Center()
	rx, ry := box.Width()/2, box.Height()/2
	for i := range lm {
		if collapse {
			// Every point on one horizontal line
			lm[i] = geometry.Pt(box.X1+float64(i), c.Y)
			continue
		}
		ring, k, n := 0.9, i, 24
		if i >= 24 {
			ring, k, n = 0.45, i-24, 44
		}
		angle := 2 * math.Pi * float64(k) / float64(n)
		lm[i] = geometry.Pt(c.X+ring*rx*math.Cos(angle), c.Y+ring*ry*math.Sin(angle))
	}
	return lm
}

func textured(rows, cols int) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.SetUCharAt3(y, x, 0, uint8((x*7+y*3)%256))
			m.SetUCharAt3(y, x, 1, uint8((x*x+y)%256))
			m.SetUCharAt3(y, x, 2, uint8((y*5)%256))
		}
	}
	return m
}

func plain(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 120, 150, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(workers int) (*Pipeline, *fakeDetector, *fakePredictor) {
	det := &fakeDetector{faces: map[int][]detector.Face{
		srcW: {{BoundingBox: srcBox, Score: 0.9}},
		dstW: {{BoundingBox: dstBox, Score: 0.9}},
	}}
	pred := &fakePredictor{}
	return New(det, pred, Config{Workers: workers}, quietLogger()), det, pred
}

func TestSwap_EndToEnd(t *testing.T) {
	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()
	before := dst.ToBytes()

	p, _, _ := newTestPipeline(1)
	res, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	defer res.Close()

	if res.Image.Cols() != dstW || res.Image.Rows() != dstH || res.Image.Type() != gocv.MatTypeCV8UC3 {
		t.Fatalf("output %dx%d type %v, want %dx%d CV8UC3", res.Image.Cols(), res.Image.Rows(), res.Image.Type(), dstW, dstH)
	}
	if res.Triangles == 0 {
		t.Error("expected triangles to be warped")
	}
	if !bytes.Equal(before, dst.ToBytes()) {
		t.Error("Swap modified the destination input")
	}

	rounded := make([]geometry.Point, len(res.DestinationHull))
	for i, pt := range res.DestinationHull {
		rounded[i] = geometry.FromImagePoint(pt.Round())
	}
	outside := geometry.BoundingRect(rounded).Inset(-5)

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			if image.Pt(x, y).In(outside) {
				continue
			}
			got := res.Image.GetVecbAt(y, x)
			want := dst.GetVecbAt(y, x)
			if got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
				t.Fatalf("pixel (%d,%d) = %v outside the face, want %v", x, y, got, want)
			}
		}
	}

	// Something inside the face must have changed
	c := dstBox.Center().Round()
	if v := res.Image.GetVecbAt(c.Y, c.X); v[0] == 90 && v[1] == 120 && v[2] == 150 {
		t.Error("face centre unchanged after swap")
	}
}

func TestSwap_Deterministic(t *testing.T) {
	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()

	p, _, _ := newTestPipeline(1)
	first, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	defer first.Close()

	second, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	defer second.Close()

	if !bytes.Equal(first.Image.ToBytes(), second.Image.ToBytes()) {
		t.Error("repeated swaps differ")
	}

	for _, workers := range []int{2, 4} {
		par, _, _ := newTestPipeline(workers)
		res, err := par.Swap(src, dst)
		if err != nil {
			t.Fatalf("Swap with %d workers failed: %v", workers, err)
		}
		if !bytes.Equal(first.Image.ToBytes(), res.Image.ToBytes()) {
			t.Errorf("workers=%d output differs from sequential", workers)
		}
		res.Close()
	}
}

func TestSwap_NoFaceDetected(t *testing.T) {
	tests := []struct {
		name  string
		faces map[int][]detector.Face
		image string
	}{
		{
			name:  "source",
			faces: map[int][]detector.Face{dstW: {{BoundingBox: dstBox}}},
			image: "source",
		},
		{
			name:  "destination",
			faces: map[int][]detector.Face{srcW: {{BoundingBox: srcBox}}},
			image: "destination",
		},
		{
			name:  "both",
			faces: map[int][]detector.Face{},
			image: "source",
		},
	}

	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := &fakePredictor{}
			p := New(&fakeDetector{faces: tt.faces}, pred, Config{}, quietLogger())

			res, err := p.Swap(src, dst)
			if res != nil {
				res.Close()
				t.Error("expected no result")
			}
			if !errors.Is(err, ErrNoFaceDetected) {
				t.Fatalf("expected ErrNoFaceDetected, got %v", err)
			}
			var detErr *DetectionError
			if !errors.As(err, &detErr) || detErr.Image != tt.image {
				t.Errorf("expected DetectionError for %s image, got %v", tt.image, err)
			}
			if len(pred.boxes) != 0 {
				t.Error("predictor must not run without faces")
			}
		})
	}
}

func TestSwap_UsesFirstFace(t *testing.T) {
	other := detector.BoundingBox{X1: 0, Y1: 0, X2: 40, Y2: 40}
	det := &fakeDetector{faces: map[int][]detector.Face{
		srcW: {{BoundingBox: srcBox}, {BoundingBox: other}},
		dstW: {{BoundingBox: dstBox}, {BoundingBox: other}},
	}}
	pred := &fakePredictor{}
	p := New(det, pred, Config{}, quietLogger())

	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()

	res, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	defer res.Close()

	if len(pred.boxes) != 2 || pred.boxes[0] != srcBox || pred.boxes[1] != dstBox {
		t.Errorf("predictor saw boxes %v, want [%v %v]", pred.boxes, srcBox, dstBox)
	}
}

func TestSwap_Errors(t *testing.T) {
	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()

	t.Run("detector failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		p := New(&fakeDetector{err: boom}, &fakePredictor{}, Config{}, quietLogger())
		_, err := p.Swap(src, dst)
		if !errors.Is(err, boom) || errors.Is(err, ErrNoFaceDetected) {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("predictor failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		p, _, pred := newTestPipeline(1)
		pred.err = boom
		_, err := p.Swap(src, dst)
		if !errors.Is(err, boom) || !strings.Contains(err.Error(), "source landmarks") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("collinear landmarks", func(t *testing.T) {
		p, _, pred := newTestPipeline(1)
		pred.collapse = true
		_, err := p.Swap(src, dst)
		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Errorf("expected ErrDegenerateGeometry, got %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		p, _, _ := newTestPipeline(1)
		empty := gocv.NewMat()
		defer empty.Close()
		if _, err := p.Swap(empty, dst); err == nil {
			t.Error("expected an error for an empty source")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		p, _, _ := newTestPipeline(1)
		gray := gocv.NewMatWithSize(dstH, dstW, gocv.MatTypeCV8U)
		defer gray.Close()
		if _, err := p.Swap(src, gray); err == nil {
			t.Error("expected an error for a single channel destination")
		}
	})
}

func TestDetectionErrorMessage(t *testing.T) {
	err := &DetectionError{Image: "destination"}
	if err.Error() != "could not detect a face in the destination image" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestClose(t *testing.T) {
	det := &fakeDetector{closeErr: errors.New("detector close failed")}
	pred := &fakePredictor{}
	p := New(det, pred, Config{}, nil)

	err := p.Close()
	if err == nil || !strings.Contains(err.Error(), "detector close failed") {
		t.Errorf("expected aggregated close error, got %v", err)
	}
	if !det.closed || !pred.closed {
		t.Error("expected detector and predictor to be closed")
	}
}

// fakeRestorer inverts the image and records the landmarks it was given
type fakeRestorer struct {
	five   []detector.Landmarks
	err    error
	closed bool
}

func (r *fakeRestorer) Restore(img gocv.Mat, five detector.Landmarks) (gocv.Mat, error) {
	r.five = append(r.five, five)
	if r.err != nil {
		return gocv.NewMat(), r.err
	}
	out := gocv.NewMat()
	gocv.BitwiseNot(img, &out)
	return out, nil
}

func (r *fakeRestorer) Close() error {
	r.closed = true
	return nil
}

func TestSwap_Restorer(t *testing.T) {
	src := textured(srcH, srcW)
	defer src.Close()
	dst := plain(dstH, dstW)
	defer dst.Close()

	p, _, _ := newTestPipeline(1)
	plainRes, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	defer plainRes.Close()

	restorer := &fakeRestorer{}
	p.SetRestorer(restorer)
	res, err := p.Swap(src, dst)
	if err != nil {
		t.Fatalf("Swap with restorer failed: %v", err)
	}
	defer res.Close()

	if len(restorer.five) != 1 || restorer.five[0] != res.DestinationLandmarks.FivePoint() {
		t.Errorf("restorer saw %v, want the destination five-point landmarks", restorer.five)
	}
	got := res.Image.GetVecbAt(0, 0)
	want := plainRes.Image.GetVecbAt(0, 0)
	if got[0] != 255-want[0] {
		t.Errorf("expected the restored image to replace the blend, got %v from %v", got, want)
	}

	restorer.err = errors.New("restore failed")
	if _, err := p.Swap(src, dst); !errors.Is(err, restorer.err) {
		t.Errorf("expected the restore error to be wrapped, got %v", err)
	}

	p.Close()
	if !restorer.closed {
		t.Error("Close must close the restorer")
	}
}
