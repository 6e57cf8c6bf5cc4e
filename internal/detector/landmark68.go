package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/inference"
)

// Landmark68 predicts 68 facial landmarks with an insightface-style
// landmark model (1k3d68 by default). The face box is expanded 1.5x,
// cropped square around its centre and resized to the model input.
type Landmark68 struct {
	session   *inference.Session
	inputSize int
	inputMean float64
	inputStd  float64
}

// NewLandmark68 loads a 68-point landmark model.
// 1k3d68 normalises inside the graph, so mean 0 and std 1 are typical;
// 2d-style exports usually expect 127.5 and 128.
func NewLandmark68(modelPath string, inputSize int, mean, std float64, threads int) (*Landmark68, error) {
	if std == 0 {
		return nil, fmt.Errorf("landmark input std must not be zero")
	}

	session, err := inference.NewSession(modelPath, nil, nil, threads)
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}

	return &Landmark68{
		session:   session,
		inputSize: inputSize,
		inputMean: mean,
		inputStd:  std,
	}, nil
}

// Predict returns the 68 landmarks of the face inside box, in image coordinates
func (l *Landmark68) Predict(img gocv.Mat, box BoundingBox) (Landmarks68, error) {
	center := box.Center()
	maxDim := max(box.Width(), box.Height())
	if maxDim <= 0 {
		return Landmarks68{}, fmt.Errorf("empty face box %+v", box)
	}
	scale := float64(l.inputSize) / (maxDim * 1.5)

	m := l.cropTransform(center, scale)
	defer m.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, m, image.Pt(l.inputSize, l.inputSize))

	blob := gocv.BlobFromImage(aligned, 1.0/l.inputStd, image.Pt(l.inputSize, l.inputSize),
		gocv.NewScalar(l.inputMean, l.inputMean, l.inputMean, 0), true, false)
	defer blob.Close()

	outputs, err := l.session.RunBlob(blob, []int64{1, 3, int64(l.inputSize), int64(l.inputSize)})
	if err != nil {
		return Landmarks68{}, fmt.Errorf("landmark inference failed: %w", err)
	}
	defer inference.DestroyTensors(outputs)

	return decodeLandmarks(outputs[0].GetData(), l.inputSize, center, scale)
}

// cropTransform maps the image so that center lands in the middle of the
// model input at the given scale
func (l *Landmark68) cropTransform(center geometry.Point, scale float64) gocv.Mat {
	half := float64(l.inputSize) / 2

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, scale)
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, half-center.X*scale)
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, scale)
	m.SetDoubleAt(1, 2, half-center.Y*scale)
	return m
}

// decodeLandmarks turns raw model output into image coordinates.
// Outputs of 3000+ values are (x, y, z) triples, smaller ones (x, y) pairs;
// the landmarks are the last 68 entries, normalised to [-1, 1].
func decodeLandmarks(output []float32, inputSize int, center geometry.Point, scale float64) (Landmarks68, error) {
	var lm Landmarks68

	dims := 2
	if len(output) >= 3000 {
		dims = 3
	}
	n := len(output) / dims
	if n < len(lm) {
		return lm, fmt.Errorf("landmark model returned %d values, need %d points", len(output), len(lm))
	}

	half := float64(inputSize) / 2
	offset := (n - len(lm)) * dims
	for i := range lm {
		x := (float64(output[offset+i*dims]) + 1) * half
		y := (float64(output[offset+i*dims+1]) + 1) * half

		lm[i] = geometry.Point{
			X: (x-half)/scale + center.X,
			Y: (y-half)/scale + center.Y,
		}
	}

	return lm, nil
}

// Close releases predictor resources
func (l *Landmark68) Close() error {
	return l.session.Destroy()
}
