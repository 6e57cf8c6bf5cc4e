package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// YuNet wraps OpenCV's FaceDetectorYN
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // input size is per call state
}

// NewYuNet loads a YuNet ONNX model
func NewYuNet(modelPath string, confThreshold, nmsThreshold float64) (*YuNet, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",
		image.Pt(320, 320), // replaced per image
		float32(confThreshold),
		float32(nmsThreshold),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector}, nil
}

// Detect finds faces in a BGR image, highest score first
func (y *YuNet) Detect(img gocv.Mat) ([]Face, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	y.detector.Detect(img, &out)

	faces := make([]Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		faces = append(faces, yunetRow(func(c int) float64 { return float64(out.GetFloatAt(r, c)) }))
	}
	sortByScore(faces)
	return faces, nil
}

// yunetRow decodes one output row:
// 0-3 box (x, y, w, h), 4-13 five landmarks starting with the subject's
// right eye, 14 score
func yunetRow(at func(c int) float64) Face {
	x, y, w, h := at(0), at(1), at(2), at(3)
	pt := func(i int) geometry.Point {
		return geometry.Point{X: at(4 + i*2), Y: at(5 + i*2)}
	}
	return Face{
		BoundingBox: BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h},
		Landmarks: &Landmarks{
			LeftEye:    pt(0),
			RightEye:   pt(1),
			Nose:       pt(2),
			LeftMouth:  pt(3),
			RightMouth: pt(4),
		},
		Score: at(14),
	}
}

// Close releases detector resources
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}
