package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
)

// FaceDetector finds face regions in a BGR image.
// Implementations return the preferred face first.
type FaceDetector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
	Close() error
}

// LandmarkPredictor locates the 68 facial landmarks inside a face region
type LandmarkPredictor interface {
	Predict(img gocv.Mat, box detector.BoundingBox) (detector.Landmarks68, error)
	Close() error
}

// FaceRestorer sharpens the swapped face in place of the blended one.
// Restore returns a new image the caller must Close.
type FaceRestorer interface {
	Restore(img gocv.Mat, five detector.Landmarks) (gocv.Mat, error)
	Close() error
}
