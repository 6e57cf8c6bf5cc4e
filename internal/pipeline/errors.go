package pipeline

import (
	"errors"
	"fmt"

	"github.com/dudu/faceswap/internal/mesh"
)

// ErrNoFaceDetected is returned when the detector finds no face in an input
var ErrNoFaceDetected = errors.New("no face detected")

// ErrDegenerateGeometry is returned when the landmarks cannot form a mesh
var ErrDegenerateGeometry = mesh.ErrDegenerateGeometry

// DetectionError names the input image in which no face was found
type DetectionError struct {
	Image string // "source" or "destination"
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("could not detect a face in the %s image", e.Image)
}

func (e *DetectionError) Unwrap() error {
	return ErrNoFaceDetected
}
