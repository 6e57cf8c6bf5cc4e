package detector

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// PigoParams tunes the cascade search
type PigoParams struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float64
}

// DefaultPigoParams returns the usual cascade settings
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// Pigo is a pure-Go pixel intensity comparison detector.
// The unpacked classifier is read-only and safe for concurrent use.
type Pigo struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// NewPigo unpacks a pigo facefinder cascade file
func NewPigo(cascadePath string, params PigoParams) (*Pigo, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	return &Pigo{classifier: classifier, params: params}, nil
}

// Detect finds faces in a BGR image, highest quality first
func (p *Pigo) Detect(img gocv.Mat) ([]Face, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	cParams := pigo.CascadeParams{
		MinSize:     p.params.MinSize,
		MaxSize:     p.params.MaxSize,
		ShiftFactor: p.params.ShiftFactor,
		ScaleFactor: p.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   gray.Rows(),
			Cols:   gray.Cols(),
			Dim:    gray.Cols(),
		},
	}

	dets := p.classifier.RunCascade(cParams, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.params.IoUThreshold)

	return pigoFaces(dets, p.params.MinQuality), nil
}

// pigoFaces converts clustered detections to faces. Row/Col is the
// detection centre and Scale its side length.
func pigoFaces(dets []pigo.Detection, minQuality float64) []Face {
	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < minQuality {
			continue
		}
		half := float64(det.Scale) / 2
		faces = append(faces, Face{
			BoundingBox: BoundingBox{
				X1: float64(det.Col) - half,
				Y1: float64(det.Row) - half,
				X2: float64(det.Col) + half,
				Y2: float64(det.Row) + half,
			},
			Score: float64(det.Q),
		})
	}
	sortByScore(faces)
	return faces
}

// Close is a no-op; the classifier holds no native resources
func (p *Pigo) Close() error {
	return nil
}
