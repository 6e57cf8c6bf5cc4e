package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/inference"
)

// SCRFD implements the insightface SCRFD face detector on ONNX Runtime
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float64
	nmsThreshold   float64
	featureStrides []int
	numAnchors     int
	withKeypoints  bool
}

// NewSCRFD creates a new SCRFD detector. Output names are read from the model,
// which must declare them as [scores..., boxes..., keypoints...] per stride.
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float64, threads int) (*SCRFD, error) {
	session, err := inference.NewSession(modelPath, nil, nil, threads)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	s := &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
	}

	switch n := len(session.OutputNames()); n {
	case 6:
	case 9:
		s.withKeypoints = true
	default:
		session.Destroy()
		return nil, fmt.Errorf("unsupported SCRFD model: expected 6 or 9 outputs, got %d", n)
	}

	return s, nil
}

// Detect finds faces in a BGR image, highest score first
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	blob, scale := s.preprocess(img)
	defer blob.Close()

	outputs, err := s.session.RunBlob(blob, []int64{1, 3, int64(s.inputSize), int64(s.inputSize)})
	if err != nil {
		return nil, fmt.Errorf("SCRFD inference failed: %w", err)
	}
	defer inference.DestroyTensors(outputs)

	levels := make([]scrfdLevel, len(s.featureStrides))
	for i, stride := range s.featureStrides {
		levels[i] = scrfdLevel{
			stride: stride,
			scores: outputs[i].GetData(),
			boxes:  outputs[i+len(s.featureStrides)].GetData(),
		}
		if s.withKeypoints {
			levels[i].kps = outputs[i+2*len(s.featureStrides)].GetData()
		}
	}

	faces := s.postprocess(levels, scale, img.Cols(), img.Rows())
	return nms(faces, s.nmsThreshold), nil
}

// preprocess letterboxes the image into the top-left corner of an
// inputSize square and builds an RGB NCHW blob normalised as (x-127.5)/128
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float64) {
	height := img.Rows()
	width := img.Cols()

	scale := float64(s.inputSize) / float64(max(height, width))

	newWidth := max(1, int(float64(width)*scale))
	newHeight := max(1, int(float64(height)*scale))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()

	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)

	return blob, scale
}

// scrfdLevel holds the raw outputs of one feature stride
type scrfdLevel struct {
	stride int
	scores []float32
	boxes  []float32
	kps    []float32
}

// postprocess decodes distance-encoded boxes and keypoints around anchor
// centres (x*stride, y*stride). Scores are already probabilities.
func (s *SCRFD) postprocess(levels []scrfdLevel, scale float64, origWidth, origHeight int) []Face {
	var faces []Face

	for _, lvl := range levels {
		stride := float64(lvl.stride)
		fmHeight := s.inputSize / lvl.stride
		fmWidth := s.inputSize / lvl.stride

		anchorIdx := 0
		for y := 0; y < fmHeight; y++ {
			for x := 0; x < fmWidth; x++ {
				for a := 0; a < s.numAnchors; a++ {
					if anchorIdx >= len(lvl.scores) || anchorIdx*4+4 > len(lvl.boxes) {
						break
					}
					score := float64(lvl.scores[anchorIdx])

					if score >= s.confThreshold {
						cx := float64(x) * stride
						cy := float64(y) * stride

						b := lvl.boxes[anchorIdx*4 : anchorIdx*4+4]
						face := Face{
							BoundingBox: BoundingBox{
								X1: clamp((cx-float64(b[0])*stride)/scale, 0, float64(origWidth)),
								Y1: clamp((cy-float64(b[1])*stride)/scale, 0, float64(origHeight)),
								X2: clamp((cx+float64(b[2])*stride)/scale, 0, float64(origWidth)),
								Y2: clamp((cy+float64(b[3])*stride)/scale, 0, float64(origHeight)),
							},
							Score: score,
						}

						if anchorIdx*10+10 <= len(lvl.kps) {
							k := lvl.kps[anchorIdx*10 : anchorIdx*10+10]
							pt := func(i int) geometry.Point {
								return geometry.Point{
									X: (cx + float64(k[i*2])*stride) / scale,
									Y: (cy + float64(k[i*2+1])*stride) / scale,
								}
							}
							face.Landmarks = &Landmarks{
								LeftEye:    pt(0),
								RightEye:   pt(1),
								Nose:       pt(2),
								LeftMouth:  pt(3),
								RightMouth: pt(4),
							}
						}

						faces = append(faces, face)
					}
					anchorIdx++
				}
			}
		}
	}

	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
