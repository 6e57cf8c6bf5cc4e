package detector

import (
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
)

// Dlib detects faces with dlib's HOG frontal face detector through go-face.
// modelDir must hold shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
type Dlib struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

// NewDlib loads the dlib models from modelDir
func NewDlib(modelDir string) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelDir, err)
	}
	return &Dlib{rec: rec}, nil
}

// Detect finds faces in a BGR image in dlib's order.
// The image is handed to dlib as a grayscale JPEG.
func (d *Dlib) Detect(img gocv.Mat) ([]Face, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, gray)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for dlib: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	found, err := d.rec.Recognize(buf.GetBytes())
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib detection failed: %w", err)
	}

	faces := make([]Face, 0, len(found))
	for _, f := range found {
		df := Face{BoundingBox: BoxFromRect(f.Rectangle), Score: 1}
		// shape_predictor_5: eye corners (2 per eye) and nose base
		if len(f.Shapes) == 5 {
			mid := func(i, j int) geometry.Point {
				a, b := geometry.FromImagePoint(f.Shapes[i]), geometry.FromImagePoint(f.Shapes[j])
				return geometry.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
			}
			left, right := mid(0, 1), mid(2, 3)
			if left.X > right.X {
				left, right = right, left
			}
			df.Landmarks = &Landmarks{
				LeftEye:  left,
				RightEye: right,
				Nose:     geometry.FromImagePoint(f.Shapes[4]),
			}
		}
		faces = append(faces, df)
	}
	return faces, nil
}

// Close releases the dlib models
func (d *Dlib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Close()
	return nil
}
