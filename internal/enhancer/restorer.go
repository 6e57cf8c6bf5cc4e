// Package enhancer restores detail in a swapped face with a face restoration
// model (GFPGAN, GPEN-BFR or CodeFormer exported to ONNX).
package enhancer

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/inference"
	"github.com/dudu/faceswap/internal/swapper"
)

const defaultInputSize = 512

// ffhqTemplate is the FFHQ five-point layout on a unit square:
// left eye, right eye, nose, left and right mouth corner as seen in the image.
var ffhqTemplate = [5]geometry.Point{
	{X: 0.37691676, Y: 0.46864664},
	{X: 0.62285697, Y: 0.46912813},
	{X: 0.50123859, Y: 0.61331904},
	{X: 0.39308822, Y: 0.72541100},
	{X: 0.61150205, Y: 0.72490465},
}

// Template returns the five-point alignment target for a size x size crop
func Template(size int) []geometry.Point {
	pts := make([]geometry.Point, len(ffhqTemplate))
	for i, p := range ffhqTemplate {
		pts[i] = geometry.Pt(p.X*float64(size), p.Y*float64(size))
	}
	return pts
}

// Restorer runs a face restoration model on aligned face crops.
// Models take and return an RGB NCHW image normalised to [-1, 1]; a second
// input, when present, is CodeFormer's fidelity weight.
type Restorer struct {
	session   *inference.Session
	inputSize int
	strength  float64

	fidelity     float64
	fidelityType ort.TensorElementDataType
	hasFidelity  bool
}

// NewRestorer loads a restoration model. strength in [0,1] controls how much
// of the restored face replaces the original; fidelity is only used by models
// with a weight input.
func NewRestorer(modelPath string, strength, fidelity float64, threads int) (*Restorer, error) {
	info, err := inference.Inspect(modelPath)
	if err != nil {
		return nil, err
	}
	if len(info.Inputs) == 0 || len(info.Outputs) == 0 {
		return nil, fmt.Errorf("restoration model %s declares no inputs or outputs", modelPath)
	}

	session, err := inference.NewSession(modelPath, info.InputNames(), info.OutputNames()[:1], threads)
	if err != nil {
		return nil, fmt.Errorf("failed to create restoration session: %w", err)
	}

	r := &Restorer{
		session:   session,
		inputSize: inputSize(info.Inputs[0].Shape),
		strength:  strength,
		fidelity:  fidelity,
	}
	if len(info.Inputs) > 1 {
		r.hasFidelity = true
		r.fidelityType = info.Inputs[1].ElementType
	}
	return r, nil
}

// inputSize reads the square spatial size from an NCHW shape, falling back
// to 512 for dynamic dimensions
func inputSize(shape []int64) int {
	if len(shape) == 4 && shape[2] > 0 && shape[2] == shape[3] {
		return int(shape[2])
	}
	return defaultInputSize
}

// Restore aligns the face described by five to the model template, restores
// it and blends it back into a copy of img. The caller must Close the result.
func (r *Restorer) Restore(img gocv.Mat, five detector.Landmarks) (gocv.Mat, error) {
	m, err := swapper.EstimateSimilarity(five.Points(), Template(r.inputSize))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to align face: %w", err)
	}

	crop := swapper.AlignCrop(img, m, r.inputSize)
	defer crop.Close()

	restored, err := r.Enhance(crop)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer restored.Close()

	return swapper.PasteBack(img, restored, m, r.strength)
}

// Enhance restores an aligned face crop. The result has the model's size.
func (r *Restorer) Enhance(face gocv.Mat) (gocv.Mat, error) {
	size := r.inputSize

	// (x - 127.5) / 127.5 in RGB order
	blob := gocv.BlobFromImage(face, 1.0/127.5, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	input, err := inference.BlobTensor(blob, []int64{1, 3, int64(size), int64(size)})
	if err != nil {
		return gocv.NewMat(), err
	}
	defer input.Destroy()

	inputs := []ort.Value{input}
	if r.hasFidelity {
		weight, err := r.fidelityTensor()
		if err != nil {
			return gocv.NewMat(), err
		}
		defer weight.Destroy()
		inputs = append(inputs, weight)
	}

	outputs, err := r.session.RunInputs(inputs)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("face restoration failed: %w", err)
	}
	defer inference.DestroyTensors(outputs)

	return decodeImage(outputs[0].GetData(), size)
}

func (r *Restorer) fidelityTensor() (ort.Value, error) {
	if r.fidelityType == ort.TensorElementDataTypeDouble {
		return ort.NewTensor(ort.NewShape(1), []float64{r.fidelity})
	}
	return ort.NewTensor(ort.NewShape(1), []float32{float32(r.fidelity)})
}

// decodeImage converts an RGB NCHW output in [-1, 1] to a BGR Mat
func decodeImage(output []float32, size int) (gocv.Mat, error) {
	plane := size * size
	if len(output) < 3*plane {
		return gocv.NewMat(), fmt.Errorf("restoration output has %d values, want %d", len(output), 3*plane)
	}

	pixels := make([]byte, plane*3)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := float64(output[c*plane+i])
			v = (math.Max(-1, math.Min(1, v)) + 1) * 127.5
			// channel c is RGB, pixels are BGR
			pixels[i*3+2-c] = uint8(math.Round(v))
		}
	}

	return gocv.NewMatFromBytes(size, size, gocv.MatTypeCV8UC3, pixels)
}

// Close releases resources
func (r *Restorer) Close() error {
	return r.session.Destroy()
}
