package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// DefaultLibraryPath is used when no shared library path is configured
const DefaultLibraryPath = "lib/libonnxruntime.so"

var (
	refs   int
	initMu sync.Mutex
)

// Initialize sets up the ONNX Runtime environment. Every successful call must
// be paired with Shutdown; the environment is torn down on the last one.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if refs > 0 {
		refs++
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime (%s): %w", libraryPath, err)
	}

	refs = 1
	return nil
}

// Shutdown releases one reference to the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if refs == 0 {
		return nil
	}
	refs--
	if refs > 0 {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX Runtime environment: %w", err)
	}
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a CPU inference session. Empty name lists are filled
// from the model's own input/output declarations.
func NewSession(modelPath string, inputNames, outputNames []string, threads int) (*Session, error) {
	if !ort.IsInitialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	if len(inputNames) == 0 || len(outputNames) == 0 {
		info, err := Inspect(modelPath)
		if err != nil {
			return nil, err
		}
		if len(inputNames) == 0 {
			inputNames = info.InputNames()
		}
		if len(outputNames) == 0 {
			outputNames = info.OutputNames()
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// InputNames returns the bound input names in order
func (s *Session) InputNames() []string { return s.inputNames }

// OutputNames returns the bound output names in order
func (s *Session) OutputNames() []string { return s.outputNames }

// Run executes inference with the given inputs. Nil entries in outputs are
// allocated by the runtime and must be destroyed by the caller.
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	if err := s.session.Run(inputs, outputs); err != nil {
		return fmt.Errorf("inference on %s failed: %w", s.modelPath, err)
	}
	return nil
}

// RunBlob feeds a single NCHW float blob and returns every output as a
// float32 tensor. The caller must Destroy the returned tensors.
func (s *Session) RunBlob(blob gocv.Mat, shape []int64) ([]*ort.Tensor[float32], error) {
	input, err := BlobTensor(blob, shape)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	return s.RunInputs([]ort.Value{input})
}

// RunInputs runs the session on prepared inputs and returns every output as
// a float32 tensor. The caller must Destroy the returned tensors.
func (s *Session) RunInputs(inputs []ort.Value) ([]*ort.Tensor[float32], error) {
	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.Run(inputs, outputs); err != nil {
		DestroyAll(outputs)
		return nil, err
	}

	tensors := make([]*ort.Tensor[float32], len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			DestroyAll(outputs)
			return nil, fmt.Errorf("output %q is not a float32 tensor", s.outputNames[i])
		}
		tensors[i] = t
	}
	return tensors, nil
}

// BlobTensor copies a CV32F blob into a new tensor of the given shape
func BlobTensor(blob gocv.Mat, shape []int64) (*ort.Tensor[float32], error) {
	data, err := Float32Data(blob)
	if err != nil {
		return nil, err
	}
	input, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return input, nil
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// Float32Data copies the contents of a CV32F Mat into a new slice
func Float32Data(m gocv.Mat) ([]float32, error) {
	ptr, err := m.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return append([]float32(nil), ptr...), nil
}

// DestroyAll destroys every non-nil value
func DestroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// DestroyTensors destroys tensors returned by RunBlob
func DestroyTensors(tensors []*ort.Tensor[float32]) {
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}
