package inference

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name        string
	Shape       []int64
	DataType    string
	ElementType ort.TensorElementDataType
}

// ModelInfo is what ONNX Runtime reports about a model file
type ModelInfo struct {
	Path     string
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Producer string
	Version  int64
}

// InputNames returns the input names in declaration order
func (m *ModelInfo) InputNames() []string {
	return names(m.Inputs)
}

// OutputNames returns the output names in declaration order
func (m *ModelInfo) OutputNames() []string {
	return names(m.Outputs)
}

// Inspect reads input/output declarations and metadata from an ONNX file.
// The runtime must be initialized.
func Inspect(modelPath string) (*ModelInfo, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}

	info := &ModelInfo{
		Path:    modelPath,
		Inputs:  convertInfo(inputs),
		Outputs: convertInfo(outputs),
	}

	// Metadata is informational only
	if metadata, err := ort.GetModelMetadata(modelPath); err == nil {
		if producer, err := metadata.GetProducerName(); err == nil {
			info.Producer = producer
		}
		if version, err := metadata.GetVersion(); err == nil {
			info.Version = version
		}
		metadata.Destroy()
	}

	return info, nil
}

func convertInfo(in []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(in))
	for i, info := range in {
		out[i] = TensorInfo{
			Name:        info.Name,
			Shape:       append([]int64(nil), info.Dimensions...),
			DataType:    fmt.Sprintf("%v", info.DataType),
			ElementType: info.DataType,
		}
	}
	return out
}

func names(infos []TensorInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}
