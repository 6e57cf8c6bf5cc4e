//go:build darwin

package inference

import (
	"fmt"

	"github.com/tsawler/go-metal/checkpoints"
)

// MetalProbe tries to import an ONNX model with go-metal and reports the
// layers it understood. go-metal supports a small operator set, so most
// detector and landmark models are expected to fail here.
func MetalProbe(modelPath string) (*MetalReport, error) {
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		return nil, fmt.Errorf("go-metal could not import %s: %w", modelPath, err)
	}

	report := &MetalReport{
		Weights: len(checkpoint.Weights),
		Layers:  make([]MetalLayer, 0, len(checkpoint.ModelSpec.Layers)),
	}
	for _, layer := range checkpoint.ModelSpec.Layers {
		report.Layers = append(report.Layers, MetalLayer{
			Name: layer.Name,
			Type: fmt.Sprintf("%v", layer.Type),
		})
	}
	return report, nil
}
