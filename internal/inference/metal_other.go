//go:build !darwin

package inference

// MetalProbe always fails off darwin
func MetalProbe(modelPath string) (*MetalReport, error) {
	return nil, ErrMetalUnavailable
}
