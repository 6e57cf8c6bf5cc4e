package inference

import "errors"

// ErrMetalUnavailable is returned by MetalProbe on platforms without Metal
var ErrMetalUnavailable = errors.New("go-metal is only available on darwin")

// MetalLayer is one layer recognised by the go-metal importer
type MetalLayer struct {
	Name string
	Type string
}

// MetalReport summarises a go-metal import
type MetalReport struct {
	Layers  []MetalLayer
	Weights int
}
