package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/inference"
	"github.com/dudu/faceswap/internal/mesh"
	"github.com/dudu/faceswap/internal/swapper"
)

// Config holds pipeline configuration
type Config struct {
	Workers       int  // triangle warp workers, <=1 = sequential
	ColorTransfer bool // match the new face's Lab statistics to the destination before cloning
}

// Timing holds performance timing information
type Timing struct {
	Detection     time.Duration
	Landmarks     time.Duration
	Triangulation time.Duration
	Warp          time.Duration
	Blend         time.Duration
	Restore       time.Duration
	Total         time.Duration
}

// Result is the outcome of one swap. Image is owned by the caller.
type Result struct {
	Image            gocv.Mat
	Timing           Timing
	Triangles        int // triangles warped
	SkippedTriangles int // degenerate triangles left out

	SourceFace           detector.Face
	DestinationFace      detector.Face
	SourceLandmarks      detector.Landmarks68
	DestinationLandmarks detector.Landmarks68
	DestinationHull      []geometry.Point
	Mesh                 []mesh.Triangle
}

// Close releases the output image
func (r *Result) Close() error {
	return r.Image.Close()
}

// Pipeline orchestrates the face swap process.
// It keeps no per-call state, so one Pipeline may serve concurrent swaps
// as long as its detector and predictor allow it.
type Pipeline struct {
	config      Config
	detector    FaceDetector
	predictor   LandmarkPredictor
	restorer    FaceRestorer
	logger      *slog.Logger
	ownsRuntime bool
}

// New creates a pipeline around an existing detector and predictor.
// Close closes both.
func New(det FaceDetector, pred LandmarkPredictor, config Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:    config,
		detector:  det,
		predictor: pred,
		logger:    logger,
	}
}

// SetRestorer enables face restoration after blending. Close closes it.
func (p *Pipeline) SetRestorer(r FaceRestorer) {
	p.restorer = r
}

// Swap transplants the first face found in source onto the first face found
// in destination. Neither input is modified.
func (p *Pipeline) Swap(source, destination gocv.Mat) (*Result, error) {
	totalStart := time.Now()
	var timing Timing

	if err := checkImage("source", source); err != nil {
		return nil, err
	}
	if err := checkImage("destination", destination); err != nil {
		return nil, err
	}

	// Detect faces
	detectStart := time.Now()
	srcFace, err := p.firstFace("source", source)
	if err != nil {
		return nil, err
	}
	dstFace, err := p.firstFace("destination", destination)
	if err != nil {
		return nil, err
	}
	timing.Detection = time.Since(detectStart)

	// Landmarks
	landmarkStart := time.Now()
	srcLandmarks, err := p.predictor.Predict(source, srcFace.BoundingBox)
	if err != nil {
		return nil, fmt.Errorf("failed to predict source landmarks: %w", err)
	}
	dstLandmarks, err := p.predictor.Predict(destination, dstFace.BoundingBox)
	if err != nil {
		return nil, fmt.Errorf("failed to predict destination landmarks: %w", err)
	}
	timing.Landmarks = time.Since(landmarkStart)

	// Hull and mesh over the destination, mirrored onto the source
	triStart := time.Now()
	hull := mesh.BuildHull(dstLandmarks.Points())
	srcHull := hull.Select(srcLandmarks.Points())

	size := image.Pt(destination.Cols(), destination.Rows())
	triangles, err := mesh.Triangulate(hull.Points, image.Rectangle{Max: size})
	if err != nil {
		return nil, fmt.Errorf("failed to triangulate destination hull: %w", err)
	}

	kept, skipped := mesh.Filter(triangles, srcHull, hull.Points)
	if len(skipped) > 0 {
		p.logger.Warn("skipping degenerate triangles",
			"skipped", len(skipped),
			"total", len(triangles),
		)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: all %d triangles are degenerate", ErrDegenerateGeometry, len(triangles))
	}
	timing.Triangulation = time.Since(triStart)

	// Warp every triangle into the new-face buffer
	warpStart := time.Now()
	newFace := swapper.WarpMesh(source, srcHull, hull.Points, kept, size, p.config.Workers)
	defer newFace.Close()
	timing.Warp = time.Since(warpStart)

	// Blend
	blendStart := time.Now()
	if p.config.ColorTransfer {
		mask, _ := swapper.HullMask(hull.Points, size)
		swapper.ColorTransfer(&newFace, destination, mask)
		mask.Close()
	}

	output, err := swapper.SeamlessBlend(newFace, destination, hull.Points)
	if err != nil {
		output.Close()
		if errors.Is(err, swapper.ErrEmptyMask) {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
		}
		return nil, fmt.Errorf("failed to blend face: %w", err)
	}
	timing.Blend = time.Since(blendStart)

	if p.restorer != nil {
		restoreStart := time.Now()
		restored, err := p.restorer.Restore(output, dstLandmarks.FivePoint())
		output.Close()
		if err != nil {
			restored.Close()
			return nil, fmt.Errorf("failed to restore face: %w", err)
		}
		output = restored
		timing.Restore = time.Since(restoreStart)
	}

	timing.Total = time.Since(totalStart)

	p.logger.Debug("swap complete",
		"triangles", len(kept),
		"skipped", len(skipped),
		"detection", timing.Detection,
		"landmarks", timing.Landmarks,
		"warp", timing.Warp,
		"blend", timing.Blend,
		"restore", timing.Restore,
		"total", timing.Total,
	)

	return &Result{
		Image:                output,
		Timing:               timing,
		Triangles:            len(kept),
		SkippedTriangles:     len(skipped),
		SourceFace:           srcFace,
		DestinationFace:      dstFace,
		SourceLandmarks:      srcLandmarks,
		DestinationLandmarks: dstLandmarks,
		DestinationHull:      hull.Points,
		Mesh:                 kept,
	}, nil
}

// firstFace runs detection and keeps only the first region
func (p *Pipeline) firstFace(name string, img gocv.Mat) (detector.Face, error) {
	faces, err := p.detector.Detect(img)
	if err != nil {
		return detector.Face{}, fmt.Errorf("failed to detect faces in %s image: %w", name, err)
	}
	if len(faces) == 0 {
		return detector.Face{}, &DetectionError{Image: name}
	}
	if len(faces) > 1 {
		p.logger.Debug("multiple faces detected, using the first", "image", name, "faces", len(faces))
	}
	return faces[0], nil
}

func checkImage(name string, img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("%s image is empty", name)
	}
	if img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%s image must be 8-bit BGR, got %v", name, img.Type())
	}
	return nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.predictor != nil {
		if err := p.predictor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.restorer != nil {
		if err := p.restorer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.ownsRuntime {
		if err := inference.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
