package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/enhancer"
	"github.com/dudu/faceswap/internal/inference"
)

// Open builds a pipeline from configuration: ONNX Runtime, the configured
// detector backend and the 68-point landmark model.
func Open(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := inference.Initialize(cfg.Runtime.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	det, err := NewDetector(cfg.Detector, cfg.Runtime.Threads)
	if err != nil {
		inference.Shutdown()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	pred, err := detector.NewLandmark68(
		cfg.Landmarks.ModelPath,
		cfg.Landmarks.InputSize,
		cfg.Landmarks.Mean,
		cfg.Landmarks.Std,
		cfg.Runtime.Threads,
	)
	if err != nil {
		det.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("failed to create landmark predictor: %w", err)
	}

	var restorer *enhancer.Restorer
	if cfg.Restore.Enabled() {
		restorer, err = enhancer.NewRestorer(cfg.Restore.ModelPath, cfg.Restore.Strength, cfg.Restore.Fidelity, cfg.Runtime.Threads)
		if err != nil {
			pred.Close()
			det.Close()
			inference.Shutdown()
			return nil, fmt.Errorf("failed to create face restorer: %w", err)
		}
	}

	logger.Info("pipeline ready",
		"detector", cfg.Detector.Backend,
		"detector_model", cfg.Detector.ModelPath,
		"landmark_model", cfg.Landmarks.ModelPath,
		"restore_model", cfg.Restore.ModelPath,
		"workers", cfg.Swap.Workers,
	)

	p := New(det, pred, Config{
		Workers:       cfg.Swap.Workers,
		ColorTransfer: cfg.Swap.ColorTransfer,
	}, logger)
	if restorer != nil {
		p.SetRestorer(restorer)
	}
	p.ownsRuntime = true
	return p, nil
}

// NewDetector creates the configured face detector backend
func NewDetector(cfg config.DetectorConfig, threads int) (FaceDetector, error) {
	switch cfg.Backend {
	case config.BackendSCRFD:
		return detector.NewSCRFD(cfg.ModelPath, cfg.InputSize, cfg.ConfThreshold, cfg.NMSThreshold, threads)
	case config.BackendYuNet:
		return detector.NewYuNet(cfg.ModelPath, cfg.ConfThreshold, cfg.NMSThreshold)
	case config.BackendPigo:
		params := detector.DefaultPigoParams()
		if cfg.MinFaceSize > 0 {
			params.MinSize = cfg.MinFaceSize
		}
		params.MinQuality = cfg.MinQuality
		return detector.NewPigo(cfg.ModelPath, params)
	case config.BackendDlib:
		return detector.NewDlib(cfg.ModelPath)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}
