package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Detector backends
const (
	BackendSCRFD = "scrfd"
	BackendYuNet = "yunet"
	BackendPigo  = "pigo"
	BackendDlib  = "dlib"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Detector  DetectorConfig  `yaml:"detector"`
	Landmarks LandmarksConfig `yaml:"landmarks"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Swap      SwapConfig      `yaml:"swap"`
	Restore   RestoreConfig   `yaml:"restore"`
	Server    ServerConfig    `yaml:"server"`
}

type DetectorConfig struct {
	Backend       string  `yaml:"backend"`    // scrfd, yunet, pigo or dlib
	ModelPath     string  `yaml:"model_path"` // ONNX model, pigo cascade or dlib model directory
	InputSize     int     `yaml:"input_size"` // SCRFD letterbox size
	ConfThreshold float64 `yaml:"conf_threshold"`
	NMSThreshold  float64 `yaml:"nms_threshold"`
	MinFaceSize   int     `yaml:"min_face_size"` // pigo only
	MinQuality    float64 `yaml:"min_quality"`   // pigo only
}

type LandmarksConfig struct {
	ModelPath string  `yaml:"model_path"`
	URL       string  `yaml:"url"` // download source for `models fetch`
	InputSize int     `yaml:"input_size"`
	Mean      float64 `yaml:"mean"`
	Std       float64 `yaml:"std"`
}

type RuntimeConfig struct {
	LibraryPath string `yaml:"library_path"` // onnxruntime shared library
	Threads     int    `yaml:"threads"`      // intra-op threads, 0 = runtime default
}

type SwapConfig struct {
	Workers       int    `yaml:"workers"`       // triangle warp workers, <=1 = sequential
	MaxDimension  int    `yaml:"max_dimension"` // downscale inputs above this size, 0 = never
	ColorTransfer bool   `yaml:"color_transfer"`
	Format        string `yaml:"format"` // png or jpeg
	JPEGQuality   int    `yaml:"jpeg_quality"`
}

// RestoreConfig enables face restoration after blending when ModelPath is set
type RestoreConfig struct {
	ModelPath string  `yaml:"model_path"` // GFPGAN, GPEN-BFR or CodeFormer ONNX model
	Strength  float64 `yaml:"strength"`   // 0 keeps the blended face, 1 uses the restored one
	Fidelity  float64 `yaml:"fidelity"`   // CodeFormer weight
}

// Enabled reports whether a restoration model is configured
func (r RestoreConfig) Enabled() bool {
	return r.ModelPath != ""
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogLevel: "info",
		Detector: DetectorConfig{
			Backend:       BackendSCRFD,
			ModelPath:     "models/scrfd_2.5g_bnkps.onnx",
			InputSize:     640,
			ConfThreshold: 0.5,
			NMSThreshold:  0.4,
			MinFaceSize:   20,
			MinQuality:    5.0,
		},
		Landmarks: LandmarksConfig{
			ModelPath: "models/1k3d68.onnx",
			InputSize: 192,
			Mean:      0,
			Std:       1,
		},
		Runtime: RuntimeConfig{
			LibraryPath: "lib/libonnxruntime.so",
		},
		Swap: SwapConfig{
			Workers:     1,
			Format:      "png",
			JPEGQuality: 95,
		},
		Restore: RestoreConfig{
			Strength: 0.8,
			Fidelity: 0.7,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadMB:    20,
			TimeoutSeconds: 60,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// FACESWAP_* environment variables, in that order of precedence.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = envString("FACESWAP_LOG_LEVEL", cfg.LogLevel)

	cfg.Detector.Backend = envString("FACESWAP_DETECTOR", cfg.Detector.Backend)
	cfg.Detector.ModelPath = envString("FACESWAP_DETECTOR_MODEL", cfg.Detector.ModelPath)
	cfg.Detector.InputSize = envInt("FACESWAP_DETECTOR_INPUT_SIZE", cfg.Detector.InputSize)
	cfg.Detector.ConfThreshold = envFloat("FACESWAP_DETECTOR_CONF", cfg.Detector.ConfThreshold)

	cfg.Landmarks.ModelPath = envString("FACESWAP_LANDMARK_MODEL", cfg.Landmarks.ModelPath)
	cfg.Landmarks.URL = envString("FACESWAP_LANDMARK_URL", cfg.Landmarks.URL)

	cfg.Runtime.LibraryPath = envString("FACESWAP_ORT_LIBRARY", cfg.Runtime.LibraryPath)
	cfg.Runtime.Threads = envInt("FACESWAP_ORT_THREADS", cfg.Runtime.Threads)

	cfg.Swap.Workers = envInt("FACESWAP_WORKERS", cfg.Swap.Workers)
	cfg.Swap.MaxDimension = envInt("FACESWAP_MAX_DIMENSION", cfg.Swap.MaxDimension)

	cfg.Restore.ModelPath = envString("FACESWAP_RESTORE_MODEL", cfg.Restore.ModelPath)
	cfg.Restore.Strength = envFloat("FACESWAP_RESTORE_STRENGTH", cfg.Restore.Strength)

	cfg.Server.Addr = envString("FACESWAP_ADDR", cfg.Server.Addr)
	cfg.Server.MaxUploadMB = envInt("FACESWAP_MAX_UPLOAD_MB", cfg.Server.MaxUploadMB)
}

// Validate rejects settings the pipeline cannot run with
func (c Config) Validate() error {
	var errs []error

	switch c.Detector.Backend {
	case BackendSCRFD, BackendYuNet, BackendPigo, BackendDlib:
	default:
		errs = append(errs, fmt.Errorf("unknown detector backend %q", c.Detector.Backend))
	}
	if c.Detector.Backend == BackendSCRFD && (c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0) {
		errs = append(errs, fmt.Errorf("detector input_size must be a positive multiple of 32, got %d", c.Detector.InputSize))
	}
	if c.Landmarks.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("landmarks input_size must be positive, got %d", c.Landmarks.InputSize))
	}
	if c.Landmarks.Std == 0 {
		errs = append(errs, errors.New("landmarks std must not be zero"))
	}
	if c.Swap.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("swap max_dimension must not be negative, got %d", c.Swap.MaxDimension))
	}
	switch strings.ToLower(c.Swap.Format) {
	case "png", "jpeg", "jpg":
	default:
		errs = append(errs, fmt.Errorf("unsupported output format %q", c.Swap.Format))
	}
	if c.Restore.Strength < 0 || c.Restore.Strength > 1 {
		errs = append(errs, fmt.Errorf("restore strength must be within [0, 1], got %g", c.Restore.Strength))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	return errors.Join(errs...)
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}
