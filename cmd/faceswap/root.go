package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "faceswap",
	Short: "Swap a face from one photo onto another",
	Long: `faceswap detects a face in a source and a destination photo, fits 68
facial landmarks to each, warps the source face onto the destination
triangle by triangle and blends it in with seamless cloning.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("detector", "", "Face detector backend: scrfd, yunet, pigo or dlib")
	pf.String("detector-model", "", "Detector model file or directory")
	pf.String("landmark-model", "", "68-point landmark ONNX model")
	pf.String("ort-library", "", "Path to the onnxruntime shared library")
	pf.Int("workers", 0, "Triangle warp workers (1 = sequential)")
	pf.Int("max-dimension", 0, "Downscale inputs whose longest side exceeds this")
	pf.Bool("color-transfer", false, "Match the source face colour to the destination before blending")
	pf.String("restore-model", "", "Face restoration ONNX model (GFPGAN, GPEN or CodeFormer) applied after blending")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration file and environment, then applies
// any flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(mustGetString(cmd, "config"))
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") && mustGetBool(cmd, "verbose") {
		cfg.LogLevel = "debug"
	}
	if flags.Changed("detector") {
		cfg.Detector.Backend = mustGetString(cmd, "detector")
	}
	if flags.Changed("detector-model") {
		cfg.Detector.ModelPath = mustGetString(cmd, "detector-model")
	}
	if flags.Changed("landmark-model") {
		cfg.Landmarks.ModelPath = mustGetString(cmd, "landmark-model")
	}
	if flags.Changed("ort-library") {
		cfg.Runtime.LibraryPath = mustGetString(cmd, "ort-library")
	}
	if flags.Changed("workers") {
		cfg.Swap.Workers = mustGetInt(cmd, "workers")
	}
	if flags.Changed("max-dimension") {
		cfg.Swap.MaxDimension = mustGetInt(cmd, "max-dimension")
	}
	if flags.Changed("color-transfer") {
		cfg.Swap.ColorTransfer = mustGetBool(cmd, "color-transfer")
	}
	if flags.Changed("restore-model") {
		cfg.Restore.ModelPath = mustGetString(cmd, "restore-model")
	}

	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
