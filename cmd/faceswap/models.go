package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/inference"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and download models",
}

var modelsInspectCmd = &cobra.Command{
	Use:   "inspect PATH",
	Short: "Print the inputs and outputs of an ONNX model",
	Long: `Print the inputs, outputs and metadata ONNX Runtime reports for a model.

With --metal the model is also imported with go-metal (macOS only), which
lists the layers it understood.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelsInspect,
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the landmark model if it is missing",
	Long: `Download the configured landmark model (landmarks.url) to
landmarks.model_path. Nothing is downloaded when the file already exists.`,
	RunE: runModelsFetch,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsInspectCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsInspectCmd.Flags().Bool("metal", false, "Also try importing the model with go-metal")
	modelsFetchCmd.Flags().String("url", "", "Download URL (default from config)")
}

func runModelsInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	modelPath := args[0]

	if err := inference.Initialize(cfg.Runtime.LibraryPath); err != nil {
		return err
	}
	defer inference.Shutdown()

	info, err := inference.Inspect(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("Model: %s\n", info.Path)
	if info.Producer != "" {
		fmt.Printf("  Producer: %s (version %d)\n", info.Producer, info.Version)
	}
	fmt.Println("\nInputs:")
	for _, t := range info.Inputs {
		fmt.Printf("  %s %v %s\n", t.Name, t.Shape, t.DataType)
	}
	fmt.Println("\nOutputs:")
	for _, t := range info.Outputs {
		fmt.Printf("  %s %v %s\n", t.Name, t.Shape, t.DataType)
	}

	if !mustGetBool(cmd, "metal") {
		return nil
	}

	fmt.Println("\nAttempting to import with go-metal...")
	report, err := inference.MetalProbe(modelPath)
	if errors.Is(err, inference.ErrMetalUnavailable) {
		fmt.Println("  skipped:", err)
		return nil
	}
	if err != nil {
		fmt.Printf("  failed: %v\n", err)
		return nil
	}
	fmt.Printf("  Layers: %d\n", len(report.Layers))
	fmt.Printf("  Weights: %d tensors\n", report.Weights)
	for i, layer := range report.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}

func runModelsFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	url := cfg.Landmarks.URL
	if v := mustGetString(cmd, "url"); v != "" {
		url = v
	}
	dest := cfg.Landmarks.ModelPath

	if _, err := os.Stat(dest); err == nil {
		fmt.Printf("%s already present\n", dest)
		return nil
	}
	if url == "" {
		return fmt.Errorf("%s is missing and no landmarks.url is configured", dest)
	}

	fmt.Printf("Downloading %s\n", url)
	if err := fetchModel(cmd.Context(), url, dest, os.Stderr); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", dest)
	return nil
}

// fetchModel downloads url to dest through a temporary file so a failed
// download never leaves a truncated model behind. Progress goes to progress.
func fetchModel(ctx context.Context, url, dest string, progress io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid model url: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription(strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowBytes(true),
	)

	if _, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download model: %w", err)
	}
	bar.Finish()
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}
