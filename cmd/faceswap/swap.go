package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/imageio"
	"github.com/dudu/faceswap/internal/pipeline"
	"github.com/dudu/faceswap/internal/preview"
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap the source face onto the destination photo",
	Long: `Swap the first face found in the source photo onto the first face found
in the destination photo and write the result.

Examples:
  faceswap swap --source me.jpg --dest group.jpg
  faceswap swap -s me.jpg -d group.jpg -o out.jpg --preview
  faceswap swap -s me.jpg -d group.jpg --debug-mesh mesh.png`,
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringP("source", "s", "", "Photo providing the face (required)")
	swapCmd.Flags().StringP("dest", "d", "", "Photo receiving the face (required)")
	swapCmd.Flags().StringP("out", "o", "swapped.png", "Output file, .png or .jpg")
	swapCmd.Flags().BoolP("preview", "p", false, "Show the result in a window")
	swapCmd.Flags().String("debug-mesh", "", "Also write the result with landmarks and mesh drawn over it")
	swapCmd.MarkFlagRequired("source")
	swapCmd.MarkFlagRequired("dest")
}

func runSwap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	sourcePath := mustGetString(cmd, "source")
	destPath := mustGetString(cmd, "dest")
	outPath := mustGetString(cmd, "out")
	meshPath := mustGetString(cmd, "debug-mesh")

	source, err := imageio.DecodeFile(sourcePath, cfg.Swap.MaxDimension)
	if err != nil {
		return fmt.Errorf("failed to load source image: %w", err)
	}
	defer source.Close()

	destination, err := imageio.DecodeFile(destPath, cfg.Swap.MaxDimension)
	if err != nil {
		return fmt.Errorf("failed to load destination image: %w", err)
	}
	defer destination.Close()

	fmt.Println("Initializing pipeline...")
	p, err := pipeline.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Swap(source, destination)
	if err != nil {
		var detErr *pipeline.DetectionError
		if errors.As(err, &detErr) {
			return fmt.Errorf("%s (try another photo or detector backend)", detErr.Error())
		}
		return err
	}
	defer result.Close()

	if err := imageio.WriteFile(outPath, result.Image, cfg.Swap.JPEGQuality); err != nil {
		return err
	}
	fmt.Printf("Swapped %d triangles in %v -> %s\n", result.Triangles, result.Timing.Total, outPath)
	if result.SkippedTriangles > 0 {
		fmt.Printf("  %d degenerate triangles skipped\n", result.SkippedTriangles)
	}

	annotated := preview.Annotate(result)
	defer annotated.Close()

	if meshPath != "" {
		if err := imageio.WriteFile(meshPath, annotated, cfg.Swap.JPEGQuality); err != nil {
			return err
		}
		fmt.Printf("Mesh overlay -> %s\n", meshPath)
	}

	if mustGetBool(cmd, "preview") {
		side := preview.SideBySide(source, destination, result.Image)
		defer side.Close()

		window := preview.NewWindow("faceswap")
		defer window.Close()

		fmt.Println("Press 'm' to toggle the mesh, 'q' or ESC to quit")
		window.Toggle(side, annotated, result.Timing.Total)
	}

	return nil
}
