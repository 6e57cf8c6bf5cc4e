package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageio"
	"github.com/dudu/faceswap/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch DEST...",
	Short: "Swap one source face onto many destination photos",
	Long: `Swap the source face onto every destination photo, writing
<name>_swapped.<ext> files into the output directory.

Examples:
  faceswap batch --source me.jpg --out-dir out/ photos/*.jpg
  faceswap batch -s me.jpg --out-dir out/ --concurrency 4 --format jpeg a.png b.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("source", "s", "", "Photo providing the face (required)")
	batchCmd.Flags().String("out-dir", "swapped", "Directory for the results")
	batchCmd.Flags().Int("concurrency", 2, "Number of photos processed at once")
	batchCmd.Flags().String("format", "", "Output format, png or jpeg (default from config)")
	batchCmd.MarkFlagRequired("source")
}

type batchResult struct {
	dest string
	out  string
	err  error
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	formatName := cfg.Swap.Format
	if v := mustGetString(cmd, "format"); v != "" {
		formatName = v
	}
	format, err := imageio.ParseFormat(formatName)
	if err != nil {
		return err
	}

	outDir := mustGetString(cmd, "out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	source, err := imageio.DecodeFile(mustGetString(cmd, "source"), cfg.Swap.MaxDimension)
	if err != nil {
		return fmt.Errorf("failed to load source image: %w", err)
	}
	defer source.Close()

	p, err := pipeline.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Swapping"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	jobs := make(chan string)
	results := make(chan batchResult, concurrency)
	var wg sync.WaitGroup

	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dest := range jobs {
				out := batchOutputPath(outDir, dest, format)
				results <- batchResult{
					dest: dest,
					out:  out,
					err:  swapOne(p, source, dest, out, cfg.Swap.MaxDimension, cfg.Swap.JPEGQuality),
				}
			}
		}()
	}

	go func() {
		for _, dest := range args {
			jobs <- dest
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed []batchResult
	noFace := 0
	for res := range results {
		bar.Add(1)
		if res.err != nil {
			if errors.Is(res.err, pipeline.ErrNoFaceDetected) {
				noFace++
			}
			failed = append(failed, res)
		}
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	fmt.Printf("Swapped %d of %d photos into %s\n", len(args)-len(failed), len(args), outDir)
	for _, res := range failed {
		fmt.Printf("  %s: %v\n", res.dest, res.err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d photos failed (%d without a detectable face)", len(failed), noFace)
	}
	return nil
}

func swapOne(p *pipeline.Pipeline, source gocv.Mat, destPath, outPath string, maxDim, quality int) error {
	destination, err := imageio.DecodeFile(destPath, maxDim)
	if err != nil {
		return err
	}
	defer destination.Close()

	result, err := p.Swap(source, destination)
	if err != nil {
		return err
	}
	defer result.Close()

	return imageio.WriteFile(outPath, result.Image, quality)
}

// batchOutputPath names the result for dest inside outDir
func batchOutputPath(outDir, dest string, format imageio.Format) string {
	base := filepath.Base(dest)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	ext := ".png"
	if format == imageio.FormatJPEG {
		ext = ".jpg"
	}
	return filepath.Join(outDir, name+"_swapped"+ext)
}
