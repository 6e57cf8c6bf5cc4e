package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/pipeline"
	"github.com/dudu/faceswap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve face swaps over HTTP",
	Long: `Start an HTTP server exposing POST /api/v1/swap.

The endpoint takes multipart fields "source" and "destination" plus an
optional "format" (png or jpeg) and returns the swapped image.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := mustGetString(cmd, "addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	logger := newLogger(cfg.LogLevel)

	opts, err := server.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	p, err := pipeline.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(cfg.Server.Addr, p, opts, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving face swaps on %s\n", cfg.Server.Addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
