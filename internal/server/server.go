// Package server exposes the face swap over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/imageio"
	"github.com/dudu/faceswap/internal/pipeline"
)

// Swapper is the part of the pipeline the server needs
type Swapper interface {
	Swap(source, destination gocv.Mat) (*pipeline.Result, error)
}

// Options controls request limits and output encoding
type Options struct {
	MaxUploadBytes int64
	Timeout        time.Duration
	MaxDimension   int
	Format         imageio.Format
	JPEGQuality    int
}

// OptionsFromConfig derives server options from the loaded configuration
func OptionsFromConfig(cfg config.Config) (Options, error) {
	format, err := imageio.ParseFormat(cfg.Swap.Format)
	if err != nil {
		return Options{}, err
	}
	return Options{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Timeout:        time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		MaxDimension:   cfg.Swap.MaxDimension,
		Format:         format,
		JPEGQuality:    cfg.Swap.JPEGQuality,
	}, nil
}

// Server represents the web server
type Server struct {
	swapper    Swapper
	options    Options
	logger     *slog.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// New creates a new web server listening on addr
func New(addr string, swapper Swapper, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Format == "" {
		opts.Format = imageio.FormatPNG
	}

	r := chi.NewRouter()
	s := &Server{
		swapper: swapper,
		options: opts,
		logger:  logger,
		router:  r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(opts.Timeout))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: opts.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/swap", s.handleSwap)
	})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
