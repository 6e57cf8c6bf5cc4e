package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageio"
	"github.com/dudu/faceswap/internal/pipeline"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleSwap takes multipart fields source and destination plus an optional
// format and answers with the encoded result image.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if s.options.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	format := s.options.Format
	if v := r.FormValue("format"); v != "" {
		f, err := imageio.ParseFormat(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}

	source, err := s.readImage(r, "source")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer source.Close()

	destination, err := s.readImage(r, "destination")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer destination.Close()

	result, err := s.swapper.Swap(source, destination)
	if err != nil {
		s.respondSwapError(w, err)
		return
	}
	defer result.Close()

	data, err := imageio.Encode(result.Image, format, s.options.JPEGQuality)
	if err != nil {
		s.logger.Error("failed to encode result", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Swap-Triangles", strconv.Itoa(result.Triangles))
	w.Header().Set("X-Swap-Duration-Ms", strconv.FormatInt(result.Timing.Total.Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) readImage(r *http.Request, field string) (gocv.Mat, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("missing %s image", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to read %s image", field)
	}

	mat, err := imageio.Decode(data, s.options.MaxDimension)
	if err != nil {
		return mat, fmt.Errorf("%s image: %v", field, err)
	}
	return mat, nil
}

func (s *Server) respondSwapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pipeline.ErrDegenerateGeometry):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("swap failed", "error", err)
		respondError(w, http.StatusInternalServerError, "face swap failed")
	}
}
