// Package handler serves the HTTP and WebSocket conversion endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"os"
	"sync"

	"github.com/rcarmo/go-clx/internal/archive"
	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/config"
	"github.com/rcarmo/go-clx/internal/imaging"
	"github.com/rcarmo/go-clx/internal/logging"
)

var log = logging.With("handler")

// settings returns the configuration the server started with, falling back
// to the environment when nothing was loaded (tests, embedding).
func settings() *config.Config {
	if cfg := config.GetGlobalConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn("failed to load config, using defaults: %v", err)
		return defaultConfig()
	}
	return cfg
}

func defaultConfig() *config.Config {
	return &config.Config{
		Codec: config.CodecConfig{
			TransparentIndex: imaging.NoTransparency,
			HeaderSize:       codec.HeaderSize,
			MaxWidth:         4096,
			MaxHeight:        4096,
		},
		Archive:  config.ArchiveConfig{Level: archive.LevelDefault.String()},
		Security: config.SecurityConfig{MaxUploadBytes: 16 << 20},
	}
}

var paletteCache struct {
	sync.Mutex
	path    string
	palette color.Palette
}

// palette returns the palette loaded from path, or GrayPalette when path is empty.
func palette(path string) (color.Palette, error) {
	if path == "" {
		return imaging.GrayPalette(), nil
	}

	paletteCache.Lock()
	defer paletteCache.Unlock()
	if paletteCache.path == path && paletteCache.palette != nil {
		return paletteCache.palette, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open palette: %w", err)
	}
	defer f.Close()

	pal, err := imaging.LoadPalette(f)
	if err != nil {
		return nil, err
	}
	paletteCache.path = path
	paletteCache.palette = pal
	return pal, nil
}

// errBadRequest marks parameter and input errors reported as 400.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a conversion error to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, codec.ErrFrameTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, codec.ErrMalformedStream),
		errors.Is(err, codec.ErrTruncatedStream),
		errors.Is(err, archive.ErrBadMagic),
		errors.Is(err, archive.ErrSizeMismatch),
		errors.Is(err, archive.ErrCorrupt):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	log.Debug("rejecting request: %v", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to write response: %v", err)
	}
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
