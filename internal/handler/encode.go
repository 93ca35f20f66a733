package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rcarmo/go-clx/internal/archive"
)

// Encode converts the uploaded image into a CLX sprite list.
//
//	POST /api/encode?transparent=N&frames=N&header=6|10&bottomup=1&compress=1
func Encode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := settings()
	params, err := parseEncodeParams(r.URL.Query(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Security.MaxUploadBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := encodeImage(body, params)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	if archive.IsCompressed(out) {
		w.Header().Set("Content-Disposition", `attachment; filename="sprite.clxz"`)
	} else {
		w.Header().Set("Content-Disposition", `attachment; filename="sprite.clx"`)
	}
	if _, err := w.Write(out); err != nil {
		log.Warn("failed to write sprite list: %v", err)
	}
}
