package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/rcarmo/go-clx/internal/archive"
	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/imaging"
)

// Decode renders one frame of an uploaded sprite list (plain or archived) as PNG.
//
//	POST /api/decode?frame=i&scale=s&transparent=N&bottomup=1
func Decode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := settings()
	q := r.URL.Query()

	index, err := intParam(q, "frame", 0, 0, 1<<31-1)
	if err != nil {
		writeError(w, err)
		return
	}
	scale, err := intParam(q, "scale", 1, 1, maxPreviewScale)
	if err != nil {
		writeError(w, err)
		return
	}
	transparent, err := intParam(q, "transparent", cfg.Codec.TransparentIndex, imaging.NoTransparency, 255)
	if err != nil {
		writeError(w, err)
		return
	}
	bottomUp, err := boolParam(q, "bottomup", cfg.Codec.BottomUp)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Security.MaxUploadBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := parseUpload(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if index >= list.Len() {
		writeError(w, badRequest("frame %d out of range, list has %d", index, list.Len()))
		return
	}

	opts := []codec.Option{codec.WithMaxSize(cfg.Codec.MaxWidth, cfg.Codec.MaxHeight)}
	if transparent >= 0 {
		opts = append(opts, codec.WithTransparent(byte(transparent)))
	}
	if bottomUp {
		opts = append(opts, codec.WithBottomUp())
	}

	frame, err := list.Decode(index, opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	pal, err := palette(cfg.Codec.PaletteFile)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := imaging.RenderPreview(&buf, imaging.ToPaletted(frame, pal, transparent), scale); err != nil {
		log.Error("render preview: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn("failed to write preview: %v", err)
	}
}

// FrameInfo describes one frame of a sprite list.
type FrameInfo struct {
	Index      int    `json:"index"`
	Size       int    `json:"size"`
	HeaderSize int    `json:"headerSize"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bounds     [4]int `json:"bounds"`
	Empty      bool   `json:"empty,omitempty"`
}

// ListInfo describes an uploaded sprite list.
type ListInfo struct {
	Compressed bool        `json:"compressed"`
	Size       int         `json:"size"`
	Frames     []FrameInfo `json:"frames"`
}

// Info reports the frame layout of an uploaded sprite list as JSON.
//
//	POST /api/info?transparent=N
func Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := settings()
	transparent, err := intParam(r.URL.Query(), "transparent", cfg.Codec.TransparentIndex, imaging.NoTransparency, 255)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Security.MaxUploadBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := parseUpload(body)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := describeList(list, transparent, cfg.Codec.MaxWidth, cfg.Codec.MaxHeight)
	if err != nil {
		writeError(w, err)
		return
	}
	info.Compressed = archive.IsCompressed(body)
	writeJSON(w, http.StatusOK, info)
}

// parseUpload unwraps an optional archive and parses the sprite list.
func parseUpload(body []byte) (codec.SpriteList, error) {
	raw, err := archive.Unwrap(body)
	if err != nil {
		return codec.SpriteList{}, err
	}
	return codec.ParseList(raw)
}

// describeList decodes every frame to report its opaque bounds. A negative
// transparent index reports full-frame bounds. Frames over maxWidth x
// maxHeight fail the whole list.
func describeList(list codec.SpriteList, transparent, maxWidth, maxHeight int) (ListInfo, error) {
	info := ListInfo{Size: len(list.Bytes()), Frames: make([]FrameInfo, 0, list.Len())}

	opts := []codec.Option{codec.WithMaxSize(maxWidth, maxHeight)}
	if transparent >= 0 {
		opts = append(opts, codec.WithTransparent(byte(transparent)))
	}

	for i := 0; i < list.Len(); i++ {
		h, err := list.Header(i)
		if err != nil {
			return info, err
		}
		if err := h.CheckSize(maxWidth, maxHeight); err != nil {
			return info, fmt.Errorf("frame %d: %w", i, err)
		}
		fi := FrameInfo{
			Index:      i,
			Size:       len(list.Frame(i)),
			HeaderSize: int(h.Size),
			Width:      int(h.Width),
			Height:     int(h.Height),
		}

		if transparent < 0 {
			fi.Bounds = [4]int{0, 0, fi.Width, fi.Height}
		} else {
			f, err := list.Decode(i, opts...)
			if err != nil {
				return info, err
			}
			x0, y0, x1, y1, ok := f.Bounds(byte(transparent))
			fi.Bounds = [4]int{x0, y0, x1, y1}
			fi.Empty = !ok
		}
		info.Frames = append(info.Frames, fi)
	}
	return info, nil
}
