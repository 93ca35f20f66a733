package handler

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rcarmo/go-clx/internal/archive"
	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/config"
	"github.com/rcarmo/go-clx/internal/imaging"
)

const maxPreviewScale = 16

// encodeParams controls how an uploaded image becomes a sprite list.
type encodeParams struct {
	Transparent int
	Frames      int
	HeaderSize  int
	BottomUp    bool
	Compress    bool
	Level       archive.Level
	MaxWidth    int
	MaxHeight   int
	PaletteFile string
}

// parseEncodeParams overlays query parameters on the configured defaults.
func parseEncodeParams(q url.Values, cfg *config.Config) (encodeParams, error) {
	level, err := archive.ParseLevel(cfg.Archive.Level)
	if err != nil {
		level = archive.LevelDefault
	}

	p := encodeParams{
		Transparent: cfg.Codec.TransparentIndex,
		Frames:      1,
		HeaderSize:  cfg.Codec.HeaderSize,
		BottomUp:    cfg.Codec.BottomUp,
		Compress:    cfg.Archive.Compress,
		Level:       level,
		MaxWidth:    cfg.Codec.MaxWidth,
		MaxHeight:   cfg.Codec.MaxHeight,
		PaletteFile: cfg.Codec.PaletteFile,
	}

	if p.Transparent, err = intParam(q, "transparent", p.Transparent, imaging.NoTransparency, 255); err != nil {
		return p, err
	}
	if p.Frames, err = intParam(q, "frames", p.Frames, 1, 65535); err != nil {
		return p, err
	}
	if p.HeaderSize, err = intParam(q, "header", p.HeaderSize, codec.HeaderSize, codec.CL2HeaderSize); err != nil {
		return p, err
	}
	if p.HeaderSize != codec.HeaderSize && p.HeaderSize != codec.CL2HeaderSize {
		return p, badRequest("header must be %d or %d", codec.HeaderSize, codec.CL2HeaderSize)
	}
	if p.BottomUp, err = boolParam(q, "bottomup", p.BottomUp); err != nil {
		return p, err
	}
	if p.Compress, err = boolParam(q, "compress", p.Compress); err != nil {
		return p, err
	}
	if s := q.Get("level"); s != "" {
		if p.Level, err = archive.ParseLevel(s); err != nil {
			return p, badRequest("%v", err)
		}
	}
	return p, nil
}

func (p encodeParams) options() []codec.Option {
	opts := []codec.Option{codec.WithHeaderSize(p.HeaderSize)}
	if p.Transparent >= 0 {
		opts = append(opts, codec.WithTransparent(byte(p.Transparent)))
	}
	if p.BottomUp {
		opts = append(opts, codec.WithBottomUp())
	}
	return opts
}

// checkSize rejects images whose frames would exceed the configured limits.
func (p encodeParams) checkSize(width, height int) error {
	if width > p.MaxWidth {
		return fmt.Errorf("%w: image width %d exceeds %d", codec.ErrFrameTooLarge, width, p.MaxWidth)
	}
	if height/p.Frames > p.MaxHeight {
		return fmt.Errorf("%w: frame height %d exceeds %d", codec.ErrFrameTooLarge, height/p.Frames, p.MaxHeight)
	}
	return nil
}

// encodeImage turns an uploaded image into a sprite list, optionally archived.
// Dimensions are checked from the image header before any pixels are decoded.
func encodeImage(data []byte, p encodeParams) ([]byte, error) {
	ic, _, err := imaging.DecodeImageConfig(bytes.NewReader(data))
	if err != nil {
		return nil, badRequest("%v", err)
	}
	if err := p.checkSize(ic.Width, ic.Height); err != nil {
		return nil, err
	}

	img, format, err := imaging.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, badRequest("%v", err)
	}
	b := img.Bounds()
	if err := p.checkSize(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}

	fallback, err := palette(p.PaletteFile)
	if err != nil {
		return nil, err
	}

	strip, err := imaging.ToFrame(img, imaging.PaletteOf(img, fallback), p.Transparent)
	if err != nil {
		return nil, err
	}
	frames, err := imaging.SplitFrames(strip, p.Frames)
	if err != nil {
		return nil, err
	}

	list, err := codec.EncodeList(frames, p.options()...)
	if err != nil {
		return nil, err
	}
	log.Debug("encoded %s %dx%d into %d frames, %d bytes", format, b.Dx(), b.Dy(), len(frames), len(list))

	if !p.Compress {
		return list, nil
	}
	return archive.CompressLevel(list, p.Level)
}

func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return def, badRequest("%s must be an integer in %d..%d", name, lo, hi)
	}
	return v, nil
}

func boolParam(q url.Values, name string, def bool) (bool, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, badRequest("%s must be a boolean", name)
	}
	return v, nil
}
