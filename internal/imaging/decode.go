package imaging

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DecodeImage decodes a PCX, PNG, GIF or BMP image and reports its format.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	if IsPCX(data) {
		img, err := DecodePCX(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		return img, "pcx", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// DecodeImageConfig reports the format and dimensions of a PCX, PNG, GIF or
// BMP image without decoding its pixels.
func DecodeImageConfig(r io.Reader) (image.Config, string, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(4); IsPCX(head) {
		cfg, err := DecodePCXConfig(br)
		if err != nil {
			return image.Config{}, "", err
		}
		return cfg, "pcx", nil
	}

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode image config: %w", err)
	}
	return cfg, format, nil
}

// PaletteOf returns the palette of a paletted image, or fallback.
func PaletteOf(img image.Image, fallback color.Palette) color.Palette {
	if p, ok := img.(*image.Paletted); ok && len(p.Palette) > 0 {
		return p.Palette
	}
	return fallback
}

// RenderPreview writes img as PNG, scaled up scale times with nearest-neighbour sampling.
func RenderPreview(w io.Writer, img *image.Paletted, scale int) error {
	if scale <= 1 {
		return png.Encode(w, img)
	}

	b := img.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale), img.Palette)
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return png.Encode(w, dst)
}
