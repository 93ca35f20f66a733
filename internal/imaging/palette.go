package imaging

import (
	"fmt"
	"image/color"
	"io"
)

// PaletteSize is the byte size of a raw RGB palette file.
const PaletteSize = 256 * 3

// LoadPalette reads a 768-byte RGB palette (the .pal format).
func LoadPalette(r io.Reader) (color.Palette, error) {
	var raw [PaletteSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	return paletteFromRGB(raw[:]), nil
}

func paletteFromRGB(raw []byte) color.Palette {
	pal := make(color.Palette, len(raw)/3)
	for i := range pal {
		pal[i] = color.RGBA{R: raw[3*i], G: raw[3*i+1], B: raw[3*i+2], A: 0xFF}
	}
	return pal
}

// GrayPalette maps index i to gray level i.
func GrayPalette() color.Palette {
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = color.Gray{Y: uint8(i)}
	}
	return pal
}
