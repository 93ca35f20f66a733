// Package imaging converts between standard library images and CLX frames.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/rcarmo/go-clx/internal/codec"
)

// NoTransparency disables transparent-index handling.
const NoTransparency = -1

// Pixels whose alpha is below this are treated as transparent.
const alphaThreshold = 0x80

// ToFrame converts img into a frame of palette indices.
//
// A *image.Paletted is copied index for index. Any other image is mapped to
// the nearest entry of pal; when transparent is a valid index, pixels with
// alpha below 50% become that index instead.
func ToFrame(img image.Image, pal color.Palette, transparent int) (*codec.Frame, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", codec.ErrInvalidInput)
	}

	f := codec.NewFrame(b.Dx(), b.Dy())

	if p, ok := img.(*image.Paletted); ok {
		for y := 0; y < f.Height; y++ {
			start := p.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Row(y), p.Pix[start:start+f.Width])
		}
		return f, nil
	}

	if len(pal) == 0 {
		return nil, fmt.Errorf("%w: palette required for %T", codec.ErrInvalidInput, img)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	// Opaque colors repeat a lot in sprite art.
	cache := make(map[color.NRGBA]byte)
	for y := 0; y < f.Height; y++ {
		row := f.Row(y)
		for x := range row {
			c := rgba.NRGBAAt(x, y)
			if transparent >= 0 && c.A < alphaThreshold {
				row[x] = byte(transparent)
				continue
			}
			c.A = 0xFF
			idx, ok := cache[c]
			if !ok {
				idx = byte(pal.Index(c))
				cache[c] = idx
			}
			row[x] = idx
		}
	}
	return f, nil
}

// ToPaletted wraps a decoded frame as an image. When transparent is a valid
// index, that palette entry is replaced by color.Transparent.
func ToPaletted(f *codec.Frame, pal color.Palette, transparent int) *image.Paletted {
	p := make(color.Palette, len(pal))
	copy(p, pal)
	if transparent >= 0 && transparent < len(p) {
		p[transparent] = color.Transparent
	}

	img := image.NewPaletted(image.Rect(0, 0, f.Width, f.Height), p)
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:], f.Row(y))
	}
	return img
}

// SplitFrames cuts a vertical strip into n frames of equal height.
func SplitFrames(f *codec.Frame, n int) ([]*codec.Frame, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: frame count %d", codec.ErrInvalidInput, n)
	}
	return SplitFramesByHeight(f, f.Height/n)
}

// SplitFramesByHeight cuts a vertical strip into frames of the given height.
// Leftover rows at the bottom are dropped.
func SplitFramesByHeight(f *codec.Frame, height int) ([]*codec.Frame, error) {
	if height <= 0 || height > f.Height {
		return nil, fmt.Errorf("%w: frame height %d for a %d-row strip", codec.ErrInvalidInput, height, f.Height)
	}

	n := f.Height / height
	frames := make([]*codec.Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, f.SubFrame(0, i*height, f.Width, (i+1)*height))
	}
	return frames, nil
}

// AppendRGBA appends f as non-premultiplied RGBA bytes, four per pixel.
// The transparent index, when valid, becomes fully transparent black.
func AppendRGBA(dst []byte, f *codec.Frame, pal color.Palette, transparent int) []byte {
	var lut [256][4]byte
	for i, c := range pal {
		if i >= len(lut) {
			break
		}
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		lut[i] = [4]byte{n.R, n.G, n.B, n.A}
	}
	if transparent >= 0 && transparent < len(lut) {
		lut[transparent] = [4]byte{}
	}

	for y := 0; y < f.Height; y++ {
		for _, idx := range f.Row(y) {
			dst = append(dst, lut[idx][:]...)
		}
	}
	return dst
}
