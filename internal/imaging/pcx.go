package imaging

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

const (
	pcxHeaderSize       = 128
	pcxManufacturer     = 0x0A
	pcxPaletteSeparator = 0x0C

	// Bytes above this start a run; the low six bits hold its length.
	pcxMaxSinglePixel = 0xBF
	pcxRunLengthMask  = 0x3F
)

var (
	// ErrNotPCX indicates data without a ZSoft PCX signature.
	ErrNotPCX = errors.New("pcx: not a PCX image")
	// ErrUnsupportedPCX indicates a PCX variant other than 8-bit single-plane.
	ErrUnsupportedPCX = errors.New("pcx: unsupported format")
)

// pcxHeader holds the fields of the 128-byte header that matter for 8-bit images.
type pcxHeader struct {
	Manufacturer uint8
	Version      uint8
	Encoding     uint8
	BitsPerPixel uint8
	XMin, YMin   uint16
	XMax, YMax   uint16
	Planes       uint8
	BytesPerLine uint16
}

func parsePCXHeader(raw []byte) (pcxHeader, error) {
	h := pcxHeader{
		Manufacturer: raw[0],
		Version:      raw[1],
		Encoding:     raw[2],
		BitsPerPixel: raw[3],
		XMin:         binary.LittleEndian.Uint16(raw[4:6]),
		YMin:         binary.LittleEndian.Uint16(raw[6:8]),
		XMax:         binary.LittleEndian.Uint16(raw[8:10]),
		YMax:         binary.LittleEndian.Uint16(raw[10:12]),
		Planes:       raw[65],
		BytesPerLine: binary.LittleEndian.Uint16(raw[66:68]),
	}

	if h.Manufacturer != pcxManufacturer || h.Encoding != 1 {
		return h, ErrNotPCX
	}
	if h.BitsPerPixel != 8 || h.Planes != 1 {
		return h, fmt.Errorf("%w: %d bpp, %d planes", ErrUnsupportedPCX, h.BitsPerPixel, h.Planes)
	}
	if h.XMax < h.XMin || h.YMax < h.YMin {
		return h, fmt.Errorf("%w: bad window", ErrUnsupportedPCX)
	}
	if int(h.BytesPerLine) < h.width() {
		return h, fmt.Errorf("%w: %d bytes per line for width %d", ErrUnsupportedPCX, h.BytesPerLine, h.width())
	}
	return h, nil
}

func (h pcxHeader) width() int  { return int(h.XMax) - int(h.XMin) + 1 }
func (h pcxHeader) height() int { return int(h.YMax) - int(h.YMin) + 1 }

// IsPCX reports whether data starts like an 8-bit RLE PCX file.
func IsPCX(data []byte) bool {
	return len(data) >= 4 && data[0] == pcxManufacturer && data[2] == 1 && data[3] == 8
}

// DecodePCXConfig reads only the header of an 8-bit PCX image.
func DecodePCXConfig(r io.Reader) (image.Config, error) {
	raw := make([]byte, pcxHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return image.Config{}, fmt.Errorf("read pcx header: %w", err)
	}
	h, err := parsePCXHeader(raw)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: GrayPalette(), Width: h.width(), Height: h.height()}, nil
}

// DecodePCX reads an 8-bit single-plane PCX image with its trailing
// 256-color palette. Images without a palette get GrayPalette.
func DecodePCX(r io.Reader) (*image.Paletted, error) {
	br := bufio.NewReader(r)

	raw := make([]byte, pcxHeaderSize)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("read pcx header: %w", err)
	}
	h, err := parsePCXHeader(raw)
	if err != nil {
		return nil, err
	}

	width, height := h.width(), h.height()
	img := image.NewPaletted(image.Rect(0, 0, width, height), nil)
	line := make([]byte, h.BytesPerLine)

	for y := 0; y < height; y++ {
		for x := 0; x < len(line); {
			b, err := br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read pcx row %d: %w", y, err)
			}
			if b <= pcxMaxSinglePixel {
				line[x] = b
				x++
				continue
			}
			n := int(b & pcxRunLengthMask)
			c, err := br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read pcx row %d: %w", y, err)
			}
			// Runs are not supposed to cross lines; clamp the ones that do.
			for ; n > 0 && x < len(line); n-- {
				line[x] = c
				x++
			}
		}
		copy(img.Pix[y*img.Stride:], line[:width])
	}

	img.Palette = GrayPalette()
	sep, err := br.ReadByte()
	if err == nil && sep == pcxPaletteSeparator {
		rgb := make([]byte, PaletteSize)
		if _, err := io.ReadFull(br, rgb); err != nil {
			return nil, fmt.Errorf("read pcx palette: %w", err)
		}
		img.Palette = paletteFromRGB(rgb)
	}

	return img, nil
}
