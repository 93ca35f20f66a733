// Package codec implements the CLX run-length format for palette-indexed sprite frames.
// A frame is a small little-endian header followed by run records; the first byte of
// every record (the control byte) encodes both the run kind and its length.
package codec

// Maximum number of pixels a single record can describe.
const (
	MaxTransparentRun = 0x7F
	MaxFillRun        = 0x3F
	MaxPixelRun       = 0x41
)

// Control byte laws:
//
//	transparent: control = length          (0x01..0x7F)
//	fill:        control = 0xBF - length   (0x80..0xBE)
//	pixels:      control = 0x100 - length  (0xBF..0xFF)
const (
	fillControlBase  = 0xBF
	pixelControlBase = 0x100

	firstOpaqueControl = 0x80
	lastFillControl    = 0xBE
)

// RunType identifies the kind of a run record.
type RunType uint8

const (
	RunTransparent RunType = iota
	RunFill
	RunPixels
)

func (t RunType) String() string {
	switch t {
	case RunTransparent:
		return "transparent"
	case RunFill:
		return "fill"
	case RunPixels:
		return "pixels"
	}
	return "unknown"
}

// IsOpaque returns true if the control byte starts a fill or pixel run
func IsOpaque(control byte) bool {
	return control >= firstOpaqueControl
}

// IsFill returns true if the control byte starts a fill run
func IsFill(control byte) bool {
	return control >= firstOpaqueControl && control <= lastFillControl
}

// ClassifyControl returns the run kind of a control byte.
// The three ranges are disjoint, so the first byte of a record is enough.
func ClassifyControl(control byte) RunType {
	if !IsOpaque(control) {
		return RunTransparent
	}
	if IsFill(control) {
		return RunFill
	}
	return RunPixels
}

// FillWidth returns the number of pixels covered by a fill control byte
func FillWidth(control byte) int {
	return fillControlBase - int(control)
}

// PixelsWidth returns the number of pixels covered by a pixel-run control byte
func PixelsWidth(control byte) int {
	return pixelControlBase - int(control)
}

// fillControl and pixelsControl are the inverse of FillWidth and PixelsWidth.
func fillControl(length int) byte {
	return byte(fillControlBase - length)
}

func pixelsControl(length int) byte {
	return byte(pixelControlBase - length)
}
