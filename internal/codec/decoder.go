package codec

import (
	"fmt"
)

// BlitCommand is one decoded run record.
type BlitCommand struct {
	Type   RunType
	Length int    // pixels written (or skipped) by the record
	Color  byte   // fill runs only
	Pixels []byte // pixel runs only; aliases the source
	Size   int    // bytes consumed from the source
}

// NextCommand decodes the record at the start of src.
func NextCommand(src []byte) (BlitCommand, error) {
	if len(src) == 0 {
		return BlitCommand{}, fmt.Errorf("%w: missing control byte", ErrTruncatedStream)
	}

	control := src[0]
	switch ClassifyControl(control) {
	case RunTransparent:
		if control == 0 {
			return BlitCommand{}, fmt.Errorf("%w: zero-length transparent run", ErrMalformedStream)
		}
		return BlitCommand{Type: RunTransparent, Length: int(control), Size: 1}, nil
	case RunFill:
		if len(src) < 2 {
			return BlitCommand{}, fmt.Errorf("%w: fill run without color", ErrTruncatedStream)
		}
		return BlitCommand{Type: RunFill, Length: FillWidth(control), Color: src[1], Size: 2}, nil
	default:
		n := PixelsWidth(control)
		if len(src) < 1+n {
			return BlitCommand{}, fmt.Errorf("%w: pixel run of %d has %d bytes", ErrTruncatedStream, n, len(src)-1)
		}
		return BlitCommand{Type: RunPixels, Length: n, Pixels: src[1 : 1+n], Size: 1 + n}, nil
	}
}

// DecodeFrame decodes a CLX frame into a new Frame.
//
// Positions not covered by fill or pixel runs keep the background index
// (see WithBackground and WithTransparent). A stream that ends on a record
// boundary before covering the whole frame is accepted.
func DecodeFrame(data []byte, opts ...Option) (*Frame, error) {
	o := newOptions(opts)

	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if err := h.CheckSize(o.maxWidth, o.maxHeight); err != nil {
		return nil, err
	}

	f := NewFrame(int(h.Width), int(h.Height))
	if bg := o.backgroundIndex(); bg != 0 {
		f.Fill(bg)
	}

	if err := decodeRuns(f.Pix, data[h.Size:]); err != nil {
		return nil, err
	}

	if o.bottomUp {
		FlipVertical(f.Pix, f.Width, f.Height, f.Stride)
	}

	return f, nil
}

// decodeRuns replays run records onto dst, which holds the frame's positions
// in stream order.
func decodeRuns(dst []byte, src []byte) error {
	pos := 0
	offset := 0

	for offset < len(src) {
		if pos == len(dst) {
			return fmt.Errorf("%w: %d bytes after the last pixel", ErrMalformedStream, len(src)-offset)
		}

		cmd, err := NextCommand(src[offset:])
		if err != nil {
			return fmt.Errorf("record at offset %d: %w", offset, err)
		}

		if pos+cmd.Length > len(dst) {
			return fmt.Errorf("%w: %s run of %d at position %d overruns %d pixels",
				ErrMalformedStream, cmd.Type, cmd.Length, pos, len(dst))
		}

		switch cmd.Type {
		case RunFill:
			run := dst[pos : pos+cmd.Length]
			for i := range run {
				run[i] = cmd.Color
			}
		case RunPixels:
			copy(dst[pos:], cmd.Pixels)
		}

		pos += cmd.Length
		offset += cmd.Size
	}

	return nil
}

// Walk calls fn for every record of a frame's run stream, stopping at the
// first error.
func Walk(data []byte, fn func(cmd BlitCommand) error) error {
	h, err := ParseHeader(data)
	if err != nil {
		return err
	}

	src := data[h.Size:]
	for len(src) > 0 {
		cmd, err := NextCommand(src)
		if err != nil {
			return err
		}
		if err := fn(cmd); err != nil {
			return err
		}
		src = src[cmd.Size:]
	}
	return nil
}
