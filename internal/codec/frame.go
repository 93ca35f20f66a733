package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame header sizes. Both layouts start with the same three uint16 fields;
// the CL2-compatible one pads them with four unused bytes.
const (
	HeaderSize    = 6
	CL2HeaderSize = 10
)

// Header is the frame header: offset of the run stream, width and height.
type Header struct {
	Size   uint16
	Width  uint16
	Height uint16
}

// Append writes the header, zero-padding up to Size bytes.
func (h Header) Append(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, h.Size)
	dst = binary.LittleEndian.AppendUint16(dst, h.Width)
	dst = binary.LittleEndian.AppendUint16(dst, h.Height)
	for i := HeaderSize; i < int(h.Size); i++ {
		dst = append(dst, 0)
	}
	return dst
}

// ParseHeader reads a frame header and checks it against the frame length.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: frame header needs %d bytes, have %d", ErrTruncatedStream, HeaderSize, len(data))
	}

	h := Header{
		Size:   binary.LittleEndian.Uint16(data[0:2]),
		Width:  binary.LittleEndian.Uint16(data[2:4]),
		Height: binary.LittleEndian.Uint16(data[4:6]),
	}

	if h.Size < HeaderSize || int(h.Size) > len(data) {
		return Header{}, fmt.Errorf("%w: header size %d out of range", ErrMalformedStream, h.Size)
	}
	if h.Width == 0 || h.Height == 0 {
		return Header{}, fmt.Errorf("%w: empty frame %dx%d", ErrMalformedStream, h.Width, h.Height)
	}

	return h, nil
}

// CheckSize fails with ErrFrameTooLarge when the frame is wider than
// maxWidth or taller than maxHeight. A limit of zero is not checked.
func (h Header) CheckSize(maxWidth, maxHeight int) error {
	if maxWidth > 0 && int(h.Width) > maxWidth {
		return fmt.Errorf("%w: width %d exceeds %d", ErrFrameTooLarge, h.Width, maxWidth)
	}
	if maxHeight > 0 && int(h.Height) > maxHeight {
		return fmt.Errorf("%w: height %d exceeds %d", ErrFrameTooLarge, h.Height, maxHeight)
	}
	return nil
}

// Frame is a palette-indexed bitmap, one byte per pixel.
// Row y starts at Pix[y*Stride].
type Frame struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// NewFrame allocates a tightly packed frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Pix:    make([]byte, width*height),
		Stride: width,
		Width:  width,
		Height: height,
	}
}

// Row returns the Width pixels of row y.
func (f *Frame) Row(y int) []byte {
	start := y * f.Stride
	return f.Pix[start : start+f.Width]
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) byte {
	return f.Pix[y*f.Stride+x]
}

// Set stores the pixel at (x, y).
func (f *Frame) Set(x, y int, c byte) {
	f.Pix[y*f.Stride+x] = c
}

// Fill sets every pixel of the frame to c.
func (f *Frame) Fill(c byte) {
	for y := 0; y < f.Height; y++ {
		row := f.Row(y)
		for x := range row {
			row[x] = c
		}
	}
}

func (f *Frame) validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}
	if f.Width < 1 || f.Width > math.MaxUint16 || f.Height < 1 || f.Height > math.MaxUint16 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidInput, f.Width, f.Height)
	}
	if f.Stride < f.Width {
		return fmt.Errorf("%w: stride %d below width %d", ErrInvalidInput, f.Stride, f.Width)
	}
	if need := (f.Height-1)*f.Stride + f.Width; len(f.Pix) < need {
		return fmt.Errorf("%w: pixel buffer has %d bytes, need %d", ErrInvalidInput, len(f.Pix), need)
	}
	return nil
}

// Option configures encoding and decoding.
type Option func(*options)

type options struct {
	transparent    byte
	hasTransparent bool
	background     byte
	hasBackground  bool
	headerSize     int
	bottomUp       bool
	maxWidth       int
	maxHeight      int
}

func newOptions(opts []Option) options {
	o := options{headerSize: HeaderSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTransparent encodes pixels of the given index as transparent runs.
// When decoding it also becomes the default background.
func WithTransparent(index byte) Option {
	return func(o *options) {
		o.transparent = index
		o.hasTransparent = true
	}
}

// WithBackground sets the index the decoder fills before replaying runs.
func WithBackground(index byte) Option {
	return func(o *options) {
		o.background = index
		o.hasBackground = true
	}
}

// WithHeaderSize selects the frame header layout, HeaderSize or CL2HeaderSize.
func WithHeaderSize(size int) Option {
	return func(o *options) {
		o.headerSize = size
	}
}

// WithBottomUp stores rows bottom row first, as CL2 and CEL sprites do.
func WithBottomUp() Option {
	return func(o *options) {
		o.bottomUp = true
	}
}

// WithMaxSize makes the decoder reject frames larger than width x height
// before allocating them. Zero leaves that dimension unchecked.
func WithMaxSize(width, height int) Option {
	return func(o *options) {
		o.maxWidth = width
		o.maxHeight = height
	}
}

func (o options) validate() error {
	if o.headerSize != HeaderSize && o.headerSize != CL2HeaderSize {
		return fmt.Errorf("%w: header size %d", ErrInvalidInput, o.headerSize)
	}
	return nil
}

func (o options) backgroundIndex() byte {
	if o.hasBackground {
		return o.background
	}
	if o.hasTransparent {
		return o.transparent
	}
	return 0
}

// sourceRow maps the i-th row of the stream to a frame row.
func (o options) sourceRow(i, height int) int {
	if o.bottomUp {
		return height - 1 - i
	}
	return i
}

// EncodeFrame encodes f into a new CLX frame.
func EncodeFrame(f *Frame, opts ...Option) ([]byte, error) {
	return AppendFrame(nil, f, opts...)
}

// AppendFrame appends the CLX encoding of f to dst.
// On error dst is returned unchanged.
func AppendFrame(dst []byte, f *Frame, opts ...Option) ([]byte, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return dst, err
	}
	if err := f.validate(); err != nil {
		return dst, err
	}

	dst = Header{
		Size:   uint16(o.headerSize),
		Width:  uint16(f.Width),
		Height: uint16(f.Height),
	}.Append(dst)

	if !o.hasTransparent {
		for i := 0; i < f.Height; i++ {
			dst = AppendPixelsOrFillRun(dst, f.Row(o.sourceRow(i, f.Height)))
		}
		return dst, nil
	}

	// Transparent runs carry over row boundaries.
	transparentRunWidth := 0
	for i := 0; i < f.Height; i++ {
		row := f.Row(o.sourceRow(i, f.Height))
		solidBegin := -1
		for x, c := range row {
			if c == o.transparent {
				if solidBegin >= 0 {
					dst = AppendPixelsOrFillRun(dst, row[solidBegin:x])
					solidBegin = -1
				}
				transparentRunWidth++
				continue
			}
			if solidBegin < 0 {
				dst = AppendTransparentRun(dst, transparentRunWidth)
				transparentRunWidth = 0
				solidBegin = x
			}
		}
		if solidBegin >= 0 {
			dst = AppendPixelsOrFillRun(dst, row[solidBegin:])
		}
	}

	return AppendTransparentRun(dst, transparentRunWidth), nil
}
