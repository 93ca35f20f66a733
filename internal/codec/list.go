package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SpriteList is a parsed list of CLX frames.
//
// Layout:
//
//	uint32 numFrames
//	uint32 offset[numFrames+1] // the last entry is the size of the list
//	frame data
type SpriteList struct {
	data    []byte
	offsets []uint32
}

// EncodeList encodes frames into a sprite list. The options apply to every frame.
func EncodeList(frames []*Frame, opts ...Option) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: empty sprite list", ErrInvalidInput)
	}

	n := len(frames)
	out := make([]byte, 4*(n+2))
	binary.LittleEndian.PutUint32(out, uint32(n))

	var err error
	for i, f := range frames {
		binary.LittleEndian.PutUint32(out[4*(i+1):], uint32(len(out)))
		out, err = AppendFrame(out, f, opts...)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if uint64(len(out)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: sprite list exceeds 4 GiB", ErrInvalidInput)
		}
	}
	binary.LittleEndian.PutUint32(out[4*(n+1):], uint32(len(out)))

	return out, nil
}

// ParseList validates the offset table of a sprite list.
// Bytes after the declared list size are ignored.
func ParseList(data []byte) (SpriteList, error) {
	if len(data) < 4 {
		return SpriteList{}, fmt.Errorf("%w: sprite list header", ErrTruncatedStream)
	}

	n := uint64(binary.LittleEndian.Uint32(data))
	if n == 0 {
		return SpriteList{}, fmt.Errorf("%w: sprite list without frames", ErrMalformedStream)
	}

	tableEnd := 4 * (n + 2)
	if tableEnd > uint64(len(data)) {
		return SpriteList{}, fmt.Errorf("%w: offset table for %d frames", ErrTruncatedStream, n)
	}

	offsets := make([]uint32, n+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(data[4*(i+1):])
	}

	if uint64(offsets[0]) < tableEnd {
		return SpriteList{}, fmt.Errorf("%w: first frame at %d overlaps the offset table", ErrMalformedStream, offsets[0])
	}
	for i := 0; i < int(n); i++ {
		if uint64(offsets[i+1]) < uint64(offsets[i])+HeaderSize {
			return SpriteList{}, fmt.Errorf("%w: frame %d spans %d..%d", ErrMalformedStream, i, offsets[i], offsets[i+1])
		}
	}
	if uint64(offsets[n]) > uint64(len(data)) {
		return SpriteList{}, fmt.Errorf("%w: list declares %d bytes, have %d", ErrTruncatedStream, offsets[n], len(data))
	}

	return SpriteList{data: data[:offsets[n]], offsets: offsets}, nil
}

// Len returns the number of frames.
func (l SpriteList) Len() int {
	if len(l.offsets) == 0 {
		return 0
	}
	return len(l.offsets) - 1
}

// Frame returns the raw bytes of frame i. It panics if i is out of range.
func (l SpriteList) Frame(i int) []byte {
	return l.data[l.offsets[i]:l.offsets[i+1]]
}

// Header parses the header of frame i.
func (l SpriteList) Header(i int) (Header, error) {
	if i < 0 || i >= l.Len() {
		return Header{}, fmt.Errorf("%w: frame %d of %d", ErrInvalidInput, i, l.Len())
	}
	return ParseHeader(l.Frame(i))
}

// Decode decodes frame i.
func (l SpriteList) Decode(i int, opts ...Option) (*Frame, error) {
	if i < 0 || i >= l.Len() {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrInvalidInput, i, l.Len())
	}
	f, err := DecodeFrame(l.Frame(i), opts...)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", i, err)
	}
	return f, nil
}

// Bytes returns the encoded list.
func (l SpriteList) Bytes() []byte {
	return l.data
}
