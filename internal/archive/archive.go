// Package archive wraps sprite lists in a zstd-compressed container:
// the "CLXZ" magic, the little-endian uint32 size of the list, then one
// zstd frame.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// Magic starts every archive.
	Magic = "CLXZ"

	headerSize = len(Magic) + 4

	// MaxRawSize bounds the declared size of an archived sprite list.
	MaxRawSize = 1 << 30

	// Output preallocation is capped at this multiple of the payload size.
	maxExpansion = 64
)

var (
	// ErrBadMagic indicates data that is not an archive.
	ErrBadMagic = errors.New("archive: bad magic")
	// ErrSizeMismatch indicates a payload whose decompressed size differs from the header.
	ErrSizeMismatch = errors.New("archive: size mismatch")
	// ErrCorrupt indicates a damaged header or zstd payload.
	ErrCorrupt = errors.New("archive: corrupt data")
)

// Level selects the zstd speed/ratio trade-off.
type Level int

const (
	LevelFastest Level = iota
	LevelDefault
	LevelBetter
	LevelBest
)

var levelNames = [...]string{"fastest", "default", "better", "best"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelDefault, fmt.Errorf("archive: unknown level %q", s)
}

func (l Level) encoderLevel() zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// One encoder pool per level; encoders cannot change level after creation.
var encoderPools [len(levelNames)]sync.Pool

func init() {
	for i := range encoderPools {
		level := Level(i).encoderLevel()
		encoderPools[i].New = func() any {
			return mustNewEncoder(level)
		}
	}
}

func mustNewEncoder(level zstd.EncoderLevel) *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(level),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(MaxRawSize),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var decoderPool = sync.Pool{
	New: func() any {
		return mustNewDecoder()
	},
}

// Compress wraps list at LevelDefault.
func Compress(list []byte) ([]byte, error) {
	return CompressLevel(list, LevelDefault)
}

// CompressLevel wraps list using the given compression level.
func CompressLevel(list []byte, level Level) ([]byte, error) {
	if level < 0 || int(level) >= len(encoderPools) {
		return nil, fmt.Errorf("archive: invalid level %d", level)
	}
	if len(list) > MaxRawSize || uint64(len(list)) > math.MaxUint32 {
		return nil, fmt.Errorf("archive: list of %d bytes is too large", len(list))
	}

	out := make([]byte, 0, headerSize+len(list)/2)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(list)))

	pool := &encoderPools[level]
	enc := pool.Get().(*zstd.Encoder)
	out = enc.EncodeAll(list, out)
	pool.Put(enc)
	return out, nil
}

// IsCompressed reports whether data starts with the archive magic.
func IsCompressed(data []byte) bool {
	return len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic
}

// Decompress unwraps an archive and returns the sprite list.
func Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return nil, ErrBadMagic
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	size := binary.LittleEndian.Uint32(data[len(Magic):headerSize])
	if size > MaxRawSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds limit", ErrCorrupt, size)
	}

	// The declared size is untrusted until the payload decodes.
	payload := data[headerSize:]
	hint := min(int(size), maxExpansion*len(payload))

	dec := decoderPool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(payload, make([]byte, 0, hint))
	decoderPool.Put(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if len(out) != int(size) {
		return nil, fmt.Errorf("%w: header says %d, payload has %d", ErrSizeMismatch, size, len(out))
	}
	return out, nil
}

// Unwrap returns data unchanged unless it is an archive, in which case it
// is decompressed.
func Unwrap(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return Decompress(data)
}
