package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeList(t *testing.T) {
	frames := []*Frame{
		frameFromRows([]byte{1, 2, 3}),
		frameFromRows([]byte{0, 4}, []byte{4, 0}),
	}

	data, err := EncodeList(frames, WithTransparent(0))
	require.NoError(t, err)

	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint32(len(data)), binary.LittleEndian.Uint32(data[12:16]))

	list, err := ParseList(data)
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	assert.Equal(t, data, list.Bytes())

	for i, want := range frames {
		h, err := list.Header(i)
		require.NoError(t, err)
		assert.Equal(t, uint16(want.Width), h.Width)
		assert.Equal(t, uint16(want.Height), h.Height)

		got, err := list.Decode(i, WithTransparent(0))
		require.NoError(t, err)
		assert.Equal(t, want.Pix, got.Pix, "frame %d", i)
	}

	_, err = list.Decode(2)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = list.Header(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEncodeList_Errors(t *testing.T) {
	_, err := EncodeList(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = EncodeList([]*Frame{NewFrame(1, 1), {Width: 0}})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "frame 1")
}

func TestParseList_IgnoresTrailingBytes(t *testing.T) {
	data, err := EncodeList([]*Frame{frameFromRows([]byte{9})})
	require.NoError(t, err)

	list, err := ParseList(append(data, 0xDE, 0xAD))
	require.NoError(t, err)
	assert.Equal(t, data, list.Bytes())
	assert.Equal(t, []byte{6, 0, 1, 0, 1, 0, 0xFF, 9}, list.Frame(0))
}

func TestParseList_Errors(t *testing.T) {
	valid, err := EncodeList([]*Frame{frameFromRows([]byte{9}), frameFromRows([]byte{8})})
	require.NoError(t, err)

	patch := func(offset int, value uint32) []byte {
		out := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(out[offset:], value)
		return out
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrTruncatedStream},
		{"no frames", []byte{0, 0, 0, 0, 4, 0, 0, 0}, ErrMalformedStream},
		{"table cut short", []byte{5, 0, 0, 0, 0, 0}, ErrTruncatedStream},
		{"first frame inside table", patch(4, 8), ErrMalformedStream},
		{"frames out of order", patch(8, 17), ErrMalformedStream},
		{"size beyond data", patch(12, uint32(len(valid)+10)), ErrTruncatedStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpriteList_ZeroValue(t *testing.T) {
	var list SpriteList
	assert.Equal(t, 0, list.Len())
	_, err := list.Decode(0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
