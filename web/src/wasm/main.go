//go:build js && wasm

// Package main provides WebAssembly bindings for the CLX decoder.
// This file contains only JavaScript glue code - all actual codec logic
// is in the internal packages.
package main

import (
	"bytes"
	"image/color"
	"syscall/js"

	"github.com/rcarmo/go-clx/internal/archive"
	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/imaging"
)

// Frames beyond this in either dimension are not decoded in the browser.
const maxFrameSize = 4096

// Palette used by decodeFrame; replaced by setPalette.
var palette color.Palette = imaging.GrayPalette()

func bytesFromJS(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

func jsError(err error) interface{} {
	return map[string]interface{}{"error": err.Error()}
}

func parseList(v js.Value) (codec.SpriteList, error) {
	raw, err := archive.Unwrap(bytesFromJS(v))
	if err != nil {
		return codec.SpriteList{}, err
	}
	return codec.ParseList(raw)
}

// jsSetPalette loads a 768-byte .pal palette
func jsSetPalette(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}

	pal, err := imaging.LoadPalette(bytes.NewReader(bytesFromJS(args[0])))
	if err != nil {
		return false
	}
	palette = pal
	return true
}

// jsFrameCount returns the number of frames in a sprite list, or -1
func jsFrameCount(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return -1
	}

	list, err := parseList(args[0])
	if err != nil {
		return -1
	}
	return list.Len()
}

// jsDecodeFrame decodes frame i of a sprite list into RGBA.
// args: list bytes, frame index, transparent index (-1 for none), bottom-up flag.
// Returns {width, height, rgba} or {error}.
func jsDecodeFrame(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}

	index, transparent, bottomUp := 0, imaging.NoTransparency, false
	if len(args) > 1 {
		index = args[1].Int()
	}
	if len(args) > 2 {
		transparent = args[2].Int()
	}
	if len(args) > 3 {
		bottomUp = args[3].Truthy()
	}

	list, err := parseList(args[0])
	if err != nil {
		return jsError(err)
	}

	opts := []codec.Option{codec.WithMaxSize(maxFrameSize, maxFrameSize)}
	if transparent >= 0 && transparent < 256 {
		opts = append(opts, codec.WithTransparent(byte(transparent)))
	}
	if bottomUp {
		opts = append(opts, codec.WithBottomUp())
	}

	f, err := list.Decode(index, opts...)
	if err != nil {
		return jsError(err)
	}

	rgba := imaging.AppendRGBA(make([]byte, 0, 4*f.Width*f.Height), f, palette, transparent)
	return map[string]interface{}{
		"width":  f.Width,
		"height": f.Height,
		"rgba":   bytesToJS(rgba),
	}
}

// jsFlipVertical flips an 8-bit indexed buffer in place
func jsFlipVertical(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return false
	}

	dataArray := args[0]
	width := args[1].Int()
	height := args[2].Int()

	data := bytesFromJS(dataArray)
	if width <= 0 || height <= 0 || len(data) < width*height {
		return false
	}

	codec.FlipVertical(data, width, height, width)

	js.CopyBytesToJS(dataArray, data)
	return true
}

func main() {
	c := make(chan struct{})

	js.Global().Set("goCLX", js.ValueOf(map[string]interface{}{
		"setPalette":   js.FuncOf(jsSetPalette),
		"frameCount":   js.FuncOf(jsFrameCount),
		"decodeFrame":  js.FuncOf(jsDecodeFrame),
		"flipVertical": js.FuncOf(jsFlipVertical),
	}))

	println("Go WASM CLX module loaded")

	<-c
}
