package codec

// Streaks shorter than this are cheaper as part of a pixel run.
const minFillRun = 3

// At the end of a span the fill record no longer forces a new pixel-run
// record to be opened after it, so two pixels already pay off.
const minTailFillRun = 2

// AppendTransparentRun appends transparent-run records covering width pixels.
// A width of zero appends nothing.
func AppendTransparentRun(dst []byte, width int) []byte {
	for width >= MaxTransparentRun {
		dst = append(dst, MaxTransparentRun)
		width -= MaxTransparentRun
	}
	if width > 0 {
		dst = append(dst, byte(width))
	}
	return dst
}

// AppendFillRun appends fill-run records painting length pixels with color.
func AppendFillRun(dst []byte, color byte, length int) []byte {
	for length >= MaxFillRun {
		dst = append(dst, fillControl(MaxFillRun), color)
		length -= MaxFillRun
	}
	if length > 0 {
		dst = append(dst, fillControl(length), color)
	}
	return dst
}

// AppendPixelRun appends pixel-run records carrying pixels verbatim.
func AppendPixelRun(dst []byte, pixels []byte) []byte {
	for len(pixels) >= MaxPixelRun {
		dst = append(dst, pixelsControl(MaxPixelRun))
		dst = append(dst, pixels[:MaxPixelRun]...)
		pixels = pixels[MaxPixelRun:]
	}
	if len(pixels) > 0 {
		dst = append(dst, pixelsControl(len(pixels)))
		dst = append(dst, pixels...)
	}
	return dst
}

// AppendPixelsOrFillRun appends an opaque span, splitting it greedily into
// fill runs (streaks of one color) and pixel runs (everything else).
//
// The span is expected to be followed by a transparent run or the end of a row.
func AppendPixelsOrFillRun(dst []byte, span []byte) []byte {
	if len(span) == 0 {
		return dst
	}

	begin := 0
	prevColorBegin := 0
	prevColorRunLength := 1
	prevColor := span[0]

	for i := 1; i < len(span); i++ {
		color := span[i]
		if color == prevColor {
			prevColorRunLength++
			continue
		}

		if prevColorRunLength >= minFillRun {
			dst = AppendPixelRun(dst, span[begin:prevColorBegin])
			dst = AppendFillRun(dst, prevColor, prevColorRunLength)
			begin = i
		}
		prevColorBegin = i
		prevColorRunLength = 1
		prevColor = color
	}

	if prevColorRunLength >= minTailFillRun {
		dst = AppendPixelRun(dst, span[begin:prevColorBegin])
		return AppendFillRun(dst, prevColor, prevColorRunLength)
	}
	return AppendPixelRun(dst, span[begin:])
}
