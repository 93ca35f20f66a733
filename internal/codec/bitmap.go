package codec

// FlipVertical reverses the row order of an indexed bitmap in place.
// CL2-era sprites store their rows bottom-up.
func FlipVertical(pix []byte, width, height, stride int) {
	if height <= 1 || width <= 0 || stride < width {
		return
	}
	if len(pix) < (height-1)*stride+width {
		return
	}

	tmp := make([]byte, width)
	half := height / 2

	for i := 0; i < half; i++ {
		top := i * stride
		bottom := (height - 1 - i) * stride

		copy(tmp, pix[top:top+width])
		copy(pix[top:top+width], pix[bottom:bottom+width])
		copy(pix[bottom:bottom+width], tmp)
	}
}

// Bounds returns the smallest rectangle, as x0, y0, x1, y1, holding every
// pixel that differs from transparent. ok is false for a fully transparent frame.
func (f *Frame) Bounds(transparent byte) (x0, y0, x1, y1 int, ok bool) {
	x0, y0 = f.Width, f.Height
	for y := 0; y < f.Height; y++ {
		for x, c := range f.Row(y) {
			if c == transparent {
				continue
			}
			if x < x0 {
				x0 = x
			}
			if x >= x1 {
				x1 = x + 1
			}
			if y < y0 {
				y0 = y
			}
			y1 = y + 1
		}
	}
	if x1 == 0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, x1, y1, true
}

// SubFrame returns a frame sharing f's pixels for the rectangle [x0,x1)x[y0,y1).
func (f *Frame) SubFrame(x0, y0, x1, y1 int) *Frame {
	if x0 < 0 || y0 < 0 || x1 > f.Width || y1 > f.Height || x0 >= x1 || y0 >= y1 {
		return nil
	}
	start := y0*f.Stride + x0
	end := (y1-1)*f.Stride + x1
	return &Frame{
		Pix:    f.Pix[start:end:end],
		Stride: f.Stride,
		Width:  x1 - x0,
		Height: y1 - y0,
	}
}
