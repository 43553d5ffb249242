package mcamdriver

// Bilinear demosaic of the sensor's Bayer mosaic. The mosaic repeats a 2x2
// tile with green/red on even rows and blue/green on odd rows:
//
//	row 0: G R G R ...
//	row 1: B G B G ...
//
// Each output pixel keeps its own raw sample for the channel the sensor
// measured there and interpolates the two missing channels from the nearest
// same-color neighbors. The integer rounding (half up: +1 before a one-bit
// shift, +2 before a two-bit shift) is part of the observable contract and
// must not be changed.

// avg2 is the rounding two-term average.
func avg2(a, b byte) byte {
	return byte((uint32(a) + uint32(b) + 1) >> 1)
}

// avg4 is the rounding four-term average.
func avg4(a, b, c, d byte) byte {
	return byte((uint32(a) + uint32(b) + uint32(c) + uint32(d) + 2) >> 2)
}

// Demosaic reconstructs a four-channel RGBA image from the raw mosaic.
// raw must hold width*height bytes and out width*height*4 bytes; out is
// fully overwritten, so both buffers can be reused across frames. The
// function is pure and keeps no state between calls.
//
// The single outermost pixel on every edge is not interpolated; it copies
// the color of the nearest interior pixel once the interior is done, which
// keeps the interior loop free of boundary branches.
func Demosaic(raw []byte, width, height int, out []byte) {
	// Interior pass. Rows are walked in pairs (one blue/green row, the
	// following green/red row) and columns in pairs as well, since the
	// mosaic repeats every two pixels in each direction.
	for y := 1; y < height-2; y += 2 {
		// Row y is odd: B G B G ...
		for x := 1; x < width-2; x += 2 {
			i := y*width + x
			o := i * 4

			// (y, x): green sample between blue columns; red above and
			// below, blue left and right.
			g := raw[i]
			r := avg2(raw[i-width], raw[i+width])
			b := avg2(raw[i-1], raw[i+1])
			out[o] = r
			out[o+1] = g
			out[o+2] = b
			out[o+3] = 0xff

			// (y, x+1): blue sample; green orthogonal, red diagonal.
			i++
			o += 4
			b = raw[i]
			g = avg4(raw[i-width], raw[i+width], raw[i-1], raw[i+1])
			r = avg4(raw[i-width-1], raw[i-width+1], raw[i+width-1], raw[i+width+1])
			out[o] = r
			out[o+1] = g
			out[o+2] = b
			out[o+3] = 0xff
		}

		// Row y+1 is even: G R G R ...
		for x := 1; x < width-2; x += 2 {
			i := (y+1)*width + x
			o := i * 4

			// (y+1, x): red sample; green orthogonal, blue diagonal.
			r := raw[i]
			g := avg4(raw[i-width], raw[i+width], raw[i-1], raw[i+1])
			b := avg4(raw[i-width-1], raw[i-width+1], raw[i+width-1], raw[i+width+1])
			out[o] = r
			out[o+1] = g
			out[o+2] = b
			out[o+3] = 0xff

			// (y+1, x+1): green sample between red columns; blue above
			// and below, red left and right.
			i++
			o += 4
			g = raw[i]
			r = avg2(raw[i-1], raw[i+1])
			b = avg2(raw[i-width], raw[i+width])
			out[o] = r
			out[o+1] = g
			out[o+2] = b
			out[o+3] = 0xff
		}
	}

	// Border pass. First and last columns copy the adjacent in-row
	// interior pixel.
	for y := 1; y < height-1; y++ {
		left := (y*width + 1) * 4
		copy(out[left-4:left], out[left:left+4])
		right := (y*width + width - 2) * 4
		copy(out[right+4:right+8], out[right:right+4])
	}

	// First and last rows copy the adjacent interior row verbatim.
	copy(out[:width*4], out[width*4:2*width*4])
	last := (height - 1) * width * 4
	copy(out[last:last+width*4], out[last-width*4:last])
}
