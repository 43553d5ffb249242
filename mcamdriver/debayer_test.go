package mcamdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demosaiced(raw []byte, width, height int) []byte {
	out := make([]byte, width*height*4)
	Demosaic(raw, width, height, out)
	return out
}

func pixelAt(out []byte, width, x, y int) [4]byte {
	o := (y*width + x) * 4
	return [4]byte{out[o], out[o+1], out[o+2], out[o+3]}
}

// A uniform mosaic must reconstruct to the identical uniform color
// everywhere, borders included: every average of equal samples is the
// sample itself.
func TestDemosaicUniformMosaic(t *testing.T) {
	const w, h = 16, 12
	const v = 0x55

	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = v
	}

	out := demosaiced(raw, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			require.Equal(t, [4]byte{v, v, v, 0xff}, pixelAt(out, w, x, y), "pixel (%d,%d)", x, y)
		}
	}
}

// Full expected output for a 4x4 mosaic, worked out by hand from the
// per-position formulas with half-up rounding.
func TestDemosaicExactValues(t *testing.T) {
	const w, h = 4, 4
	raw := []byte{
		7, 11, 4, 3,
		2, 9, 13, 5,
		8, 1, 6, 12,
		10, 15, 14, 2,
	}

	out := demosaiced(raw, w, h)

	// Interior pixels, RGBA.
	assert.Equal(t, [4]byte{6, 9, 8, 255}, pixelAt(out, w, 1, 1), "green on blue row")
	assert.Equal(t, [4]byte{7, 6, 13, 255}, pixelAt(out, w, 2, 1), "blue position")
	assert.Equal(t, [4]byte{1, 10, 10, 255}, pixelAt(out, w, 1, 2), "red position")
	assert.Equal(t, [4]byte{7, 6, 14, 255}, pixelAt(out, w, 2, 2), "green on red row")

	// First/last column replicate the adjacent in-row interior pixel.
	assert.Equal(t, pixelAt(out, w, 1, 1), pixelAt(out, w, 0, 1))
	assert.Equal(t, pixelAt(out, w, 2, 1), pixelAt(out, w, 3, 1))
	assert.Equal(t, pixelAt(out, w, 1, 2), pixelAt(out, w, 0, 2))
	assert.Equal(t, pixelAt(out, w, 2, 2), pixelAt(out, w, 3, 2))

	// First/last row replicate the adjacent interior row.
	for x := 0; x < w; x++ {
		assert.Equal(t, pixelAt(out, w, x, 1), pixelAt(out, w, x, 0), "top row x=%d", x)
		assert.Equal(t, pixelAt(out, w, x, 2), pixelAt(out, w, x, 3), "bottom row x=%d", x)
	}
}

func TestDemosaicBorderPolicy(t *testing.T) {
	const w, h = 8, 6

	// Non-uniform mosaic so replication is distinguishable from
	// interpolation.
	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = byte((i*37 + 11) % 251)
	}

	out := demosaiced(raw, w, h)

	// Corner: (0,0) is filled by copying row 1 into row 0 after column 0
	// already replicated its in-row neighbor, so it equals (1,1).
	assert.Equal(t, pixelAt(out, w, 1, 1), pixelAt(out, w, 0, 0))
	assert.Equal(t, pixelAt(out, w, w-2, 1), pixelAt(out, w, w-1, 0))
	assert.Equal(t, pixelAt(out, w, 1, h-2), pixelAt(out, w, 0, h-1))
	assert.Equal(t, pixelAt(out, w, w-2, h-2), pixelAt(out, w, w-1, h-1))

	// Edge midpoints.
	assert.Equal(t, pixelAt(out, w, 4, 1), pixelAt(out, w, 4, 0), "top edge")
	assert.Equal(t, pixelAt(out, w, 4, h-2), pixelAt(out, w, 4, h-1), "bottom edge")
	assert.Equal(t, pixelAt(out, w, 1, 3), pixelAt(out, w, 0, 3), "left edge")
	assert.Equal(t, pixelAt(out, w, w-2, 3), pixelAt(out, w, w-1, 3), "right edge")
}

// Half-up rounding is part of the contract: a two-term average adds one
// before the shift, a four-term average adds two.
func TestDemosaicRounding(t *testing.T) {
	const w, h = 4, 4

	raw := make([]byte, w*h)
	// Green position (1,1): horizontal blue neighbors 10 and 13 must
	// average to 12, not 11; vertical red neighbors 10 and 13 likewise.
	raw[1*w+0] = 10
	raw[1*w+2] = 13
	raw[0*w+1] = 10
	raw[2*w+1] = 13

	out := demosaiced(raw, w, h)
	got := pixelAt(out, w, 1, 1)
	assert.Equal(t, byte(12), got[0], "red half-up")
	assert.Equal(t, byte(12), got[2], "blue half-up")

	// Blue position (2,1): four orthogonal greens 1,2,2,2 sum to 7, plus
	// the rounding bias of 2 gives 9>>2 = 2.
	raw2 := make([]byte, w*h)
	raw2[0*w+2] = 1
	raw2[2*w+2] = 2
	raw2[1*w+1] = 2
	raw2[1*w+3] = 2

	out2 := demosaiced(raw2, w, h)
	assert.Equal(t, byte(2), pixelAt(out2, w, 2, 1)[1], "green four-term half-up")
}

func TestDemosaicReusesOutputBuffer(t *testing.T) {
	const w, h = 8, 6

	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = byte(i)
	}
	out := make([]byte, w*h*4)
	Demosaic(raw, w, h, out)
	first := make([]byte, len(out))
	copy(first, out)

	// A second pass over the same input in the same buffer must be
	// byte-identical: no hidden state, every output byte overwritten.
	Demosaic(raw, w, h, out)
	assert.Equal(t, first, out)

	// And a different input must not see stale bytes.
	uniform := make([]byte, w*h)
	for i := range uniform {
		uniform[i] = 0x20
	}
	Demosaic(uniform, w, h, out)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			require.Equal(t, [4]byte{0x20, 0x20, 0x20, 0xff}, pixelAt(out, w, x, y))
		}
	}
}
