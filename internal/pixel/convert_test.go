package pixel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signaturelens/internal/frame"
)

// fillYUV sets every luma sample to y and every chroma sample to u, v.
func fillYUV(f *frame.Frame, y, u, v byte) {
	for i := range f.Planes[0].Data {
		f.Planes[0].Data[i] = y
	}
	for i := range f.Planes[1].Data {
		f.Planes[1].Data[i] = u
	}
	for i := range f.Planes[2].Data {
		f.Planes[2].Data[i] = v
	}
}

// semiPlanar builds an NV12-style frame: one luma plane plus a single
// interleaved UVUV plane addressed through two pixel-stride-2 views.
func semiPlanar(w, h int, y, u, v byte) *frame.Frame {
	luma := make([]byte, w*h)
	for i := range luma {
		luma[i] = y
	}
	uv := make([]byte, w*h/2)
	for i := 0; i < len(uv); i += 2 {
		uv[i] = u
		uv[i+1] = v
	}
	planes := [3]frame.Plane{
		{Data: luma, RowStride: w, PixStride: 1},
		{Data: uv, RowStride: w, PixStride: 2},
		{Data: uv[1:], RowStride: w, PixStride: 2},
	}
	return frame.New(w, h, planes, time.Now(), nil)
}

func convert(t *testing.T, f *frame.Frame) []byte {
	t.Helper()
	dst := make([]byte, f.Width*f.Height*4)
	require.NoError(t, ConvertToRGBA(f, dst))
	return dst
}

func TestMidGrayConvertsToMidGray(t *testing.T) {
	f := frame.NewYUV420(8, 8, time.Now(), nil)
	fillYUV(f, 128, 128, 128)

	dst := convert(t, f)
	for i := 0; i < len(dst); i += 4 {
		for c := 0; c < 3; c++ {
			require.InDelta(t, 128, int(dst[i+c]), 1)
		}
		require.Equal(t, byte(0xFF), dst[i+3])
	}
}

func TestZeroLumaConvertsToBlack(t *testing.T) {
	f := frame.NewYUV420(8, 8, time.Now(), nil)
	fillYUV(f, 0, 128, 128)

	dst := convert(t, f)
	for i := 0; i < len(dst); i += 4 {
		require.Equal(t, byte(0), dst[i+0])
		require.Equal(t, byte(0), dst[i+1])
		require.Equal(t, byte(0), dst[i+2])
	}
}

func TestPlanarAndInterleavedAgree(t *testing.T) {
	cases := []struct{ y, u, v byte }{
		{128, 128, 128},
		{0, 128, 128},
		{255, 128, 128},
		{90, 54, 240},  // saturated red-ish
		{200, 80, 100}, // green-ish
	}
	for _, tc := range cases {
		planar := frame.NewYUV420(8, 8, time.Now(), nil)
		fillYUV(planar, tc.y, tc.u, tc.v)

		a := convert(t, planar)
		b := convert(t, semiPlanar(8, 8, tc.y, tc.u, tc.v))
		require.Equal(t, a, b, "layouts must produce identical bytes for Y=%d U=%d V=%d", tc.y, tc.u, tc.v)
	}
}

func TestRowPaddingIsSkipped(t *testing.T) {
	// 4x2 frame with 4 bytes of padding per luma row and 2 per chroma row.
	const w, h, pad = 4, 2, 4
	luma := make([]byte, (w+pad)*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			luma[y*(w+pad)+x] = 128
		}
		for x := w; x < w+pad; x++ {
			luma[y*(w+pad)+x] = 0xEE // padding; must never be read as pixels
		}
	}
	chroma := func() []byte {
		d := make([]byte, (w/2+2)*(h/2))
		for i := range d {
			d[i] = 128
		}
		return d
	}
	planes := [3]frame.Plane{
		{Data: luma, RowStride: w + pad, PixStride: 1},
		{Data: chroma(), RowStride: w/2 + 2, PixStride: 1},
		{Data: chroma(), RowStride: w/2 + 2, PixStride: 1},
	}
	f := frame.New(w, h, planes, time.Now(), nil)

	dst := convert(t, f)
	for i := 0; i < len(dst); i += 4 {
		require.InDelta(t, 128, int(dst[i]), 1)
	}
}

func TestConversionIsDeterministic(t *testing.T) {
	f := frame.NewYUV420(16, 16, time.Now(), nil)
	for i := range f.Planes[0].Data {
		f.Planes[0].Data[i] = byte(i * 7)
	}
	for i := range f.Planes[1].Data {
		f.Planes[1].Data[i] = byte(i * 13)
		f.Planes[2].Data[i] = byte(i * 29)
	}

	a := convert(t, f)
	b := convert(t, f)
	require.Equal(t, a, b)
}

func TestBufferTooSmall(t *testing.T) {
	f := frame.NewYUV420(8, 8, time.Now(), nil)
	err := ConvertToRGBA(f, make([]byte, 10))
	require.Error(t, err)
}
