// Package pixel converts hardware YUV 4:2:0 frames to packed RGBA.
//
// The conversion is a pure function of the input bytes: it tolerates
// arbitrary row strides (padding) and both fully planar (chroma pixel
// stride 1) and interleaved semi-planar (chroma pixel stride 2) layouts,
// and both produce identical numeric results for the same sample values.
package pixel

import (
	"fmt"
	"image"

	"signaturelens/internal/frame"
)

// Full-range BT.601 coefficients in 10-bit fixed point:
// R = Y + 1.402 V', G = Y - 0.344136 U' - 0.714136 V', B = Y + 1.772 U'
// with U' = U-128, V' = V-128.
const (
	coefRV = 1436 // 1.402    * 1024
	coefGU = 352  // 0.344136 * 1024
	coefGV = 731  // 0.714136 * 1024
	coefBU = 1815 // 1.772    * 1024
)

// ConvertToRGBA converts f into dst as packed RGBA, 4 bytes per pixel,
// row-major with no padding. dst must hold at least Width*Height*4 bytes.
func ConvertToRGBA(f *frame.Frame, dst []byte) error {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", w, h)
	}
	if len(dst) < w*h*4 {
		return fmt.Errorf("rgba buffer too small: %d < %d", len(dst), w*h*4)
	}
	yp, up, vp := f.Planes[0], f.Planes[1], f.Planes[2]
	if len(yp.Data) == 0 || len(up.Data) == 0 || len(vp.Data) == 0 {
		return fmt.Errorf("frame has empty pixel planes")
	}

	for y := 0; y < h; y++ {
		yRow := y * yp.RowStride
		uvRow := (y / 2)
		di := y * w * 4
		for x := 0; x < w; x++ {
			uvIdx := uvRow*up.RowStride + (x/2)*up.PixStride

			Y := int(yp.Data[yRow+x*yp.PixStride])
			U := int(up.Data[uvIdx]) - 128
			V := int(vp.Data[uvRow*vp.RowStride+(x/2)*vp.PixStride]) - 128

			r := Y + (coefRV*V+512)>>10
			g := Y - (coefGU*U+512)>>10 - (coefGV*V+512)>>10
			b := Y + (coefBU*U+512)>>10

			dst[di+0] = clamp8(r)
			dst[di+1] = clamp8(g)
			dst[di+2] = clamp8(b)
			dst[di+3] = 0xFF
			di += 4
		}
	}
	return nil
}

// ConvertToImage converts f into a freshly allocated image.RGBA.
func ConvertToImage(f *frame.Frame) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if err := ConvertToRGBA(f, img.Pix); err != nil {
		return nil, err
	}
	return img, nil
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
