package subject

import (
	"context"
	"image"
)

// LumaDetector is a local heuristic detector used when no inference sidecar
// is configured. It looks for a skin-toned region in the center of the
// frame: pixels where red dominates green dominates blue within a plausible
// band. Crude, but deterministic and dependency-free, and good enough to
// exercise the subject branch of the look pipeline.
type LumaDetector struct {
	// MinRatio is the fraction of center pixels that must look skin-toned.
	MinRatio float64
}

// NewLumaDetector returns the heuristic detector with default tuning.
func NewLumaDetector() *LumaDetector {
	return &LumaDetector{MinRatio: 0.08}
}

// Name implements Detector.
func (d *LumaDetector) Name() string { return "luma" }

// Detect implements Detector. It examines the center half of the image.
func (d *LumaDetector) Detect(_ context.Context, img *image.RGBA) (bool, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return false, nil
	}

	x0, x1 := b.Min.X+w/4, b.Max.X-w/4
	y0, y1 := b.Min.Y+h/4, b.Max.Y-h/4

	total := 0
	hits := 0
	for y := y0; y < y1; y++ {
		row := img.PixOffset(x0, y)
		for x := x0; x < x1; x++ {
			r := int(img.Pix[row+0])
			g := int(img.Pix[row+1])
			bb := int(img.Pix[row+2])
			row += 4
			total++
			if r > 60 && r > g && g > bb && r-g >= 10 && r-g <= 90 && r-bb >= 20 {
				hits++
			}
		}
	}
	if total == 0 {
		return false, nil
	}
	return float64(hits)/float64(total) >= d.MinRatio, nil
}
