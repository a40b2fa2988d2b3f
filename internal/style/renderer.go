// Package style implements the look pipeline: tone mapping, color grading
// with a subject-aware branch, an optional 3D LUT, and a radial vignette.
// The whole look is compiled into two gpu programs at startup — one per
// subject branch — so the branch is chosen once per draw call, never per
// pixel.
package style

import (
	"math"

	"signaturelens/internal/gpu"
)

// Default grading constants. The no-subject grade is a fixed warm/magenta
// cast; the subject grade adds warmth plus a mild saturation and brightness
// lift applied in HSV space.
const (
	DefaultVignetteStrength = 0.35

	warmBiasR = 0.035
	warmBiasG = -0.005
	warmBiasB = 0.02

	subjectBiasR = 0.05
	subjectBiasG = 0.01
	subjectSat   = 1.08
	subjectVal   = 1.06

	vignetteInner = 0.45
	vignetteOuter = 0.85
)

// Params is the immutable-per-frame render configuration.
type Params struct {
	VignetteStrength float32
	LUT              *CubeLUT // nil renders without a LUT pass
}

// DefaultParams returns the stock look.
func DefaultParams() Params {
	return Params{VignetteStrength: DefaultVignetteStrength}
}

// Renderer owns the compiled look programs and the reusable input texture.
// It must only be used from the goroutine that owns ctx.
type Renderer struct {
	ctx     *gpu.Context
	tex     *gpu.Texture
	plain   *gpu.Program // subject absent
	subject *gpu.Program // subject present
}

// NewRenderer compiles both look programs and allocates the input texture.
// Shader compile or link failures are fatal: the caller must treat them as a
// startup failure, not retry per session.
func NewRenderer(ctx *gpu.Context, params Params) (*Renderer, error) {
	tex, err := ctx.NewTexture()
	if err != nil {
		return nil, err
	}

	plain, err := ctx.Compile(lookShader("look", false, params))
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	subject, err := ctx.Compile(lookShader("look_subject", true, params))
	if err != nil {
		plain.Destroy()
		tex.Destroy()
		return nil, err
	}

	return &Renderer{ctx: ctx, tex: tex, plain: plain, subject: subject}, nil
}

// Close releases the programs and the input texture.
func (r *Renderer) Close() {
	r.plain.Destroy()
	r.subject.Destroy()
	r.tex.Destroy()
}

func (r *Renderer) program(subjectPresent bool) *gpu.Program {
	if subjectPresent {
		return r.subject
	}
	return r.plain
}

// RenderPreview uploads the converted frame and presents the styled result
// to the display surface.
func (r *Renderer) RenderPreview(pix []byte, width, height int, subjectPresent bool, surf gpu.Surface) error {
	if err := r.tex.Upload(pix, width, height); err != nil {
		return err
	}
	return r.ctx.DrawToSurface(r.program(subjectPresent), r.tex, surf)
}

// RenderCapture renders the converted frame into a transient offscreen
// target sized to the frame, reads the styled pixels back, and destroys the
// target before returning.
func (r *Renderer) RenderCapture(pix []byte, width, height int, subjectPresent bool) ([]byte, error) {
	if err := r.tex.Upload(pix, width, height); err != nil {
		return nil, err
	}
	fb, err := r.ctx.NewFramebuffer(width, height)
	if err != nil {
		return nil, err
	}
	defer fb.Destroy()

	if err := r.ctx.Draw(r.program(subjectPresent), r.tex, fb); err != nil {
		return nil, err
	}
	return fb.ReadPixels(), nil
}

// lookShader assembles the per-pixel pipeline for one subject branch.
func lookShader(name string, subjectPresent bool, params Params) gpu.ShaderSource {
	stages := []gpu.Stage{
		{Name: "tone", Fn: toneMap},
		{Name: "grade", Fn: grade(subjectPresent)},
	}
	if params.LUT != nil {
		lut := params.LUT
		stages = append(stages, gpu.Stage{Name: "lut", Fn: func(c gpu.Color, x, y float32) gpu.Color {
			c.R, c.G, c.B = lut.Sample(c.R, c.G, c.B)
			return c
		}})
	}
	stages = append(stages, gpu.Stage{Name: "vignette", Fn: vignette(params.VignetteStrength)})
	return gpu.ShaderSource{Name: name, Stages: stages}
}

// toneMap lifts shadows and softens highlights with a per-channel smooth
// S-curve, x²(3−2x).
func toneMap(c gpu.Color, x, y float32) gpu.Color {
	s := func(v float32) float32 { return v * v * (3 - 2*v) }
	c.R, c.G, c.B = s(c.R), s(c.G), s(c.B)
	return c
}

func grade(subjectPresent bool) gpu.PixelFunc {
	if !subjectPresent {
		return func(c gpu.Color, x, y float32) gpu.Color {
			c.R += warmBiasR
			c.G += warmBiasG
			c.B += warmBiasB
			return c
		}
	}
	return func(c gpu.Color, x, y float32) gpu.Color {
		h, s, v := rgbToHSV(c.R, c.G, c.B)
		s = clamp01(s * subjectSat)
		v = clamp01(v * subjectVal)
		c.R, c.G, c.B = hsvToRGB(h, s, v)
		c.R += subjectBiasR
		c.G += subjectBiasG
		return c
	}
}

func vignette(strength float32) gpu.PixelFunc {
	return func(c gpu.Color, x, y float32) gpu.Color {
		dx := x - 0.5
		dy := y - 0.5
		d := float32(math.Sqrt(float64(dx*dx+dy*dy))) / 0.70710678
		f := 1 - strength*smoothstep(vignetteInner, vignetteOuter, d)
		c.R *= f
		c.G *= f
		c.B *= f
		return c
	}
}

func smoothstep(edge0, edge1, x float32) float32 {
	t := clamp01((x - edge0) / (edge1 - edge0))
	return t * t * (3 - 2*t)
}

func rgbToHSV(r, g, b float32) (h, s, v float32) {
	mx := max(r, max(g, b))
	mn := min(r, min(g, b))
	v = mx
	d := mx - mn
	if mx > 0 {
		s = d / mx
	}
	if d == 0 {
		return 0, s, v
	}
	switch mx {
	case r:
		h = (g - b) / d
		if h < 0 {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h /= 6
	return h, s, v
}

func hsvToRGB(h, s, v float32) (r, g, b float32) {
	if s == 0 {
		return v, v, v
	}
	h = h * 6
	i := int(h) % 6
	f := h - float32(int(h))
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch i {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
