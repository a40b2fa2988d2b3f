package gpu

// Color is one normalized RGBA sample in [0,1].
type Color struct {
	R, G, B, A float32
}

// PixelFunc maps one sample to another. x and y are the sample's normalized
// frame coordinates in [0,1], measured at the pixel center.
type PixelFunc func(c Color, x, y float32) Color

// Stage is one named pass of a shader program.
type Stage struct {
	Name string
	Fn   PixelFunc
}

// ShaderSource describes a whole-frame shading pass as an ordered list of
// stages. The stages are fused at compile time and applied per pixel in
// order.
type ShaderSource struct {
	Name   string
	Stages []Stage
}

// Program is a compiled shader. It is owned by the goroutine that owns the
// compiling context.
type Program struct {
	name   string
	stages []Stage
	ctx    *Context
}

// Compile validates and links src into a runnable program. Stage validation
// failures surface as *ShaderCompileError; structural failures (no stages,
// duplicate stage names) as *ShaderLinkError. Both are fatal to the caller's
// startup path.
func (c *Context) Compile(src ShaderSource) (*Program, error) {
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if src.Name == "" {
		return nil, &ShaderCompileError{Shader: "<unnamed>", Reason: "shader has no name"}
	}
	for _, s := range src.Stages {
		if s.Name == "" {
			return nil, &ShaderCompileError{Shader: src.Name, Reason: "stage has no name"}
		}
		if s.Fn == nil {
			return nil, &ShaderCompileError{Shader: src.Name, Stage: s.Name, Reason: "stage body is nil"}
		}
	}
	if len(src.Stages) == 0 {
		return nil, &ShaderLinkError{Shader: src.Name, Reason: "no stages"}
	}
	seen := make(map[string]bool, len(src.Stages))
	for _, s := range src.Stages {
		if seen[s.Name] {
			return nil, &ShaderLinkError{Shader: src.Name, Reason: "duplicate stage " + s.Name}
		}
		seen[s.Name] = true
	}

	c.programs++
	stages := make([]Stage, len(src.Stages))
	copy(stages, src.Stages)
	return &Program{name: src.Name, stages: stages, ctx: c}, nil
}

// Name returns the program's shader name.
func (p *Program) Name() string {
	return p.name
}

// Destroy releases the program.
func (p *Program) Destroy() {
	if p.ctx != nil {
		p.ctx.programs--
		p.ctx = nil
	}
	p.stages = nil
}

// run executes the fused stages over src into dst. Both are packed RGBA of
// w*h pixels; dst and src may alias.
func (p *Program) run(dst, src []byte, w, h int) {
	invW := 1 / float32(w)
	invH := 1 / float32(h)
	for y := 0; y < h; y++ {
		fy := (float32(y) + 0.5) * invH
		row := y * w * 4
		for x := 0; x < w; x++ {
			i := row + x*4
			c := Color{
				R: float32(src[i+0]) / 255,
				G: float32(src[i+1]) / 255,
				B: float32(src[i+2]) / 255,
				A: float32(src[i+3]) / 255,
			}
			fx := (float32(x) + 0.5) * invW
			for _, s := range p.stages {
				c = s.Fn(c, fx, fy)
			}
			dst[i+0] = clampByte(c.R)
			dst[i+1] = clampByte(c.G)
			dst[i+2] = clampByte(c.B)
			dst[i+3] = clampByte(c.A)
		}
	}
}

func clampByte(v float32) byte {
	v *= 255
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}
