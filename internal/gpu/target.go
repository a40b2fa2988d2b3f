package gpu

import (
	"errors"
	"fmt"
)

// Texture is reusable pixel storage for shader input. The render engine
// allocates one at startup and re-uploads each converted frame into it,
// growing the backing store only when the frame size changes.
type Texture struct {
	width  int
	height int
	pix    []byte
	ctx    *Context
}

// NewTexture creates an empty texture.
func (c *Context) NewTexture() (*Texture, error) {
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	c.textures++
	return &Texture{ctx: c}, nil
}

// Upload stores packed RGBA pixels in the texture, reusing the backing
// buffer when the size is unchanged.
func (t *Texture) Upload(pix []byte, width, height int) error {
	if t.ctx == nil {
		return errors.New("gpu: texture destroyed")
	}
	need := width * height * 4
	if width <= 0 || height <= 0 || len(pix) < need {
		return fmt.Errorf("gpu: bad texture upload %dx%d with %d bytes", width, height, len(pix))
	}
	if cap(t.pix) < need {
		t.pix = make([]byte, need)
	}
	t.pix = t.pix[:need]
	copy(t.pix, pix[:need])
	t.width, t.height = width, height
	return nil
}

// Destroy releases the texture storage.
func (t *Texture) Destroy() {
	if t.ctx != nil {
		t.ctx.textures--
		t.ctx = nil
	}
	t.pix = nil
	t.width, t.height = 0, 0
}

// Framebuffer is an offscreen render target with a CPU-readable backing
// store, used for styled capture readback. It is transient: created per
// capture and destroyed immediately after ReadPixels.
type Framebuffer struct {
	width  int
	height int
	pix    []byte
}

// NewFramebuffer establishes an offscreen target. A target that cannot be
// established at the requested size reports *FramebufferIncompleteError.
func (c *Context) NewFramebuffer(width, height int) (*Framebuffer, error) {
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if width <= 0 || height <= 0 {
		return nil, &FramebufferIncompleteError{Width: width, Height: height, Reason: "non-positive dimensions"}
	}
	need := int64(width) * int64(height) * 4
	if need > maxTargetBytes {
		return nil, &FramebufferIncompleteError{Width: width, Height: height, Reason: "attachment exceeds target budget"}
	}
	return &Framebuffer{width: width, height: height, pix: make([]byte, need)}, nil
}

// Width returns the target width in pixels.
func (f *Framebuffer) Width() int { return f.width }

// Height returns the target height in pixels.
func (f *Framebuffer) Height() int { return f.height }

// ReadPixels copies the rendered contents out as packed RGBA.
func (f *Framebuffer) ReadPixels() []byte {
	out := make([]byte, len(f.pix))
	copy(out, f.pix)
	return out
}

// Destroy releases the target storage.
func (f *Framebuffer) Destroy() {
	f.pix = nil
	f.width, f.height = 0, 0
}

// Draw runs p over the texture contents into the framebuffer. The texture
// and target must have matching dimensions.
func (c *Context) Draw(p *Program, t *Texture, dst *Framebuffer) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if p == nil || p.ctx == nil {
		return errors.New("gpu: draw with destroyed program")
	}
	if t == nil || t.ctx == nil || len(t.pix) == 0 {
		return errors.New("gpu: draw with empty texture")
	}
	if dst == nil || dst.pix == nil {
		return errors.New("gpu: draw to destroyed framebuffer")
	}
	if dst.width != t.width || dst.height != t.height {
		return fmt.Errorf("gpu: target %dx%d does not match texture %dx%d", dst.width, dst.height, t.width, t.height)
	}
	p.run(dst.pix, t.pix, t.width, t.height)
	return nil
}

// DrawToSurface runs p over the texture contents and presents the result to
// the surface. The shaded pixels are only valid during the Present call.
func (c *Context) DrawToSurface(p *Program, t *Texture, s Surface) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if p == nil || p.ctx == nil {
		return errors.New("gpu: draw with destroyed program")
	}
	if t == nil || t.ctx == nil || len(t.pix) == 0 {
		return errors.New("gpu: draw with empty texture")
	}
	if s == nil {
		return errors.New("gpu: nil surface")
	}
	// Shade in place: the texture holds the converted frame, which is not
	// needed again after this draw.
	p.run(t.pix, t.pix, t.width, t.height)
	return s.Present(t.pix, t.width, t.height)
}
