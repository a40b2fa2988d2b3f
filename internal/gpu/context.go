// Package gpu provides the rendering context the pipeline's render goroutine
// owns: shader program compilation, a reusable input texture, offscreen
// framebuffers with pixel readback, and a presentable surface target.
//
// A Context and every resource created from it belong to exactly one
// goroutine. Nothing in this package is safe for concurrent use; the render
// engine enforces single-goroutine ownership by construction.
package gpu

import (
	"errors"
	"fmt"
)

// ErrContextDestroyed is returned by operations on a destroyed context.
var ErrContextDestroyed = errors.New("gpu: context destroyed")

// ShaderCompileError reports a stage that failed to compile. Compilation
// failures are fatal at engine startup and are not retried.
type ShaderCompileError struct {
	Shader string
	Stage  string
	Reason string
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("gpu: shader %q stage %q failed to compile: %s", e.Shader, e.Stage, e.Reason)
}

// ShaderLinkError reports a program whose stages could not be linked.
type ShaderLinkError struct {
	Shader string
	Reason string
}

func (e *ShaderLinkError) Error() string {
	return fmt.Sprintf("gpu: shader %q failed to link: %s", e.Shader, e.Reason)
}

// FramebufferIncompleteError reports an offscreen target that could not be
// established at the requested size.
type FramebufferIncompleteError struct {
	Width  int
	Height int
	Reason string
}

func (e *FramebufferIncompleteError) Error() string {
	return fmt.Sprintf("gpu: framebuffer %dx%d incomplete: %s", e.Width, e.Height, e.Reason)
}

// Surface is a drawable target the render goroutine presents preview output
// into. The surface is created and destroyed by the presentation layer;
// the renderer only references it. Present receives packed RGBA pixels that
// remain valid only for the duration of the call.
type Surface interface {
	Present(pix []byte, width, height int) error
}

// maxTargetBytes bounds offscreen allocations; a request past it reports an
// incomplete framebuffer rather than exhausting memory.
const maxTargetBytes = 256 << 20

// Context is the render goroutine's drawing context.
type Context struct {
	destroyed bool
	programs  int
	textures  int
}

// NewContext establishes a context on the calling goroutine.
func NewContext() *Context {
	return &Context{}
}

// Destroy releases the context. Programs, textures and framebuffers created
// from it must not be used afterwards.
func (c *Context) Destroy() {
	c.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (c *Context) Destroyed() bool {
	return c.destroyed
}
