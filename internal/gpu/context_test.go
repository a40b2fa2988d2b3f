package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func identityStage(name string) Stage {
	return Stage{Name: name, Fn: func(c Color, x, y float32) Color { return c }}
}

func TestCompileRejectsNilStage(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	_, err := ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{{Name: "tone"}}})
	var ce *ShaderCompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "tone", ce.Stage)
}

func TestCompileRejectsEmptyAndDuplicateStages(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	_, err := ctx.Compile(ShaderSource{Name: "look"})
	var le *ShaderLinkError
	require.ErrorAs(t, err, &le)

	_, err = ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{identityStage("a"), identityStage("a")}})
	require.ErrorAs(t, err, &le)
}

func TestDrawToFramebufferAndReadback(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	invert := Stage{Name: "invert", Fn: func(c Color, x, y float32) Color {
		return Color{R: 1 - c.R, G: 1 - c.G, B: 1 - c.B, A: c.A}
	}}
	prog, err := ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{invert}})
	require.NoError(t, err)
	defer prog.Destroy()

	tex, err := ctx.NewTexture()
	require.NoError(t, err)
	defer tex.Destroy()

	src := make([]byte, 2*2*4)
	for i := 0; i < len(src); i += 4 {
		src[i], src[i+1], src[i+2], src[i+3] = 0, 255, 100, 255
	}
	require.NoError(t, tex.Upload(src, 2, 2))

	fb, err := ctx.NewFramebuffer(2, 2)
	require.NoError(t, err)
	defer fb.Destroy()

	require.NoError(t, ctx.Draw(prog, tex, fb))
	out := fb.ReadPixels()
	require.Equal(t, byte(255), out[0])
	require.Equal(t, byte(0), out[1])
	require.Equal(t, byte(155), out[2])
	require.Equal(t, byte(255), out[3])
}

func TestFramebufferIncomplete(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	var fe *FramebufferIncompleteError
	_, err := ctx.NewFramebuffer(0, 100)
	require.ErrorAs(t, err, &fe)

	_, err = ctx.NewFramebuffer(1<<16, 1<<16)
	require.ErrorAs(t, err, &fe)
}

func TestDrawSizeMismatch(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	prog, err := ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{identityStage("id")}})
	require.NoError(t, err)
	tex, err := ctx.NewTexture()
	require.NoError(t, err)
	require.NoError(t, tex.Upload(make([]byte, 4*4*4), 4, 4))

	fb, err := ctx.NewFramebuffer(2, 2)
	require.NoError(t, err)
	require.Error(t, ctx.Draw(prog, tex, fb))
}

func TestDestroyedContextRefusesWork(t *testing.T) {
	ctx := NewContext()
	ctx.Destroy()

	_, err := ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{identityStage("id")}})
	require.ErrorIs(t, err, ErrContextDestroyed)
	_, err = ctx.NewTexture()
	require.ErrorIs(t, err, ErrContextDestroyed)
	_, err = ctx.NewFramebuffer(2, 2)
	require.ErrorIs(t, err, ErrContextDestroyed)
}

type recordSurface struct {
	w, h int
	pix  []byte
}

func (r *recordSurface) Present(pix []byte, w, h int) error {
	r.w, r.h = w, h
	r.pix = append(r.pix[:0], pix...)
	return nil
}

func TestDrawToSurface(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	prog, err := ctx.Compile(ShaderSource{Name: "look", Stages: []Stage{identityStage("id")}})
	require.NoError(t, err)
	tex, err := ctx.NewTexture()
	require.NoError(t, err)

	src := []byte{10, 20, 30, 255}
	require.NoError(t, tex.Upload(src, 1, 1))

	surf := &recordSurface{}
	require.NoError(t, ctx.DrawToSurface(prog, tex, surf))
	require.Equal(t, 1, surf.w)
	require.Equal(t, src, surf.pix)
}
