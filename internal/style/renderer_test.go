package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"signaturelens/internal/gpu"
)

func grayFrame(w, h int, v byte) []byte {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
	}
	return pix
}

func newRenderer(t *testing.T, params Params) (*Renderer, *gpu.Context) {
	t.Helper()
	ctx := gpu.NewContext()
	r, err := NewRenderer(ctx, params)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		ctx.Destroy()
	})
	return r, ctx
}

func TestSubjectBranchProducesWarmerBrighterOutput(t *testing.T) {
	params := Params{VignetteStrength: DefaultVignetteStrength, LUT: IdentityLUT(17)}
	r, _ := newRenderer(t, params)

	const w, h = 16, 16
	src := grayFrame(w, h, 128)

	off, err := r.RenderCapture(src, w, h, false)
	require.NoError(t, err)
	on, err := r.RenderCapture(src, w, h, true)
	require.NoError(t, err)

	// Compare the center pixel, where the vignette is negligible.
	ci := ((h/2)*w + w/2) * 4
	require.Greater(t, on[ci+0], off[ci+0], "subject branch must add warmth in red")
	require.Greater(t, on[ci+1], off[ci+1], "subject branch must lift brightness")

	// The two branches must differ by a deterministic, repeatable delta.
	on2, err := r.RenderCapture(src, w, h, true)
	require.NoError(t, err)
	require.Equal(t, on, on2)
	require.NotEqual(t, on, off)
}

func TestVignetteDarkensCorners(t *testing.T) {
	r, _ := newRenderer(t, DefaultParams())

	const w, h = 32, 32
	out, err := r.RenderCapture(grayFrame(w, h, 200), w, h, false)
	require.NoError(t, err)

	center := out[((h/2)*w+w/2)*4]
	corner := out[0]
	require.Less(t, corner, center, "corner must be darker than center")
}

func TestZeroVignetteLeavesEdgesAlone(t *testing.T) {
	r, _ := newRenderer(t, Params{VignetteStrength: 0})

	const w, h = 32, 32
	out, err := r.RenderCapture(grayFrame(w, h, 200), w, h, false)
	require.NoError(t, err)

	require.Equal(t, out[0], out[((h/2)*w+w/2)*4])
}

func TestToneCurveFixedPoints(t *testing.T) {
	// The smoothstep S-curve holds 0, 1/2 and 1 fixed, so pure black stays
	// black under tone mapping (grading may still bias it).
	r, _ := newRenderer(t, Params{VignetteStrength: 0})

	const w, h = 4, 4
	out, err := r.RenderCapture(grayFrame(w, h, 0), w, h, false)
	require.NoError(t, err)

	// Black plus the warm bias: red and blue lifted slightly, green clamped.
	require.InDelta(t, 9, int(out[0]), 1)
	require.Equal(t, byte(0), out[1])
	require.InDelta(t, 5, int(out[2]), 1)
}

func TestIdentityLUTMatchesNoLUT(t *testing.T) {
	const w, h = 8, 8
	src := grayFrame(w, h, 90)

	withLUT, _ := newRenderer(t, Params{VignetteStrength: 0.2, LUT: IdentityLUT(33)})
	noLUT, _ := newRenderer(t, Params{VignetteStrength: 0.2})

	a, err := withLUT.RenderCapture(src, w, h, false)
	require.NoError(t, err)
	b, err := noLUT.RenderCapture(src, w, h, false)
	require.NoError(t, err)

	for i := range a {
		require.InDelta(t, b[i], a[i], 1)
	}
}

func TestParseCube(t *testing.T) {
	src := `# comment
TITLE "test"
LUT_3D_SIZE 2
0 0 0
1 0 0
0 1 0
1 1 0
0 0 1
1 0 1
0 1 1
1 1 1
`
	lut, err := ParseCube(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 2, lut.Size)

	r, g, b := lut.Sample(1, 0, 1)
	require.InDelta(t, 1, r, 1e-6)
	require.InDelta(t, 0, g, 1e-6)
	require.InDelta(t, 1, b, 1e-6)

	// Midpoint interpolates.
	r, _, _ = lut.Sample(0.5, 0.5, 0.5)
	require.InDelta(t, 0.5, r, 1e-6)
}

func TestParseCubeErrors(t *testing.T) {
	_, err := ParseCube(strings.NewReader("0 0 0\n"))
	require.Error(t, err)

	_, err = ParseCube(strings.NewReader("LUT_3D_SIZE 2\n0 0 0\n"))
	require.Error(t, err, "truncated data must be rejected")
}
