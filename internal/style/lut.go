package style

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CubeLUT is a 3D color lookup table with Size samples per axis. Data holds
// Size³ RGB triples with red varying fastest, the layout used by .cube
// files.
type CubeLUT struct {
	Size int
	Data []float32
}

// IdentityLUT returns a LUT that maps every color to itself (within
// quantization of the lattice).
func IdentityLUT(size int) *CubeLUT {
	l := &CubeLUT{Size: size, Data: make([]float32, 3*size*size*size)}
	i := 0
	for b := 0; b < size; b++ {
		for g := 0; g < size; g++ {
			for r := 0; r < size; r++ {
				l.Data[i+0] = float32(r) / float32(size-1)
				l.Data[i+1] = float32(g) / float32(size-1)
				l.Data[i+2] = float32(b) / float32(size-1)
				i += 3
			}
		}
	}
	return l
}

// ParseCube reads a minimal .cube file: LUT_3D_SIZE plus data lines.
// TITLE and DOMAIN_MIN/MAX lines are accepted and ignored.
func ParseCube(r io.Reader) (*CubeLUT, error) {
	var l *CubeLUT
	idx := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "TITLE", "DOMAIN_MIN", "DOMAIN_MAX":
			continue
		case "LUT_3D_SIZE":
			if len(fields) != 2 {
				return nil, fmt.Errorf("lut: malformed LUT_3D_SIZE line %q", line)
			}
			size, err := strconv.Atoi(fields[1])
			if err != nil || size < 2 {
				return nil, fmt.Errorf("lut: bad size %q", fields[1])
			}
			l = &CubeLUT{Size: size, Data: make([]float32, 3*size*size*size)}
		default:
			if l == nil {
				return nil, fmt.Errorf("lut: data before LUT_3D_SIZE")
			}
			if len(fields) != 3 {
				return nil, fmt.Errorf("lut: malformed data line %q", line)
			}
			if idx+3 > len(l.Data) {
				return nil, fmt.Errorf("lut: too many data lines")
			}
			for i, f := range fields {
				v, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("lut: bad value %q: %w", f, err)
				}
				l.Data[idx+i] = float32(v)
			}
			idx += 3
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("lut: missing LUT_3D_SIZE")
	}
	if idx != len(l.Data) {
		return nil, fmt.Errorf("lut: expected %d entries, got %d", len(l.Data)/3, idx/3)
	}
	return l, nil
}

// Sample returns the trilinearly interpolated LUT value for a color with
// components in [0,1].
func (l *CubeLUT) Sample(r, g, b float32) (float32, float32, float32) {
	n := l.Size
	fr := clamp01(r) * float32(n-1)
	fg := clamp01(g) * float32(n-1)
	fb := clamp01(b) * float32(n-1)

	r0, g0, b0 := int(fr), int(fg), int(fb)
	r1, g1, b1 := min(r0+1, n-1), min(g0+1, n-1), min(b0+1, n-1)
	tr, tg, tb := fr-float32(r0), fg-float32(g0), fb-float32(b0)

	at := func(ri, gi, bi int) (float32, float32, float32) {
		i := 3 * (bi*n*n + gi*n + ri)
		return l.Data[i], l.Data[i+1], l.Data[i+2]
	}

	var out [3]float32
	for c := 0; c < 3; c++ {
		pick := func(ri, gi, bi int) float32 {
			x, y, z := at(ri, gi, bi)
			switch c {
			case 0:
				return x
			case 1:
				return y
			default:
				return z
			}
		}
		c00 := lerp(pick(r0, g0, b0), pick(r1, g0, b0), tr)
		c10 := lerp(pick(r0, g1, b0), pick(r1, g1, b0), tr)
		c01 := lerp(pick(r0, g0, b1), pick(r1, g0, b1), tr)
		c11 := lerp(pick(r0, g1, b1), pick(r1, g1, b1), tr)
		out[c] = lerp(lerp(c00, c10, tg), lerp(c01, c11, tg), tb)
	}
	return out[0], out[1], out[2]
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
