package frame

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrReleased is returned when Release is called on an already-released frame.
var ErrReleased = errors.New("frame already released")

// Plane is one plane of a multi-plane image. RowStride is the number of bytes
// between the starts of consecutive rows; PixStride is the number of bytes
// between horizontally adjacent samples within a row. Chroma planes use
// PixStride 1 for fully planar layouts and 2 for interleaved (semi-planar)
// layouts.
type Plane struct {
	Data      []byte
	RowStride int
	PixStride int
}

// Frame is one hardware-delivered image in its native multi-plane pixel
// layout. A frame has exactly one holder at a time: whichever component
// currently holds it must call Release exactly once, whether the frame was
// rendered, dropped, or failed.
type Frame struct {
	Width     int
	Height    int
	Planes    [3]Plane // Y, U, V
	Timestamp time.Time

	onRelease func()
	released  atomic.Bool
}

// New wraps pixel planes in a frame. onRelease runs once, when Release is
// first called; it may be nil.
func New(width, height int, planes [3]Plane, ts time.Time, onRelease func()) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Planes:    planes,
		Timestamp: ts,
		onRelease: onRelease,
	}
}

// NewYUV420 allocates a fully planar 4:2:0 frame backed by a single
// contiguous buffer. Width and height must be even.
func NewYUV420(width, height int, ts time.Time, onRelease func()) *Frame {
	cw, ch := width/2, height/2
	buf := make([]byte, width*height+2*cw*ch)
	planes := [3]Plane{
		{Data: buf[:width*height], RowStride: width, PixStride: 1},
		{Data: buf[width*height : width*height+cw*ch], RowStride: cw, PixStride: 1},
		{Data: buf[width*height+cw*ch:], RowStride: cw, PixStride: 1},
	}
	return New(width, height, planes, ts, onRelease)
}

// Release returns the frame's pixel planes to their owner. Calling Release a
// second time is a bug in the caller; it returns ErrReleased and the release
// hook does not run again.
func (f *Frame) Release() error {
	if f.released.Swap(true) {
		return ErrReleased
	}
	if f.onRelease != nil {
		f.onRelease()
	}
	return nil
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// Clone copies the frame's planes into freshly allocated, tightly packed
// storage. The clone is an independent frame with no release hook; it is used
// to hand pixel data to a worker without taking over ownership of the
// original.
func (f *Frame) Clone() *Frame {
	var planes [3]Plane
	for i, p := range f.Planes {
		d := make([]byte, len(p.Data))
		copy(d, p.Data)
		planes[i] = Plane{Data: d, RowStride: p.RowStride, PixStride: p.PixStride}
	}
	return New(f.Width, f.Height, planes, f.Timestamp, nil)
}

// Tracker counts frame acquisitions and releases. Device backends call
// Acquire when they hand a frame into the pipeline and install OnRelease as
// the frame's release hook, so tests can verify that every frame created
// during a session is released exactly once.
type Tracker struct {
	acquired atomic.Int64
	released atomic.Int64
}

// Acquire records that a frame entered the pipeline.
func (t *Tracker) Acquire() {
	t.acquired.Add(1)
}

// OnRelease records that a frame was released.
func (t *Tracker) OnRelease() {
	t.released.Add(1)
}

// Acquired returns the number of frames handed into the pipeline.
func (t *Tracker) Acquired() int64 {
	return t.acquired.Load()
}

// Released returns the number of frames released.
func (t *Tracker) Released() int64 {
	return t.released.Load()
}

// Balanced reports whether every acquired frame has been released.
func (t *Tracker) Balanced() bool {
	return t.acquired.Load() == t.released.Load()
}
