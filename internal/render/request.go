// Package render contains the render request queue and the engine goroutine
// that owns the GPU context: it drains the queue, converts frames, applies
// the look pipeline, and presents preview output or returns capture results.
package render

import (
	"errors"

	"signaturelens/internal/frame"
)

// Kind tags a render request.
type Kind int

const (
	// KindPreview is a latency-sensitive request; the queue may drop it
	// under pressure.
	KindPreview Kind = iota
	// KindCapture is a one-shot request; it is never dropped and its
	// completion always resolves.
	KindCapture
)

func (k Kind) String() string {
	switch k {
	case KindPreview:
		return "preview"
	case KindCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Result is a finished capture: styled pixels read back from the offscreen
// target.
type Result struct {
	Pixels         []byte
	Width          int
	Height         int
	SubjectPresent bool
}

// Completion receives the outcome of a capture request, exactly once,
// from the render goroutine (or from queue shutdown).
type Completion func(Result, error)

// Request is a unit of work for the render goroutine. Kind selects the
// variant: preview requests carry only a frame; capture requests also carry
// a completion. The request owns its frame until the engine releases it.
type Request struct {
	Kind     Kind
	Frame    *frame.Frame
	Complete Completion
}

var (
	// ErrStopped is delivered to pending capture completions when the
	// engine shuts down before rendering them.
	ErrStopped = errors.New("render: engine stopped")

	// ErrRenderFailed wraps capture-time render errors. Such errors are
	// local to one capture attempt; preview is unaffected.
	ErrRenderFailed = errors.New("render: render failed")
)
