package render

import (
	"fmt"
	"log"
	"sync"

	"signaturelens/internal/gpu"
	"signaturelens/internal/pixel"
	"signaturelens/internal/style"
)

// SubjectProvider exposes the current subject-presence flag. It is read once
// per rendered frame; the producer writes it from its own goroutine.
type SubjectProvider interface {
	Present() bool
}

// Config wires an engine.
type Config struct {
	Queue   *Queue
	Surface gpu.Surface
	Params  style.Params
	Subject SubjectProvider // nil renders the no-subject branch always
}

// Engine is the single goroutine that owns the GPU context. It drains the
// queue, converts each frame to RGBA, releases the frame, and runs the look
// pipeline: preview requests present to the display surface, capture
// requests render offscreen and resolve their completion with the readback.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// rgba is the conversion scratch buffer, reused across frames and
	// touched only by the render goroutine.
	rgba []byte
}

// New creates an engine; Start launches its goroutine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Start launches the render goroutine and blocks until its GPU context is
// established. A shader compile or link failure is returned here and is
// fatal: the engine is not running afterwards.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("render: engine already running")
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	startErr := make(chan error, 1)

	go e.run(startErr)

	if err := <-startErr; err != nil {
		<-e.done
		return err
	}
	e.running = true
	log.Printf("[RenderEngine] Started")
	return nil
}

// Stop signals the render goroutine, joins it, and drains the queue. GPU
// resource release happens-before Stop returns, so a subsequent Start never
// observes stale GPU state. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	e.mu.Unlock()

	<-e.done
	e.cfg.Queue.Close()
	log.Printf("[RenderEngine] Stopped")
}

// Running reports whether the render goroutine is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// run is the render goroutine. The GPU context lives entirely within it.
func (e *Engine) run(startErr chan<- error) {
	defer close(e.done)

	ctx := gpu.NewContext()
	renderer, err := style.NewRenderer(ctx, e.cfg.Params)
	if err != nil {
		ctx.Destroy()
		startErr <- err
		return
	}
	defer func() {
		renderer.Close()
		ctx.Destroy()
	}()
	startErr <- nil

	for {
		req, ok := e.cfg.Queue.Dequeue(e.stop)
		if !ok {
			return
		}
		e.process(renderer, req)
	}
}

func (e *Engine) process(renderer *style.Renderer, req Request) {
	w, h := req.Frame.Width, req.Frame.Height
	need := w * h * 4
	if cap(e.rgba) < need {
		e.rgba = make([]byte, need)
	}
	e.rgba = e.rgba[:need]

	err := pixel.ConvertToRGBA(req.Frame, e.rgba)
	// The pixel planes are not needed past conversion; release the frame
	// before any GPU work so the device can reuse its buffers.
	req.Frame.Release()
	if err != nil {
		e.fail(req, fmt.Errorf("convert frame: %w", err))
		return
	}

	subjectPresent := e.cfg.Subject != nil && e.cfg.Subject.Present()

	switch req.Kind {
	case KindPreview:
		if err := renderer.RenderPreview(e.rgba, w, h, subjectPresent, e.cfg.Surface); err != nil {
			// A failed preview frame is skipped; the stream continues.
			log.Printf("[RenderEngine] Preview render failed: %v", err)
		}
	case KindCapture:
		pix, err := renderer.RenderCapture(e.rgba, w, h, subjectPresent)
		if err != nil {
			req.Complete(Result{}, fmt.Errorf("%w: %w", ErrRenderFailed, err))
			return
		}
		req.Complete(Result{Pixels: pix, Width: w, Height: h, SubjectPresent: subjectPresent}, nil)
	}
}

// fail resolves a request whose frame could not be used at all.
func (e *Engine) fail(req Request, err error) {
	switch req.Kind {
	case KindPreview:
		log.Printf("[RenderEngine] Skipping frame: %v", err)
	case KindCapture:
		req.Complete(Result{}, fmt.Errorf("%w: %w", ErrRenderFailed, err))
	}
}
