// Package subject produces the asynchronous subject-presence flag the look
// pipeline branches on. Detection is throttled to every Kth arriving frame,
// runs on one persistent worker with a busy guard (never more than one task
// in flight), and always operates on a downscaled copy so its cost is
// independent of capture resolution. Detector failures are swallowed and
// treated as "no subject".
package subject

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"

	"signaturelens/internal/frame"
	"signaturelens/internal/pixel"
)

// Detector decides whether a subject is present in a downscaled RGB image.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img *image.RGBA) (bool, error)
}

// Config tunes the signal.
type Config struct {
	// Interval runs detection on every Kth observed frame; other frames
	// reuse the last computed flag. Zero means DefaultInterval.
	Interval int
	// MaxEdge is the long-edge size of the downscaled detection input.
	MaxEdge int
	// Timeout bounds one detector invocation.
	Timeout time.Duration
}

const (
	// DefaultInterval gives ~10 Hz detection at a ~30 Hz capture rate.
	DefaultInterval = 3
	defaultMaxEdge  = 160
	defaultTimeout  = 2 * time.Second
)

// Signal owns the detection worker and the published flag.
type Signal struct {
	detector Detector
	cfg      Config

	present atomic.Bool // single writer: the worker goroutine
	seen    atomic.Uint64
	busy    atomic.Bool
	ran     atomic.Uint64

	tasks chan *frame.Frame

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSignal creates a signal over the given detector.
func NewSignal(d Detector, cfg Config) *Signal {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = defaultMaxEdge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Signal{
		detector: d,
		cfg:      cfg,
		tasks:    make(chan *frame.Frame, 1),
	}
}

// Start launches the worker.
func (s *Signal) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
	log.Printf("[SubjectSignal] Started (detector: %s, every %d frames)", s.detector.Name(), s.cfg.Interval)
}

// Stop terminates the worker and waits for it to exit.
func (s *Signal) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	<-s.done
	log.Printf("[SubjectSignal] Stopped")
}

// Present returns the most recently computed flag. It is safe to call from
// any goroutine and never blocks.
func (s *Signal) Present() bool {
	return s.present.Load()
}

// Observe offers one arriving frame to the throttle. It never blocks and
// never takes ownership of f: when a detection is due and the worker is
// idle, the planes are copied out before Observe returns.
func (s *Signal) Observe(f *frame.Frame) {
	n := s.seen.Add(1)
	if (n-1)%uint64(s.cfg.Interval) != 0 {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		// A detection is already in flight; keep the last flag.
		return
	}
	select {
	case s.tasks <- f.Clone():
	default:
		s.busy.Store(false)
	}
}

// Detections returns how many detector invocations have completed.
func (s *Signal) Detections() uint64 {
	return s.ran.Load()
}

func (s *Signal) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case f := <-s.tasks:
			s.detect(f)
			s.busy.Store(false)
		}
	}
}

func (s *Signal) detect(f *frame.Frame) {
	defer s.ran.Add(1)

	img, err := pixel.ConvertToImage(f)
	f.Release()
	if err != nil {
		s.present.Store(false)
		return
	}
	small := downscale(img, s.cfg.MaxEdge)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	present, err := s.detector.Detect(ctx, small)
	if err != nil {
		// Detector failures never surface as pipeline errors.
		log.Printf("[SubjectSignal] Detector error (treating as absent): %v", err)
		s.present.Store(false)
		return
	}
	s.present.Store(present)
}

// downscale resizes img so its long edge is at most maxEdge, preserving
// aspect ratio. Images already small enough are returned as-is.
func downscale(img *image.RGBA, maxEdge int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return img
	}
	scale := float64(maxEdge) / float64(long)
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
