package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signaturelens/internal/frame"
	"signaturelens/internal/gpu"
	"signaturelens/internal/render"
	"signaturelens/internal/style"
	"signaturelens/internal/subject"
)

// State is the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateOpening
	StatePreviewActive
	StateCapturingStill
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StatePreviewActive:
		return "preview"
	case StateCapturingStill:
		return "capturing"
	default:
		return "unknown"
	}
}

const (
	// DefaultPreviewMaxEdge caps the preview resolution's long edge.
	DefaultPreviewMaxEdge = 1280
	// DefaultCaptureTimeout bounds the wait for a still to render.
	DefaultCaptureTimeout = 10 * time.Second
	defaultPreviewFPS     = 30
)

// Config wires a controller.
type Config struct {
	Control  DeviceControl
	DeviceID string
	Surface  gpu.Surface
	Params   style.Params
	// Signal is optional; when set the controller starts and stops it with
	// the preview and feeds it preview frames.
	Signal         *subject.Signal
	PreviewMaxEdge int
	CaptureTimeout time.Duration
}

// session bundles everything one open device owns, so teardown is a single
// call and partial states cannot leak.
type session struct {
	id          string
	device      Device
	sess        Session
	queue       *render.Queue
	engine      *render.Engine
	previewSize Size
	captureSize Size
}

// close tears the bundle down in dependency order: session first so frame
// delivery stops, then the device, then the engine (which drains the queue).
func (a *session) close() {
	if a.sess != nil {
		if err := a.sess.Close(); err != nil {
			log.Printf("[CameraController] Session close: %v", err)
		}
		a.sess = nil
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			log.Printf("[CameraController] Device close: %v", err)
		}
		a.device = nil
	}
	if a.engine != nil {
		a.engine.Stop()
		a.engine = nil
	}
}

type captureOutcome struct {
	res render.Result
	err error
}

type pendingCapture struct {
	ch chan captureOutcome
}

// Controller drives one device through open, preview, still capture and
// teardown. At most one session is ever active. Public operations are
// serialized; frame delivery and render completion run on their own
// goroutines and never take the operation lock.
type Controller struct {
	cfg Config

	opMu    sync.Mutex // serializes StartPreview/StopPreview/CaptureStill/Close
	mu      sync.RWMutex
	state   State
	active  *session
	lastErr error

	pending atomic.Pointer[pendingCapture]
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	if cfg.PreviewMaxEdge <= 0 {
		cfg.PreviewMaxEdge = DefaultPreviewMaxEdge
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	return &Controller{cfg: cfg}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the reason for the most recent forced teardown, if any.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Active reports preview or capture resolutions of the running session.
func (c *Controller) Active() (previewSize, captureSize Size, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return Size{}, Size{}, false
	}
	return c.active.previewSize, c.active.captureSize, true
}

// StartPreview opens the device, derives preview and capture resolutions
// from its capabilities, starts the render engine and issues the repeating
// preview request. A session already active is fully closed first; there is
// never more than one open at a time. On any failure no resources remain
// held and the controller is back at idle.
func (c *Controller) StartPreview() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if old := c.takeActive(StateOpening); old != nil {
		log.Printf("[CameraController] Replacing active session %s", old.id)
		c.stopSignal()
		old.close()
	}

	a, err := c.openSession()
	if err != nil {
		c.setIdle(err)
		return err
	}

	if err := a.sess.SubmitRepeating(ControlRequest{Targets: []string{TargetPreview}, FPS: defaultPreviewFPS}); err != nil {
		a.close()
		err = &SessionConfigError{Targets: []string{TargetPreview}, Reason: "repeating request rejected", Err: err}
		c.setIdle(err)
		return err
	}

	if c.cfg.Signal != nil {
		c.cfg.Signal.Start()
	}

	c.mu.Lock()
	c.active = a
	c.state = StatePreviewActive
	c.lastErr = nil
	c.mu.Unlock()

	log.Printf("[CameraController] Preview active (session %s, preview %s, capture %s)",
		a.id, a.previewSize, a.captureSize)
	return nil
}

// StopPreview stops the repeating request and releases everything. It is
// idempotent and always safe to call from idle.
func (c *Controller) StopPreview() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.teardown(nil)
}

// Close releases all resources. Equivalent to StopPreview.
func (c *Controller) Close() {
	c.StopPreview()
}

// CaptureStill takes one styled full-resolution still. It reconfigures the
// session to add the high-resolution one-shot target, submits a single
// capture request and waits for the render to complete, then restores the
// plain preview session whatever the outcome. Requires an active preview.
func (c *Controller) CaptureStill(ctx context.Context) (render.Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StatePreviewActive || c.active == nil {
		st := c.state
		c.mu.Unlock()
		return render.Result{}, fmt.Errorf("capture requires an active preview (state %s)", st)
	}
	c.state = StateCapturingStill
	a := c.active
	c.mu.Unlock()

	p := &pendingCapture{ch: make(chan captureOutcome, 1)}
	c.pending.Store(p)

	res, err := c.runCapture(ctx, a, p)

	c.pending.Store(nil)
	restoreErr := c.restorePreview(a)
	if restoreErr != nil {
		// The preview could not be brought back; release everything rather
		// than sit in a half-configured state.
		c.teardown(restoreErr)
		if err == nil {
			err = restoreErr
		}
		return res, err
	}

	c.mu.Lock()
	c.state = StatePreviewActive
	c.mu.Unlock()
	return res, err
}

// runCapture reconfigures for the dual-target session, fires the one-shot
// request and waits for the completion, a timeout or caller cancellation.
func (c *Controller) runCapture(ctx context.Context, a *session, p *pendingCapture) (render.Result, error) {
	if err := c.reconfigure(a, true); err != nil {
		return render.Result{}, err
	}

	oneShot := ControlRequest{Targets: []string{TargetCapture}}
	if err := a.sess.SubmitOneShot(oneShot); err != nil {
		return render.Result{}, &SessionConfigError{Targets: oneShot.Targets, Reason: "one-shot request rejected", Err: err}
	}

	timer := time.NewTimer(c.cfg.CaptureTimeout)
	defer timer.Stop()
	select {
	case out := <-p.ch:
		return out.res, out.err
	case <-timer.C:
		return render.Result{}, fmt.Errorf("%w: still capture timed out after %s", render.ErrRenderFailed, c.cfg.CaptureTimeout)
	case <-ctx.Done():
		return render.Result{}, fmt.Errorf("%w: %w", render.ErrRenderFailed, ctx.Err())
	}
}

// restorePreview puts the session back on the preview-only configuration
// and resumes the repeating request.
func (c *Controller) restorePreview(a *session) error {
	if err := c.reconfigure(a, false); err != nil {
		return err
	}
	if err := a.sess.SubmitRepeating(ControlRequest{Targets: []string{TargetPreview}, FPS: defaultPreviewFPS}); err != nil {
		return &SessionConfigError{Targets: []string{TargetPreview}, Reason: "repeating request rejected", Err: err}
	}
	return nil
}

// reconfigure swaps the device session for one with or without the capture
// target. The old session is closed first; the device stays open.
func (c *Controller) reconfigure(a *session, withCapture bool) error {
	if a.sess != nil {
		if err := a.sess.Close(); err != nil {
			log.Printf("[CameraController] Session close during reconfigure: %v", err)
		}
		a.sess = nil
	}

	targets := []OutputTarget{{Name: TargetPreview, Size: a.previewSize}}
	if withCapture {
		targets = append(targets, OutputTarget{Name: TargetCapture, Size: a.captureSize, OneShot: true})
	}
	sess, err := a.device.CreateSession(targets, SessionCallbacks{OnFrame: c.frameSink(a)})
	if err != nil {
		return err
	}
	a.sess = sess
	return nil
}

// openSession opens the device and brings up the render engine, returning a
// fully formed bundle or nothing at all.
func (c *Controller) openSession() (*session, error) {
	dev, err := c.cfg.Control.Open(c.cfg.DeviceID, DeviceCallbacks{
		OnError:        c.onDeviceError,
		OnDisconnected: c.onDeviceDisconnected,
	})
	if err != nil {
		return nil, err
	}

	caps := dev.Capabilities()
	captureSize, ok := caps.Largest()
	if !ok {
		dev.Close()
		return nil, &DeviceOpenError{DeviceID: c.cfg.DeviceID, Reason: "device advertises no output sizes"}
	}
	previewSize, _ := caps.LargestWithin(c.cfg.PreviewMaxEdge)

	a := &session{
		id:          uuid.NewString(),
		device:      dev,
		queue:       render.NewQueue(render.DefaultQueueCapacity),
		previewSize: previewSize,
		captureSize: captureSize,
	}
	a.engine = render.New(render.Config{
		Queue:   a.queue,
		Surface: c.cfg.Surface,
		Params:  c.cfg.Params,
		Subject: c.subjectProvider(),
	})
	if err := a.engine.Start(); err != nil {
		dev.Close()
		return nil, err
	}

	if err := c.reconfigure(a, false); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// frameSink routes frames from one session into the pipeline. It runs on
// the device callback goroutine and must never block on GPU work; enqueue
// either hands the frame to the render queue or releases it.
func (c *Controller) frameSink(a *session) func(target string, f *frame.Frame) {
	return func(target string, f *frame.Frame) {
		switch target {
		case TargetPreview:
			if c.cfg.Signal != nil {
				c.cfg.Signal.Observe(f)
			}
			a.queue.EnqueuePreview(f)
		case TargetCapture:
			p := c.pending.Swap(nil)
			if p == nil {
				f.Release()
				return
			}
			a.queue.EnqueueCapture(f, func(res render.Result, err error) {
				p.ch <- captureOutcome{res: res, err: err}
			})
		default:
			f.Release()
		}
	}
}

func (c *Controller) subjectProvider() render.SubjectProvider {
	if c.cfg.Signal == nil {
		return nil
	}
	return c.cfg.Signal
}

func (c *Controller) onDeviceError(deviceID string, err error) {
	log.Printf("[CameraController] Device %s error: %v", deviceID, err)
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.teardown(fmt.Errorf("device %s error: %w", deviceID, err))
}

func (c *Controller) onDeviceDisconnected(deviceID string) {
	log.Printf("[CameraController] Device %s disconnected", deviceID)
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.teardown(fmt.Errorf("device %s disconnected", deviceID))
}

// teardown releases the active session bundle and returns to idle,
// recording reason as the last error when non-nil. Callers hold opMu.
func (c *Controller) teardown(reason error) {
	a := c.takeActive(StateIdle)
	c.stopSignal()
	if a != nil {
		// Fail a capture still waiting on its completion.
		if p := c.pending.Swap(nil); p != nil {
			p.ch <- captureOutcome{err: render.ErrStopped}
		}
		a.close()
		log.Printf("[CameraController] Session %s closed", a.id)
	}
	c.setIdle(reason)
}

func (c *Controller) takeActive(next State) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.active
	c.active = nil
	c.state = next
	return a
}

func (c *Controller) setIdle(reason error) {
	c.mu.Lock()
	c.state = StateIdle
	c.lastErr = reason
	c.mu.Unlock()
}

func (c *Controller) stopSignal() {
	if c.cfg.Signal != nil {
		c.cfg.Signal.Stop()
	}
}
