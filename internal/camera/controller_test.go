package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signaturelens/internal/frame"
	"signaturelens/internal/render"
	"signaturelens/internal/style"
)

type countingSurface struct {
	mu       sync.Mutex
	presents int
	lastW    int
	lastH    int
}

func (s *countingSurface) Present(pix []byte, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	s.lastW, s.lastH = width, height
	return nil
}

func (s *countingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

type fakeControl struct {
	mu       sync.Mutex
	opens    int
	failOpen bool
	devices  []*fakeDevice
	caps     Capabilities
}

func newFakeControl() *fakeControl {
	return &fakeControl{caps: Capabilities{
		Sizes:  []Size{{640, 480}, {1920, 1080}, {1280, 720}},
		MaxFPS: 30,
	}}
}

func (c *fakeControl) Open(deviceID string, cb DeviceCallbacks) (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.failOpen {
		return nil, &DeviceOpenError{DeviceID: deviceID, Reason: "device busy"}
	}
	d := &fakeDevice{id: deviceID, caps: c.caps, cb: cb}
	c.devices = append(c.devices, d)
	return d, nil
}

func (c *fakeControl) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *fakeControl) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.devices {
		if d.closed() {
			n++
		}
	}
	return n
}

type fakeDevice struct {
	id   string
	caps Capabilities
	cb   DeviceCallbacks

	mu          sync.Mutex
	closeCount  int
	failSession bool
	sessions    []*fakeSession
	// onOneShot, when set, runs on its own goroutine for each one-shot
	// request submitted to any of this device's sessions.
	onOneShot func(s *fakeSession, req ControlRequest)
}

func (d *fakeDevice) ID() string                 { return d.id }
func (d *fakeDevice) Capabilities() Capabilities { return d.caps }

func (d *fakeDevice) CreateSession(targets []OutputTarget, cb SessionCallbacks) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSession {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.Name
		}
		return nil, &SessionConfigError{Targets: names, Reason: "surface rejected"}
	}
	s := &fakeSession{dev: d, targets: targets, cb: cb}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return nil
}

func (d *fakeDevice) closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount > 0
}

func (d *fakeDevice) sessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

type fakeSession struct {
	dev     *fakeDevice
	targets []OutputTarget
	cb      SessionCallbacks

	mu        sync.Mutex
	repeating []ControlRequest
	oneShots  []ControlRequest
	closeN    int
}

func (s *fakeSession) SubmitRepeating(req ControlRequest) error {
	s.mu.Lock()
	s.repeating = append(s.repeating, req)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) SubmitOneShot(req ControlRequest) error {
	s.mu.Lock()
	s.oneShots = append(s.oneShots, req)
	hook := s.dev.onOneShot
	s.mu.Unlock()
	if hook != nil {
		go hook(s, req)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closeN++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeN > 0
}

func (s *fakeSession) hasTarget(name string) bool {
	for _, t := range s.targets {
		if t.Name == name {
			return true
		}
	}
	return false
}

// deliver hands a frame to the session callback the way hardware would, on
// the caller's goroutine.
func (s *fakeSession) deliver(t *testing.T, tr *frame.Tracker, target string, sz Size) {
	t.Helper()
	f := frame.NewYUV420(sz.Width, sz.Height, time.Now(), tr.OnRelease)
	tr.Acquire()
	for i := range f.Planes[1].Data {
		f.Planes[1].Data[i] = 128
		f.Planes[2].Data[i] = 128
	}
	s.cb.OnFrame(target, f)
}

func newTestController(ctrl *fakeControl, surf *countingSurface) *Controller {
	return New(Config{
		Control:        ctrl,
		DeviceID:       "lens0",
		Surface:        surf,
		Params:         style.Params{VignetteStrength: style.DefaultVignetteStrength},
		CaptureTimeout: 2 * time.Second,
	})
}

func TestStartPreviewSelectsResolutions(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	require.NoError(t, c.StartPreview())
	defer c.Close()

	preview, capture, ok := c.Active()
	require.True(t, ok)
	require.Equal(t, Size{1280, 720}, preview)
	require.Equal(t, Size{1920, 1080}, capture)
	require.Equal(t, StatePreviewActive, c.State())
}

func TestDoubleStartPreviewKeepsOneSession(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	require.NoError(t, c.StartPreview())
	require.NoError(t, c.StartPreview())

	require.Equal(t, 2, ctrl.openCount())
	require.Equal(t, 1, ctrl.closeCount(), "first device fully released")
	require.True(t, ctrl.devices[0].sessions[0].isClosed())

	c.Close()
	require.Equal(t, ctrl.openCount(), ctrl.closeCount())
	require.Equal(t, StateIdle, c.State())
}

func TestStartPreviewOpenFailureLeavesIdle(t *testing.T) {
	ctrl := newFakeControl()
	ctrl.failOpen = true
	c := newTestController(ctrl, &countingSurface{})

	err := c.StartPreview()
	var openErr *DeviceOpenError
	require.ErrorAs(t, err, &openErr)
	require.Equal(t, StateIdle, c.State())
}

func TestStartPreviewSessionFailureClosesDevice(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})

	// Fail the first session configuration attempt.
	c.cfg.Control = controlFunc(func(deviceID string, cb DeviceCallbacks) (Device, error) {
		d := &fakeDevice{id: deviceID, caps: ctrl.caps, cb: cb, failSession: true}
		ctrl.mu.Lock()
		ctrl.opens++
		ctrl.devices = append(ctrl.devices, d)
		ctrl.mu.Unlock()
		return d, nil
	})

	err := c.StartPreview()
	var cfgErr *SessionConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, 1, ctrl.closeCount())
}

type controlFunc func(deviceID string, cb DeviceCallbacks) (Device, error)

func (f controlFunc) Open(deviceID string, cb DeviceCallbacks) (Device, error) {
	return f(deviceID, cb)
}

func TestStopPreviewIsIdempotent(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	c.StopPreview()
	require.NoError(t, c.StartPreview())
	c.StopPreview()
	c.StopPreview()
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, ctrl.openCount(), ctrl.closeCount())
}

func TestPreviewFramesReachSurface(t *testing.T) {
	ctrl := newFakeControl()
	surf := &countingSurface{}
	c := newTestController(ctrl, surf)
	require.NoError(t, c.StartPreview())
	defer c.Close()

	sess := ctrl.devices[0].sessions[0]
	var tr frame.Tracker
	for i := 0; i < 5; i++ {
		sess.deliver(t, &tr, TargetPreview, Size{64, 48})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return surf.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, tr.Balanced, 2*time.Second, 5*time.Millisecond,
		"every delivered frame must be released")
}

func TestCaptureStillRendersAndRestoresPreview(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	require.NoError(t, c.StartPreview())
	defer c.Close()

	var tr frame.Tracker
	dev := ctrl.devices[0]
	dev.mu.Lock()
	dev.onOneShot = func(s *fakeSession, req ControlRequest) {
		s.deliver(t, &tr, TargetCapture, Size{96, 64})
	}
	dev.mu.Unlock()

	res, err := c.CaptureStill(context.Background())
	require.NoError(t, err)
	require.Equal(t, 96, res.Width)
	require.Equal(t, 64, res.Height)
	require.Len(t, res.Pixels, 96*64*4)

	require.Equal(t, StatePreviewActive, c.State())
	// Three sessions total: preview, dual-target, restored preview.
	require.Equal(t, 3, dev.sessionCount())
	dual := dev.sessions[1]
	require.True(t, dual.hasTarget(TargetCapture))
	restored := dev.sessions[2]
	require.False(t, restored.hasTarget(TargetCapture))
	restored.mu.Lock()
	require.NotEmpty(t, restored.repeating, "repeating preview request resumed")
	restored.mu.Unlock()

	require.Eventually(t, tr.Balanced, 2*time.Second, 5*time.Millisecond)
}

func TestCaptureStillRequiresPreview(t *testing.T) {
	c := newTestController(newFakeControl(), &countingSurface{})
	_, err := c.CaptureStill(context.Background())
	require.Error(t, err)
}

func TestCaptureStillTimeoutRestoresPreview(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	c.cfg.CaptureTimeout = 50 * time.Millisecond
	require.NoError(t, c.StartPreview())
	defer c.Close()

	// No one-shot hook: the capture frame never arrives.
	_, err := c.CaptureStill(context.Background())
	require.ErrorIs(t, err, render.ErrRenderFailed)
	require.Equal(t, StatePreviewActive, c.State())
}

func TestDeviceErrorTearsDownToIdle(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	require.NoError(t, c.StartPreview())

	dev := ctrl.devices[0]
	done := make(chan struct{})
	go func() {
		dev.cb.OnError(dev.id, errors.New("bus reset"))
		close(done)
	}()
	<-done

	require.Equal(t, StateIdle, c.State())
	require.Error(t, c.LastError())
	require.Equal(t, ctrl.openCount(), ctrl.closeCount())
}

func TestDeviceDisconnectTearsDownToIdle(t *testing.T) {
	ctrl := newFakeControl()
	c := newTestController(ctrl, &countingSurface{})
	require.NoError(t, c.StartPreview())

	dev := ctrl.devices[0]
	done := make(chan struct{})
	go func() {
		dev.cb.OnDisconnected(dev.id)
		close(done)
	}()
	<-done

	require.Equal(t, StateIdle, c.State())
	require.Error(t, c.LastError())
}
