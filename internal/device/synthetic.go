// Package device provides the camera control-surface implementations: an
// ffmpeg-backed capture source for real hardware and network streams, and a
// synthetic test-pattern generator used by tests and demo mode.
package device

import (
	"fmt"
	"log"
	"sync"
	"time"

	"signaturelens/internal/camera"
	"signaturelens/internal/frame"
)

// SyntheticConfig tunes the synthetic backend and its fault injection.
type SyntheticConfig struct {
	Sizes []camera.Size
	FPS   int
	// FailOpen makes every Open return DeviceOpenError.
	FailOpen bool
	// FailSession makes every CreateSession return SessionConfigError.
	FailSession bool
	// OnFrameRelease, when set, is attached to every generated frame.
	OnFrameRelease func()
}

// SyntheticControl opens synthetic test-pattern devices.
type SyntheticControl struct {
	cfg SyntheticConfig

	mu      sync.Mutex
	devices []*syntheticDevice
}

// NewSyntheticControl creates a control surface producing test-pattern
// frames. Zero-value config gets a sensible size ladder at 30 fps.
func NewSyntheticControl(cfg SyntheticConfig) *SyntheticControl {
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = []camera.Size{{Width: 1920, Height: 1080}, {Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &SyntheticControl{cfg: cfg}
}

// Open implements camera.DeviceControl.
func (c *SyntheticControl) Open(deviceID string, cb camera.DeviceCallbacks) (camera.Device, error) {
	if c.cfg.FailOpen {
		return nil, &camera.DeviceOpenError{DeviceID: deviceID, Reason: "synthetic open fault"}
	}
	d := &syntheticDevice{id: deviceID, cfg: c.cfg, cb: cb}
	c.mu.Lock()
	c.devices = append(c.devices, d)
	c.mu.Unlock()
	log.Printf("[Device] Opened synthetic device %s", deviceID)
	return d, nil
}

// Disconnect simulates the cable being pulled on every open device.
func (c *SyntheticControl) Disconnect() {
	c.mu.Lock()
	devices := append([]*syntheticDevice(nil), c.devices...)
	c.mu.Unlock()
	for _, d := range devices {
		d.disconnect()
	}
}

type syntheticDevice struct {
	id  string
	cfg SyntheticConfig
	cb  camera.DeviceCallbacks

	mu      sync.Mutex
	closed  bool
	session *syntheticSession
}

func (d *syntheticDevice) ID() string { return d.id }

func (d *syntheticDevice) Capabilities() camera.Capabilities {
	return camera.Capabilities{Sizes: d.cfg.Sizes, MaxFPS: d.cfg.FPS}
}

func (d *syntheticDevice) CreateSession(targets []camera.OutputTarget, cb camera.SessionCallbacks) (camera.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &camera.SessionConfigError{Reason: "device closed"}
	}
	if d.cfg.FailSession {
		names := targetNames(targets)
		return nil, &camera.SessionConfigError{Targets: names, Reason: "synthetic session fault"}
	}
	if d.session != nil && !d.session.isClosed() {
		return nil, &camera.SessionConfigError{Targets: targetNames(targets), Reason: "previous session still open"}
	}
	s := newSyntheticSession(d, targets, cb)
	d.session = s
	return s, nil
}

func (d *syntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	return nil
}

func (d *syntheticDevice) disconnect() {
	d.Close()
	if d.cb.OnDisconnected != nil {
		go d.cb.OnDisconnected(d.id)
	}
}

type syntheticSession struct {
	dev     *syntheticDevice
	targets map[string]camera.OutputTarget
	cb      camera.SessionCallbacks

	mu        sync.Mutex
	closed    bool
	repeating []string
	oneShots  []string
	stop      chan struct{}
	done      chan struct{}
	tick      uint64
}

func newSyntheticSession(d *syntheticDevice, targets []camera.OutputTarget, cb camera.SessionCallbacks) *syntheticSession {
	m := make(map[string]camera.OutputTarget, len(targets))
	for _, t := range targets {
		m[t.Name] = t
	}
	return &syntheticSession{dev: d, targets: m, cb: cb}
}

func (s *syntheticSession) SubmitRepeating(req camera.ControlRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	for _, name := range req.Targets {
		if _, ok := s.targets[name]; !ok {
			return fmt.Errorf("unknown target %q", name)
		}
	}
	s.repeating = req.Targets
	if s.stop == nil {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		fps := req.FPS
		if fps <= 0 {
			fps = s.dev.cfg.FPS
		}
		go s.generate(fps)
	}
	return nil
}

func (s *syntheticSession) SubmitOneShot(req camera.ControlRequest) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	targets := make([]camera.OutputTarget, 0, len(req.Targets))
	for _, name := range req.Targets {
		t, ok := s.targets[name]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("unknown target %q", name)
		}
		targets = append(targets, t)
	}
	s.oneShots = append(s.oneShots, req.Targets...)
	tick := s.tick
	s.mu.Unlock()

	// One-shots render immediately on their own goroutine, like a hardware
	// still callback.
	go func() {
		for _, t := range targets {
			s.emit(t, tick)
		}
	}()
	return nil
}

func (s *syntheticSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *syntheticSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *syntheticSession) generate(fps int) {
	defer close(s.done)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			names := s.repeating
			s.tick++
			tick := s.tick
			s.mu.Unlock()
			for _, name := range names {
				if t, ok := s.targets[name]; ok {
					s.emit(t, tick)
				}
			}
		}
	}
}

// emit synthesizes one test-pattern frame for the target and hands it to
// the session callback.
func (s *syntheticSession) emit(t camera.OutputTarget, tick uint64) {
	if s.cb.OnFrame == nil {
		return
	}
	f := testPattern(t.Size.Width, t.Size.Height, tick, s.dev.cfg.OnFrameRelease)
	s.cb.OnFrame(t.Name, f)
}

// testPattern renders a drifting luma gradient with slowly varying chroma,
// enough structure to exercise conversion and styling end to end.
func testPattern(w, h int, tick uint64, onRelease func()) *frame.Frame {
	f := frame.NewYUV420(w, h, time.Now(), onRelease)
	y := f.Planes[0]
	for r := 0; r < h; r++ {
		row := y.Data[r*y.RowStride:]
		for c := 0; c < w; c++ {
			row[c] = byte(c + r + int(tick)*3)
		}
	}
	u, v := f.Planes[1], f.Planes[2]
	cw, ch := w/2, h/2
	for r := 0; r < ch; r++ {
		for c := 0; c < cw; c++ {
			u.Data[r*u.RowStride+c] = byte(118 + (c+int(tick))%20)
			v.Data[r*v.RowStride+c] = byte(122 + (r+int(tick))%16)
		}
	}
	return f
}

func targetNames(targets []camera.OutputTarget) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}
