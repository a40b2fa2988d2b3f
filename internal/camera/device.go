// Package camera owns the device/session state machine that feeds the render
// pipeline. The controller talks to hardware through the small control
// surface defined here; real and synthetic implementations live in
// internal/device.
package camera

import (
	"fmt"
	"strings"

	"signaturelens/internal/frame"
)

// Target names used in control requests and frame delivery.
const (
	TargetPreview = "preview"
	TargetCapture = "capture"
)

// Size is one advertised output resolution.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LongEdge returns the longer of the two dimensions.
func (s Size) LongEdge() int {
	if s.Height > s.Width {
		return s.Height
	}
	return s.Width
}

func (s Size) area() int { return s.Width * s.Height }

// Capabilities describes what a device can produce.
type Capabilities struct {
	// Sizes lists the advertised output resolutions, in no particular order.
	Sizes []Size
	// MaxFPS is the fastest supported repeating-request rate.
	MaxFPS int
}

// Largest returns the biggest advertised size by area.
func (c Capabilities) Largest() (Size, bool) {
	var best Size
	found := false
	for _, s := range c.Sizes {
		if !found || s.area() > best.area() {
			best = s
			found = true
		}
	}
	return best, found
}

// LargestWithin returns the biggest advertised size whose long edge does not
// exceed maxLongEdge, falling back to the smallest advertised size when
// everything is larger.
func (c Capabilities) LargestWithin(maxLongEdge int) (Size, bool) {
	var best, smallest Size
	found, any := false, false
	for _, s := range c.Sizes {
		if !any || s.area() < smallest.area() {
			smallest = s
			any = true
		}
		if s.LongEdge() > maxLongEdge {
			continue
		}
		if !found || s.area() > best.area() {
			best = s
			found = true
		}
	}
	if found {
		return best, true
	}
	return smallest, any
}

// OutputTarget names one surface a session routes frames to.
type OutputTarget struct {
	Name string
	Size Size
	// OneShot targets only receive frames for one-shot requests.
	OneShot bool
}

// ControlRequest tells a session which targets to drive and how fast.
type ControlRequest struct {
	Targets []string
	FPS     int
}

// DeviceCallbacks receive device-level events. They are invoked on the
// device's own callback goroutine, never on the caller's.
type DeviceCallbacks struct {
	OnError        func(deviceID string, err error)
	OnDisconnected func(deviceID string)
}

// SessionCallbacks receive frames from a configured session. OnFrame hands
// over ownership of the frame; the receiver must release it exactly once.
type SessionCallbacks struct {
	OnFrame func(target string, f *frame.Frame)
}

// DeviceControl opens devices. Implementations live in internal/device.
type DeviceControl interface {
	Open(deviceID string, cb DeviceCallbacks) (Device, error)
}

// Device is one opened camera.
type Device interface {
	ID() string
	Capabilities() Capabilities
	CreateSession(targets []OutputTarget, cb SessionCallbacks) (Session, error)
	Close() error
}

// Session is one configured capture pipeline on an open device. Closing the
// session stops frame delivery before Close returns.
type Session interface {
	SubmitRepeating(req ControlRequest) error
	SubmitOneShot(req ControlRequest) error
	Close() error
}

// DeviceOpenError reports a device that could not be opened.
type DeviceOpenError struct {
	DeviceID string
	Reason   string
	Err      error
}

func (e *DeviceOpenError) Error() string {
	msg := fmt.Sprintf("open device %s: %s", e.DeviceID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceOpenError) Unwrap() error { return e.Err }

// SessionConfigError reports a session that could not be configured.
type SessionConfigError struct {
	Targets []string
	Reason  string
	Err     error
}

func (e *SessionConfigError) Error() string {
	msg := fmt.Sprintf("configure session [%s]: %s", strings.Join(e.Targets, ","), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionConfigError) Unwrap() error { return e.Err }
