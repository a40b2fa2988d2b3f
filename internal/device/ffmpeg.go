package device

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"signaturelens/internal/camera"
	"signaturelens/internal/frame"
)

// FFmpegConfig tunes the ffmpeg-backed control surface. The advertised size
// ladder is static; ffmpeg scales whatever the source produces to the
// session's target size.
type FFmpegConfig struct {
	Binary string
	Sizes  []camera.Size
	FPS    int
}

// FFmpegControl opens V4L2 devices, RTSP cameras and HTTP streams through a
// spawned ffmpeg process producing raw yuv420p frames on stdout.
type FFmpegControl struct {
	cfg FFmpegConfig
}

// NewFFmpegControl creates the ffmpeg control surface.
func NewFFmpegControl(cfg FFmpegConfig) *FFmpegControl {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = []camera.Size{{Width: 1920, Height: 1080}, {Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &FFmpegControl{cfg: cfg}
}

// Open implements camera.DeviceControl. Local device paths are checked for
// existence; network URLs are validated lazily when the stream starts.
func (c *FFmpegControl) Open(deviceID string, cb camera.DeviceCallbacks) (camera.Device, error) {
	if strings.HasPrefix(deviceID, "/dev/") {
		if _, err := os.Stat(deviceID); err != nil {
			return nil, &camera.DeviceOpenError{DeviceID: deviceID, Reason: "device node missing", Err: err}
		}
	}
	log.Printf("[Device] Opened %s via ffmpeg", deviceID)
	return &ffmpegDevice{id: deviceID, cfg: c.cfg, cb: cb}, nil
}

type ffmpegDevice struct {
	id  string
	cfg FFmpegConfig
	cb  camera.DeviceCallbacks

	mu      sync.Mutex
	closed  bool
	session *ffmpegSession
}

func (d *ffmpegDevice) ID() string { return d.id }

func (d *ffmpegDevice) Capabilities() camera.Capabilities {
	return camera.Capabilities{Sizes: d.cfg.Sizes, MaxFPS: d.cfg.FPS}
}

func (d *ffmpegDevice) CreateSession(targets []camera.OutputTarget, cb camera.SessionCallbacks) (camera.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &camera.SessionConfigError{Targets: targetNames(targets), Reason: "device closed"}
	}
	if len(targets) == 0 {
		return nil, &camera.SessionConfigError{Reason: "no output targets"}
	}
	if d.session != nil {
		d.session.Close()
	}
	// The stream runs at the largest configured target size; smaller
	// targets receive the same planes.
	size := targets[0].Size
	for _, t := range targets[1:] {
		if t.Size.Width*t.Size.Height > size.Width*size.Height {
			size = t.Size
		}
	}
	s := &ffmpegSession{dev: d, size: size, cb: cb}
	for _, t := range targets {
		s.targets = append(s.targets, t.Name)
	}
	d.session = s
	return s, nil
}

func (d *ffmpegDevice) Close() error {
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

type ffmpegSession struct {
	dev     *ffmpegDevice
	size    camera.Size
	targets []string
	cb      camera.SessionCallbacks

	mu        sync.Mutex
	closed    bool
	repeating []string
	oneShots  []string
	cmd       *exec.Cmd
	done      chan struct{}
}

func (s *ffmpegSession) SubmitRepeating(req camera.ControlRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.repeating = req.Targets
	if s.cmd != nil {
		return nil
	}
	fps := req.FPS
	if fps <= 0 {
		fps = s.dev.cfg.FPS
	}
	return s.startLocked(fps)
}

// SubmitOneShot routes the next decoded frame to the named targets as well.
// A session that is not streaming yet is started for the occasion.
func (s *ffmpegSession) SubmitOneShot(req camera.ControlRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.oneShots = append(s.oneShots, req.Targets...)
	if s.cmd == nil {
		return s.startLocked(s.dev.cfg.FPS)
	}
	return nil
}

func (s *ffmpegSession) startLocked(fps int) error {
	args := s.args(fps)
	cmd := exec.Command(s.dev.cfg.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &camera.SessionConfigError{Targets: s.targets, Reason: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &camera.SessionConfigError{Targets: s.targets, Reason: "stderr pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &camera.SessionConfigError{Targets: s.targets, Reason: "ffmpeg start", Err: err}
	}

	// Consume stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	s.cmd = cmd
	s.done = make(chan struct{})
	go s.readFrames(stdout)
	log.Printf("[Device] ffmpeg streaming %s at %s", s.dev.id, s.size)
	return nil
}

// args builds the ffmpeg invocation for the device kind, always emitting
// raw yuv420p planes at the session size.
func (s *ffmpegSession) args(fps int) []string {
	dev := s.dev.id
	out := []string{
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-vf", fmt.Sprintf("scale=%d:%d", s.size.Width, s.size.Height),
		"-r", fmt.Sprintf("%d", fps),
		"-",
	}
	switch {
	case strings.HasPrefix(dev, "rtsp://"):
		return append([]string{"-rtsp_transport", "tcp", "-i", dev}, out...)
	case strings.HasPrefix(dev, "http://"), strings.HasPrefix(dev, "https://"):
		return append([]string{"-i", dev}, out...)
	default:
		return append([]string{
			"-f", "v4l2",
			"-video_size", s.size.String(),
			"-framerate", fmt.Sprintf("%d", fps),
			"-i", dev,
		}, out...)
	}
}

// readFrames slices stdout into whole yuv420p frames and fans them out to
// the repeating targets plus any pending one-shots.
func (s *ffmpegSession) readFrames(r io.Reader) {
	defer close(s.done)
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		f := frame.NewYUV420(s.size.Width, s.size.Height, time.Now(), nil)
		if err := readPlanes(br, f); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && err != io.EOF {
				log.Printf("[Device] ffmpeg read error on %s: %v", s.dev.id, err)
			}
			if !closed && s.dev.cb.OnError != nil {
				s.dev.cb.OnError(s.dev.id, fmt.Errorf("stream ended: %w", err))
			}
			return
		}

		s.mu.Lock()
		names := append([]string(nil), s.repeating...)
		names = append(names, s.oneShots...)
		s.oneShots = s.oneShots[:0]
		s.mu.Unlock()

		if len(names) == 0 || s.cb.OnFrame == nil {
			f.Release()
			continue
		}
		for i, name := range names {
			if i == len(names)-1 {
				s.cb.OnFrame(name, f)
				break
			}
			s.cb.OnFrame(name, f.Clone())
		}
	}
}

func readPlanes(r io.Reader, f *frame.Frame) error {
	for i := range f.Planes {
		if _, err := io.ReadFull(r, f.Planes[i].Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *ffmpegSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd, done := s.cmd, s.done
	s.cmd = nil
	s.mu.Unlock()

	if cmd != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
		<-done
	}
	return nil
}
