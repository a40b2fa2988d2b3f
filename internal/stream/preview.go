// Package stream delivers the rendered preview to browsers as MJPEG and
// pushes pipeline events over WebSocket.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	previewJPEGQuality = 80
	clientBuffer       = 5
)

// Preview is the display surface the render engine presents to. Each
// presented frame is JPEG-encoded once and fanned out to every connected
// MJPEG client; slow clients drop frames rather than stall the pipeline.
type Preview struct {
	quality int
	badge   atomic.Bool

	clientsMu sync.RWMutex
	clients   map[chan []byte]bool

	frameMu      sync.RWMutex
	currentFrame []byte
}

// NewPreview creates an idle preview streamer.
func NewPreview() *Preview {
	return &Preview{
		quality: previewJPEGQuality,
		clients: make(map[chan []byte]bool),
	}
}

// SetSubject toggles the subject badge drawn on subsequent frames.
func (p *Preview) SetSubject(present bool) {
	p.badge.Store(present)
}

// Present implements the render engine's display surface. pix is tightly
// packed RGBA; it is only read before Present returns.
func (p *Preview) Present(pix []byte, width, height int) error {
	if len(pix) < width*height*4 {
		return fmt.Errorf("present: short pixel buffer (%d for %dx%d)", len(pix), width, height)
	}
	img := &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	if p.badge.Load() {
		drawBadge(img, "subject")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return fmt.Errorf("present: encode: %w", err)
	}
	frame := buf.Bytes()

	p.frameMu.Lock()
	p.currentFrame = frame
	p.frameMu.Unlock()

	p.clientsMu.RLock()
	for ch := range p.clients {
		select {
		case ch <- frame:
		default:
			// Slow client, drop the frame.
		}
	}
	p.clientsMu.RUnlock()
	return nil
}

// Snapshot returns the most recently presented frame as JPEG, or nil.
func (p *Preview) Snapshot() []byte {
	p.frameMu.RLock()
	defer p.frameMu.RUnlock()
	return p.currentFrame
}

// ClientCount returns the number of connected MJPEG clients.
func (p *Preview) ClientCount() int {
	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	return len(p.clients)
}

// ServeHTTP streams multipart JPEG frames until the client goes away.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := make(chan []byte, clientBuffer)
	p.clientsMu.Lock()
	p.clients[ch] = true
	p.clientsMu.Unlock()
	defer func() {
		p.clientsMu.Lock()
		delete(p.clients, ch)
		p.clientsMu.Unlock()
	}()

	log.Printf("[Preview] Client connected from %s", r.RemoteAddr)

	// Send the last frame immediately so the client is not blank until the
	// next present.
	if last := p.Snapshot(); last != nil {
		if err := writeFrame(w, last); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[Preview] Client disconnected from %s", r.RemoteAddr)
			return
		case frame := <-ch:
			if err := writeFrame(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// drawBadge draws a small labelled box in the top-left corner.
func drawBadge(img *image.RGBA, label string) {
	bg := color.RGBA{0, 0, 0, 180}
	fg := color.RGBA{255, 210, 120, 255}
	textWidth := len(label) * 7
	for dy := 0; dy < 16; dy++ {
		for dx := 0; dx < textWidth+8; dx++ {
			px, py := 4+dx, 4+dy
			if px < img.Bounds().Max.X && py < img.Bounds().Max.Y {
				img.Set(px, py, bg)
			}
		}
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(8), Y: fixed.I(16)},
	}
	d.DrawString(label)
}
