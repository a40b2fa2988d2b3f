// Command lensd runs the styled camera pipeline: device capture, the
// signature look, MJPEG preview, still capture and the control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaturelens/internal/auth"
	"signaturelens/internal/camera"
	"signaturelens/internal/catalog"
	"signaturelens/internal/device"
	"signaturelens/internal/stream"
	"signaturelens/internal/style"
	"signaturelens/internal/subject"
)

func main() {
	var (
		deviceF     = flag.String("device", "/dev/video0", "Capture device path or stream URL")
		backendF    = flag.String("backend", "ffmpeg", "Capture backend (ffmpeg or synthetic)")
		httpPortF   = flag.Int("http-port", 8088, "HTTP listen port")
		mediaDirF   = flag.String("media-dir", "./media", "Directory for stored captures")
		dbF         = flag.String("db", "./lensd.db", "SQLite database path")
		detectorF   = flag.String("detector-endpoint", "", "Detection sidecar HTTP endpoint (empty uses the local heuristic)")
		detectHealF = flag.String("detector-health", "", "Detection sidecar gRPC health address")
		lutF        = flag.String("lut", "", "Optional .cube LUT file for the look")
		vignetteF   = flag.Float64("vignette", float64(style.DefaultVignetteStrength), "Vignette strength (0 disables)")
		autostartF  = flag.Bool("autostart", true, "Start the preview on boot")
	)
	flag.Parse()

	log.SetPrefix("[lensd] ")
	log.SetFlags(log.Ltime)

	params := style.Params{VignetteStrength: float32(*vignetteF)}
	if *lutF != "" {
		f, err := os.Open(*lutF)
		if err != nil {
			log.Fatalf("Error opening LUT: %v", err)
		}
		lut, err := style.ParseCube(f)
		f.Close()
		if err != nil {
			log.Fatalf("Error parsing LUT: %v", err)
		}
		params.LUT = lut
		log.Printf("Loaded LUT %s (size %d)", *lutF, lut.Size)
	}

	cat, err := catalog.Open(*dbF, *mediaDirF)
	if err != nil {
		log.Fatalf("Error opening catalog: %v", err)
	}
	defer cat.Close()

	var detector subject.Detector
	if *detectorF != "" {
		remote := subject.NewRemoteDetector(subject.RemoteConfig{
			Endpoint:   *detectorF,
			HealthAddr: *detectHealF,
		})
		if *detectHealF != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := remote.CheckHealth(ctx); err != nil {
				log.Printf("Detection sidecar not healthy, continuing anyway: %v", err)
			}
			cancel()
		}
		detector = remote
	} else {
		detector = subject.NewLumaDetector()
	}
	subjectSig := subject.NewSignal(detector, subject.Config{})

	var control camera.DeviceControl
	switch *backendF {
	case "synthetic":
		control = device.NewSyntheticControl(device.SyntheticConfig{})
	case "ffmpeg":
		control = device.NewFFmpegControl(device.FFmpegConfig{})
	default:
		log.Fatalf("Unknown backend %q", *backendF)
	}

	preview := stream.NewPreview()
	controller := camera.New(camera.Config{
		Control:  control,
		DeviceID: *deviceF,
		Surface:  preview,
		Params:   params,
		Signal:   subjectSig,
	})
	defer controller.Close()

	srv := &server{
		controller: controller,
		preview:    preview,
		hub:        stream.NewHub(),
		catalog:    cat,
		signal:     subjectSig,
		auth:       auth.NewAuthenticator(),
		deviceID:   *deviceF,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.watchSubject(ctx)

	if *autostartF {
		if err := controller.StartPreview(); err != nil {
			log.Printf("Preview did not start, use the API to retry: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", *httpPortF)
	httpSrv := &http.Server{Addr: addr, Handler: srv.routes()}

	errc := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		errc <- httpSrv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errc:
		log.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	controller.Close()
	log.Printf("Bye")
}
