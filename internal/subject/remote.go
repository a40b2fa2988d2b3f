package subject

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// RemoteDetector asks an inference sidecar whether a subject is present.
// Detection goes over HTTP (multipart JPEG in, JSON detections out); the
// sidecar's liveness is probed over the standard gRPC health protocol.
type RemoteDetector struct {
	endpoint      string
	healthAddr    string
	client        *http.Client
	minConfidence float32
}

// RemoteConfig holds configuration for the sidecar client.
type RemoteConfig struct {
	// Endpoint is the HTTP base URL of the detection sidecar.
	Endpoint string
	// HealthAddr is the sidecar's gRPC address for health checks; empty
	// disables the probe.
	HealthAddr string
	// MinConfidence filters detections below this score.
	MinConfidence float32
}

// detection mirrors one entry of the sidecar's response.
type detection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

type detectResponse struct {
	Detections      []detection `json:"detections"`
	Count           int         `json:"count"`
	InferenceTimeMs float32     `json:"inference_time_ms"`
}

// NewRemoteDetector creates a sidecar-backed detector.
func NewRemoteDetector(cfg RemoteConfig) *RemoteDetector {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	return &RemoteDetector{
		endpoint:      cfg.Endpoint,
		healthAddr:    cfg.HealthAddr,
		client:        &http.Client{Timeout: 5 * time.Second},
		minConfidence: cfg.MinConfidence,
	}
}

// Name implements Detector.
func (d *RemoteDetector) Name() string { return "remote" }

// Detect posts the downscaled image to the sidecar and reports whether any
// face or person detection clears the confidence threshold.
func (d *RemoteDetector) Detect(ctx context.Context, img *image.RGBA) (bool, error) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, &jpeg.Options{Quality: 85}); err != nil {
		return false, fmt.Errorf("encode detection input: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return false, err
	}
	fw.Write(jpg.Bytes())
	w.WriteField("conf_threshold", fmt.Sprintf("%.2f", d.minConfidence))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &b)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("detection failed: %s", string(body))
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	for _, det := range result.Detections {
		if det.Confidence < d.minConfidence {
			continue
		}
		if det.Class == "face" || det.Class == "person" {
			return true, nil
		}
	}
	return false, nil
}

// CheckHealth probes the sidecar over the gRPC health protocol.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	if d.healthAddr == "" {
		return nil
	}

	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	conn, err := grpc.NewClient(d.healthAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return fmt.Errorf("dial health endpoint: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("sidecar not serving: %s", resp.GetStatus())
	}
	return nil
}
