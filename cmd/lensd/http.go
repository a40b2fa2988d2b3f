package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"signaturelens/internal/auth"
	"signaturelens/internal/camera"
	"signaturelens/internal/catalog"
	"signaturelens/internal/middleware"
	"signaturelens/internal/render"
	"signaturelens/internal/stream"
	"signaturelens/internal/subject"
)

// server ties the pipeline to the control API.
type server struct {
	controller *camera.Controller
	preview    *stream.Preview
	hub        *stream.Hub
	catalog    *catalog.Catalog
	signal     *subject.Signal
	auth       *auth.Authenticator
	deviceID   string
}

type pipelineStatus struct {
	State             string `json:"state"`
	Device            string `json:"device"`
	PreviewResolution string `json:"preview_resolution,omitempty"`
	CaptureResolution string `json:"capture_resolution,omitempty"`
	SubjectPresent    bool   `json:"subject_present"`
	LastError         string `json:"last_error,omitempty"`
}

func (s *server) routes() http.Handler {
	guard := middleware.Auth(s.auth)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.Handle("/preview", guard(s.preview))
	mux.Handle("/ws", guard(stream.NewHandler(s.hub)))
	mux.Handle("/api/status", guard(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/preview/start", guard(http.HandlerFunc(s.handlePreviewStart)))
	mux.Handle("/api/preview/stop", guard(http.HandlerFunc(s.handlePreviewStop)))
	mux.Handle("/api/capture", guard(http.HandlerFunc(s.handleCapture)))
	mux.Handle("/api/captures", guard(http.HandlerFunc(s.handleCaptures)))
	mux.Handle("/api/captures/", guard(http.HandlerFunc(s.handleCaptureByID)))
	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, expiresAt, err := s.auth.Authenticate(body.Username, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			writeError(w, http.StatusBadRequest, "authentication is disabled")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (s *server) status() pipelineStatus {
	st := pipelineStatus{
		State:  s.controller.State().String(),
		Device: s.deviceID,
	}
	if preview, capture, ok := s.controller.Active(); ok {
		st.PreviewResolution = preview.String()
		st.CaptureResolution = capture.String()
	}
	if s.signal != nil {
		st.SubjectPresent = s.signal.Present()
	}
	if err := s.controller.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *server) handlePreviewStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := s.controller.StartPreview(); err != nil {
		log.Printf("[API] Start preview: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(stream.EventPreviewStarted, s.status())
	writeJSON(w, http.StatusOK, s.status())
}

func (s *server) handlePreviewStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.controller.StopPreview()
	s.hub.Broadcast(stream.EventPreviewStopped, s.status())
	writeJSON(w, http.StatusOK, s.status())
}

func (s *server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.controller.State() != camera.StatePreviewActive {
		writeJSON(w, http.StatusConflict, map[string]string{
			"message": "preview is not active",
			"state":   s.controller.State().String(),
		})
		return
	}

	res, err := s.controller.CaptureStill(r.Context())
	if err != nil {
		log.Printf("[API] Capture: %v", err)
		if errors.Is(err, render.ErrRenderFailed) || errors.Is(err, render.ErrStopped) {
			writeError(w, http.StatusInternalServerError, err.Error())
		} else {
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	rec, err := s.catalog.SaveCapture(res.Pixels, res.Width, res.Height, res.SubjectPresent)
	if err != nil {
		log.Printf("[API] Save capture: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(stream.EventCaptureSaved, rec)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := s.catalog.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*catalog.Capture{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCaptureByID serves /api/captures/{id}, /api/captures/{id}/image and
// DELETE /api/captures/{id}.
func (s *server) handleCaptureByID(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/api/captures/"):]
	id := rest
	wantImage := false
	if n := len(rest) - len("/image"); n > 0 && rest[n:] == "/image" {
		id, wantImage = rest[:n], true
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "capture id required")
		return
	}

	rec, err := s.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "capture not found", "id": id})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch {
	case r.Method == http.MethodDelete:
		if err := s.catalog.Delete(id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case wantImage:
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, rec.Path)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// watchSubject mirrors the subject flag onto the preview badge and pushes a
// WebSocket event on every change.
func (s *server) watchSubject(ctx context.Context) {
	if s.signal == nil {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	last := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			present := s.signal.Present()
			if present != last {
				last = present
				s.preview.SetSubject(present)
				s.hub.Broadcast(stream.EventSubjectChanged, map[string]bool{"present": present})
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
