package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/fpang/talkingface/internal/generate"
	"github.com/fpang/talkingface/internal/ingest"
	"github.com/fpang/talkingface/internal/jobs"
	"github.com/fpang/talkingface/internal/session"
	"github.com/fpang/talkingface/internal/transcript"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes bounds the multipart memory buffer for image uploads.
const maxUploadBytes = 20 << 20 // 20 MB

// generateJob tracks one asynchronous generation attempt. The browser polls
// /api/generate/{id}/status until status leaves "running".
type generateJob struct {
	mu        sync.Mutex
	id        string
	sessionID string
	status    string // "running", "completed", "failed", "cancelled"
	stage     generate.State
	errMsg    string
	reauth    bool
	cancel    context.CancelFunc
	sess      *session.Session
}

func (j *generateJob) setStage(s generate.State) {
	j.mu.Lock()
	j.stage = s
	j.mu.Unlock()
}

var (
	jobsMu  sync.Mutex
	genJobs = make(map[string]*generateJob)
)

// handleHealth reports whether the server holds a working Gemini key and
// whether transcription is available. The frontend uses this to decide
// between the key-selection screen and the main form.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"geminiKey":     geminiKeyValid,
		"scribeKey":     scribeKey != "",
		"transcribe":    transcribeFlag,
		"model":         modelFlag,
		"fallbackModel": fallbackFlag,
	})
}

// handleSessionStart mints a new session for a browser tab.
func handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s := sessions.Create()
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": s.ID})
}

// handleUpload accepts a multipart face photo, validates and decodes it, and
// stages it on the session. A new image resets any previous result.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sess := sessions.Get(r.FormValue("sessionId"))
	if sess == nil {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	img, err := ingest.Ingest(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedFileType):
			httpError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, ingest.ErrFileRead):
			httpError(w, http.StatusBadRequest, ingest.ErrFileRead.Error())
		default:
			httpError(w, http.StatusInternalServerError, "upload failed")
		}
		return
	}

	sess.SetImage(img)
	respondJSON(w, http.StatusOK, map[string]any{
		"mimeType": img.MIMEType,
		"width":    img.Width,
		"height":   img.Height,
		"bytes":    len(img.Bytes),
	})
}

// handlePreview serves the downscaled preview of the session's staged image.
func handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess := sessions.Get(r.URL.Query().Get("sessionId"))
	if sess == nil {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}
	state := sess.State()
	if state.Image == nil {
		httpError(w, http.StatusNotFound, "no image uploaded")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(state.Image.Preview)
}

// handleGenerateStart kicks off an asynchronous generation attempt for the
// session's staged image and the submitted dialogue line.
func handleGenerateStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !geminiKeyValid {
		respondJSON(w, http.StatusUnauthorized, map[string]any{
			"error":  "no working API key configured on the server",
			"reauth": true,
		})
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
		Dialogue  string `json:"dialogue"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := sessions.Get(req.SessionID)
	if sess == nil {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}

	state := sess.State()
	if state.Image == nil {
		httpError(w, http.StatusBadRequest, "upload a face photo first")
		return
	}
	if strings.TrimSpace(req.Dialogue) == "" {
		httpError(w, http.StatusBadRequest, "dialogue must not be empty")
		return
	}

	// One attempt per session. A second click while busy is a no-op.
	if !sess.Begin() {
		respondJSON(w, http.StatusConflict, map[string]string{"error": "generation already in progress"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &generateJob{
		id:        jobs.GenerateID("gen-"),
		sessionID: sess.ID,
		status:    "running",
		stage:     generate.StateSubmitted,
		cancel:    cancel,
		sess:      sess,
	}

	jobsMu.Lock()
	genJobs[job.id] = job
	jobsMu.Unlock()

	log.Info().Str("job", job.id).Str("session", sess.ID).Msg("Generation job started")
	go runGenerateJob(ctx, job, state.Image, req.Dialogue)

	respondJSON(w, http.StatusAccepted, map[string]string{"jobId": job.id})
}

// handleGenerateRoutes dispatches /api/generate/{id}/{status|video|transcript|cancel}.
func handleGenerateRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := jobs.ParseRoute(r.URL.Path, "/api/generate/", "gen-")
	if !ok {
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	jobsMu.Lock()
	job := genJobs[jobID]
	jobsMu.Unlock()

	if job == nil || !jobs.CheckOwnership(r, job.sessionID) {
		httpError(w, http.StatusNotFound, "unknown job")
		return
	}

	switch action {
	case "status":
		handleGenerateStatus(w, r, job)
	case "video":
		handleGenerateVideo(w, r, job)
	case "transcript":
		handleGenerateTranscript(w, r, job)
	case "cancel":
		handleGenerateCancel(w, r, job)
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

func handleGenerateStatus(w http.ResponseWriter, r *http.Request, job *generateJob) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job.mu.Lock()
	resp := map[string]any{
		"status": job.status,
		"stage":  string(job.stage),
	}
	if job.errMsg != "" {
		resp["error"] = job.errMsg
	}
	if job.reauth {
		resp["reauth"] = true
	}
	job.mu.Unlock()

	if resp["status"] == "completed" {
		state := job.sess.State()
		if state.Video != nil {
			resp["video"] = map[string]any{
				"duration": state.Video.Duration,
				"width":    state.Video.Width,
				"height":   state.Video.Height,
				"hasAudio": state.Video.HasAudio,
				"model":    state.Video.Model,
			}
		}
		if state.TranscriptErr != "" {
			resp["transcriptError"] = state.TranscriptErr
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGenerateVideo streams the generated video file. http.ServeFile gives
// the browser range-request support, which the video element needs to seek.
func handleGenerateVideo(w http.ResponseWriter, r *http.Request, job *generateJob) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	state := job.sess.State()
	if state.Video == nil {
		httpError(w, http.StatusNotFound, "no video available")
		return
	}
	w.Header().Set("Content-Type", state.Video.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, state.Video.Path)
}

// handleGenerateTranscript returns the word sequence, the joined full text,
// and — when a playback time is supplied via ?t= — the active word index.
func handleGenerateTranscript(w http.ResponseWriter, r *http.Request, job *generateJob) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	state := job.sess.State()

	resp := map[string]any{
		"words":    state.Transcript,
		"fullText": transcript.FullText(state.Transcript),
	}
	if state.TranscriptErr != "" {
		resp["error"] = state.TranscriptErr
	}
	if raw := r.URL.Query().Get("t"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			resp["activeIndex"] = transcript.WordAt(t, state.Transcript)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func handleGenerateCancel(w http.ResponseWriter, r *http.Request, job *generateJob) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job.mu.Lock()
	running := job.status == "running"
	job.mu.Unlock()
	if running {
		job.cancel()
		log.Info().Str("job", job.id).Msg("Generation job cancel requested")
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}
