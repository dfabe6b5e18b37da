// Package session owns the per-session UI state: the current image, video,
// transcript, and error, plus the advisory busy flag that keeps exactly one
// generation attempt in flight. It replaces ambient mutable state with a
// single owning controller passed into each pipeline stage.
package session

import (
	"sync"

	"github.com/fpang/talkingface/internal/generate"
	"github.com/fpang/talkingface/internal/ingest"
	"github.com/fpang/talkingface/internal/transcribe"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session holds the state for one browser session. All mutation goes through
// methods so the release point for superseded video files stays in one place.
type Session struct {
	ID string

	mu            sync.Mutex
	busy          bool
	image         *ingest.UploadedImage
	video         *generate.VideoAsset
	transcript    []transcribe.WordTimestamp
	transcriptErr string
	lastErr       string
}

// Snapshot is a read-only copy of the session state for handlers.
type Snapshot struct {
	Busy          bool
	Image         *ingest.UploadedImage
	Video         *generate.VideoAsset
	Transcript    []transcribe.WordTimestamp
	TranscriptErr string
	LastErr       string
}

// New creates a session with a fresh identifier.
func New() *Session {
	return &Session{ID: uuid.NewString()}
}

// Begin marks the session busy for one generation attempt. Returns false if
// an attempt is already in flight — the caller treats that as a silent
// no-op, per the single-in-flight rule. The flag is advisory: the
// orchestrator itself does not enforce it.
func (s *Session) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// Finish clears the busy flag. Always called, success or failure, so a
// failed attempt leaves the session usable for a retry.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Reset clears video, transcript, and error state, releasing the superseded
// video file. Invoked at the start of every new upload and every new
// generation attempt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.video != nil {
		s.video.Release()
		s.video = nil
	}
	s.transcript = nil
	s.transcriptErr = ""
	s.lastErr = ""
}

// SetImage stores a freshly ingested image and resets the rest of the
// session: a new image starts a fresh attempt.
func (s *Session) SetImage(img *ingest.UploadedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.resetLocked()
}

// SetResult records a successful attempt. transcriptErr is non-empty when
// transcription failed after the video validated — the video is kept
// (partial success), with the failure surfaced alongside it.
func (s *Session) SetResult(video *generate.VideoAsset, words []transcribe.WordTimestamp, transcriptErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video != nil && s.video != video {
		s.video.Release()
	}
	s.video = video
	s.transcript = words
	s.transcriptErr = transcriptErr
	s.lastErr = ""
}

// Fail records a failed attempt. No partial success survives: any staged
// video is released so a stale player never shows next to a fresh error.
func (s *Session) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.lastErr = msg
}

// State returns a consistent snapshot of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Busy:          s.busy,
		Image:         s.image,
		Video:         s.video,
		Transcript:    s.transcript,
		TranscriptErr: s.transcriptErr,
		LastErr:       s.lastErr,
	}
}

// Close releases session resources at teardown. The single release point
// for the video file is resetLocked, shared with replacement.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
	s.resetLocked()
}

// Registry tracks live sessions by ID. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create mints a new session, closing and replacing nothing — each browser
// tab gets its own.
func (r *Registry) Create() *Session {
	s := New()
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	log.Debug().Str("session", s.ID).Msg("Session created")
	return s
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// CloseAll tears down every session, releasing held video files. Called on
// server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
