package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fpang/talkingface/internal/generate"
	"github.com/fpang/talkingface/internal/ingest"
	"github.com/fpang/talkingface/internal/transcribe"
)

func tempAsset(t *testing.T) *generate.VideoAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0644); err != nil {
		t.Fatalf("failed to write temp video: %v", err)
	}
	return &generate.VideoAsset{Path: path, ContentType: "video/mp4"}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestBeginSingleFlight(t *testing.T) {
	s := New()

	if !s.Begin() {
		t.Fatal("first Begin() = false, want true")
	}
	if s.Begin() {
		t.Error("second Begin() while busy = true, want false")
	}

	s.Finish()
	if !s.Begin() {
		t.Error("Begin() after Finish() = false, want true")
	}
}

func TestResetReleasesVideo(t *testing.T) {
	s := New()
	asset := tempAsset(t)
	s.SetResult(asset, transcribe.Sentinel(transcribe.NoTranscriptMessage), "")

	s.Reset()

	if fileExists(asset.Path) {
		t.Error("Reset() should release the held video file")
	}
	state := s.State()
	if state.Video != nil || state.Transcript != nil || state.LastErr != "" {
		t.Errorf("Reset() left state behind: %+v", state)
	}
}

func TestSetResultReleasesSupersededVideo(t *testing.T) {
	s := New()
	first := tempAsset(t)
	second := tempAsset(t)

	s.SetResult(first, nil, "")
	s.SetResult(second, nil, "")

	if fileExists(first.Path) {
		t.Error("superseded video file should be released")
	}
	if !fileExists(second.Path) {
		t.Error("current video file should survive")
	}
	if s.State().Video != second {
		t.Error("State().Video should be the new asset")
	}
}

func TestSetResultPartialSuccess(t *testing.T) {
	s := New()
	asset := tempAsset(t)

	s.SetResult(asset, transcribe.Sentinel(transcribe.NoTranscriptMessage), "Transcription failed.")

	state := s.State()
	if state.Video == nil {
		t.Fatal("video must survive a transcription failure")
	}
	if state.TranscriptErr != "Transcription failed." {
		t.Errorf("TranscriptErr = %q", state.TranscriptErr)
	}
	if state.LastErr != "" {
		t.Errorf("LastErr = %q, want empty on partial success", state.LastErr)
	}
}

func TestFailReleasesVideoAndRecordsError(t *testing.T) {
	s := New()
	asset := tempAsset(t)
	s.SetResult(asset, nil, "")

	s.Fail("generation failed")

	if fileExists(asset.Path) {
		t.Error("Fail() should release any staged video")
	}
	state := s.State()
	if state.Video != nil {
		t.Error("no video should survive a failed attempt")
	}
	if state.LastErr != "generation failed" {
		t.Errorf("LastErr = %q, want the failure message", state.LastErr)
	}
}

func TestSetImageResetsResult(t *testing.T) {
	s := New()
	asset := tempAsset(t)
	s.SetResult(asset, nil, "")

	s.SetImage(&ingest.UploadedImage{MIMEType: "image/png"})

	state := s.State()
	if state.Video != nil {
		t.Error("a new image should reset the previous result")
	}
	if fileExists(asset.Path) {
		t.Error("the previous video file should be released")
	}
	if state.Image == nil {
		t.Error("the new image should be staged")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	s := r.Create()
	if s.ID == "" {
		t.Fatal("Create() returned a session without an ID")
	}
	if r.Get(s.ID) != s {
		t.Error("Get() should return the created session")
	}
	if r.Get("nope") != nil {
		t.Error("Get() with unknown ID should return nil")
	}

	asset := tempAsset(t)
	s.SetResult(asset, nil, "")

	r.CloseAll()
	if r.Get(s.ID) != nil {
		t.Error("CloseAll() should drop the session")
	}
	if fileExists(asset.Path) {
		t.Error("CloseAll() should release held video files")
	}
}
