package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake mp4 payload"), 0644); err != nil {
		t.Fatalf("failed to write temp video: %v", err)
	}
	return path
}

func newTestClient(url string) *Client {
	return &Client{
		apiKey:     "test-key",
		baseURL:    url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	var gotKey, gotModelID, gotFilename, gotPartType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		gotModelID = r.FormValue("model_id")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			defer file.Close()
			gotFilename = header.Filename
			gotPartType = header.Header.Get("Content-Type")
			buf := make([]byte, 64)
			n, _ := file.Read(buf)
			gotBody = buf[:n]
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"words": [{"word": "hi", "start": 0, "end": 0.3}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	words, err := c.Transcribe(context.Background(), writeTempVideo(t))
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("xi-api-key = %q, want %q", gotKey, "test-key")
	}
	if gotModelID != "scribe_v1" {
		t.Errorf("model_id = %q, want %q", gotModelID, "scribe_v1")
	}
	if gotFilename != "clip.mp4" {
		t.Errorf("filename = %q, want %q", gotFilename, "clip.mp4")
	}
	if gotPartType != "video/mp4" {
		t.Errorf("file part Content-Type = %q, want %q", gotPartType, "video/mp4")
	}
	if string(gotBody) != "fake mp4 payload" {
		t.Errorf("file body = %q, want the temp file contents", gotBody)
	}
	if len(words) != 1 || words[0].Word != "hi" {
		t.Errorf("words = %+v, want one word %q", words, "hi")
	}
}

func TestTranscribeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Transcribe(context.Background(), writeTempVideo(t))
	if !errors.Is(err, ErrService) {
		t.Fatalf("Transcribe() error = %v, want ErrService", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should carry the remote status", err)
	}
}

func TestTranscribeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	words, err := c.Transcribe(context.Background(), writeTempVideo(t))
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if len(words) != 0 {
		t.Errorf("words = %+v, want empty for shapeless response", words)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	if err == nil {
		t.Fatal("Transcribe() on missing file should fail")
	}
}
