package generate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func TestDownloadVideoAppendsKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte("mp4 bytes"))
	}))
	defer srv.Close()

	path, size, err := downloadVideo(context.Background(), testHTTPClient(), srv.URL+"/video?alt=media", "secret-key")
	if err != nil {
		t.Fatalf("downloadVideo() error: %v", err)
	}
	defer os.Remove(path)

	if gotKey != "secret-key" {
		t.Errorf("key query param = %q, want %q", gotKey, "secret-key")
	}
	if size != int64(len("mp4 bytes")) {
		t.Errorf("size = %d, want %d", size, len("mp4 bytes"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != "mp4 bytes" {
		t.Errorf("downloaded content = %q, want %q", data, "mp4 bytes")
	}
}

func TestDownloadVideoKeepsExistingQuery(t *testing.T) {
	var gotAlt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAlt = r.URL.Query().Get("alt")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	path, _, err := downloadVideo(context.Background(), testHTTPClient(), srv.URL+"/v?alt=media", "k")
	if err != nil {
		t.Fatalf("downloadVideo() error: %v", err)
	}
	os.Remove(path)

	if gotAlt != "media" {
		t.Errorf("existing query params must survive key injection, alt = %q", gotAlt)
	}
}

func TestDownloadVideoNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := downloadVideo(context.Background(), testHTTPClient(), srv.URL, "k")
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("downloadVideo() error = %v, want ErrDownloadFailed", err)
	}
}

func TestDownloadVideoBadURI(t *testing.T) {
	_, _, err := downloadVideo(context.Background(), testHTTPClient(), "://not-a-uri", "k")
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("downloadVideo() error = %v, want ErrDownloadFailed", err)
	}
}

func TestVideoAssetReleaseIdempotent(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "clip-*.mp4")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmp.Close()

	asset := &VideoAsset{Path: tmp.Name()}
	asset.Release()

	if _, err := os.Stat(tmp.Name()); !os.IsNotExist(err) {
		t.Errorf("Release() should remove the temp file, stat err = %v", err)
	}

	// Second release is a no-op, not a panic or error log storm.
	asset.Release()
}
