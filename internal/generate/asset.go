package generate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// VideoAsset is a downloaded, validated generation result. The bytes live in
// a temp file rather than memory: clips run a few megabytes and the HTTP
// layer streams them to the player with http.ServeFile.
//
// The caller owns the asset and must call Release exactly once when it is
// superseded or the session ends; temp files are not reclaimed otherwise.
type VideoAsset struct {
	// Path is the temp file holding the MP4 payload.
	Path string

	// ContentType is always "video/mp4"; the generation API declares it.
	ContentType string

	Size     int64
	Duration float64
	Width    int
	Height   int
	HasAudio bool

	// Model is the model identifier that actually produced the video
	// (primary or fallback).
	Model string

	releaseOnce sync.Once
}

// newVideoAsset probes the downloaded file and wraps it as an asset.
// The temp file is removed on validation failure.
func newVideoAsset(path string, size int64, model string) (*VideoAsset, error) {
	info, err := probeFile(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &VideoAsset{
		Path:        path,
		ContentType: "video/mp4",
		Size:        size,
		Duration:    info.Duration,
		Width:       info.Width,
		Height:      info.Height,
		HasAudio:    info.HasAudio,
		Model:       model,
	}, nil
}

// Release removes the backing temp file. Safe to call more than once.
func (a *VideoAsset) Release() {
	a.releaseOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", a.Path).Msg("Failed to remove video temp file")
		} else {
			log.Debug().Str("path", a.Path).Msg("Released video temp file")
		}
	})
}

// downloadVideo fetches the generation result from its URI, authenticating
// by appending the API key as a query parameter (the scheme the result URIs
// use), and streams it into a temp file.
func downloadVideo(ctx context.Context, client *http.Client, uri, apiKey string) (path string, size int64, err error) {
	authed, err := appendKey(uri, apiKey)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authed, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("%w: %s", ErrDownloadFailed, resp.Status)
	}

	tmp, err := os.CreateTemp("", "facevideo-*.mp4")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err = io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if err == nil {
			err = closeErr
		}
		return "", 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	log.Debug().Str("path", tmp.Name()).Int64("bytes", size).Msg("Video downloaded")
	return tmp.Name(), size, nil
}

// appendKey adds the API key as a "key" query parameter to the result URI.
func appendKey(uri, apiKey string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
