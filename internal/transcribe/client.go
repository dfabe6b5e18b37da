// Package transcribe submits generated videos to the ElevenLabs
// speech-to-text API and normalizes the heterogeneous response shapes into a
// canonical per-word timestamp sequence.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/talkingface/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1/speech-to-text"
	sttModelID     = "scribe_v1"
	uploadTimeout  = 10 * time.Minute
)

// ErrService means the speech-to-text endpoint answered with a non-success
// status. The wrapped message carries the remote status text.
var ErrService = errors.New("speech-to-text service error")

// Client is an ElevenLabs speech-to-text client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a transcription client for the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: uploadTimeout},
	}
}

// Transcribe uploads the video file at videoPath and returns the normalized
// word sequence. An empty result means the service produced no word-like
// entries; callers substitute the no-transcript sentinel.
func (c *Client) Transcribe(ctx context.Context, videoPath string) ([]WordTimestamp, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	// Build the multipart form body through a pipe so the video streams to
	// the socket instead of being buffered in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer mw.Close()

		if err := mw.WriteField("model_id", sttModelID); err != nil {
			errCh <- err
			return
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(videoPath)))
		h.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(h)
		if err != nil {
			errCh <- err
			return
		}

		if _, err := io.Copy(part, f); err != nil {
			errCh <- err
			return
		}

		errCh <- nil
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return nil, fmt.Errorf("multipart write error: %w", writeErr)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(respBody), 500)).
			Msg("Speech-to-text API returned error")
		c.emitMetrics("error", time.Since(start), 0)
		return nil, fmt.Errorf("%w: %s", ErrService, resp.Status)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	words := Normalize(raw)
	c.emitMetrics("success", time.Since(start), len(words))

	log.Info().
		Int("words", len(words)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")

	return words, nil
}

func (c *Client) emitMetrics(result string, elapsed time.Duration, words int) {
	metrics.New("TalkingFace").
		Dimension("Result", result).
		Metric("TranscriptionMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("TranscriptWords", float64(words), metrics.UnitCount).
		Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
