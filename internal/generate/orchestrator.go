// Package generate orchestrates one video generation attempt end to end:
// submit (with a single fallback-model retry), poll the long-running
// operation until done, download the result, and validate the payload
// before handing it to the caller.
package generate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fpang/talkingface/internal/ingest"
	"github.com/fpang/talkingface/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// State is the lifecycle of one generation attempt. The orchestrator reports
// transitions through the progress callback so the UI can show where a
// multi-minute job currently is.
type State string

const (
	StateSubmitted   State = "submitted"
	StatePolling     State = "polling"
	StateDownloading State = "downloading"
	StateValidating  State = "validating"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Config holds the parameters for an Orchestrator.
type Config struct {
	// APIKey is the Gemini API key, also appended to the download URI.
	APIKey string

	// Model is the primary video model identifier.
	Model string

	// FallbackModel is retried exactly once when the primary model rejects
	// the request shape with an argument-validation error.
	FallbackModel string

	// Resolution is an optional output resolution hint (e.g. "720p").
	Resolution string

	// PollInterval is the delay between operation status queries.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// MaxWait bounds the total wall-clock time spent polling.
	// Zero means DefaultMaxWait.
	MaxWait time.Duration
}

const (
	// DefaultPollInterval matches the remote service's guidance for video
	// operations; polling faster burns quota without finishing sooner.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxWait bounds the polling loop. Generation normally finishes
	// in a few minutes; anything past this is a stuck operation.
	DefaultMaxWait = 10 * time.Minute
)

// ProgressFunc receives state transitions during a generation attempt.
type ProgressFunc func(State)

// Orchestrator drives video generation attempts. One Orchestrator serves one
// session; attempts are sequential (the session's busy flag is the advisory
// gate, checked by the caller, not enforced here).
type Orchestrator struct {
	client     *genai.Client
	httpClient *http.Client
	cfg        Config
}

// New creates an Orchestrator and its Gemini client.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = DefaultMaxWait
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Orchestrator{
		client:     client,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		cfg:        cfg,
	}, nil
}

// Generate runs one full attempt and returns the validated video asset.
// The caller owns the asset and must Release it when superseded.
// Cancellation via ctx is honored before every poll.
func (o *Orchestrator) Generate(ctx context.Context, dialogue string, img *ingest.UploadedImage, progress ProgressFunc) (*VideoAsset, error) {
	if progress == nil {
		progress = func(State) {}
	}

	prompt := BuildPrompt(dialogue)
	start := time.Now()

	progress(StateSubmitted)
	op, usedModel, err := submitWithFallback(ctx, o.cfg.Model, o.cfg.FallbackModel, func(model string) (*genai.GenerateVideosOperation, error) {
		return o.submit(ctx, model, prompt, img)
	})
	if err != nil {
		progress(StateFailed)
		o.emitAttemptMetrics("submission_failed", usedModel, time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	log.Info().Str("model", usedModel).Msg("Video generation submitted")

	progress(StatePolling)
	op, err = o.awaitCompletion(ctx, op)
	if err != nil {
		if ctx.Err() != nil {
			progress(StateCancelled)
			o.emitAttemptMetrics("cancelled", usedModel, time.Since(start))
		} else {
			progress(StateFailed)
			o.emitAttemptMetrics("poll_failed", usedModel, time.Since(start))
		}
		return nil, err
	}

	uri := resultURI(op)
	if uri == "" {
		progress(StateFailed)
		o.emitAttemptMetrics("missing_link", usedModel, time.Since(start))
		return nil, ErrMissingDownloadLink
	}

	progress(StateDownloading)
	path, size, err := downloadVideo(ctx, o.httpClient, uri, o.cfg.APIKey)
	if err != nil {
		progress(StateFailed)
		o.emitAttemptMetrics("download_failed", usedModel, time.Since(start))
		return nil, err
	}

	progress(StateValidating)
	asset, err := newVideoAsset(path, size, usedModel)
	if err != nil {
		progress(StateFailed)
		o.emitAttemptMetrics("invalid_payload", usedModel, time.Since(start))
		return nil, err
	}

	progress(StateCompleted)
	o.emitAttemptMetrics("success", usedModel, time.Since(start))

	log.Info().
		Str("model", usedModel).
		Float64("duration_s", asset.Duration).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Bool("has_audio", asset.HasAudio).
		Int64("bytes", asset.Size).
		Dur("elapsed", time.Since(start)).
		Msg("Video generation complete")

	return asset, nil
}

// submit sends one generation request for the given model.
func (o *Orchestrator) submit(ctx context.Context, model, prompt string, img *ingest.UploadedImage) (*genai.GenerateVideosOperation, error) {
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    "9:16",
	}
	if o.cfg.Resolution != "" {
		config.Resolution = o.cfg.Resolution
	}

	image := &genai.Image{
		ImageBytes: img.Bytes,
		MIMEType:   img.MIMEType,
	}

	return o.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

// submitWithFallback tries the primary model, and on an argument-validation
// rejection retries exactly once against the fallback model with an
// identical payload. Any other failure surfaces immediately. The returned
// model is the one the operation is actually running on.
func submitWithFallback(ctx context.Context, primary, fallback string, submit func(model string) (*genai.GenerateVideosOperation, error)) (*genai.GenerateVideosOperation, string, error) {
	op, err := submit(primary)
	if err == nil {
		return op, primary, nil
	}
	if fallback == "" || fallback == primary || !isArgumentError(err) {
		return nil, primary, err
	}

	log.Warn().
		Err(err).
		Str("primary", primary).
		Str("fallback", fallback).
		Msg("Primary model rejected request shape, retrying with fallback model")

	op, ferr := submit(fallback)
	if ferr != nil {
		return nil, fallback, ferr
	}
	return op, fallback, nil
}

// awaitCompletion polls the operation until it is done, the polling budget is
// exhausted, or ctx is cancelled. The context is checked before every sleep
// and every poll so a cancelled session never leaves a poll in flight.
func (o *Orchestrator) awaitCompletion(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	deadline := time.NewTimer(o.cfg.MaxWait)
	defer deadline.Stop()

	polls := 0
	for !op.Done {
		select {
		case <-ctx.Done():
			log.Info().Int("polls", polls).Msg("Video generation cancelled")
			return nil, ctx.Err()
		case <-deadline.C:
			log.Error().Int("polls", polls).Dur("budget", o.cfg.MaxWait).Msg("Video generation polling budget exhausted")
			return nil, ErrTimeout
		case <-time.After(o.cfg.PollInterval):
		}

		var err error
		op, err = o.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation status: %w", err)
		}
		polls++
		log.Debug().Int("poll", polls).Bool("done", op.Done).Msg("Polled video operation")
	}

	return op, nil
}

// resultURI extracts the download link from a completed operation.
// Only meaningful once op.Done is true.
func resultURI(op *genai.GenerateVideosOperation) string {
	if op == nil || op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return ""
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil {
		return ""
	}
	return video.URI
}

func (o *Orchestrator) emitAttemptMetrics(result, model string, elapsed time.Duration) {
	metrics.New("TalkingFace").
		Dimension("Result", result).
		Property("Model", model).
		Metric("GenerationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GenerationResult").
		Flush()
}
