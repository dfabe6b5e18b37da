package main

import (
	"context"
	"errors"

	"github.com/fpang/talkingface/internal/generate"
	"github.com/fpang/talkingface/internal/ingest"
	"github.com/fpang/talkingface/internal/transcribe"
	"github.com/rs/zerolog/log"
)

// runGenerateJob executes one generation attempt in the background: generate
// and validate the video, then transcribe it (or substitute a sentinel when
// transcription is skipped), and publish the result on the session.
func runGenerateJob(ctx context.Context, job *generateJob, img *ingest.UploadedImage, dialogue string) {
	defer job.sess.Finish()
	defer job.cancel()

	// A new attempt supersedes any previous result immediately, so the UI
	// never shows a stale video while a fresh one is in flight.
	job.sess.Reset()

	orch, err := generate.New(ctx, generate.Config{
		APIKey:        geminiKey,
		Model:         modelFlag,
		FallbackModel: fallbackFlag,
		Resolution:    resolutionFlag,
	})
	if err != nil {
		failJob(job, "Failed to initialize the video service: "+err.Error(), false)
		return
	}

	asset, err := orch.Generate(ctx, dialogue, img, job.setStage)
	if err != nil {
		if ctx.Err() != nil {
			cancelJob(job)
			return
		}
		reauth := generate.CredentialRejected(err)
		if reauth {
			log.Warn().Str("job", job.id).Msg("Generation rejected the credential, prompting for a new key")
		}
		failJob(job, userMessage(err), reauth)
		return
	}

	words, transcriptErr := transcribeVideo(ctx, asset)
	job.sess.SetResult(asset, words, transcriptErr)

	job.mu.Lock()
	job.status = "completed"
	job.stage = generate.StateCompleted
	job.mu.Unlock()
}

// transcribeVideo decides whether to transcribe and runs the upload. A
// transcription failure never discards the validated video: the video is the
// primary artifact, the transcript an enhancement. The returned error string
// is empty on success or deliberate skip.
func transcribeVideo(ctx context.Context, asset *generate.VideoAsset) ([]transcribe.WordTimestamp, string) {
	switch {
	case !generate.ModelHasAudio(asset.Model) || !asset.HasAudio:
		return transcribe.Sentinel("No audio track available for transcription."), ""
	case !transcribeFlag:
		return transcribe.Sentinel("Transcription disabled by preference."), ""
	case scribeKey == "":
		return transcribe.Sentinel("Transcription unavailable: ElevenLabs API key missing."), ""
	}

	words, err := transcribe.NewClient(scribeKey).Transcribe(ctx, asset.Path)
	if err != nil {
		log.Error().Err(err).Msg("Transcription failed, keeping video without transcript")
		msg := "Transcription failed."
		if errors.Is(err, transcribe.ErrService) {
			msg = "Transcription service error: " + err.Error()
		}
		return transcribe.Sentinel(transcribe.NoTranscriptMessage), msg
	}
	if len(words) == 0 {
		return transcribe.Sentinel(transcribe.NoTranscriptMessage), ""
	}
	return words, ""
}

func failJob(job *generateJob, msg string, reauth bool) {
	job.sess.Fail(msg)
	job.mu.Lock()
	job.status = "failed"
	job.stage = generate.StateFailed
	job.errMsg = msg
	job.reauth = reauth
	job.mu.Unlock()
	log.Error().Str("job", job.id).Str("error", msg).Msg("Generation job failed")
}

func cancelJob(job *generateJob) {
	job.sess.Fail("")
	job.mu.Lock()
	job.status = "cancelled"
	job.stage = generate.StateCancelled
	job.mu.Unlock()
	log.Info().Str("job", job.id).Msg("Generation job cancelled")
}

// userMessage maps pipeline errors onto the stable messages the UI shows.
func userMessage(err error) string {
	switch {
	case errors.Is(err, generate.ErrTimeout):
		return "Video generation timed out. Please try again."
	case errors.Is(err, generate.ErrMissingDownloadLink):
		return "The video service finished without producing a download link."
	case errors.Is(err, generate.ErrDownloadFailed):
		return "Downloading the generated video failed. Please try again."
	case errors.Is(err, generate.ErrInvalidMediaPayload):
		return "The generated video was unusable. Please try again."
	case errors.Is(err, generate.ErrSubmission):
		return "Video generation request was rejected: " + err.Error()
	default:
		return err.Error()
	}
}
