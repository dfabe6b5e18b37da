package generate

import (
	"errors"
	"strings"

	"github.com/fpang/talkingface/internal/auth"
	"google.golang.org/genai"
)

// Error taxonomy for one generation attempt. Every error is terminal for the
// attempt; only ErrSubmission wrapping a credential failure escalates to a
// re-authentication flow (see CredentialRejected).
var (
	// ErrSubmission means the generation request was rejected and was not
	// eligible for the fallback-model retry.
	ErrSubmission = errors.New("video generation request was rejected")

	// ErrTimeout means the operation did not complete within the wall-clock
	// polling budget.
	ErrTimeout = errors.New("video generation timed out")

	// ErrMissingDownloadLink means the operation completed without a result URI.
	ErrMissingDownloadLink = errors.New("video generation failed to provide a download link")

	// ErrDownloadFailed means the result URI answered with a non-success status.
	ErrDownloadFailed = errors.New("failed to download generated video")

	// ErrInvalidMediaPayload means the downloaded payload is not a playable
	// video (unreadable metadata or implausibly short duration).
	ErrInvalidMediaPayload = errors.New("generated video failed validation")
)

// isArgumentError reports whether a submit failure indicates the model
// rejected the request shape, which makes the request eligible for exactly
// one retry against the documented fallback model.
func isArgumentError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 400 {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "INVALID_ARGUMENT") || strings.Contains(msg, "not supported")
}

// CredentialRejected reports whether a generation failure signals an invalid
// or revoked credential rather than a bad request. A "resource not found"
// answer from the generation API means the key no longer resolves the model,
// so the user must go back through key selection.
func CredentialRejected(err error) bool {
	if err == nil {
		return false
	}
	valErr := auth.ClassifyError(err)
	return valErr != nil && valErr.Type == auth.ErrTypeInvalidKey
}
