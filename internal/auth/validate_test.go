package auth

import (
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	key, err := GetAPIKey()
	if err != nil {
		t.Fatalf("GetAPIKey() error: %v", err)
	}
	if key != "env-key" {
		t.Errorf("GetAPIKey() = %q, want %q", key, "env-key")
	}
}

func TestGetScribeAPIKey(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "scribe-key")
	if key := GetScribeAPIKey(); key != "scribe-key" {
		t.Errorf("GetScribeAPIKey() = %q, want %q", key, "scribe-key")
	}

	t.Setenv("ELEVENLABS_API_KEY", "")
	if key := GetScribeAPIKey(); key != "" {
		t.Errorf("GetScribeAPIKey() = %q, want empty when unset", key)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ValidationErrorType
	}{
		{"api key not valid", errors.New("API key not valid. Please pass a valid API key"), ErrTypeInvalidKey},
		{"not found means revoked key", errors.New("Requested entity was not found"), ErrTypeInvalidKey},
		{"permission denied", errors.New("permission denied"), ErrTypeInvalidKey},
		{"quota", errors.New("quota exceeded for metric"), ErrTypeQuotaExceeded},
		{"rate limit", errors.New("rate limit hit"), ErrTypeQuotaExceeded},
		{"network", errors.New("dial tcp: no such host"), ErrTypeNetworkError},
		{"timeout", errors.New("context deadline exceeded (timeout)"), ErrTypeNetworkError},
		{"unknown", errors.New("something odd"), ErrTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got == nil {
				t.Fatal("ClassifyError() = nil for non-nil error")
			}
			if got.Type != tt.want {
				t.Errorf("ClassifyError(%v).Type = %v, want %v", tt.err, got.Type, tt.want)
			}
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	if got := ClassifyError(nil); got != nil {
		t.Errorf("ClassifyError(nil) = %v, want nil", got)
	}
}

func TestClassifyAPIErrorCodes(t *testing.T) {
	tests := []struct {
		code int
		want ValidationErrorType
	}{
		{401, ErrTypeInvalidKey},
		{403, ErrTypeInvalidKey},
		{404, ErrTypeInvalidKey},
		{429, ErrTypeQuotaExceeded},
		{500, ErrTypeNetworkError},
		{503, ErrTypeNetworkError},
		// 400 is an argument problem, not a credential problem; callers use
		// it to decide fallback-model eligibility instead of re-auth.
		{400, ErrTypeUnknown},
	}

	for _, tt := range tests {
		got := ClassifyError(&genai.APIError{Code: tt.code, Message: "x"})
		if got.Type != tt.want {
			t.Errorf("ClassifyError(APIError %d).Type = %v, want %v", tt.code, got.Type, tt.want)
		}
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	verr := &ValidationError{Type: ErrTypeUnknown, Message: "wrapped", Err: inner}

	if !errors.Is(verr, inner) {
		t.Error("ValidationError should unwrap to the inner error")
	}
	if verr.Error() != "wrapped: inner" {
		t.Errorf("Error() = %q", verr.Error())
	}
}
