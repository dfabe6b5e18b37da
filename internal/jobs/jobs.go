// Package jobs provides shared helpers for the async job HTTP surface:
// random job identifiers and route parsing for /api/<kind>/{id}/{action}
// style paths.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// GenerateID creates a new cryptographically random job ID with the given
// prefix. Random IDs prevent sequential enumeration of other sessions' jobs.
// The prefix should include a trailing dash, e.g. "gen-".
func GenerateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s job ID", prefix)
	}
	return prefix + hex.EncodeToString(b)
}

// ParseRoute extracts the job ID and action from a URL path like
// /api/generate/{id}/{action}. apiPrefix should be like "/api/generate/",
// idPrefix should be like "gen-". Returns the normalized job ID and action,
// or ok=false if the path is invalid.
func ParseRoute(path, apiPrefix, idPrefix string) (jobID, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	jobID = parts[0]
	if !strings.HasPrefix(jobID, idPrefix) {
		jobID = idPrefix + jobID
	}
	return jobID, parts[1], true
}

// CheckOwnership verifies the sessionId query param matches the job's
// session ID. Jobs are only visible to the session that started them.
func CheckOwnership(r *http.Request, jobSessionID string) bool {
	sessionID := r.URL.Query().Get("sessionId")
	return sessionID != "" && sessionID == jobSessionID
}
