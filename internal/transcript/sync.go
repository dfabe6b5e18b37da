// Package transcript maps transcript words onto video playback time. The
// mapping is pure: highlight state during playback is driven exclusively by
// player time-update events recomputing the active index — never by timers,
// which drift with playback rate and seek latency.
package transcript

import (
	"strings"

	"github.com/fpang/talkingface/internal/transcribe"
)

// WordAt returns the index of the first word whose [start, end] interval
// contains t (in seconds), or -1 if no word is active at t. Transcripts run
// tens to low hundreds of words, so a linear scan is fine.
func WordAt(t float64, words []transcribe.WordTimestamp) int {
	for i, w := range words {
		if t >= w.Start && t <= w.End {
			return i
		}
	}
	return -1
}

// FullText joins the words into the plain transcript string shown below the
// clickable word row.
func FullText(words []transcribe.WordTimestamp) string {
	if len(words) == 0 {
		return transcribe.NoTranscriptMessage
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}
