package transcribe

import (
	"math"
	"strconv"
	"strings"
)

// WordTimestamp is one spoken word paired with its start/end offsets (in
// seconds) on the video timeline. Produced in spoken order; consumed
// read-only by the playback synchronizer.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NoTranscriptMessage is the sentinel word substituted when the service
// yields no word-like entries at all.
const NoTranscriptMessage = "No transcript available"

// Sentinel wraps an explanatory message as a single placeholder entry.
// Used when transcription is skipped (no audio track, disabled, key missing)
// or produced nothing — a deliberate non-error placeholder, not a failure.
func Sentinel(message string) []WordTimestamp {
	return []WordTimestamp{{Word: message, Start: 0, End: 0}}
}

// defaultWordDuration is the heuristic length assigned to a word whose end
// offset the service omitted. An approximation, not a transcript guarantee.
const defaultWordDuration = 0.8

// strategy is one named parser for a known response shape. Parsers return
// nil when the shape is absent; the first non-empty result wins.
type strategy struct {
	name  string
	parse func(map[string]any) []WordTimestamp
}

// strategies are tried in priority order. The speech-to-text response shape
// is not contractually fixed across service versions, so normalization
// probes the documented shapes from most to least specific.
var strategies = []strategy{
	{"top-level-words", parseTopLevelWords},
	{"results-alternatives", parseResultAlternatives},
	{"segments", parseSegments},
	{"items", parseItems},
	{"plain-text", parsePlainText},
}

// Normalize converts a raw transcription response into the canonical word
// sequence. Returns an empty (non-nil-safe) slice when no strategy matches;
// the caller substitutes the NoTranscriptMessage sentinel.
func Normalize(data map[string]any) []WordTimestamp {
	for _, s := range strategies {
		if words := s.parse(data); len(words) > 0 {
			return words
		}
	}
	return nil
}

// parseTopLevelWords handles {words: [{word|text|content, start|start_time, end|end_time}]}.
func parseTopLevelWords(data map[string]any) []WordTimestamp {
	return parseWordList(data["words"])
}

// parseResultAlternatives handles {results: [{alternatives: [{words: [...]}]}]}.
func parseResultAlternatives(data map[string]any) []WordTimestamp {
	results, ok := data["results"].([]any)
	if !ok || len(results) == 0 {
		return nil
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil
	}
	alts, ok := first["alternatives"].([]any)
	if !ok || len(alts) == 0 {
		return nil
	}
	alt, ok := alts[0].(map[string]any)
	if !ok {
		return nil
	}
	return parseWordList(alt["words"])
}

// parseSegments handles {segments: [{words: [...]}, ...]}, flattening the
// per-segment word lists in order.
func parseSegments(data map[string]any) []WordTimestamp {
	segments, ok := data["segments"].([]any)
	if !ok || len(segments) == 0 {
		return nil
	}
	var out []WordTimestamp
	for _, s := range segments {
		seg, ok := s.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, parseWordList(seg["words"])...)
	}
	return out
}

// parseItems handles the alignment-service style {items: [...]}, keeping only
// entries tagged as a pronunciation/word type and reading content from
// alternatives[0].content or direct content/word fields.
func parseItems(data map[string]any) []WordTimestamp {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	var out []WordTimestamp
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(item, "type") {
		case "pronunciation", "word", "pron":
		default:
			continue
		}

		content := ""
		if alts, ok := item["alternatives"].([]any); ok && len(alts) > 0 {
			if alt, ok := alts[0].(map[string]any); ok {
				content = stringField(alt, "content")
			}
		}
		if content == "" {
			content = stringField(item, "content", "word")
		}
		if content == "" {
			continue
		}

		out = append(out, coerce(content,
			numberField(item, "start_time", "start"),
			numberField(item, "end_time", "end")))
	}
	return out
}

// parsePlainText handles a whole-transcript string under "transcript" or
// "text", wrapped as one zero-duration entry.
func parsePlainText(data map[string]any) []WordTimestamp {
	for _, key := range []string{"transcript", "text"} {
		if text := strings.TrimSpace(stringField(data, key)); text != "" {
			return []WordTimestamp{{Word: text, Start: 0, End: 0}}
		}
	}
	return nil
}

// parseWordList converts a generic word array using the shared field aliases.
func parseWordList(v any) []WordTimestamp {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	var out []WordTimestamp
	for _, w := range list {
		entry, ok := w.(map[string]any)
		if !ok {
			continue
		}
		word := stringField(entry, "word", "text", "content")
		if word == "" {
			continue
		}
		out = append(out, coerce(word,
			numberField(entry, "start", "start_time"),
			numberField(entry, "end", "end_time")))
	}
	return out
}

// coerce applies the numeric cleanup rules: a missing or non-finite start
// becomes 0; a missing or non-finite end defaults to start plus the
// heuristic word duration.
func coerce(word string, start, end float64) WordTimestamp {
	if !isFinite(start) {
		start = 0
	}
	if !isFinite(end) {
		end = start + defaultWordDuration
	}
	return WordTimestamp{Word: word, Start: start, End: end}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// stringField returns the first present string value among the aliases,
// stringifying numbers if the service got creative.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// numberField returns the first present numeric value among the aliases,
// parsing numeric strings, or NaN when none is present.
func numberField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return math.NaN()
}
