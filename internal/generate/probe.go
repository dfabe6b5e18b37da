package generate

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

// minDuration is the sanity floor for a generated clip. Anything shorter is
// a truncated or corrupted download, not a spoken line.
const minDuration = 0.5

// MediaInfo holds the playability metadata extracted from a downloaded video.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// ffprobeOutput mirrors the JSON ffprobe emits with -show_format -show_streams.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// CheckFFprobeAvailable checks if ffprobe is available in the system PATH.
// Called at startup so a missing FFmpeg install fails fast instead of on the
// first generation attempt. Pure Go MP4 libraries expose raw boxes but not a
// reliable duration across encoders, which is why the probe shells out.
func CheckFFprobeAvailable() error {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return fmt.Errorf("ffprobe not found in PATH: video validation requires FFmpeg. Install with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)")
	}
	log.Debug().Str("path", path).Msg("ffprobe found")
	return nil
}

// probeFile runs ffprobe against the downloaded file and validates the result.
func probeFile(path string) (*MediaInfo, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.Command(ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed: %v", ErrInvalidMediaPayload, err)
	}

	return parseProbe(output)
}

// parseProbe decodes ffprobe JSON output and applies the validation rules:
// metadata must be readable and the duration must clear the sanity floor.
func parseProbe(output []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("%w: unreadable ffprobe output: %v", ErrInvalidMediaPayload, err)
	}

	info := &MediaInfo{}

	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
			}
			// Some containers only carry duration at stream level.
			if info.Duration == 0 && stream.Duration != "" {
				if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = dur
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("%w: no video stream metadata", ErrInvalidMediaPayload)
	}
	if info.Duration < minDuration {
		return nil, fmt.Errorf("%w: duration %.2fs is below the %.1fs minimum", ErrInvalidMediaPayload, info.Duration, minDuration)
	}

	return info, nil
}
