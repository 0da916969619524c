package download

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"
)

// FFProbeOutput is the part of ffprobe's report used to check an output
type FFProbeOutput struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream of the file
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Width      int               `json:"width,omitempty"`
	Height     int               `json:"height,omitempty"`
	SampleRate string            `json:"sample_rate,omitempty"`
	Channels   int               `json:"channels,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Language is the language tag of the stream
func (s Stream) Language() string {
	return s.Tags["language"]
}

// Format describes the container
type Format struct {
	Filename   string            `json:"filename"`
	NbStreams  int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   seconds           `json:"duration"`
	Size       string            `json:"size"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// seconds is a duration written by ffprobe as a quoted decimal number of seconds
type seconds time.Duration

func (d *seconds) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		s = string(b)
	}
	if s == "" || s == "N/A" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("can't get duration: %w", err)
	}
	*d = seconds(math.Round(f * float64(time.Second)))
	return nil
}

func (d seconds) Duration() time.Duration {
	return time.Duration(d)
}

// Probe runs ffprobe on the file
func Probe(ctx context.Context, ffprobe string, path string) (*FFProbeOutput, error) {
	params := []string{
		"-v", "quiet",
		"-show_streams",
		"-show_format",
		"-print_format", "json",
		"-i", path,
	}

	out, err := exec.CommandContext(ctx, ffprobe, params...).Output()
	if err != nil {
		return nil, fmt.Errorf("can't probe %q: %w", path, err)
	}
	return decodeProbe(out)
}

func decodeProbe(b []byte) (*FFProbeOutput, error) {
	probe := FFProbeOutput{}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("can't decode probe result: %w", err)
	}
	return &probe, nil
}
