package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"vidsafe/media"
)

// Inspector extracts container metadata from media files using ffprobe.
type Inspector struct {
	binary string
}

func NewInspector(binary string) *Inspector {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Inspector{binary: binary}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// Probe returns the duration of the file at path in whole seconds, or 0 if
// the container reports none. Any failure is an ExtractionFailure.
func (i *Inspector) Probe(ctx context.Context, path string) (float64, error) {
	stdout, stderr, err := i.Ffprobe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, media.Failuref(media.ExtractionFailure, "ffprobe %s: %v: %s", path, err, strings.TrimSpace(string(stderr)))
	}

	duration, err := parseDuration(stdout)
	if err != nil {
		return 0, media.NewFailure(media.ExtractionFailure, err)
	}
	return duration, nil
}

func parseDuration(stdout []byte) (float64, error) {
	var output probeOutput
	if err := json.Unmarshal(stdout, &output); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if output.Format.FormatName == "" && len(output.Streams) == 0 {
		return 0, fmt.Errorf("ffprobe reported no container or streams")
	}

	raw := strings.TrimSpace(output.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, nil
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return math.Round(duration), nil
}

// runs ffprobe with the provided args and returns (stdout, stderr, error)
func (i *Inspector) Ffprobe(ctx context.Context, args ...string) ([]byte, []byte, error) {
	log.Debugln(i.binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, i.binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		log.Errorf("ffprobe error: %v", err)
		log.Debugln("stderr:", stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Version returns the first line of `ffprobe -version`.
func (i *Inspector) Version(ctx context.Context) (string, error) {
	stdout, _, err := i.Ffprobe(ctx, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(stdout), "\n")
	return strings.TrimSpace(line), nil
}
