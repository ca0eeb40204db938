package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsafe/media"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{"rounded", `{"format":{"format_name":"mov,mp4","duration":"12.6"}}`, 13, false},
		{"missing duration", `{"format":{"format_name":"matroska"}}`, 0, false},
		{"not available", `{"format":{"format_name":"mpegts","duration":"N/A"}}`, 0, false},
		{"streams only", `{"format":{},"streams":[{"codec_type":"video"}]}`, 0, false},
		{"empty container", `{"format":{},"streams":[]}`, 0, true},
		{"garbage duration", `{"format":{"format_name":"mp4","duration":"abc"}}`, 0, true},
		{"negative duration", `{"format":{"format_name":"mp4","duration":"-3"}}`, 0, true},
		{"not json", `Invalid data found when processing input`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration([]byte(tt.output))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func fakeFfprobe(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestProbeWithFakeBinary(t *testing.T) {
	bin := fakeFfprobe(t, `echo '{"format":{"format_name":"mov,mp4","duration":"42.2"}}'`)

	duration, err := NewInspector(bin).Probe(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 42.0, duration)
}

func TestProbeFailureIsExtractionFailure(t *testing.T) {
	bin := fakeFfprobe(t, `echo "clip.mp4: Invalid data found when processing input" >&2; exit 1`)

	_, err := NewInspector(bin).Probe(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.Equal(t, media.ExtractionFailure, media.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProbeMissingBinary(t *testing.T) {
	_, err := NewInspector(filepath.Join(t.TempDir(), "nope")).Probe(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.Equal(t, media.ExtractionFailure, media.KindOf(err))
}

func TestProbeCancelled(t *testing.T) {
	bin := fakeFfprobe(t, `sleep 5`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInspector(bin).Probe(ctx, "clip.mp4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVersion(t *testing.T) {
	bin := fakeFfprobe(t, `printf 'ffprobe version 6.1.1 Copyright (c) 2007-2023\nbuilt with gcc 13\n'`)

	version, err := NewInspector(bin).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffprobe version 6.1.1 Copyright (c) 2007-2023", version)
}
