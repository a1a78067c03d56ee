package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scribeaudio/scribed/internal/scratch"
)

// stubTool writes a shell script standing in for an external binary.
func stubTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

// copyFFmpeg mimics ffmpeg by copying the -i argument to the last argument.
const copyFFmpeg = `in=""
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  out="$a"
done
cp "$in" "$out"`

const copySox = `cp "$1" "$2"`

func testConfig(binDir string) Config {
	return Config{
		SampleRate:      16000,
		NormLevel:       "-0.5",
		CompandParams:   "0.3,1 -90,-90,-70,-70,0,0 -5 0 0.2",
		TempoFactor:     1.25,
		PadLeadSeconds:  2.0,
		PadTrailSeconds: 1.0,
		StageTimeout:    5 * time.Second,
		ProbeTimeout:    time.Second,
		FFmpeg:          filepath.Join(binDir, "ffmpeg"),
		FFprobe:         filepath.Join(binDir, "ffprobe"),
		Sox:             filepath.Join(binDir, "sox"),
		Soxi:            filepath.Join(binDir, "soxi"),
	}
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func TestProcessFullChain(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffmpeg", copyFFmpeg)
	stubTool(t, binDir, "sox", copySox)
	stubTool(t, binDir, "soxi", `echo 44100`)

	sm := scratch.NewManager(t.TempDir(), nil)
	p := New(testConfig(binDir), sm, nil)

	final, artifacts, err := p.Process(context.Background(), writeInput(t, "clip.mp3"))
	require.NoError(t, err)
	require.Len(t, artifacts, 4)
	require.True(t, strings.HasSuffix(final, "_padded.wav"))
	require.Equal(t, artifacts[len(artifacts)-1], final)

	for _, a := range artifacts {
		_, statErr := os.Stat(a)
		require.NoError(t, statErr)
	}

	sm.Release(artifacts...)
	for _, a := range artifacts {
		_, statErr := os.Stat(a)
		require.True(t, os.IsNotExist(statErr))
	}
}

func TestProcessSkipsConversionAtTargetRate(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	// ffmpeg must never run when conversion and tempo are both skipped.
	stubTool(t, binDir, "ffmpeg", `exit 1`)
	stubTool(t, binDir, "sox", copySox)
	stubTool(t, binDir, "soxi", `echo 16000`)

	cfg := testConfig(binDir)
	cfg.TempoFactor = 1.0

	sm := scratch.NewManager(t.TempDir(), nil)
	p := New(cfg, sm, nil)

	final, artifacts, err := p.Process(context.Background(), writeInput(t, "clip.wav"))
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	require.True(t, strings.HasSuffix(final, "_padded.wav"))
}

func TestProcessConvertsWhenProbeFails(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffmpeg", copyFFmpeg)
	stubTool(t, binDir, "sox", copySox)
	stubTool(t, binDir, "soxi", `echo "no such file" >&2; exit 1`)

	sm := scratch.NewManager(t.TempDir(), nil)
	p := New(testConfig(binDir), sm, nil)

	_, artifacts, err := p.Process(context.Background(), writeInput(t, "clip.wav"))
	require.NoError(t, err)
	require.Len(t, artifacts, 4)
}

func TestProcessReleasesArtifactsOnStageFailure(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffmpeg", copyFFmpeg)
	stubTool(t, binDir, "sox", `echo "sox blew up" >&2; exit 2`)
	stubTool(t, binDir, "soxi", `echo 44100`)

	sm := scratch.NewManager(t.TempDir(), nil)
	p := New(testConfig(binDir), sm, nil)

	_, _, err := p.Process(context.Background(), writeInput(t, "clip.mp3"))
	require.ErrorIs(t, err, ErrTool)
	require.Contains(t, err.Error(), "sox blew up")
	require.Empty(t, sm.TrackedFiles())
}

func TestProcessStageTimeout(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffmpeg", copyFFmpeg)
	stubTool(t, binDir, "sox", `sleep 10`)
	stubTool(t, binDir, "soxi", `echo 44100`)

	cfg := testConfig(binDir)
	cfg.StageTimeout = 100 * time.Millisecond

	sm := scratch.NewManager(t.TempDir(), nil)
	p := New(cfg, sm, nil)

	_, _, err := p.Process(context.Background(), writeInput(t, "clip.mp3"))
	require.ErrorIs(t, err, ErrTool)
	require.Empty(t, sm.TrackedFiles())
}

func TestProbeDuration(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffprobe", `echo 5.004000`)

	p := New(testConfig(binDir), scratch.NewManager(t.TempDir(), nil), nil)

	duration, err := p.ProbeDuration(context.Background(), "whatever.wav")
	require.NoError(t, err)
	require.InDelta(t, 5.004, duration, 0.0001)
}

func TestProbeDurationTimeout(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffprobe", `sleep 10`)

	cfg := testConfig(binDir)
	cfg.ProbeTimeout = 100 * time.Millisecond

	p := New(cfg, scratch.NewManager(t.TempDir(), nil), nil)

	_, err := p.ProbeDuration(context.Background(), "whatever.wav")
	require.ErrorIs(t, err, ErrProbeTimeout)
}

func TestProbeDurationBadOutput(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	stubTool(t, binDir, "ffprobe", `echo "N/A"`)

	p := New(testConfig(binDir), scratch.NewManager(t.TempDir(), nil), nil)

	_, err := p.ProbeDuration(context.Background(), "whatever.wav")
	require.ErrorIs(t, err, ErrTool)
}
