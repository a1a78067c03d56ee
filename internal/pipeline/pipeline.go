// Package pipeline drives the external-tool transformation chain applied to
// staged audio before inference: format/rate conversion, loudness
// normalization, tempo adjustment, and silence padding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scribeaudio/scribed/internal/scratch"
)

var (
	ErrTool         = errors.New("external tool failed")
	ErrProbeTimeout = errors.New("duration probe timed out")
)

// Config carries the tunable parameters of the chain. Zero-valued tool names
// and timeouts fall back to defaults.
type Config struct {
	SampleRate      int
	NormLevel       string
	CompandParams   string
	TempoFactor     float64
	PadLeadSeconds  float64
	PadTrailSeconds float64

	// StageTimeout bounds every stage's external process. The original
	// design left stages unbounded; a hung tool would wedge the request
	// worker forever, so every invocation gets a deadline here.
	StageTimeout time.Duration
	ProbeTimeout time.Duration

	// Tool names, overridable for tests.
	FFmpeg  string
	FFprobe string
	Sox     string
	Soxi    string
}

func (c Config) withDefaults() Config {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	if c.FFprobe == "" {
		c.FFprobe = "ffprobe"
	}
	if c.Sox == "" {
		c.Sox = "sox"
	}
	if c.Soxi == "" {
		c.Soxi = "soxi"
	}
	return c
}

// StageResult is one stage's output path plus whether a new scratch artifact
// was produced. Passthrough stages return the input path with Produced
// false, so nothing extra is registered for cleanup.
type StageResult struct {
	Path     string
	Produced bool
}

type Pipeline struct {
	cfg     Config
	scratch *scratch.Manager
	logger  *zap.Logger
}

func New(cfg Config, sm *scratch.Manager, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg.withDefaults(), scratch: sm, logger: logger}
}

// Process runs the full chain on inputPath and returns the final path plus
// every scratch artifact produced along the way. The caller owns releasing
// the artifacts after use. If any stage fails, artifacts produced so far are
// released before the error propagates; partial pipeline state never leaks.
func (p *Pipeline) Process(ctx context.Context, inputPath string) (string, []string, error) {
	var artifacts []string

	stages := []func(context.Context, string) (StageResult, error){
		p.convert,
		p.normalize,
		p.tempo,
		p.pad,
	}

	current := inputPath
	for _, stage := range stages {
		result, err := stage(ctx, current)
		if err != nil {
			p.scratch.Release(artifacts...)
			return "", nil, err
		}
		if result.Produced {
			artifacts = append(artifacts, result.Path)
		}
		current = result.Path
	}

	return current, artifacts, nil
}

// convert re-encodes to mono WAV at the configured sample rate. Input that
// is already WAV at the target rate passes through untouched.
func (p *Pipeline) convert(ctx context.Context, in string) (StageResult, error) {
	if strings.EqualFold(filepath.Ext(in), ".wav") {
		if rate, err := p.probeSampleRate(ctx, in); err != nil {
			p.logger.Warn("could not probe wav sample rate, converting anyway",
				zap.String("path", in), zap.Error(err))
		} else if rate == p.cfg.SampleRate {
			p.logger.Debug("input already at target rate, skipping conversion", zap.String("path", in))
			return StageResult{Path: in}, nil
		}
	}

	out, err := p.scratch.Create(".wav")
	if err != nil {
		return StageResult{}, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-ar", strconv.Itoa(p.cfg.SampleRate),
		"-ac", "1",
		out,
	}
	if err := p.runStage(ctx, p.cfg.FFmpeg, args); err != nil {
		p.scratch.Release(out)
		return StageResult{}, err
	}

	return StageResult{Path: out, Produced: true}, nil
}

// normalize applies peak normalization and the compand dynamics curve.
func (p *Pipeline) normalize(ctx context.Context, in string) (StageResult, error) {
	out, err := p.scratch.Create("_normalized.wav")
	if err != nil {
		return StageResult{}, err
	}

	args := append([]string{in, out, "norm", p.cfg.NormLevel, "compand"},
		strings.Fields(p.cfg.CompandParams)...)
	if err := p.runStage(ctx, p.cfg.Sox, args); err != nil {
		p.scratch.Release(out)
		return StageResult{}, err
	}

	return StageResult{Path: out, Produced: true}, nil
}

// tempo resamples playback speed. A factor of exactly 1.0 is a no-op.
func (p *Pipeline) tempo(ctx context.Context, in string) (StageResult, error) {
	if p.cfg.TempoFactor == 1.0 {
		p.logger.Debug("tempo factor is 1.0, skipping adjustment", zap.String("path", in))
		return StageResult{Path: in}, nil
	}

	out, err := p.scratch.Create("_tempo.wav")
	if err != nil {
		return StageResult{}, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-filter:a", "atempo=" + formatFloat(p.cfg.TempoFactor),
		out,
	}
	if err := p.runStage(ctx, p.cfg.FFmpeg, args); err != nil {
		p.scratch.Release(out)
		return StageResult{}, err
	}

	return StageResult{Path: out, Produced: true}, nil
}

// pad prepends and appends silence to give the decoder warm-up room.
func (p *Pipeline) pad(ctx context.Context, in string) (StageResult, error) {
	out, err := p.scratch.Create("_padded.wav")
	if err != nil {
		return StageResult{}, err
	}

	args := []string{in, out, "pad", formatFloat(p.cfg.PadLeadSeconds), formatFloat(p.cfg.PadTrailSeconds)}
	if err := p.runStage(ctx, p.cfg.Sox, args); err != nil {
		p.scratch.Release(out)
		return StageResult{}, err
	}

	return StageResult{Path: out, Produced: true}, nil
}

// ProbeDuration reports the audio duration in seconds via ffprobe, bounded
// by a hard timeout.
func (p *Pipeline) ProbeDuration(ctx context.Context, path string) (float64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	out, err := runTool(probeCtx, p.cfg.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s", ErrProbeTimeout, path)
		}
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable ffprobe duration %q", ErrTool, strings.TrimSpace(out))
	}

	return duration, nil
}

func (p *Pipeline) probeSampleRate(ctx context.Context, path string) (int, error) {
	out, err := runTool(ctx, p.cfg.Soxi, "-r", path)
	if err != nil {
		return 0, err
	}

	rate, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable soxi rate %q", ErrTool, strings.TrimSpace(out))
	}

	return rate, nil
}

func (p *Pipeline) runStage(ctx context.Context, tool string, args []string) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	p.logger.Debug("running pipeline stage", zap.String("tool", tool), zap.Strings("args", args))
	start := time.Now()
	_, err := runTool(stageCtx, tool, args...)
	if err != nil {
		p.logger.Error("pipeline stage failed",
			zap.String("tool", tool),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}

	p.logger.Debug("pipeline stage finished", zap.String("tool", tool), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
