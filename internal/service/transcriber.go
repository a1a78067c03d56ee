// Package service orchestrates a transcription request end to end: fetch,
// validate, stage, process, infer, record.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scribeaudio/scribed/internal/audio"
	"github.com/scribeaudio/scribed/internal/history"
	"github.com/scribeaudio/scribed/internal/pipeline"
	"github.com/scribeaudio/scribed/internal/scratch"
	"github.com/scribeaudio/scribed/internal/source"
	"github.com/scribeaudio/scribed/internal/transcriber"
	"github.com/scribeaudio/scribed/internal/validate"
)

// ErrBadInput marks failures caused by the caller's input rather than the
// server, so transports can map them to a 4xx status.
var ErrBadInput = errors.New("invalid transcription input")

// BlankAudioText is returned when the silence gate skips inference.
const BlankAudioText = "[BLANK_AUDIO]"

type Params struct {
	Language string
	Prompt   string

	// Temperature and WithTimestamps override the configured defaults for
	// this call only; nil means not supplied.
	Temperature    *float64
	WithTimestamps *bool
}

type Response struct {
	Text              string               `json:"text"`
	Segments          []transcriber.Segment `json:"segments,omitempty"`
	ProcessingTime    float64              `json:"processing_time"`
	ResponseSizeBytes int                  `json:"response_size_bytes"`
	DurationSeconds   float64              `json:"duration_seconds"`
	Model             string               `json:"model"`
}

type Options struct {
	Engine    transcriber.Engine
	Pipeline  *pipeline.Pipeline
	Scratch   *scratch.Manager
	Validator *validate.Validator
	History   *history.Log
	Logger    *zap.Logger

	ModelPath string
	ModelName string

	DefaultLanguage    string
	DefaultTemperature float64
	DefaultTimestamps  bool

	SilenceGate          bool
	SilenceThresholdDBFS float64
}

type Transcriber struct {
	opts Options
}

func New(opts Options) *Transcriber {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.History == nil {
		opts.History = history.NewLog("", opts.Logger)
	}
	return &Transcriber{opts: opts}
}

// Run executes a transcription for one source. The source's scratch
// resources, the staged copy, and all pipeline artifacts are reclaimed before
// Run returns, on success and on failure alike.
func (s *Transcriber) Run(ctx context.Context, src source.Source, params Params) (*Response, error) {
	f, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}
	defer f.Close()

	cleanup := func() {}
	if cleaner, ok := src.(source.Cleaner); ok {
		cleanup = cleaner.Cleanup
	}
	// Cleanup is idempotent; the deferred call covers paths that fail
	// before staging completes.
	defer cleanup()

	if s.opts.Validator != nil {
		if err := s.opts.Validator.Validate(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
		}
	}

	var resp *Response
	stageErr := s.opts.Scratch.WithFile(stagingSuffix(f.Name()), func(path string) error {
		if err := f.SaveTo(path); err != nil {
			return err
		}
		// The bytes are staged; the source's own scratch space is not
		// needed for the rest of the request.
		cleanup()

		var runErr error
		resp, runErr = s.RunStaged(ctx, path, f.Name(), params)
		return runErr
	})
	if stageErr != nil {
		return nil, stageErr
	}

	return resp, nil
}

// RunStaged transcribes audio that is already on disk. The caller owns the
// staged file; everything the pipeline produces beyond it is released here.
func (s *Transcriber) RunStaged(ctx context.Context, stagedPath, displayName string, params Params) (*Response, error) {
	start := time.Now()

	duration, err := s.opts.Pipeline.ProbeDuration(ctx, stagedPath)
	if err != nil {
		return nil, fmt.Errorf("determine audio duration of %s: %w", displayName, err)
	}

	if s.gateSilence(stagedPath, displayName) {
		return s.finish(&Response{Text: BlankAudioText, DurationSeconds: duration}, displayName, start)
	}

	finalPath, artifacts, err := s.opts.Pipeline.Process(ctx, stagedPath)
	if err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}
	defer s.opts.Scratch.Release(artifacts...)

	language := params.Language
	if language == "" {
		language = s.opts.DefaultLanguage
	}
	temperature := s.opts.DefaultTemperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	withTimestamps := s.opts.DefaultTimestamps
	if params.WithTimestamps != nil {
		withTimestamps = *params.WithTimestamps
	}

	result, err := s.opts.Engine.Transcribe(ctx, transcriber.Request{
		AudioPath:      finalPath,
		ModelPath:      s.opts.ModelPath,
		Language:       language,
		Temperature:    temperature,
		Prompt:         params.Prompt,
		WithTimestamps: withTimestamps,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	resp := &Response{
		Text:            result.Text,
		DurationSeconds: duration,
	}
	if withTimestamps {
		resp.Segments = result.Segments
	}

	return s.finish(resp, displayName, start)
}

// gateSilence reports whether the staged audio is quiet enough to skip
// inference. Only WAV input is measured; anything else goes through.
func (s *Transcriber) gateSilence(stagedPath, displayName string) bool {
	if !s.opts.SilenceGate {
		return false
	}
	if !strings.EqualFold(filepath.Ext(stagedPath), ".wav") {
		return false
	}

	metrics, err := audio.Measure(stagedPath)
	if err != nil {
		s.opts.Logger.Warn("could not measure audio loudness", zap.String("file", displayName), zap.Error(err))
		return false
	}

	if metrics.IsSilent(s.opts.SilenceThresholdDBFS) {
		s.opts.Logger.Info("audio below silence threshold, skipping inference",
			zap.String("file", displayName),
			zap.Float64("rms_dbfs", metrics.RMSdBFS),
			zap.Float64("peak_dbfs", metrics.PeakdBFS))
		return true
	}

	return false
}

func (s *Transcriber) finish(resp *Response, displayName string, start time.Time) (*Response, error) {
	resp.Model = s.opts.ModelName
	resp.ProcessingTime = time.Since(start).Seconds()

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	resp.ResponseSizeBytes = len(payload)

	s.opts.History.Append(history.Entry{
		FileName:        displayName,
		Text:            resp.Text,
		DurationSeconds: resp.DurationSeconds,
		ProcessingTime:  resp.ProcessingTime,
		Model:           resp.Model,
	})

	s.opts.Logger.Info("transcription finished",
		zap.String("file", displayName),
		zap.Float64("duration_seconds", resp.DurationSeconds),
		zap.Float64("processing_time", resp.ProcessingTime))

	return resp, nil
}

// stagingSuffix keeps the original extension so downstream format checks see
// the right name; unknown input falls back to .wav.
func stagingSuffix(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	return ".wav"
}
