package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CLIEngine shells out to whisper-cli. The binary is resolved from
// SCRIBED_WHISPER_PATH if set, otherwise from PATH.
type CLIEngine struct {
	Executable string
	Logger     *zap.Logger
}

func NewCLIEngine(logger *zap.Logger) (*CLIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv("SCRIBED_WHISPER_PATH")); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("SCRIBED_WHISPER_PATH is not executable: %w", err)
		}
		return &CLIEngine{Executable: override, Logger: logger}, nil
	}

	path, err := exec.LookPath("whisper-cli")
	if err != nil {
		return nil, fmt.Errorf("whisper-cli not found in PATH; install whisper.cpp or set SCRIBED_WHISPER_PATH: %w", err)
	}

	return &CLIEngine{Executable: path, Logger: logger}, nil
}

func (e *CLIEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return Result{}, errors.New("model path is required")
	}

	if err := ensureExecutable(e.Executable); err != nil {
		return Result{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outBase := filepath.Join(os.TempDir(), "scribed-"+uuid.NewString())

	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-of", outBase}
	if req.WithTimestamps {
		args = append(args, "-oj")
	} else {
		args = append(args, "-nt", "-otxt")
	}
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	if req.Temperature > 0 {
		args = append(args, "-tp", strconv.FormatFloat(req.Temperature, 'g', -1, 64))
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.Logger.Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Result{}, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or fix the library path", e.Executable, errText)
		}
		return Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	if req.WithTimestamps {
		return readJSONOutput(outBase + ".json")
	}
	return readTextOutput(outBase + ".txt")
}

func readTextOutput(path string) (Result, error) {
	defer os.Remove(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}
	return Result{Text: strings.TrimSpace(string(content))}, nil
}

func readJSONOutput(path string) (Result, error) {
	defer os.Remove(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	var out struct {
		Transcription []struct {
			Offsets struct {
				From int64 `json:"from"`
				To   int64 `json:"to"`
			} `json:"offsets"`
			Text string `json:"text"`
		} `json:"transcription"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return Result{}, fmt.Errorf("parse whisper json output: %w", err)
	}

	result := Result{Segments: make([]Segment, 0, len(out.Transcription))}
	var parts []string
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, Segment{
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  text,
		})
		parts = append(parts, text)
	}
	result.Text = strings.Join(parts, " ")

	return result, nil
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}
