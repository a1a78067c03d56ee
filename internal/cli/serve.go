package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scribeaudio/scribed/internal/api"
	"github.com/scribeaudio/scribed/internal/config"
	"github.com/scribeaudio/scribed/internal/download"
	"github.com/scribeaudio/scribed/internal/history"
	"github.com/scribeaudio/scribed/internal/pipeline"
	"github.com/scribeaudio/scribed/internal/scratch"
	"github.com/scribeaudio/scribed/internal/service"
	"github.com/scribeaudio/scribed/internal/task"
	"github.com/scribeaudio/scribed/internal/transcriber"
	"github.com/scribeaudio/scribed/internal/validate"
)

func newServeCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the transcription HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}
}

func (a *appState) runServe(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelPath, modelName, err := a.ensureModel(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := transcriber.NewCLIEngine(a.logger)
	if err != nil {
		return err
	}

	sm := scratch.NewManager("", a.logger)
	defer sm.ReleaseAll()

	pipe := pipeline.New(pipeline.Config{
		SampleRate:      cfg.Pipeline.SampleRate,
		NormLevel:       cfg.Pipeline.NormLevel,
		CompandParams:   cfg.Pipeline.CompandParams,
		TempoFactor:     cfg.Pipeline.TempoFactor,
		PadLeadSeconds:  cfg.Pipeline.PadLeadSeconds,
		PadTrailSeconds: cfg.Pipeline.PadTrailSeconds,
		StageTimeout:    cfg.Pipeline.StageTimeout,
	}, sm, a.logger)

	validator := validate.New(validate.Policy{
		MaxFileSizeMB:     cfg.Validation.MaxFileSizeMB,
		AllowedExtensions: cfg.Validation.AllowedExtensions,
		AllowedMIMETypes:  cfg.Validation.AllowedMIMETypes,
	}, a.logger)

	svc := service.New(service.Options{
		Engine:               engine,
		Pipeline:             pipe,
		Scratch:              sm,
		Validator:            validator,
		History:              history.NewLog(cfg.History.Dir, a.logger),
		Logger:               a.logger,
		ModelPath:            modelPath,
		ModelName:            modelName,
		DefaultLanguage:      cfg.Model.Language,
		DefaultTemperature:   cfg.Model.Temperature,
		DefaultTimestamps:    cfg.Model.Timestamps,
		SilenceGate:          cfg.Silence.Gate,
		SilenceThresholdDBFS: cfg.Silence.ThresholdDBFS,
	})

	tracker := task.NewTracker(ctx, a.logger)
	server := api.New(cfg, svc, validator, tracker, sm, a.logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		tracker.RunSweeper(gctx, cfg.Tasks.SweepInterval, cfg.Tasks.MaxAge)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ensureModel resolves the configured model and downloads it when missing.
func (a *appState) ensureModel(ctx context.Context, cfg *config.Config) (string, string, error) {
	resolved, err := transcriber.ResolveModel(cfg.Model.Name, cfg.Model.Dir)
	if err != nil {
		return "", "", err
	}

	name := resolved.Name
	if resolved.IsCustomPath {
		name = "custom"
	}

	if !resolved.NeedsDownload {
		return resolved.Path, name, nil
	}

	if !cfg.Model.AutoDownload {
		return "", "", fmt.Errorf("model %s is not present at %s and auto download is disabled", cfg.Model.Name, resolved.Path)
	}

	a.logger.Info("downloading model", zap.String("model", resolved.Name), zap.String("url", resolved.URL))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.logger,
	}); err != nil {
		return "", "", fmt.Errorf("download model %s: %w", resolved.Name, err)
	}

	return resolved.Path, name, nil
}
