package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/svcforge/internal/config"
	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/telemetry"
)

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *config.Config
	recorder *telemetry.Recorder
	// persist is false when the config document on disk could not be read;
	// Close must then never write the fallback back over the user's file.
	persist bool
}

// New constructs the application: an isolated logger, the user
// configuration (falling back to an in-memory default document when
// unreadable), and the telemetry recorder.
func New(outW io.Writer, logLevel, logFormat string) *App {
	logger := newLogger(logLevel, logFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	persist := true
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Warn("Could not load config file; using defaults for this run. Fix or remove the file to persist settings again.", "error", err)
		cfg = config.Default()
		persist = false
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		recorder: telemetry.NewRecorder(ctx, cfg.Telemetry),
		persist:  persist,
	}
}

// Context returns the app's base context carrying its logger.
func (a *App) Context() context.Context {
	return ctxlog.WithLogger(context.Background(), a.logger)
}

// Config exposes the loaded configuration document.
func (a *App) Config() *config.Config { return a.config }

// Close flushes per-run state: the telemetry session log and the (possibly
// edited) configuration document. A document that failed to load is never
// written back; saving would replace whatever the user has on disk with the
// fallback defaults.
func (a *App) Close() error {
	a.recorder.Close()
	if !a.persist {
		return nil
	}
	return a.config.Save()
}

// Emit records a telemetry event for this run.
func (a *App) Emit(name string, attrs map[string]any) {
	a.recorder.Emit(name, attrs)
}
