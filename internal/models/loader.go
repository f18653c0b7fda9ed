package models

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxwrite/voxwrite/internal/asr"
	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/correct"
)

// Loader initializes the recognizer and corrector off the critical path so
// audio capture can start immediately; dropped audio is unrecoverable,
// slow model loads are merely annoying. Each model has its own readiness
// signal. The loader goroutine exits once both have fired.
type Loader struct {
	cfg    config.Config
	logger *slog.Logger

	engineFactory    func() (asr.Engine, error)
	correctorFactory func() (correct.Corrector, error)

	engineReady chan struct{}
	engine      asr.Engine
	engineErr   error

	correctorReady chan struct{}
	corrector      correct.Corrector
	correctorErr   error
}

func NewLoader(cfg config.Config, logger *slog.Logger) *Loader {
	l := &Loader{
		cfg:            cfg,
		logger:         logger.With(slog.String("component", "models")),
		engineReady:    make(chan struct{}),
		correctorReady: make(chan struct{}),
	}
	l.engineFactory = func() (asr.Engine, error) { return buildEngine(cfg.Recognizer) }
	l.correctorFactory = func() (correct.Corrector, error) { return buildCorrector(cfg.Corrector) }
	return l
}

// NewLoaderWith wires explicit factories, used by tests.
func NewLoaderWith(cfg config.Config, logger *slog.Logger, engine func() (asr.Engine, error), corrector func() (correct.Corrector, error)) *Loader {
	l := NewLoader(cfg, logger)
	if engine != nil {
		l.engineFactory = engine
	}
	if corrector != nil {
		l.correctorFactory = corrector
	}
	return l
}

func buildEngine(cfg config.RecognizerConfig) (asr.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return asr.NewExecEngine(cfg)
	case "mock":
		return asr.NewMockEngine(nil), nil
	default:
		return nil, fmt.Errorf("unknown recognizer mode %q", cfg.Mode)
	}
}

func buildCorrector(cfg config.CorrectorConfig) (correct.Corrector, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("corrector disabled")
	}
	switch cfg.Mode {
	case "ollama":
		return correct.NewOllamaCorrector(cfg), nil
	case "exec":
		return correct.NewExecCorrector(cfg.Command)
	case "mock":
		return correct.NewMockCorrector(), nil
	default:
		return nil, fmt.Errorf("unknown corrector mode %q", cfg.Mode)
	}
}

// Load starts the loader goroutine and returns immediately.
func (l *Loader) Load() {
	go func() {
		start := time.Now()
		l.engine, l.engineErr = l.engineFactory()
		close(l.engineReady)
		if l.engineErr != nil {
			l.logger.Error("recognizer load failed", slog.String("error", l.engineErr.Error()))
		} else {
			l.logger.Info("recognizer ready", slog.Duration("took", time.Since(start)))
		}

		start = time.Now()
		l.corrector, l.correctorErr = l.correctorFactory()
		close(l.correctorReady)
		if l.correctorErr != nil {
			l.logger.Warn("corrector load failed", slog.String("error", l.correctorErr.Error()))
		} else {
			l.logger.Info("corrector ready", slog.Duration("took", time.Since(start)))
		}
	}()
}

// AwaitRecognizer blocks until the recognizer is ready, the readiness
// window expires, or ctx is cancelled. Failure here is fatal to the
// session; without a recognizer there is nothing to dictate.
func (l *Loader) AwaitRecognizer(ctx context.Context) (asr.Engine, error) {
	timeout := time.Duration(l.cfg.Recognizer.ReadyTimeoutMS) * time.Millisecond
	select {
	case <-l.engineReady:
		return l.engine, l.engineErr
	case <-time.After(timeout):
		return nil, fmt.Errorf("recognizer not ready after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitCorrector blocks until the corrector is ready or the readiness
// window expires. Errors degrade to pass-through; callers must treat them
// as non-fatal.
func (l *Loader) AwaitCorrector(ctx context.Context) (correct.Corrector, error) {
	timeout := time.Duration(l.cfg.Corrector.ReadyTimeoutMS) * time.Millisecond
	select {
	case <-l.correctorReady:
		return l.corrector, l.correctorErr
	case <-time.After(timeout):
		return nil, fmt.Errorf("corrector not ready after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
