package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxwrite/voxwrite/internal/bus"
	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/natsserver"
	"github.com/voxwrite/voxwrite/internal/session"
	"github.com/voxwrite/voxwrite/internal/transcriptlog"
)

// Runtime assembles the daemon: telemetry, the observability HTTP
// endpoint, the optional bus and transcript log, and the dictation
// session itself.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		if r.cfg.Bus.Embedded {
			embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
			if err != nil {
				r.logger.Warn("embedded bus unavailable, events disabled", slog.String("error", err.Error()))
			} else {
				defer embedded.Shutdown()
			}
		}
		if embedded != nil || !r.cfg.Bus.Embedded {
			busClient, err = bus.Connect(r.cfg.Bus, r.logger)
			if err != nil {
				r.logger.Warn("bus connection failed, events disabled", slog.String("error", err.Error()))
				busClient = nil
			} else {
				defer busClient.Close()
			}
		}
	}

	tlog, err := transcriptlog.Open(ctx, r.cfg.TranscriptLog, r.logger)
	if err != nil {
		return fmt.Errorf("open transcript log: %w", err)
	}
	defer tlog.Close()

	sess, err := session.New(ctx, r.cfg, session.Options{Bus: busClient, Log: tlog}, r.logger)
	if err != nil {
		return fmt.Errorf("assemble session: %w", err)
	}

	sessionDone := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sessionDone <- sess.Run(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-sessionDone:
		cancel()
	}

	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return runErr
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
