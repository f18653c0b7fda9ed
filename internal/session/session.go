package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxwrite/voxwrite/internal/asr"
	"github.com/voxwrite/voxwrite/internal/audio"
	"github.com/voxwrite/voxwrite/internal/bus"
	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/correct"
	"github.com/voxwrite/voxwrite/internal/display"
	"github.com/voxwrite/voxwrite/internal/models"
	"github.com/voxwrite/voxwrite/internal/protocol"
	"github.com/voxwrite/voxwrite/internal/transcript"
	"github.com/voxwrite/voxwrite/internal/transcriptlog"
)

// Session owns every long-lived piece of one dictation run: the audio
// queue, the canonical transcript, the correction pool and the display
// synchronizer. Nothing here is package-level state; lifetime and
// ownership stay auditable.
type Session struct {
	cfg    config.Config
	logger *slog.Logger

	queue  *audio.Queue
	store  *transcript.Store
	loader *models.Loader
	sched  *correct.Scheduler
	sync   *display.Synchronizer
	source audio.Source
	boot   *audio.BootstrapRecorder

	bus  *bus.Client
	tlog *transcriptlog.Store

	chunksProcessed metric.Int64Counter
	sentencesFinal  metric.Int64Counter
	correctionsDone metric.Int64Counter
}

// Options lets callers swap collaborators; zero fields get config-driven
// defaults.
type Options struct {
	Source   audio.Source
	Injector display.Injector
	Loader   *models.Loader
	Bus      *bus.Client
	Log      *transcriptlog.Store
}

func New(parent context.Context, cfg config.Config, opts Options, logger *slog.Logger) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "session")),
		queue:  audio.NewQueue(cfg.Audio.QueueDepth),
		store:  transcript.NewStore(),
		source: opts.Source,
		loader: opts.Loader,
		bus:    opts.Bus,
		tlog:   opts.Log,
	}

	if s.loader == nil {
		s.loader = models.NewLoader(cfg, logger)
	}

	injector := opts.Injector
	if injector == nil {
		var err error
		injector, err = buildInjector(cfg.Injector, logger)
		if err != nil {
			return nil, err
		}
	}
	s.sync = display.NewSynchronizer(cfg.Display, cfg.Injector, injector, logger)

	if s.source == nil && cfg.Audio.CaptureCommand != "" {
		src, err := audio.NewExecSource(cfg.Audio, logger)
		if err != nil {
			return nil, err
		}
		s.source = src
	}

	if cfg.Bootstrap.Enabled {
		s.boot = audio.NewBootstrapRecorder(cfg.Bootstrap, logger)
	}

	if cfg.Corrector.Enabled {
		s.sched = correct.NewScheduler(parent, cfg.Corrector, s.loader.AwaitCorrector, s.store, s.correctionApplied, logger)
	}

	meter := otel.Meter("github.com/voxwrite/voxwrite/internal/session")
	s.chunksProcessed, _ = meter.Int64Counter("voxwrite.chunks.processed")
	s.sentencesFinal, _ = meter.Int64Counter("voxwrite.sentences.finalized")
	s.correctionsDone, _ = meter.Int64Counter("voxwrite.corrections.applied")
	_, _ = meter.Int64ObservableCounter("voxwrite.chunks.dropped",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.queue.Dropped())
			return nil
		}))

	return s, nil
}

func buildInjector(cfg config.InjectorConfig, logger *slog.Logger) (display.Injector, error) {
	switch cfg.Mode {
	case "exec":
		return display.NewExecInjector(cfg)
	case "mock":
		return display.NewLogInjector(logger), nil
	default:
		return nil, fmt.Errorf("unknown injector mode %q", cfg.Mode)
	}
}

// Run drives the whole pipeline until ctx is cancelled, then flushes the
// final transcript state so nothing captured is silently lost, even
// mid-utterance.
func (s *Session) Run(ctx context.Context) error {
	s.loader.Load()

	if s.source != nil {
		if err := s.source.Start(ctx, s.queue); err != nil {
			return fmt.Errorf("start audio capture: %w", err)
		}
		defer s.source.Stop()
	}

	bootStarted := false
	if s.boot != nil {
		if err := s.boot.Start(); err != nil {
			s.logger.Warn("bootstrap recorder unavailable, capturing live only",
				slog.String("error", err.Error()))
		} else {
			bootStarted = true
		}
	}

	// The session row must exist before the first AppendUtterance; bootstrap
	// replay can finalize sentences before the live loop starts.
	if s.tlog != nil {
		if err := s.tlog.StartSession(ctx, s.cfg.SessionName); err != nil {
			s.logger.Warn("failed to record session start", slog.String("error", err.Error()))
		}
	}

	engine, err := s.loader.AwaitRecognizer(ctx)
	if err != nil {
		if bootStarted {
			s.boot.Stop()
		}
		return fmt.Errorf("recognizer unavailable: %w", err)
	}
	stream := asr.NewStream(engine)

	// Replay only audio this session actually recorded. With no recorder,
	// whatever file sits at the bootstrap path belongs to an earlier run.
	if bootStarted {
		s.runBootstrap(stream)
	}

	if s.sched != nil {
		s.sched.Start()
		defer s.sched.Close()
	}

	s.logger.Info("dictation session live")
	for {
		chunk, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}
		s.handleChunk(ctx, stream, chunk.PCM)
	}

	s.flush()
	return nil
}

// runBootstrap replays audio recorded while the models were loading, then
// clears the live queue: whatever accumulated during replay overlaps the
// window already fed through the recognizer.
func (s *Session) runBootstrap(stream *asr.Stream) {
	s.boot.Stop()

	pcm, err := audio.ReadWAV(s.cfg.Bootstrap.Path,
		s.cfg.Audio.SampleRate, s.cfg.Audio.Channels, s.cfg.Audio.BitDepth)
	if err != nil {
		s.logger.Warn("skipping bootstrap, initial words may be lost",
			slog.String("error", err.Error()))
		return
	}

	chunkBytes := s.cfg.Audio.ChunkSamples * 2 * s.cfg.Audio.Channels
	fed := 0
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		s.handleChunk(context.Background(), stream, pcm[off:end])
		fed++
	}

	if err := stream.Reset(); err != nil {
		s.logger.Warn("recognizer reset after bootstrap failed", slog.String("error", err.Error()))
	}
	drained := s.queue.Drain()
	s.logger.Info("bootstrap replay complete",
		slog.Int("chunks_fed", fed),
		slog.Int("live_chunks_discarded", drained))
}

func (s *Session) handleChunk(ctx context.Context, stream *asr.Stream, pcm []byte) {
	s.chunksProcessed.Add(ctx, 1)

	ev, err := stream.Feed(pcm)
	if err != nil {
		// one bad chunk must never end a live session
		s.logger.Warn("recognizer rejected chunk", slog.String("error", err.Error()))
		return
	}
	if ev == nil {
		return
	}

	switch ev.Kind {
	case asr.KindPartial:
		s.store.SetPartial(ev.Text)
		s.sync.Update(s.store.Compose())
		s.publish(protocol.SubjectPartial, protocol.PartialEvent{
			Session:   s.cfg.SessionName,
			Text:      ev.Text,
			Timestamp: time.Now().UTC(),
		})
	case asr.KindFinal:
		s.finalize(ctx, ev.Text)
	}
}

func (s *Session) finalize(ctx context.Context, raw string) {
	sent, desired := s.store.Finalize(raw)
	if sent.Index < 0 {
		// nothing survived normalization; the utterance ended, so only
		// reconcile away any partial it left on the display
		s.sync.Update(desired)
		return
	}
	s.sentencesFinal.Add(ctx, 1)

	s.sync.NoteSentence()
	s.sync.Update(desired)

	if s.sched != nil {
		s.sched.Submit(correct.Job{Index: sent.Index, Text: sent.Text})
	}

	s.publish(protocol.SubjectSentenceFinal, protocol.SentenceEvent{
		Session:   s.cfg.SessionName,
		Index:     sent.Index,
		Text:      sent.Text,
		Timestamp: time.Now().UTC(),
	})
	s.publish(protocol.SubjectDisplay, protocol.DisplayEvent{
		Session:   s.cfg.SessionName,
		Text:      desired,
		Timestamp: time.Now().UTC(),
	})

	if s.tlog != nil {
		if err := s.tlog.AppendUtterance(ctx, s.cfg.SessionName, sent.Index, sent.Text); err != nil {
			s.logger.Warn("failed to record utterance", slog.String("error", err.Error()))
		}
	}
}

// correctionApplied runs on a correction worker whenever a job lands.
func (s *Session) correctionApplied(a correct.Applied) {
	s.correctionsDone.Add(context.Background(), 1)
	s.sync.Refresh(a.Desired)

	s.publish(protocol.SubjectSentenceCorrected, protocol.SentenceEvent{
		Session:   s.cfg.SessionName,
		Index:     a.Index,
		Text:      a.Text,
		Corrected: true,
		Timestamp: time.Now().UTC(),
	})
	s.publish(protocol.SubjectDisplay, protocol.DisplayEvent{
		Session:   s.cfg.SessionName,
		Text:      a.Desired,
		Timestamp: time.Now().UTC(),
	})

	if s.tlog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tlog.MarkCorrected(ctx, s.cfg.SessionName, a.Index, a.Text); err != nil {
			s.logger.Warn("failed to record correction", slog.String("error", err.Error()))
		}
	}
}

// flush pushes whatever the transcript holds, pending partial included,
// as one last reconciliation before exit.
func (s *Session) flush() {
	desired := s.store.Compose()
	s.sync.Update(desired)
	s.logger.Info("session flushed",
		slog.Int("sentences", s.store.Len()),
		slog.Int64("chunks_dropped", s.queue.Dropped()))
}

// Injected exposes the synchronizer's believed sink state, for health
// endpoints and tests.
func (s *Session) Injected() string {
	return s.sync.Injected()
}

func (s *Session) publish(subject string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(subject, payload)
}
