package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/voxwrite/voxwrite/internal/asr"
	"github.com/voxwrite/voxwrite/internal/audio"
	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/correct"
	"github.com/voxwrite/voxwrite/internal/display"
	"github.com/voxwrite/voxwrite/internal/models"
	"github.com/voxwrite/voxwrite/internal/transcriptlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubSource hands the session's queue back to the test so chunks can be
// injected at chosen moments. Optionally it preloads stale chunks at
// Start, simulating capture that ran while models were loading.
type stubSource struct {
	mu      sync.Mutex
	queue   *audio.Queue
	preload int
}

func (s *stubSource) Start(_ context.Context, q *audio.Queue) error {
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()
	for i := 0; i < s.preload; i++ {
		q.Push(audio.Chunk{Seq: int64(i), PCM: make([]byte, 8)})
	}
	return nil
}

func (s *stubSource) Stop() {}

func (s *stubSource) push(pcm []byte) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	q.Push(audio.Chunk{PCM: pcm})
}

func (s *stubSource) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return -1
	}
	return s.queue.Len()
}

func writeSessionWAV(t *testing.T, path string, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:   samples,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestSessionBootstrapThenLive drives a full run: a recorded bootstrap
// file is replayed first, the stale live queue is discarded, and fresh
// audio continues the same transcript.
func TestSessionBootstrapThenLive(t *testing.T) {
	wavPath := filepath.Join(t.TempDir(), "bootstrap.wav")
	writeSessionWAV(t, wavPath, []int{0, 1, 2, 3, 4, 5, 6, 7}) // two 4-sample chunks

	cfg := config.Default()
	cfg.Audio.ChunkSamples = 4
	cfg.Bootstrap.Enabled = true
	cfg.Bootstrap.Command = "true"
	cfg.Bootstrap.Path = wavPath
	cfg.Corrector.Enabled = false
	cfg.Display.LeadFirstSpace = false

	engine := asr.NewMockEngine([]asr.ScriptStep{
		{Partial: "hello the"},
		{Final: "hello there"},
		{Partial: "how"},
	})
	loader := models.NewLoaderWith(cfg, testLogger(),
		func() (asr.Engine, error) { return engine, nil }, nil)

	src := &stubSource{preload: 3}
	rec := display.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := New(ctx, cfg, Options{Source: src, Injector: rec, Loader: loader}, testLogger())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	// Bootstrap consumed both file chunks, reset the engine, and drained
	// the stale preloaded chunks before the live loop started.
	waitFor(t, "bootstrap replay", func() bool {
		return engine.Resets() == 1 && src.queueLen() == 0
	})
	if got := engine.Consumed(); got != 2 {
		t.Fatalf("engine consumed %d chunks during bootstrap, want 2", got)
	}

	src.push(make([]byte, 8))
	waitFor(t, "live partial", func() bool { return engine.Consumed() == 3 })
	waitFor(t, "partial displayed", func() bool { return len(rec.Actions()) == 3 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	// The bootstrap partial streams out first, then the finalize extends
	// it, then the live partial continues the transcript.
	want := []display.Action{
		{Kind: "append", Text: "Hello the"},
		{Kind: "append", Text: "re."},
		{Kind: "append", Text: " How"},
	}
	if got := rec.Actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	if got := sess.Injected(); got != "Hello there. How" {
		t.Fatalf("injected = %q, want %q", got, "Hello there. How")
	}
}

// TestSessionSkipsBootstrapWhenRecorderMissing proves that a recorder that
// never started means no replay at all: a WAV left at the bootstrap path by
// an earlier run must not leak into this session's transcript.
func TestSessionSkipsBootstrapWhenRecorderMissing(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "bootstrap.wav")
	writeSessionWAV(t, wavPath, []int{0, 1, 2, 3, 4, 5, 6, 7}) // stale file from an earlier run

	cfg := config.Default()
	cfg.Audio.ChunkSamples = 4
	cfg.Bootstrap.Enabled = true
	cfg.Bootstrap.Command = filepath.Join(dir, "recorder-not-installed")
	cfg.Bootstrap.Path = wavPath
	cfg.Corrector.Enabled = false
	cfg.Display.LeadFirstSpace = false

	engine := asr.NewMockEngine([]asr.ScriptStep{
		{Final: "live words"},
	})
	loader := models.NewLoaderWith(cfg, testLogger(),
		func() (asr.Engine, error) { return engine, nil }, nil)

	src := &stubSource{}
	rec := display.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := New(ctx, cfg, Options{Source: src, Injector: rec, Loader: loader}, testLogger())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitFor(t, "source started", func() bool { return src.queueLen() >= 0 })
	src.push(make([]byte, 8))
	waitFor(t, "live final", func() bool { return len(rec.Actions()) == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := engine.Consumed(); got != 1 {
		t.Fatalf("engine consumed %d chunks, want 1 live chunk only", got)
	}
	if got := engine.Resets(); got != 0 {
		t.Fatalf("engine reset %d times, want 0 without a replay", got)
	}
	want := []display.Action{{Kind: "append", Text: "Live words."}}
	if got := rec.Actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

// TestSessionLogsBootstrapUtterances confirms sentences finalized during
// bootstrap replay reach the transcript log: the session row has to exist
// before the first utterance row references it.
func TestSessionLogsBootstrapUtterances(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "bootstrap.wav")
	writeSessionWAV(t, wavPath, []int{0, 1, 2, 3, 4, 5, 6, 7})

	cfg := config.Default()
	cfg.Audio.ChunkSamples = 4
	cfg.Bootstrap.Enabled = true
	cfg.Bootstrap.Command = "true"
	cfg.Bootstrap.Path = wavPath
	cfg.Corrector.Enabled = false
	cfg.Display.LeadFirstSpace = false
	cfg.TranscriptLog.Path = filepath.Join(dir, "transcripts.db")
	cfg.TranscriptLog.RetentionMode = "session"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlog, err := transcriptlog.Open(ctx, cfg.TranscriptLog, testLogger())
	if err != nil {
		t.Fatalf("open transcript log: %v", err)
	}
	t.Cleanup(func() { _ = tlog.Close() })

	engine := asr.NewMockEngine([]asr.ScriptStep{
		{Final: "hello there"},
	})
	loader := models.NewLoaderWith(cfg, testLogger(),
		func() (asr.Engine, error) { return engine, nil }, nil)

	src := &stubSource{}
	rec := display.NewRecorder()

	sess, err := New(ctx, cfg, Options{Source: src, Injector: rec, Loader: loader, Log: tlog}, testLogger())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitFor(t, "bootstrap final displayed", func() bool { return len(rec.Actions()) == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	rows, err := tlog.ListUtterances(context.Background(), cfg.SessionName, 10)
	if err != nil {
		t.Fatalf("list utterances: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 logged utterance, got %d", len(rows))
	}
	if rows[0].Index != 0 || rows[0].RawText != "Hello there. " {
		t.Fatalf("unexpected logged utterance: %+v", rows[0])
	}
}

// TestSessionCorrectionRefreshesDisplay checks that an async correction
// replaces the injected text once it lands.
func TestSessionCorrectionRefreshesDisplay(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.ChunkSamples = 4
	cfg.Bootstrap.Enabled = false
	cfg.Corrector.Enabled = true
	cfg.Corrector.Workers = 1
	cfg.Display.LeadFirstSpace = false

	engine := asr.NewMockEngine([]asr.ScriptStep{
		{Final: "teh cat sat"},
	})
	corrector := &correct.MockCorrector{Rewrite: func(s string) string {
		return "the cat sat"
	}}
	loader := models.NewLoaderWith(cfg, testLogger(),
		func() (asr.Engine, error) { return engine, nil },
		func() (correct.Corrector, error) { return corrector, nil })

	src := &stubSource{}
	rec := display.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess, err := New(ctx, cfg, Options{Source: src, Injector: rec, Loader: loader}, testLogger())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitFor(t, "source started", func() bool { return src.queueLen() >= 0 })
	src.push(make([]byte, 8))

	waitFor(t, "correction applied", func() bool { return len(rec.Actions()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []display.Action{
		{Kind: "append", Text: "Teh cat sat."},
		{Kind: "replace", Text: "The cat sat."},
	}
	if got := rec.Actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

// TestSessionFlushIncludesPendingPartial cancels mid-utterance and expects
// the pending hypothesis to be delivered on the way out.
func TestSessionFlushIncludesPendingPartial(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.ChunkSamples = 4
	cfg.Bootstrap.Enabled = false
	cfg.Corrector.Enabled = false
	cfg.Display.LeadFirstSpace = false

	engine := asr.NewMockEngine([]asr.ScriptStep{
		{Partial: "wait for it"},
	})
	loader := models.NewLoaderWith(cfg, testLogger(),
		func() (asr.Engine, error) { return engine, nil }, nil)

	src := &stubSource{}
	rec := display.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := New(ctx, cfg, Options{Source: src, Injector: rec, Loader: loader}, testLogger())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitFor(t, "source started", func() bool { return src.queueLen() >= 0 })
	src.push(make([]byte, 8))
	waitFor(t, "partial displayed", func() bool { return len(rec.Actions()) == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := sess.Injected(); got != "Wait for it" {
		t.Fatalf("injected = %q, want %q", got, "Wait for it")
	}
}
