package correct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCfg(workers int) config.CorrectorConfig {
	return config.CorrectorConfig{
		Enabled:          true,
		Workers:          workers,
		QueueDepth:       64,
		RequestTimeoutMS: 5000,
	}
}

func readyCorrector(c Corrector) AwaitFunc {
	return func(context.Context) (Corrector, error) { return c, nil }
}

// jitterCorrector sleeps a random few milliseconds so completions land in
// scrambled order.
type jitterCorrector struct{}

func (jitterCorrector) Correct(_ context.Context, sentence string) (string, error) {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	return strings.Replace(sentence, "Raw", "Fixed", 1), nil
}

func TestSchedulerConvergesInAnyOrder(t *testing.T) {
	const n = 12
	store := transcript.NewStore()
	var mu sync.Mutex
	var lastDesired string

	sched := NewScheduler(context.Background(), testCfg(3), readyCorrector(jitterCorrector{}), store,
		func(a Applied) {
			mu.Lock()
			lastDesired = a.Desired
			mu.Unlock()
		}, discardLogger())
	sched.Start()
	defer sched.Close()

	for i := 0; i < n; i++ {
		sent, _ := store.Finalize(fmt.Sprintf("raw sentence %d", i))
		sched.Submit(Job{Index: sent.Index, Text: sent.Text})
	}

	deadline := time.After(5 * time.Second)
	for sched.Applied() < n {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d corrections applied", sched.Applied(), n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	for i, sent := range store.Snapshot() {
		want := transcript.NormalizeSentence(fmt.Sprintf("fixed sentence %d", i))
		if sent.Text != want {
			t.Fatalf("sentence %d = %q, want %q", i, sent.Text, want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if lastDesired == "" || !strings.Contains(lastDesired, "Fixed sentence") {
		t.Fatalf("expected replace pushes with corrected text, got %q", lastDesired)
	}
}

func TestSchedulerRecomputesFromLiveState(t *testing.T) {
	store := transcript.NewStore()
	var mu sync.Mutex
	var desired []string

	release := make(chan struct{})
	blocking := &MockCorrector{Rewrite: func(s string) string {
		<-release
		return strings.Replace(s, "first", "1st", 1)
	}}

	sched := NewScheduler(context.Background(), testCfg(1), readyCorrector(blocking), store,
		func(a Applied) {
			mu.Lock()
			desired = append(desired, a.Desired)
			mu.Unlock()
		}, discardLogger())
	sched.Start()
	defer sched.Close()

	sent, _ := store.Finalize("the first one")
	sched.Submit(Job{Index: sent.Index, Text: sent.Text})

	// a second sentence lands while the correction is still in flight
	store.Finalize("the second one")
	close(release)

	deadline := time.After(5 * time.Second)
	for sched.Applied() < 1 {
		select {
		case <-deadline:
			t.Fatal("correction never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	last := desired[len(desired)-1]
	if !strings.Contains(last, "1st") || !strings.Contains(last, "second") {
		t.Fatalf("replace must include state newer than the job snapshot, got %q", last)
	}
}

func TestSchedulerDegradedPassThrough(t *testing.T) {
	store := transcript.NewStore()
	unavailable := func(context.Context) (Corrector, error) {
		return nil, errors.New("model load timed out")
	}

	var pushes int
	sched := NewScheduler(context.Background(), testCfg(2), unavailable, store,
		func(Applied) { pushes++ }, discardLogger())
	sched.Start()
	defer sched.Close()

	sent, _ := store.Finalize("left as dictated")
	sched.Submit(Job{Index: sent.Index, Text: sent.Text})

	time.Sleep(50 * time.Millisecond)
	if sched.Applied() != 0 {
		t.Fatal("degraded scheduler must not apply corrections")
	}
	if got := store.Snapshot()[0].Text; got != "Left as dictated. " {
		t.Fatalf("sentence must pass through unchanged, got %q", got)
	}
	if pushes != 0 {
		t.Fatalf("degraded scheduler must not push replaces, got %d", pushes)
	}
}

func TestSchedulerCorrectionErrorLeavesSentence(t *testing.T) {
	store := transcript.NewStore()
	failingAwait := readyCorrector(correctorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model crashed")
	}))

	sched := NewScheduler(context.Background(), testCfg(1), failingAwait, store,
		func(Applied) { t.Error("no replace expected on failure") }, discardLogger())
	sched.Start()
	defer sched.Close()

	sent, _ := store.Finalize("keep me")
	sched.Submit(Job{Index: sent.Index, Text: sent.Text})

	time.Sleep(50 * time.Millisecond)
	if got := store.Snapshot()[0].Text; got != "Keep me. " {
		t.Fatalf("sentence must survive a failed correction, got %q", got)
	}
}

type correctorFunc func(context.Context, string) (string, error)

func (f correctorFunc) Correct(ctx context.Context, s string) (string, error) {
	return f(ctx, s)
}
