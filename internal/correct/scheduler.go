package correct

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxwrite/voxwrite/internal/config"
	"github.com/voxwrite/voxwrite/internal/transcript"
)

// AwaitFunc resolves the corrector once it has loaded. It blocks until the
// model is ready or the readiness window expires; an error means the
// scheduler runs degraded and sentences pass through uncorrected.
type AwaitFunc func(ctx context.Context) (Corrector, error)

// Applied describes one landed correction: the sentence it replaced and
// the full desired text recomputed from live state afterwards.
type Applied struct {
	Index   int
	Text    string
	Desired string
}

// Scheduler runs correction jobs on a small fixed worker pool. Completions
// are deliberately unordered: each one re-reads the live transcript and
// pushes a full replace, so whichever jobs have finished, the visible text
// reflects the latest known value of every sentence.
type Scheduler struct {
	await   AwaitFunc
	store   *transcript.Store
	onApply func(Applied)
	logger  *slog.Logger
	workers int
	timeout time.Duration

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	applied atomic.Int64
	dropped atomic.Int64
}

func NewScheduler(parent context.Context, cfg config.CorrectorConfig, await AwaitFunc, store *transcript.Store, onApply func(Applied), logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	return &Scheduler{
		await:   await,
		store:   store,
		onApply: onApply,
		logger:  logger.With(slog.String("component", "corrector")),
		workers: workers,
		timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		jobs:    make(chan Job, depth),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Submit enqueues a job without blocking the finalization path. A full
// queue drops the job; the sentence simply stays uncorrected.
func (s *Scheduler) Submit(job Job) {
	select {
	case s.jobs <- job:
	default:
		s.dropped.Add(1)
		s.logger.Warn("correction queue full, job dropped", slog.Int("index", job.Index))
	}
}

// Close stops the workers. In-flight jobs are abandoned; a correction
// completing after shutdown has nowhere to go anyway.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// Applied reports how many corrections have been spliced in.
func (s *Scheduler) Applied() int64 {
	return s.applied.Load()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	corrector, err := s.await(s.ctx)
	if err != nil {
		s.logger.Warn("corrector unavailable, passing sentences through", slog.String("error", err.Error()))
		corrector = nil
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			if corrector == nil {
				continue
			}
			s.run(corrector, job)
		}
	}
}

func (s *Scheduler) run(corrector Corrector, job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	corrected, err := corrector.Correct(ctx, job.Text)
	if err != nil {
		s.logger.Warn("correction failed",
			slog.Int("index", job.Index),
			slog.String("error", err.Error()))
		return
	}

	if !s.store.Apply(job.Index, corrected) {
		s.logger.Warn("correction result discarded", slog.Int("index", job.Index))
		return
	}
	s.applied.Add(1)
	if s.onApply == nil {
		return
	}

	// Recompute from live state, never a snapshot taken at submit time:
	// this is what keeps convergence independent of completion order.
	s.onApply(Applied{
		Index:   job.Index,
		Text:    transcript.NormalizeSentence(corrected),
		Desired: s.store.Compose(),
	})
}
