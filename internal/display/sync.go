package display

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxwrite/voxwrite/internal/config"
)

// Synchronizer reconciles the desired transcript with the text it believes
// it has already injected. The injected model is never re-read from the
// real sink; it is trusted state with this component as its only writer.
// Updates arrive from both the recognition loop and correction workers, so
// emissions are serialized with a mutex.
type Synchronizer struct {
	inj    Injector
	logger *slog.Logger

	limit     int
	leadSpace bool
	retries   int

	mu        sync.Mutex
	injected  string
	finalized int
	emitted   bool

	actions metric.Int64Counter
}

func NewSynchronizer(cfg config.DisplayConfig, injCfg config.InjectorConfig, inj Injector, logger *slog.Logger) *Synchronizer {
	actions, _ := otel.Meter("github.com/voxwrite/voxwrite/internal/display").
		Int64Counter("voxwrite.display.actions")
	return &Synchronizer{
		inj:       inj,
		logger:    logger.With(slog.String("component", "display")),
		limit:     cfg.IncrementalLimit,
		leadSpace: cfg.LeadFirstSpace,
		retries:   injCfg.RetryLimit,
		actions:   actions,
	}
}

// NoteSentence records one more finalized sentence. Once the count reaches
// the incremental limit the synchronizer permanently switches to
// replace-only: with enough history, corrections arrive often enough that
// incremental appends stop paying for themselves.
func (s *Synchronizer) NoteSentence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized++
}

// Update reconciles toward desired, appending when the injected text is
// still a prefix and incremental mode is active, replacing otherwise.
// Calling it twice with the same desired emits nothing the second time.
func (s *Synchronizer) Update(desired string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if desired == s.injected {
		return
	}

	incremental := s.limit == 0 || s.finalized < s.limit
	if incremental && strings.HasPrefix(desired, s.injected) {
		suffix := desired[len(s.injected):]
		if s.injected == "" || endsTerminal(s.injected) {
			suffix = capitalizeFirst(suffix)
			desired = s.injected + suffix
		}
		s.deliver("append", suffix, desired)
		return
	}

	s.deliver("replace", desired, desired)
}

// Refresh pushes a full replace, used when a correction may have altered
// history arbitrarily far back. Still a no-op when nothing changed.
func (s *Synchronizer) Refresh(desired string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if desired == s.injected {
		return
	}
	s.deliver("replace", desired, desired)
}

// deliver emits one action and advances the injected model. The first
// emission of the session carries one extra leading space: the reference
// sink drops the first character it receives.
func (s *Synchronizer) deliver(kind, text, desired string) {
	if !s.emitted && s.leadSpace {
		text = " " + text
	}
	s.emitted = true
	s.actions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))

	err := s.emit(kind, text)
	for attempt := 0; err != nil && attempt < s.retries; attempt++ {
		s.logger.Warn("injector action failed, retrying",
			slog.String("action", kind),
			slog.String("error", err.Error()))
		err = s.emit(kind, text)
	}
	if err != nil {
		// Advance the model anyway: the next divergence produces a full
		// replace, which repairs whatever the sink actually holds.
		s.logger.Warn("injector action dropped",
			slog.String("action", kind),
			slog.String("error", err.Error()))
	}
	s.injected = desired
}

func (s *Synchronizer) emit(kind, text string) error {
	if kind == "append" {
		return s.inj.Append(text)
	}
	return s.inj.Replace(text)
}

// Injected returns the text the synchronizer believes the sink holds.
func (s *Synchronizer) Injected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func endsTerminal(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}
