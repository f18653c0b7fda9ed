package display

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/voxwrite/voxwrite/internal/config"
)

// Injector delivers text into whatever window holds input focus.
type Injector interface {
	// Append types text at the cursor.
	Append(text string) error
	// Replace select-all-overwrites the sink with text.
	Replace(text string) error
}

// execInjector shells out per action (xdotool/ydotool/wtype wrappers). The
// action verb is the last argument and the text arrives on stdin so shell
// quoting never mangles the transcript.
type execInjector struct {
	cmd []string
	mu  sync.Mutex
}

func NewExecInjector(cfg config.InjectorConfig) (Injector, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse injector command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("injector command is empty")
	}
	return &execInjector{cmd: args}, nil
}

func (e *execInjector) run(action, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, action)
	cmd := exec.Command(e.cmd[0], args...)
	cmd.Stdin = strings.NewReader(text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("injector %s failed: %w: %s", action, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (e *execInjector) Append(text string) error {
	return e.run("append", text)
}

func (e *execInjector) Replace(text string) error {
	return e.run("replace", text)
}

// logInjector writes actions to the log instead of a real sink. Default
// mode, useful for dry runs.
type logInjector struct {
	logger *slog.Logger
}

func NewLogInjector(logger *slog.Logger) Injector {
	return &logInjector{logger: logger.With(slog.String("component", "injector"))}
}

func (l *logInjector) Append(text string) error {
	l.logger.Info("append", slog.String("text", text))
	return nil
}

func (l *logInjector) Replace(text string) error {
	l.logger.Info("replace", slog.String("text", text))
	return nil
}

// Action records one emitted injector call, for tests and the bus feed.
type Action struct {
	Kind string // "append" or "replace"
	Text string
}

// Recorder is an Injector that captures actions in memory.
type Recorder struct {
	mu      sync.Mutex
	actions []Action
	fail    int // number of upcoming calls to fail
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailNext makes the next n calls return an error.
func (r *Recorder) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = n
}

func (r *Recorder) record(kind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return fmt.Errorf("injector sink unavailable")
	}
	r.actions = append(r.actions, Action{Kind: kind, Text: text})
	return nil
}

func (r *Recorder) Append(text string) error {
	return r.record("append", text)
}

func (r *Recorder) Replace(text string) error {
	return r.record("replace", text)
}

// Actions returns a copy of everything recorded so far.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}
