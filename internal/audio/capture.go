package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/voxwrite/voxwrite/internal/config"
)

// Source produces PCM chunks into a queue until stopped.
type Source interface {
	Start(ctx context.Context, q *Queue) error
	Stop()
}

// execSource runs an external capture process (arecord, parec, sox) that
// streams raw PCM on stdout. A reader goroutine slices the stream into
// fixed-size chunks and pushes them; it only ever enqueues, never blocks.
type execSource struct {
	cmd       []string
	chunkSize int
	logger    *slog.Logger

	proc   *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExecSource(cfg config.AudioConfig, logger *slog.Logger) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.CaptureCommand)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execSource{
		cmd:       args,
		chunkSize: cfg.ChunkSamples * 2 * cfg.Channels,
		logger:    logger.With(slog.String("component", "capture")),
	}, nil
}

func (s *execSource) Start(ctx context.Context, q *Queue) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start capture process: %w", err)
	}
	s.proc = cmd

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(stdout, q)
		_ = cmd.Wait()
	}()

	s.logger.Info("capture started", slog.String("command", s.cmd[0]))
	return nil
}

func (s *execSource) readLoop(r io.Reader, q *Queue) {
	var seq int64
	buf := make([]byte, s.chunkSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn("capture read failed", slog.String("error", err.Error()))
			}
			return
		}
		pcm := make([]byte, len(buf))
		copy(pcm, buf)
		if !q.Push(Chunk{Seq: seq, PCM: pcm}) {
			s.logger.Warn("audio queue full, chunk dropped", slog.Int64("seq", seq))
		}
		seq++
	}
}

func (s *execSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
