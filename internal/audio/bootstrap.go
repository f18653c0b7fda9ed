package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/voxwrite/voxwrite/internal/config"
)

// BootstrapRecorder captures the first seconds of speech to a WAV file
// while the models are still loading. It is killed, not drained, once the
// live pipeline is ready; the partial file is still usable because WAV data
// is appended sequentially after the header.
type BootstrapRecorder struct {
	cfg    config.BootstrapConfig
	logger *slog.Logger
	proc   *exec.Cmd
}

func NewBootstrapRecorder(cfg config.BootstrapConfig, logger *slog.Logger) *BootstrapRecorder {
	return &BootstrapRecorder{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "bootstrap")),
	}
}

// Start launches the recorder process. A missing binary is not fatal: the
// session falls back to live-only capture and accepts the risk of losing
// the first words.
func (b *BootstrapRecorder) Start() error {
	if !b.cfg.Enabled {
		return nil
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(b.cfg.Command)
	if err != nil {
		return fmt.Errorf("parse bootstrap command: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("bootstrap command is empty")
	}
	seconds := (b.cfg.DurationMS + 999) / 1000
	args = append(args, "-d", fmt.Sprintf("%d", seconds), b.cfg.Path)

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bootstrap recorder: %w", err)
	}
	b.proc = cmd
	b.logger.Info("bootstrap recorder started",
		slog.String("path", b.cfg.Path),
		slog.Int("duration_ms", b.cfg.DurationMS))
	return nil
}

// Stop terminates the recorder process if it is still running.
func (b *BootstrapRecorder) Stop() {
	if b.proc == nil {
		return
	}
	_ = b.proc.Process.Kill()
	_ = b.proc.Wait()
	b.proc = nil
}

// ReadWAV validates the bootstrap file against the expected sample format
// and returns its raw little-endian PCM. Any mismatch is an error; callers
// skip bootstrap rather than feed the recognizer audio it cannot trust.
func ReadWAV(path string, sampleRate, channels, bitDepth int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("bootstrap file %s is not a valid wav", path)
	}
	if int(dec.NumChans) != channels {
		return nil, fmt.Errorf("bootstrap channels mismatch: want %d, got %d", channels, dec.NumChans)
	}
	if int(dec.BitDepth) != bitDepth {
		return nil, fmt.Errorf("bootstrap bit depth mismatch: want %d, got %d", bitDepth, dec.BitDepth)
	}
	if int(dec.SampleRate) != sampleRate {
		return nil, fmt.Errorf("bootstrap sample rate mismatch: want %d, got %d", sampleRate, dec.SampleRate)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode bootstrap pcm: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}
	return pcm, nil
}
