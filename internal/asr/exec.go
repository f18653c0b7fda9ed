package asr

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/voxwrite/voxwrite/internal/config"
)

// execEngine speaks a line-oriented JSON protocol with a long-lived child
// process (a whisper-cli style streaming wrapper). One request line per
// chunk, one response line back; a reset request clears acoustic state
// without restarting the child.
type execEngine struct {
	mu      sync.Mutex
	proc    *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	last    execChunkResponse
}

type execChunkRequest struct {
	PCMBase64 string `json:"pcm_base64,omitempty"`
	Reset     bool   `json:"reset,omitempty"`
}

type execChunkResponse struct {
	Partial string `json:"partial"`
	Final   string `json:"final"`
	Done    bool   `json:"done"`
}

// NewExecEngine starts the recognizer child process. Loading the model is
// the child's job; the constructor returns once the pipes are up, and the
// first AcceptChunk blocks until the child answers.
func NewExecEngine(cfg config.RecognizerConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	if cfg.ModelPath != "" {
		args = append(args, "--model", cfg.ModelPath)
	}
	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recognizer stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recognizer stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recognizer process: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &execEngine{proc: cmd, stdin: stdin, scanner: scanner}, nil
}

func (e *execEngine) roundTrip(req execChunkRequest) (execChunkResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return execChunkResponse{}, err
	}
	data = append(data, '\n')
	if _, err := e.stdin.Write(data); err != nil {
		return execChunkResponse{}, fmt.Errorf("write to recognizer: %w", err)
	}
	if !e.scanner.Scan() {
		if err := e.scanner.Err(); err != nil {
			return execChunkResponse{}, fmt.Errorf("read from recognizer: %w", err)
		}
		return execChunkResponse{}, fmt.Errorf("recognizer process closed its output")
	}
	var resp execChunkResponse
	if err := json.Unmarshal(e.scanner.Bytes(), &resp); err != nil {
		return execChunkResponse{}, fmt.Errorf("decode recognizer response: %w", err)
	}
	return resp, nil
}

func (e *execEngine) AcceptChunk(pcm []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp, err := e.roundTrip(execChunkRequest{PCMBase64: base64.StdEncoding.EncodeToString(pcm)})
	if err != nil {
		return false, err
	}
	e.last = resp
	return resp.Done, nil
}

func (e *execEngine) PartialResult() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Partial
}

func (e *execEngine) FinalResult() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Final
}

func (e *execEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = execChunkResponse{}
	_, err := e.roundTrip(execChunkRequest{Reset: true})
	return err
}
