package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// execCorrector spawns a one-shot child per sentence: JSON request on
// stdin, JSON response on stdout. Each call owns its own process, so
// concurrent workers run their children in parallel.
type execCorrector struct {
	cmd []string
}

type execRequest struct {
	Text string `json:"text"`
}

type execResponse struct {
	Text string `json:"text"`
}

func NewExecCorrector(command string) (Corrector, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse corrector command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("corrector command is empty")
	}
	return &execCorrector{cmd: args}, nil
}

func (e *execCorrector) Correct(ctx context.Context, sentence string) (string, error) {
	input, err := json.Marshal(execRequest{Text: sentence})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("corrector command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode corrector response: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return sentence, nil
	}
	return resp.Text, nil
}
