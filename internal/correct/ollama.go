package correct

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/voxwrite/voxwrite/internal/config"
)

const correctionSystemPrompt = "Fix grammar, punctuation and capitalization in the user's sentence. " +
	"Reply with the corrected sentence only, nothing else. " +
	"Keep the meaning and language unchanged."

// ollamaCorrector repairs sentences with a local Ollama model.
type ollamaCorrector struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewOllamaCorrector(cfg config.CorrectorConfig) Corrector {
	return &ollamaCorrector{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      http.DefaultClient,
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *ollamaCorrector) Correct(ctx context.Context, sentence string) (string, error) {
	payload := ollamaRequest{
		Model:  o.model,
		Prompt: sentence,
		System: correctionSystemPrompt,
		Stream: true,
		Options: ollamaOptions{
			Temperature: o.temperature,
			NumPredict:  o.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", err
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	corrected := strings.TrimSpace(out.String())
	if corrected == "" {
		return sentence, nil
	}
	return corrected, nil
}
