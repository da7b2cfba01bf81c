package assistant

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Message is one turn of a chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	NumCtx      int
	Temperature float64
	Timeout     time.Duration
}

// OllamaClient streams chat completions from an Ollama server.
type OllamaClient struct {
	cfg    OllamaConfig
	client *api.Client
}

// NewOllamaClient returns a client for the server at cfg.BaseURL.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama base url %q: scheme and host are required", cfg.BaseURL)
	}
	return &OllamaClient{
		cfg:    cfg,
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
	}, nil
}

// Chat sends prompt as a single user message and streams the reply. Each
// non-empty fragment is passed to onChunk as it arrives. The accumulated
// reply is returned even when the stream fails part way.
func (o *OllamaClient) Chat(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	stream := true
	req := &api.ChatRequest{
		Model:    o.cfg.Model,
		Messages: []api.Message{{Role: RoleUser, Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"num_ctx":     o.cfg.NumCtx,
			"temperature": o.cfg.Temperature,
		},
	}

	var (
		answer strings.Builder
		done   bool
	)
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if c := resp.Message.Content; c != "" {
			answer.WriteString(c)
			if onChunk != nil {
				onChunk(c)
			}
		}
		done = resp.Done
		return nil
	})
	if err != nil {
		return answer.String(), fmt.Errorf("ollama api: %w", err)
	}
	if !done {
		return answer.String(), fmt.Errorf("ollama api: %w", io.ErrUnexpectedEOF)
	}
	return answer.String(), nil
}
