package assistant

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Completer produces an answer for a prompt, streaming fragments to onChunk.
type Completer interface {
	Chat(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

// Answer is a completed reply.
type Answer struct {
	Text string `json:"answer"`
	HTML string `json:"html"`
}

// CompletionError wraps a failure of the completion service.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return fmt.Sprintf("Ollama Error: %v", e.Err) }
func (e *CompletionError) Unwrap() error { return e.Err }

// Assistant answers questions about one patient's clinical summary and
// records the exchange per conversation.
type Assistant struct {
	completer Completer
	store     *Store
	logger    zerolog.Logger
}

func New(completer Completer, store *Store, logger zerolog.Logger) *Assistant {
	return &Assistant{completer: completer, store: store, logger: logger}
}

// Ask grounds question in summary and queries the model. The question is
// kept in the history even when the model fails; the answer is only kept on
// success.
func (a *Assistant) Ask(ctx context.Context, key, summary, question string, onChunk func(string)) (Answer, error) {
	a.store.Append(key, Message{Role: RoleUser, Content: question})

	text, err := a.completer.Chat(ctx, BuildPrompt(summary, question), onChunk)
	if err != nil {
		a.logger.Error().Err(err).Str("conversation", key).Msg("completion failed")
		return Answer{}, &CompletionError{Err: err}
	}
	a.store.Append(key, Message{Role: RoleAssistant, Content: text})

	html, err := RenderMarkdown(text)
	if err != nil {
		a.logger.Warn().Err(err).Str("conversation", key).Msg("render answer")
	}
	return Answer{Text: text, HTML: html}, nil
}

func (a *Assistant) History(key string) []Message {
	return a.store.History(key)
}

func (a *Assistant) Reset(key string) {
	a.store.Reset(key)
}
