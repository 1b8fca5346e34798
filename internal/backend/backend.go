// Package backend adapts text-generation providers to a single
// prompt-in, text-out capability.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stellarlinkco/mealmatch/internal/config"
)

// Display names shown in transcripts and score tables.
const (
	DisplayOpenAI    = "ChatGPT (OpenAI)"
	DisplayAnthropic = "Claude (Anthropic)"
)

// ErrEmptyResponse is wrapped when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// Backend turns a prompt into a reply.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Error reports a failed Generate call.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Func adapts a plain function to Backend.
type Func struct {
	ID string
	Fn func(ctx context.Context, prompt string) (string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	if f.Fn == nil {
		return "", &Error{Backend: f.ID, Err: errors.New("no generate function")}
	}
	out, err := f.Fn(ctx, prompt)
	if err != nil {
		return "", asError(f.ID, err)
	}
	return out, nil
}

// Model is a Backend backed by an agentsdk-go model provider.
type Model struct {
	name     string
	provider model.Provider
}

// NewModel wraps provider under the given display name.
func NewModel(name string, provider model.Provider) *Model {
	return &Model{name: name, provider: provider}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	mdl, err := m.provider.Model(ctx)
	if err != nil {
		return "", &Error{Backend: m.name, Err: fmt.Errorf("init model: %w", err)}
	}
	resp, err := mdl.Complete(ctx, model.Request{
		Messages: []model.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &Error{Backend: m.name, Err: fmt.Errorf("complete: %w", err)}
	}
	if resp == nil {
		return "", &Error{Backend: m.name, Err: ErrEmptyResponse}
	}
	// returned verbatim: surrounding whitespace counts toward formatting scores
	text := resp.Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &Error{Backend: m.name, Err: ErrEmptyResponse}
	}
	return text, nil
}

// New builds the backend for a configured provider name.
func New(cfg *config.Config, name string) (Backend, error) {
	pc, ok := cfg.Provider(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if strings.TrimSpace(pc.APIKey) == "" {
		return nil, fmt.Errorf("provider %s: %w", name, config.ErrMissingCredentials)
	}

	switch name {
	case config.ProviderOpenAI:
		return NewModel(DisplayOpenAI, &model.OpenAIProvider{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			ModelName: pc.Model,
			MaxTokens: pc.MaxTokens,
		}), nil
	default:
		return NewModel(DisplayAnthropic, &model.AnthropicProvider{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			ModelName: pc.Model,
			MaxTokens: pc.MaxTokens,
		}), nil
	}
}

func asError(name string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Backend: name, Err: err}
}
