// Package agent produces assistant replies for dream descriptions.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/sonnik/internal/domain"
)

// Turn roles in a provider transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role/content pair sent to a provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-agnostic generation request.
type CompletionRequest struct {
	Model       string
	Messages    []Turn
	MaxTokens   int
	Temperature float64
}

// Provider produces a single best completion for a transcript.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ReplySource tells whether a reply came from the provider or the fallback set.
type ReplySource string

const (
	// SourceProvider marks a provider-generated reply.
	SourceProvider ReplySource = "provider"
	// SourceFallback marks a stock reply.
	SourceFallback ReplySource = "fallback"
)

// Reply is the outcome of Generator.Reply. It always carries non-empty text.
type Reply struct {
	Text   string
	Source ReplySource
}

// ReplyInput is everything the generator needs for one exchange.
type ReplyInput struct {
	User      *domain.User
	History   []domain.Message
	Message   string
	Channel   domain.Channel
	RequestID string
	// Exchange is how many exchanges the conversation already holds.
	Exchange int
}

// Config holds generation parameters.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Locale      domain.Locale
}

// DefaultConfig returns the generation parameters used by the hosted provider.
func DefaultConfig() Config {
	return Config{
		Model:       "deepseek/deepseek-chat-v3-0324",
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		Locale:      domain.LocaleRU,
	}
}

var errEmptyCompletion = errors.New("provider returned empty completion")
