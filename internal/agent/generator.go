package agent

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/sonnik/internal/metrics"
)

// Generator turns a user message and recent history into an assistant reply.
// Provider failures of any kind fall back to a stock reply.
type Generator struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger
	log      ConversationLogger
	now      func() time.Time
}

// NewGenerator creates a generator. A nil provider always uses the fallback set.
func NewGenerator(provider Provider, cfg Config, logger *slog.Logger, conversationLogger ConversationLogger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	defaults := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	cfg.Locale = cfg.Locale.OrDefault()
	return &Generator{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		log:      conversationLogger,
		now:      time.Now,
	}
}

// ProviderName returns the configured provider name, or "canned".
func (g *Generator) ProviderName() string {
	if g.provider == nil {
		return "canned"
	}
	return g.provider.Name()
}

// Reply always returns non-empty text.
func (g *Generator) Reply(ctx context.Context, in ReplyInput) Reply {
	userID := ""
	if in.User != nil {
		userID = strconv.FormatInt(in.User.ID, 10)
	}
	g.log.Log(ConversationLogEvent{
		UserID:     userID,
		Channel:    string(in.Channel),
		Direction:  "inbound",
		EventType:  "dream_message",
		ContentRaw: in.Message,
		Meta:       map[string]any{"request_id": in.RequestID, "history_len": len(in.History), "exchange": in.Exchange},
	})

	reply := g.generate(ctx, in, userID)

	metrics.RepliesTotal.WithLabelValues(string(reply.Source), string(in.Channel)).Inc()
	g.log.Log(ConversationLogEvent{
		UserID:     userID,
		Channel:    string(in.Channel),
		Direction:  "outbound",
		EventType:  "assistant_reply",
		ContentRaw: reply.Text,
		Meta:       map[string]any{"request_id": in.RequestID, "source": string(reply.Source)},
	})
	return reply
}

func (g *Generator) generate(ctx context.Context, in ReplyInput, userID string) Reply {
	fallback := Reply{Text: Fallback(g.cfg.Locale, fallbackSeed(in)), Source: SourceFallback}
	if g.provider == nil {
		return fallback
	}

	name := g.provider.Name()
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Complete(callCtx, CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    BuildPrompt(g.cfg.Locale, in.User, in.History, in.Message, g.now()),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	metrics.ProviderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		metrics.ProviderCallsTotal.WithLabelValues(name, outcome).Inc()
		g.logger.Warn("Provider call failed, using fallback reply",
			"provider", name,
			"user_id", userID,
			"outcome", outcome,
			"error", err,
		)
		return fallback
	}

	metrics.ProviderCallsTotal.WithLabelValues(name, metrics.OutcomeSuccess).Inc()
	return Reply{Text: text, Source: SourceProvider}
}
