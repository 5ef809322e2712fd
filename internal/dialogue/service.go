// Package dialogue ties identity, conversation storage and reply generation
// into the send-message and history operations.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashureev/sonnik/internal/agent"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/store"
)

// Replier produces an assistant reply. *agent.Generator implements it.
type Replier interface {
	Reply(ctx context.Context, in agent.ReplyInput) agent.Reply
}

// Config bounds history reads.
type Config struct {
	ContextLimit int
	DisplayLimit int
}

// Service runs the per-request dialogue flow.
type Service struct {
	repo    store.Repository
	replier Replier
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
}

// NewService creates a dialogue service.
func NewService(repo store.Repository, replier Replier, cfg Config) *Service {
	if cfg.ContextLimit < 0 {
		cfg.ContextLimit = 0
	}
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = 20
	}
	return &Service{
		repo:    repo,
		replier: replier,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SendInput is one inbound user message.
type SendInput struct {
	User           *domain.User
	Channel        domain.Channel
	NativeThreadID string
	Message        string
	RequestID      string
}

// Conversation finds or creates the user's conversation on channel.
// Concurrent first contact for the same user and channel collapses into one store call.
func (s *Service) Conversation(ctx context.Context, userID int64, channel domain.Channel, nativeThreadID string) (*domain.Conversation, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, channel)
	}

	// The flight is shared, so one caller going away must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	key := strconv.FormatInt(userID, 10) + ":" + string(channel)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.repo.GetOrCreateConversation(flightCtx, userID, channel, nativeThreadID)
	})
	if err != nil {
		return nil, err
	}
	conv := *v.(*domain.Conversation)
	return &conv, nil
}

// Send stores the user's message with an assistant reply and returns the reply.
// The provider sees the history as it was before this message. Both messages
// are written in one transaction after the reply is known, so an aborted
// request leaves no trace.
func (s *Service) Send(ctx context.Context, in SendInput) (agent.Reply, error) {
	if in.User == nil {
		return agent.Reply{}, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return agent.Reply{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if in.Channel == "" {
		in.Channel = domain.ChannelWeb
	}

	conv, err := s.Conversation(ctx, in.User.ID, in.Channel, in.NativeThreadID)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("resolve conversation: %w", err)
	}

	history, err := s.repo.TailMessages(ctx, conv.ID, s.cfg.ContextLimit)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("load history: %w", err)
	}
	stored, err := s.repo.CountMessages(ctx, conv.ID)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("count messages: %w", err)
	}

	reply := s.replier.Reply(ctx, agent.ReplyInput{
		User:      in.User,
		History:   history,
		Message:   message,
		Channel:   in.Channel,
		RequestID: in.RequestID,
		Exchange:  stored / 2,
	})

	if err := ctx.Err(); err != nil {
		slog.Debug("Request aborted before persisting exchange", "user_id", in.User.ID, "conversation_id", conv.ID)
		return agent.Reply{}, err
	}

	// Both rows share one timestamp; the store orders ties by insertion.
	at := s.now().UTC()
	question := &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: message, CreatedAt: at}
	answer := &domain.Message{ConversationID: conv.ID, Role: domain.RoleAssistant, Content: reply.Text, CreatedAt: at}
	if err := s.repo.AppendExchange(ctx, question, answer); err != nil {
		return agent.Reply{}, fmt.Errorf("persist exchange: %w", err)
	}

	slog.Debug("Exchange stored",
		"user_id", in.User.ID,
		"conversation_id", conv.ID,
		"channel", in.Channel,
		"source", reply.Source,
	)
	return reply, nil
}

// History returns up to limit recent messages on channel, oldest first.
// A limit of 0 uses the configured display limit.
func (s *Service) History(ctx context.Context, user *domain.User, channel domain.Channel, limit int) ([]domain.Message, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}
	if channel == "" {
		channel = domain.ChannelWeb
	}
	if limit <= 0 || limit > s.cfg.DisplayLimit {
		limit = s.cfg.DisplayLimit
	}

	conv, err := s.Conversation(ctx, user.ID, channel, "")
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}
	messages, err := s.repo.TailMessages(ctx, conv.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}
