// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/sonnik/internal/domain"
)

// Repository defines the interface for persisting users, conversations and messages.
type Repository interface {
	// CreateUser inserts a new user and sets its ID and CreatedAt.
	// Returns domain.ErrDuplicateIdentity if the phone or secondary id is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByID retrieves a user by id. Returns nil, nil if absent.
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)

	// GetUserByPhone retrieves a user by phone number. Returns nil, nil if absent.
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)

	// GetUserBySecondaryID retrieves a user by linked bot identity. Returns nil, nil if absent.
	GetUserBySecondaryID(ctx context.Context, secondaryID string) (*domain.User, error)

	// LinkSecondaryID attaches a bot identity to a user. The update only applies
	// when the user has no secondary id yet or already has this one.
	// Returns false if no row was updated.
	LinkSecondaryID(ctx context.Context, userID int64, secondaryID, handle string) (bool, error)

	// GetOrCreateConversation returns the conversation for (userID, channel),
	// creating it with nativeThreadID if it does not exist.
	GetOrCreateConversation(ctx context.Context, userID int64, channel domain.Channel, nativeThreadID string) (*domain.Conversation, error)

	// AppendMessage appends a message to a conversation.
	// Returns domain.ErrNotFound if the conversation does not exist.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// AppendExchange appends a user message and its reply atomically.
	AppendExchange(ctx context.Context, question, answer *domain.Message) error

	// TailMessages returns up to limit most recent messages, oldest first.
	TailMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)

	// CountMessages returns how many messages the conversation holds.
	CountMessages(ctx context.Context, conversationID int64) (int, error)

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
