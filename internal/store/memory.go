package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/sonnik/internal/domain"
)

type conversationKey struct {
	userID  int64
	channel domain.Channel
}

// MemoryStore implements Repository in process memory. It is intended for tests
// and single-process development runs.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	users         map[int64]*domain.User
	conversations map[int64]*domain.Conversation
	byChannel     map[conversationKey]int64
	messages      map[int64][]domain.Message
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]*domain.User),
		conversations: make(map[int64]*domain.Conversation),
		byChannel:     make(map[conversationKey]int64),
		messages:      make(map[int64][]domain.Message),
	}
}

var _ Repository = (*MemoryStore)(nil)

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateUser inserts a new user.
func (m *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Phone == user.Phone {
			return domain.ErrDuplicateIdentity
		}
		if user.SecondaryID != "" && u.SecondaryID == user.SecondaryID {
			return domain.ErrDuplicateIdentity
		}
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.ID = m.id()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MemoryStore) findUser(match func(*domain.User) bool) *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			copied := *u
			return &copied
		}
	}
	return nil
}

// GetUserByID retrieves a user by id.
func (m *MemoryStore) GetUserByID(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u := m.users[userID]
	if u == nil {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// GetUserByPhone retrieves a user by phone number.
func (m *MemoryStore) GetUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool { return u.Phone == phone }), nil
}

// GetUserBySecondaryID retrieves a user by linked bot identity.
func (m *MemoryStore) GetUserBySecondaryID(_ context.Context, secondaryID string) (*domain.User, error) {
	if secondaryID == "" {
		return nil, nil
	}
	return m.findUser(func(u *domain.User) bool { return u.SecondaryID == secondaryID }), nil
}

// LinkSecondaryID attaches a bot identity to a user once.
func (m *MemoryStore) LinkSecondaryID(_ context.Context, userID int64, secondaryID, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.users[userID]
	if u == nil {
		return false, nil
	}
	if u.SecondaryID != "" && u.SecondaryID != secondaryID {
		return false, nil
	}
	for id, other := range m.users {
		if id != userID && other.SecondaryID == secondaryID {
			return false, domain.ErrDuplicateIdentity
		}
	}
	u.SecondaryID = secondaryID
	u.SecondaryHandle = handle
	return true, nil
}

// GetOrCreateConversation returns the conversation for (userID, channel), creating it if needed.
func (m *MemoryStore) GetOrCreateConversation(_ context.Context, userID int64, channel domain.Channel, nativeThreadID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, domain.ErrNotFound
	}

	key := conversationKey{userID: userID, channel: channel}
	if id, ok := m.byChannel[key]; ok {
		copied := *m.conversations[id]
		return &copied, nil
	}

	conv := &domain.Conversation{
		ID:             m.id(),
		UserID:         userID,
		Channel:        channel,
		NativeThreadID: nativeThreadID,
		CreatedAt:      time.Now().UTC(),
	}
	m.conversations[conv.ID] = conv
	m.byChannel[key] = conv.ID
	copied := *conv
	return &copied, nil
}

func (m *MemoryStore) appendLocked(msg *domain.Message) error {
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return domain.ErrNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ID = m.id()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

// AppendMessage appends a message to a conversation.
func (m *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(msg)
}

// AppendExchange appends a question and its answer atomically.
func (m *MemoryStore) AppendExchange(_ context.Context, question, answer *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[question.ConversationID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := m.conversations[answer.ConversationID]; !ok {
		return domain.ErrNotFound
	}
	if err := m.appendLocked(question); err != nil {
		return err
	}
	return m.appendLocked(answer)
}

// TailMessages returns up to limit most recent messages, oldest first.
func (m *MemoryStore) TailMessages(_ context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []domain.Message{}, nil
	}

	all := make([]domain.Message, len(m.messages[conversationID]))
	copy(all, m.messages[conversationID])
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// CountMessages returns the number of stored messages in the conversation.
func (m *MemoryStore) CountMessages(_ context.Context, conversationID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID]), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
