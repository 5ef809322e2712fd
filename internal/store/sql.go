package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/sonnik/internal/domain"
)

// dialect captures the differences between the SQL engines behind sqlStore.
type dialect struct {
	name         string
	schema       []string
	placeholders bool // rewrite ? to $n
	isUnique     func(error) bool
	isForeignKey func(error) bool
	isRetryable  func(error) bool
}

// sqlStore implements Repository over database/sql.
type sqlStore struct {
	db         *sql.DB
	d          dialect
	maxRetries int
	baseDelay  time.Duration
}

func newSQLStore(db *sql.DB, d dialect) *sqlStore {
	return &sqlStore{
		db:         db,
		d:          d,
		maxRetries: 3,
		baseDelay:  50 * time.Millisecond,
	}
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// q rewrites placeholders for the active dialect.
func (s *sqlStore) q(query string) string {
	if !s.d.placeholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withRetry runs fn with exponential backoff while the engine reports lock contention.
func (s *sqlStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = fn()
		if err == nil || s.d.isRetryable == nil || !s.d.isRetryable(err) {
			return err
		}
		if i == s.maxRetries-1 {
			break
		}
		delay := s.baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Database busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.maxRetries, err)
}

// Ping verifies database connectivity.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, phone, name, birth_date, password_hash, secondary_id, secondary_handle, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var secondaryID, secondaryHandle sql.NullString
	var createdAt int64

	err := row.Scan(
		&user.ID, &user.Phone, &user.Name, &user.BirthDate, &user.PasswordHash,
		&secondaryID, &secondaryHandle, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	user.SecondaryID = secondaryID.String
	user.SecondaryHandle = secondaryHandle.String
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// CreateUser inserts a new user row.
func (s *sqlStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := s.q(`
	INSERT INTO users (phone, name, birth_date, password_hash, secondary_id, secondary_handle, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id`)

	err := s.withRetry(ctx, "create user", func() error {
		return s.db.QueryRowContext(ctx, query,
			user.Phone, user.Name, user.BirthDate, user.PasswordHash,
			nullable(user.SecondaryID), nullable(user.SecondaryHandle),
			user.CreatedAt.UnixMilli(),
		).Scan(&user.ID)
	})
	if err != nil {
		if s.d.isUnique(err) {
			return domain.ErrDuplicateIdentity
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *sqlStore) getUser(ctx context.Context, column string, value any) (*domain.User, error) {
	query := s.q(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id.
func (s *sqlStore) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	return s.getUser(ctx, "id", userID)
}

// GetUserByPhone retrieves a user by phone number.
func (s *sqlStore) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return s.getUser(ctx, "phone", phone)
}

// GetUserBySecondaryID retrieves a user by linked bot identity.
func (s *sqlStore) GetUserBySecondaryID(ctx context.Context, secondaryID string) (*domain.User, error) {
	if secondaryID == "" {
		return nil, nil
	}
	return s.getUser(ctx, "secondary_id", secondaryID)
}

// LinkSecondaryID attaches a bot identity to a user once.
func (s *sqlStore) LinkSecondaryID(ctx context.Context, userID int64, secondaryID, handle string) (bool, error) {
	query := s.q(`
	UPDATE users SET secondary_id = ?, secondary_handle = ?
	WHERE id = ? AND (secondary_id IS NULL OR secondary_id = ?)`)

	var rows int64
	err := s.withRetry(ctx, "link secondary id", func() error {
		result, err := s.db.ExecContext(ctx, query, secondaryID, nullable(handle), userID, secondaryID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if s.d.isUnique(err) {
			return false, domain.ErrDuplicateIdentity
		}
		return false, fmt.Errorf("link secondary id: %w", err)
	}
	if rows == 0 {
		slog.Warn("LinkSecondaryID affected 0 rows", "user_id", userID)
		return false, nil
	}
	return true, nil
}

// GetOrCreateConversation inserts the conversation if missing and returns the stored row.
// The (user_id, channel) uniqueness constraint turns concurrent first contact into a no-op insert.
func (s *sqlStore) GetOrCreateConversation(ctx context.Context, userID int64, channel domain.Channel, nativeThreadID string) (*domain.Conversation, error) {
	insert := s.q(`
	INSERT INTO conversations (user_id, channel, native_thread_id, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (user_id, channel) DO NOTHING`)

	err := s.withRetry(ctx, "create conversation", func() error {
		_, err := s.db.ExecContext(ctx, insert, userID, string(channel), nullable(nativeThreadID), time.Now().UnixMilli())
		return err
	})
	if err != nil {
		if s.d.isForeignKey(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	query := s.q(`
	SELECT id, user_id, channel, native_thread_id, created_at
	FROM conversations WHERE user_id = ? AND channel = ?`)

	var conv domain.Conversation
	var ch string
	var nativeID sql.NullString
	var createdAt int64
	err = s.db.QueryRowContext(ctx, query, userID, string(channel)).Scan(
		&conv.ID, &conv.UserID, &ch, &nativeID, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	conv.Channel = domain.Channel(ch)
	conv.NativeThreadID = nativeID.String
	conv.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &conv, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqlStore) insertMessage(ctx context.Context, ex execer, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := s.q(`
	INSERT INTO messages (conversation_id, role, content, created_at)
	VALUES (?, ?, ?, ?)
	RETURNING id`)

	err := ex.QueryRowContext(ctx, query,
		msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixMilli(),
	).Scan(&msg.ID)
	if err != nil {
		if s.d.isForeignKey(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// AppendMessage appends a single message.
func (s *sqlStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	err := s.withRetry(ctx, "append message", func() error {
		return s.insertMessage(ctx, s.db, msg)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// AppendExchange appends a question and its answer in one transaction.
func (s *sqlStore) AppendExchange(ctx context.Context, question, answer *domain.Message) error {
	err := s.withRetry(ctx, "append exchange", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back exchange", "error", rbErr)
			}
		}()

		if err := s.insertMessage(ctx, tx, question); err != nil {
			return err
		}
		if err := s.insertMessage(ctx, tx, answer); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

// TailMessages returns the most recent messages, oldest first.
func (s *sqlStore) TailMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	query := s.q(`
	SELECT id, conversation_id, role, content, created_at FROM (
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	) AS tail
	ORDER BY created_at ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *sqlStore) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`), conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
