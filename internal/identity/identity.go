// Package identity registers, authenticates and resolves users.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/metrics"
	"github.com/ashureev/sonnik/internal/store"
)

// Ref identifies a user by id or phone, as sent in client user_data.
type Ref struct {
	ID    int64
	Phone string
}

// IsZero reports whether the reference names nobody.
func (r Ref) IsZero() bool {
	return r.ID == 0 && strings.TrimSpace(r.Phone) == ""
}

// Registration is the input to Register.
type Registration struct {
	Phone     string
	Name      string
	BirthDate string
	Password  string
}

// Service implements the identity operations on top of a Repository.
type Service struct {
	repo       store.Repository
	bcryptCost int
	now        func() time.Time
}

// NewService creates an identity service. A cost of 0 selects bcrypt.DefaultCost.
func NewService(repo store.Repository, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func validationError(field string) error {
	return fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
}

// Register creates a user and its primary web conversation.
func (s *Service) Register(ctx context.Context, in Registration) (*domain.User, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Name = strings.TrimSpace(in.Name)
	in.BirthDate = strings.TrimSpace(in.BirthDate)

	switch {
	case in.Phone == "":
		return nil, validationError("phone")
	case in.Name == "":
		return nil, validationError("name")
	case in.BirthDate == "":
		return nil, validationError("birth_date")
	case in.Password == "":
		return nil, validationError("password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Phone:        in.Phone,
		Name:         in.Name,
		BirthDate:    in.BirthDate,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			return nil, err
		}
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("create user: %w", err)
	}

	if _, err := s.repo.GetOrCreateConversation(ctx, user.ID, domain.ChannelWeb, ""); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("create primary conversation: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	slog.Info("User registered", "user_id", user.ID)
	return user, nil
}

// Authenticate returns the user whose phone and password match exactly.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, validationError("phone")
	}
	if password == "" {
		return nil, validationError("password")
	}

	user, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, domain.ErrAuthFailure
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, domain.ErrAuthFailure
	}

	metrics.LoginsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return user, nil
}

// LinkSecondaryIdentity attaches a bot account to the user. It returns false
// when the user is missing or already linked to a different account.
func (s *Service) LinkSecondaryIdentity(ctx context.Context, userID int64, secondaryID, handle string) (bool, error) {
	if secondaryID == "" {
		return false, validationError("secondary_id")
	}
	ok, err := s.repo.LinkSecondaryID(ctx, userID, secondaryID, handle)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return false, err
		}
		return false, fmt.Errorf("link secondary identity: %w", err)
	}
	return ok, nil
}

// FindBySecondaryIdentity returns the user linked to the bot account, or nil.
func (s *Service) FindBySecondaryIdentity(ctx context.Context, secondaryID string) (*domain.User, error) {
	user, err := s.repo.GetUserBySecondaryID(ctx, secondaryID)
	if err != nil {
		return nil, fmt.Errorf("get user by secondary id: %w", err)
	}
	return user, nil
}

// Resolve looks a user up by id, falling back to phone.
func (s *Service) Resolve(ctx context.Context, ref Ref) (*domain.User, error) {
	if ref.IsZero() {
		return nil, validationError("user_data")
	}

	var (
		user *domain.User
		err  error
	)
	if ref.ID != 0 {
		user, err = s.repo.GetUserByID(ctx, ref.ID)
	} else {
		user, err = s.repo.GetUserByPhone(ctx, strings.TrimSpace(ref.Phone))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	return user, nil
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
