// Package identity signs users up and in, issues session tokens and tracks
// the currently signed-in identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/models"
	"github.com/lox/recoverytrack/internal/store"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// UserStore is the persistence the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Service struct {
	users  UserStore
	tokens *Tokens
	log    *zap.Logger
	cost   int
}

func NewService(users UserStore, tokens *Tokens, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		log:    logger.With(zap.String("component", "identity")),
		cost:   bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account and returns a session token for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (Identity, string, error) {
	email = NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		metrics.AuthAttemptsTotal.WithLabelValues("signup", "invalid").Inc()
		return Identity{}, "", ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		metrics.AuthAttemptsTotal.WithLabelValues("signup", "invalid").Inc()
		return Identity{}, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Identity{}, "", fmt.Errorf("hash password: %w", err)
	}
	u := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.AuthAttemptsTotal.WithLabelValues("signup", "taken").Inc()
			return Identity{}, "", ErrEmailTaken
		}
		return Identity{}, "", fmt.Errorf("create user: %w", err)
	}

	id := Identity{UserID: u.ID, Email: u.Email}
	token, err := s.tokens.Issue(id)
	if err != nil {
		return Identity{}, "", err
	}
	metrics.AuthAttemptsTotal.WithLabelValues("signup", "ok").Inc()
	s.log.Info("user signed up", zap.String("user_id", u.ID))
	return id, token, nil
}

// SignIn checks credentials and returns a session token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (Identity, string, error) {
	u, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttemptsTotal.WithLabelValues("signin", "denied").Inc()
		return Identity{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, "", fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("signin", "denied").Inc()
		return Identity{}, "", ErrInvalidCredentials
	}

	id := Identity{UserID: u.ID, Email: u.Email}
	token, err := s.tokens.Issue(id)
	if err != nil {
		return Identity{}, "", err
	}
	metrics.AuthAttemptsTotal.WithLabelValues("signin", "ok").Inc()
	return id, token, nil
}

// Authenticate verifies a token and that its user still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if _, err := s.users.GetUserByID(ctx, id.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("get user: %w", err)
	}
	return id, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
