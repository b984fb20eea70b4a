package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"store-gateway/internal/observability"
	"store-gateway/internal/session"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrAccountBanned refuses a banned identity at the sign-in door, before any
// session is ever created for it.
type ErrAccountBanned struct {
	Until time.Time
}

func (e ErrAccountBanned) Error() string {
	return "account is banned"
}

type ErrSignInLocked struct {
	Until time.Time
}

func (e ErrSignInLocked) Error() string {
	return "sign-in temporarily locked"
}

// UserStore is the persistence surface the service needs from the repository.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	ApplyBan(ctx context.Context, userID string, until time.Time, label string) error
	LiftBan(ctx context.Context, userID string) error
	GetSignInAttempt(ctx context.Context, email string) (SignInAttempt, error)
	RegisterFailedAttempt(ctx context.Context, email string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetSignInAttempt(ctx context.Context, email string) error
}

// SessionWriter creates and revokes sessions on the service's behalf.
type SessionWriter interface {
	Create(ctx context.Context, userID string) (session.Session, error)
	DestroyAll(ctx context.Context, userID string) error
}

type Service struct {
	store        UserStore
	sessions     SessionWriter
	logger       *observability.Logger
	maxAttempts  int
	lockDuration time.Duration
}

func NewService(store UserStore, sessions SessionWriter, logger *observability.Logger) *Service {
	return &Service{
		store:        store,
		sessions:     sessions,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

func (s *Service) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return session.Session{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	attempt, err := s.store.GetSignInAttempt(ctx, email)
	if err != nil {
		return session.Session{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return session.Session{}, ErrSignInLocked{Until: *attempt.LockedUntil}
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, s.failAttempt(ctx, email, now)
		}
		return session.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return session.Session{}, s.failAttempt(ctx, email, now)
	}

	if user.BannedUntil != nil && user.BannedUntil.After(now) {
		return session.Session{}, ErrAccountBanned{Until: *user.BannedUntil}
	}

	if err := s.store.ResetSignInAttempt(ctx, email); err != nil {
		return session.Session{}, err
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}

	return sess, nil
}

func (s *Service) failAttempt(ctx context.Context, email string, now time.Time) error {
	lockedUntil, err := s.store.RegisterFailedAttempt(ctx, email, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrSignInLocked{Until: *lockedUntil}
	}
	return ErrInvalidCredentials
}

// Ban writes both ban stores in one transaction, then revokes the identity's
// active sessions. Revocation is best-effort: the gate tears down whatever
// survives on the banned identity's next request.
func (s *Service) Ban(ctx context.Context, userID string, duration time.Duration, label string) error {
	until := time.Now().UTC().Add(duration)

	if err := s.store.ApplyBan(ctx, userID, until, label); err != nil {
		return err
	}

	if err := s.sessions.DestroyAll(ctx, userID); err != nil {
		s.logger.Error("ban_session_revoke_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	return nil
}

func (s *Service) Unban(ctx context.Context, userID string) error {
	return s.store.LiftBan(ctx, userID)
}
