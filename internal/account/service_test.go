package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"store-gateway/internal/observability"
	"store-gateway/internal/session"
)

type fakeStore struct {
	user        User
	userErr     error
	attempt     SignInAttempt
	lockOnFail  *time.Time
	failedCalls int
	resetCalls  int

	bannedUserID string
	bannedUntil  time.Time
	bannedLabel  string
	applyErr     error
	liftErr      error
	liftedUserID string
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (User, error) {
	if f.userErr != nil {
		return User{}, f.userErr
	}
	return f.user, nil
}

func (f *fakeStore) ApplyBan(ctx context.Context, userID string, until time.Time, label string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.bannedUserID = userID
	f.bannedUntil = until
	f.bannedLabel = label
	return nil
}

func (f *fakeStore) LiftBan(ctx context.Context, userID string) error {
	if f.liftErr != nil {
		return f.liftErr
	}
	f.liftedUserID = userID
	return nil
}

func (f *fakeStore) GetSignInAttempt(ctx context.Context, email string) (SignInAttempt, error) {
	return f.attempt, nil
}

func (f *fakeStore) RegisterFailedAttempt(ctx context.Context, email string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	f.failedCalls++
	return f.lockOnFail, nil
}

func (f *fakeStore) ResetSignInAttempt(ctx context.Context, email string) error {
	f.resetCalls++
	return nil
}

type fakeSessions struct {
	created    []string
	createErr  error
	revoked    []string
	destroyErr error
}

func (f *fakeSessions) Create(ctx context.Context, userID string) (session.Session, error) {
	if f.createErr != nil {
		return session.Session{}, f.createErr
	}
	f.created = append(f.created, userID)
	return session.Session{ID: "sess-1", UserID: userID}, nil
}

func (f *fakeSessions) DestroyAll(ctx context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return f.destroyErr
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(store *fakeStore, sessions *fakeSessions) *Service {
	return NewService(store, sessions, observability.NewLogger())
}

func TestSignInSuccess(t *testing.T) {
	store := &fakeStore{
		user: User{ID: "u1", Email: "admin@store.test", PasswordHash: hashFor(t, "correct horse")},
	}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	sess, err := service.SignIn(context.Background(), "Admin@Store.Test", "correct horse")

	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, []string{"u1"}, sessions.created)
	require.Equal(t, 1, store.resetCalls)
}

func TestSignInUnknownEmailRegistersFailure(t *testing.T) {
	store := &fakeStore{userErr: sql.ErrNoRows}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	_, err := service.SignIn(context.Background(), "ghost@store.test", "whatever123")

	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, 1, store.failedCalls)
	require.Empty(t, sessions.created)
}

func TestSignInWrongPasswordCanLock(t *testing.T) {
	until := time.Now().UTC().Add(15 * time.Minute)
	store := &fakeStore{
		user:       User{ID: "u1", PasswordHash: hashFor(t, "correct horse")},
		lockOnFail: &until,
	}
	service := newTestService(store, &fakeSessions{})

	_, err := service.SignIn(context.Background(), "admin@store.test", "wrong password")

	var locked ErrSignInLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, until, locked.Until)
	require.Equal(t, 1, store.failedCalls)
}

func TestSignInRefusedWhileLocked(t *testing.T) {
	until := time.Now().UTC().Add(5 * time.Minute)
	store := &fakeStore{attempt: SignInAttempt{LockedUntil: &until}}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	_, err := service.SignIn(context.Background(), "admin@store.test", "correct horse")

	var locked ErrSignInLocked
	require.ErrorAs(t, err, &locked)
	require.Empty(t, sessions.created)
}

func TestSignInBannedUserRefused(t *testing.T) {
	until := time.Now().UTC().Add(24 * time.Hour)
	store := &fakeStore{
		user: User{ID: "u1", PasswordHash: hashFor(t, "correct horse"), BannedUntil: &until},
	}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	_, err := service.SignIn(context.Background(), "admin@store.test", "correct horse")

	var banned ErrAccountBanned
	require.ErrorAs(t, err, &banned)
	require.Equal(t, until, banned.Until)
	require.Empty(t, sessions.created)
}

func TestSignInExpiredBanIsIgnored(t *testing.T) {
	until := time.Now().UTC().Add(-time.Minute)
	store := &fakeStore{
		user: User{ID: "u1", PasswordHash: hashFor(t, "correct horse"), BannedUntil: &until},
	}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	_, err := service.SignIn(context.Background(), "admin@store.test", "correct horse")

	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, sessions.created)
}

func TestSignInEmptyInputRejected(t *testing.T) {
	service := newTestService(&fakeStore{}, &fakeSessions{})

	_, err := service.SignIn(context.Background(), "  ", "")

	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBanWritesBothStoresAndRevokesSessions(t *testing.T) {
	store := &fakeStore{}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	before := time.Now().UTC()
	err := service.Ban(context.Background(), "u1", 24*time.Hour, "24 hours")

	require.NoError(t, err)
	require.Equal(t, "u1", store.bannedUserID)
	require.Equal(t, "24 hours", store.bannedLabel)
	require.WithinDuration(t, before.Add(24*time.Hour), store.bannedUntil, 5*time.Second)
	require.Equal(t, []string{"u1"}, sessions.revoked)
}

func TestBanSucceedsWhenSessionRevocationFails(t *testing.T) {
	store := &fakeStore{}
	sessions := &fakeSessions{destroyErr: errors.New("redis unreachable")}
	service := newTestService(store, sessions)

	err := service.Ban(context.Background(), "u1", time.Hour, "1 hour")

	require.NoError(t, err)
	require.Equal(t, "u1", store.bannedUserID)
}

func TestBanFailsWhenStoreWriteFails(t *testing.T) {
	store := &fakeStore{applyErr: sql.ErrNoRows}
	sessions := &fakeSessions{}
	service := newTestService(store, sessions)

	err := service.Ban(context.Background(), "u1", time.Hour, "1 hour")

	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Empty(t, sessions.revoked, "sessions stay put when the ban write fails")
}

func TestUnban(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(store, &fakeSessions{})

	require.NoError(t, service.Unban(context.Background(), "u1"))
	require.Equal(t, "u1", store.liftedUserID)
}
