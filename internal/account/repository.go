package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrBanStatusNotFound marks an inconclusive ban lookup: the query matched
// zero rows or unexpectedly more than one. Callers log it and fail open.
var ErrBanStatusNotFound = errors.New("ban status not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	var bannedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, banned_until, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &bannedUntil, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	if bannedUntil.Valid {
		value := bannedUntil.Time.UTC()
		user.BannedUntil = &value
	}

	return user, nil
}

// BanStatus reads banned_until for exactly one identity. The result must be
// scoped to a single row; anything else is inconclusive.
func (r *Repository) BanStatus(ctx context.Context, userID string) (*time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT banned_until
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ban status: %w", err)
	}
	defer rows.Close()

	var matched int
	var bannedUntil sql.NullTime
	for rows.Next() {
		matched++
		if matched == 1 {
			if err := rows.Scan(&bannedUntil); err != nil {
				return nil, fmt.Errorf("scan ban status: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ban status: %w", err)
	}
	if matched != 1 {
		return nil, fmt.Errorf("%w: %d rows for user %s", ErrBanStatusNotFound, matched, userID)
	}

	if !bannedUntil.Valid {
		return nil, nil
	}
	value := bannedUntil.Time.UTC()
	return &value, nil
}

// ApplyBan writes the authoritative timestamp and the display label in one
// transaction so the two stores cannot diverge on the write path.
func (r *Repository) ApplyBan(ctx context.Context, userID string, until time.Time, label string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ban tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET banned_until = $2, updated_at = $3
		WHERE id = $1
	`, userID, until.UTC(), now)
	if err != nil {
		return fmt.Errorf("update banned_until: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ban rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, ban_duration, updated_at)
		VALUES ($1, '', $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET ban_duration = EXCLUDED.ban_duration, updated_at = EXCLUDED.updated_at
	`, userID, label, now)
	if err != nil {
		return fmt.Errorf("update ban label: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ban tx: %w", err)
	}

	return nil
}

func (r *Repository) LiftBan(ctx context.Context, userID string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unban tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET banned_until = NULL, updated_at = $2
		WHERE id = $1
	`, userID, now)
	if err != nil {
		return fmt.Errorf("clear banned_until: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unban rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE profiles
		SET ban_duration = NULL, updated_at = $2
		WHERE user_id = $1
	`, userID, now)
	if err != nil {
		return fmt.Errorf("clear ban label: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unban tx: %w", err)
	}

	return nil
}

func (r *Repository) GetSignInAttempt(ctx context.Context, email string) (SignInAttempt, error) {
	var attempt SignInAttempt
	attempt.Email = email

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE email = $1
	`, email).Scan(&attempt.FailedAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attempt, nil
		}
		return SignInAttempt{}, fmt.Errorf("query sign-in attempt: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		attempt.LockedUntil = &value
	}

	return attempt, nil
}

func (r *Repository) RegisterFailedAttempt(ctx context.Context, email string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sign-in attempt tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(&failed, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			failed = 0
			lockedUntil = sql.NullTime{}
		} else {
			return nil, fmt.Errorf("lock sign-in attempt row: %w", err)
		}
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return &until, nil
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any = nil
	if failed >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_login_attempts (email, failed_attempts, locked_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email)
		DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			updated_at = EXCLUDED.updated_at
	`, email, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert failed sign-in attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sign-in attempt tx: %w", err)
	}

	return nextLock, nil
}

func (r *Repository) ResetSignInAttempt(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_login_attempts
		WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("reset sign-in attempts: %w", err)
	}

	return nil
}

// UpsertAdminUser seeds or refreshes the bootstrap admin account by email.
func (r *Repository) UpsertAdminUser(ctx context.Context, email, plainPassword string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admin upsert tx: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'admin', $4, $4)
		ON CONFLICT (email)
		DO UPDATE SET password_hash = EXCLUDED.password_hash, role = 'admin', updated_at = EXCLUDED.updated_at
		RETURNING id
	`, id.String(), email, string(hash), now).Scan(&userID)
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, updated_at)
		VALUES ($1, 'Administrator', $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return fmt.Errorf("insert admin profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admin upsert tx: %w", err)
	}

	return nil
}

// RepairBanLabels clears display labels left behind by expired or lifted
// bans. The label is a derived cache of banned_until, repaired here rather
// than trusted anywhere.
func (r *Repository) RepairBanLabels(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH diverged AS (
			SELECT p.user_id
			FROM profiles p
			JOIN users u ON u.id = p.user_id
			WHERE p.ban_duration IS NOT NULL
			  AND (u.banned_until IS NULL OR u.banned_until <= NOW())
			LIMIT $1
		)
		UPDATE profiles p
		SET ban_duration = NULL, updated_at = NOW()
		FROM diverged
		WHERE p.user_id = diverged.user_id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("repair ban labels: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ban label rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) DeleteStaleSignInAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT email
			FROM auth_login_attempts
			WHERE updated_at < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_attempts t
		USING stale
		WHERE t.email = stale.email
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale sign-in attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale sign-in attempts rows affected: %w", err)
	}

	return affected, nil
}
