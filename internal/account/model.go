package account

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	BannedUntil  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile carries display-only fields. BanDuration mirrors the authoritative
// users.banned_until as a human-readable label; enforcement never reads it.
type Profile struct {
	UserID      string
	DisplayName string
	BanDuration *string
}

type SignInAttempt struct {
	Email          string
	FailedAttempts int
	LockedUntil    *time.Time
}
