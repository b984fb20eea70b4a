package gate

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name        string
		hasSession  bool
		bannedUntil *time.Time
		path        string
		query       url.Values
		want        Decision
	}{
		{
			name:       "anonymous on protected route redirects to sign-in",
			hasSession: false,
			path:       "/dashboard/users",
			want:       Decision{Action: RedirectSignIn, Location: "/sign-in"},
		},
		{
			name:       "anonymous on public route is allowed",
			hasSession: false,
			path:       "/sign-in",
			want:       Decision{Action: Allow},
		},
		{
			name:       "signed-in user on sign-in page goes home",
			hasSession: true,
			path:       "/sign-in",
			want:       Decision{Action: RedirectHome, Location: "/"},
		},
		{
			name:       "signed-in user on sign-up page goes home",
			hasSession: true,
			path:       "/sign-up",
			want:       Decision{Action: RedirectHome, Location: "/"},
		},
		{
			name:       "signed-in user on dashboard is allowed",
			hasSession: true,
			path:       "/dashboard/orders",
			want:       Decision{Action: Allow},
		},
		{
			name:        "banned user on protected route is signed out and redirected",
			hasSession:  true,
			bannedUntil: &future,
			path:        "/dashboard/orders",
			want: Decision{
				Action:            RedirectSignInBanned,
				Location:          "/sign-in?error=banned",
				InvalidateSession: true,
			},
		},
		{
			name:        "banned user on sign-in without error param is redirected",
			hasSession:  true,
			bannedUntil: &future,
			path:        "/sign-in",
			want: Decision{
				Action:            RedirectSignInBanned,
				Location:          "/sign-in?error=banned",
				InvalidateSession: true,
			},
		},
		{
			name:        "banned user on sign-in error page is allowed but torn down",
			hasSession:  true,
			bannedUntil: &future,
			path:        "/sign-in",
			query:       url.Values{"error": {"banned"}},
			want:        Decision{Action: Allow, InvalidateSession: true},
		},
		{
			name:        "banned identity without session on error page allows without teardown",
			hasSession:  false,
			bannedUntil: &future,
			path:        "/sign-in",
			query:       url.Values{"error": {"banned"}},
			want:        Decision{Action: Allow},
		},
		{
			name:        "expired ban is not a ban",
			hasSession:  true,
			bannedUntil: &past,
			path:        "/dashboard/orders",
			want:        Decision{Action: Allow},
		},
		{
			name:        "ban expiring exactly now is not a ban",
			hasSession:  true,
			bannedUntil: &now,
			path:        "/dashboard/orders",
			want:        Decision{Action: Allow},
		},
		{
			name:        "ban wins over the go-home rule",
			hasSession:  true,
			bannedUntil: &future,
			path:        "/sign-up",
			want: Decision{
				Action:            RedirectSignInBanned,
				Location:          "/sign-in?error=banned",
				InvalidateSession: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := tt.query
			if query == nil {
				query = url.Values{}
			}
			got := Decide(tt.hasSession, tt.bannedUntil, tt.path, query, now)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	query := url.Values{}

	first := Decide(true, &until, "/dashboard/orders", query, now)
	second := Decide(true, &until, "/dashboard/orders", query, now)
	require.Equal(t, first, second)
}
