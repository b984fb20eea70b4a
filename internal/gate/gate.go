package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"store-gateway/internal/account"
	"store-gateway/internal/observability"
	"store-gateway/internal/session"
)

// SessionResolver resolves and tears down sessions from request credentials.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*session.Session, error)
	Destroy(ctx context.Context, sess *session.Session) error
}

// BanStatusLookup reads the authoritative banned_until timestamp for an
// identity, using elevated credentials rather than the end user's own.
type BanStatusLookup interface {
	BanStatus(ctx context.Context, userID string) (*time.Time, error)
}

// defaultSkipPrefixes are matched against the path with its leading slash
// trimmed. API routes enforce authorization on their own (service tokens).
var defaultSkipPrefixes = []string{
	"api",
	"static",
	"favicon.ico",
	"metrics",
	"health",
	"internal",
}

// Gate intercepts every browser-facing request, resolves the session, checks
// ban status, and applies the access decision. The underlying store handles
// are process-wide singletons injected once at construction.
type Gate struct {
	sessions     SessionResolver
	bans         BanStatusLookup
	logger       *observability.Logger
	metrics      *observability.Metrics
	skipPrefixes []string
}

func New(sessions SessionResolver, bans BanStatusLookup, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	return &Gate{
		sessions:     sessions,
		bans:         bans,
		logger:       logger,
		metrics:      metrics,
		skipPrefixes: defaultSkipPrefixes,
	}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		sess, err := g.sessions.Resolve(ctx, r)
		if err != nil {
			g.logger.Error("gate_session_resolve_failed", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		// Lookup only runs when a session exists; anonymous requests are
		// decided on session presence alone.
		var bannedUntil *time.Time
		if sess != nil {
			bannedUntil, err = g.bans.BanStatus(ctx, sess.UserID)
			if err != nil {
				// Fail open: an inconclusive or errored lookup is treated as
				// not banned, never as an indefinite silent lockout.
				g.metrics.RecordBanLookupFailure()
				fields := map[string]any{
					"user_id": sess.UserID,
					"path":    r.URL.Path,
					"error":   err.Error(),
				}
				if errors.Is(err, account.ErrBanStatusNotFound) {
					g.logger.Warn("gate_ban_lookup_inconclusive", fields)
				} else {
					g.logger.Error("gate_ban_lookup_failed", fields)
					sentry.CaptureException(err)
				}
				bannedUntil = nil
			}
		}

		decision := Decide(sess != nil, bannedUntil, r.URL.Path, r.URL.Query(), time.Now().UTC())
		g.metrics.RecordGateDecision(decision.Action.String())

		if decision.InvalidateSession && sess != nil {
			if err := g.sessions.Destroy(ctx, sess); err != nil {
				// Best-effort: a failed teardown never blocks the redirect.
				g.metrics.RecordSessionTeardownFailure()
				g.logger.Error("gate_session_teardown_failed", map[string]any{
					"user_id": sess.UserID,
					"error":   err.Error(),
				})
			}
			session.ClearCookies(w)
		}

		if decision.Action == Allow {
			next.ServeHTTP(w, r)
			return
		}

		http.Redirect(w, r, decision.Location, http.StatusSeeOther)
	})
}

func (g *Gate) skip(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return true
	}

	for _, prefix := range g.skipPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}

	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
