package account

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"store-gateway/internal/session"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service  *Service
	sessions *session.Store
}

func NewHandler(service *Service, sessions *session.Store) *Handler {
	return &Handler{service: service, sessions: sessions}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type banRequest struct {
	DurationHours int    `json:"duration_hours"`
	Label         string `json:"label"`
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body signInRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	body.Password = strings.TrimSpace(body.Password)
	if !emailRegex.MatchString(body.Email) || len(body.Email) > 254 {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	sess, err := h.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var bannedErr ErrAccountBanned
		if errors.As(err, &bannedErr) {
			writeError(w, http.StatusForbidden, "account is banned")
			return
		}
		var lockedErr ErrSignInLocked
		if errors.As(err, &lockedErr) {
			retryAfter := int(time.Until(lockedErr.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "sign-in temporarily locked")
			return
		}

		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	h.sessions.WriteCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Resolve(r.Context(), r)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	if err := h.sessions.Destroy(r.Context(), sess); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	session.ClearCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// SignInPage backs the /sign-in route behind the gate. The banned error is
// surfaced from the query string the gate redirects with.
func (h *Handler) SignInPage(w http.ResponseWriter, r *http.Request) {
	payload := map[string]string{"page": "sign-in"}
	if r.URL.Query().Get("error") == "banned" {
		payload["error"] = "banned"
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"page": "sign-up"})
}

func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body banRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Label = strings.TrimSpace(body.Label)
	if body.DurationHours <= 0 || body.DurationHours > 24*365 {
		writeError(w, http.StatusBadRequest, "duration_hours must be between 1 and 8760")
		return
	}
	if body.Label == "" || len(body.Label) > 100 {
		writeError(w, http.StatusBadRequest, "label is invalid")
		return
	}

	err := h.service.Ban(r.Context(), id, time.Duration(body.DurationHours)*time.Hour, body.Label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to ban user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "banned"})
}

func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.service.Unban(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to unban user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unbanned"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
