package account

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func callWithToken(t *testing.T, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	nextCalled := false
	handler := ServiceTokenMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodPost, "/api/users/u1/ban", nil)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder, nextCalled
}

func TestServiceTokenRoundTrip(t *testing.T) {
	token, err := IssueServiceToken(testSecret, "ops", time.Minute)
	require.NoError(t, err)

	recorder, nextCalled := callWithToken(t, token)

	require.True(t, nextCalled)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestServiceTokenMissingHeader(t *testing.T) {
	recorder, nextCalled := callWithToken(t, "")

	require.False(t, nextCalled)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServiceTokenGarbageRejected(t *testing.T) {
	recorder, nextCalled := callWithToken(t, "not-a-jwt")

	require.False(t, nextCalled)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServiceTokenWrongSecretRejected(t *testing.T) {
	token, err := IssueServiceToken("another-secret", "ops", time.Minute)
	require.NoError(t, err)

	recorder, nextCalled := callWithToken(t, token)

	require.False(t, nextCalled)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServiceTokenWrongTypeRejected(t *testing.T) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": "ops",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"typ": "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	recorder, nextCalled := callWithToken(t, token)

	require.False(t, nextCalled)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServiceTokenExpiredRejected(t *testing.T) {
	token, err := IssueServiceToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)

	recorder, nextCalled := callWithToken(t, token)

	require.False(t, nextCalled)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
