package session

import (
	"net/http"
	"time"
)

const CookieName = "store_session"

// clearedCookieNames is the full set of cookie names torn down at sign-out.
// An explicit list, not pattern matching: "store_auth" is the pre-rotation
// cookie name and can be dropped once old browsers have aged it out.
var clearedCookieNames = []string{
	CookieName,
	"store_auth",
}

func (s *Store) WriteCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookies expires every known auth cookie on the response.
func ClearCookies(w http.ResponseWriter) {
	for _, name := range clearedCookieNames {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
