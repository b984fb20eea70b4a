package gate

import (
	"net/url"
	"strings"
	"time"
)

type Action int

const (
	Allow Action = iota
	RedirectSignIn
	RedirectSignInBanned
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectSignInBanned:
		return "redirect_sign_in_banned"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decision is computed per request and never persisted. InvalidateSession can
// be set even when the action is Allow: a banned identity landing on the
// sign-in error page still has its session torn down, in case the session was
// refreshed between requests.
type Decision struct {
	Action            Action
	Location          string
	InvalidateSession bool
}

const (
	signInPath      = "/sign-in"
	signUpPath      = "/sign-up"
	protectedPrefix = "/dashboard"
	homePath        = "/"

	bannedErrorParam = "error"
	bannedErrorValue = "banned"
)

// Decide is a pure function of its inputs. The banned check runs first and
// always wins: a banned identity never reaches a protected route, and its
// session is actively torn down rather than merely denied, since the session
// would otherwise stay valid for entry points outside this gate.
//
// The ban comparison is strict: bannedUntil at or before now means not banned.
func Decide(hasSession bool, bannedUntil *time.Time, path string, query url.Values, now time.Time) Decision {
	banned := bannedUntil != nil && bannedUntil.After(now)
	onSignInPage := strings.HasPrefix(path, signInPath)

	if banned {
		if !onSignInPage || query.Get(bannedErrorParam) != bannedErrorValue {
			return Decision{
				Action:            RedirectSignInBanned,
				Location:          signInPath + "?" + bannedErrorParam + "=" + bannedErrorValue,
				InvalidateSession: true,
			}
		}
		return Decision{Action: Allow, InvalidateSession: hasSession}
	}

	if !hasSession && strings.HasPrefix(path, protectedPrefix) {
		return Decision{Action: RedirectSignIn, Location: signInPath}
	}

	if hasSession && (onSignInPage || strings.HasPrefix(path, signUpPath)) {
		return Decision{Action: RedirectHome, Location: homePath}
	}

	return Decision{Action: Allow}
}
