package notify

import (
	"fmt"
	"time"
)

// ChallengeCode renders the step-up code mail.
func ChallengeCode(to, code string, ttl time.Duration) Message {
	return Message{
		Kind:    KindChallengeCode,
		To:      to,
		Subject: "Your sign-in verification code",
		Body: fmt.Sprintf("Your verification code is %s.\n\nIt expires in %d minutes and works only on the device and network that requested it.\n",
			code, int(ttl.Minutes())),
	}
}

// HijackAlert tells the user a session was ended because its device binding
// no longer matched.
func HijackAlert(userID, ip, userAgent string, at time.Time) Message {
	return Message{
		Kind:    KindHijack,
		UserID:  userID,
		Subject: "We signed out a session on your account",
		Body: fmt.Sprintf("A session on your account was used from a different device at %s (IP %s, %s) and has been signed out.\n\nIf this was not you, change your password.\n",
			at.UTC().Format(time.RFC1123), ip, userAgent),
	}
}

// TravelAlert reports an implausible location change. kind distinguishes a
// login attempt from an already-authenticated session.
func TravelAlert(kind Kind, userID string, from, to string, distanceKm, speedKmh float64, at time.Time) Message {
	return Message{
		Kind:    kind,
		UserID:  userID,
		Subject: "Unusual sign-in location",
		Body: fmt.Sprintf("Your account was used from %s shortly after %s (%.0f km apart, implying %.0f km/h) at %s.\n\nIf this was not you, review your active sessions.\n",
			to, from, distanceKm, speedKmh, at.UTC().Format(time.RFC1123)),
	}
}

// InterceptionAlert reports a verification code entered from a device other
// than the one that requested it.
func InterceptionAlert(to, ip string, at time.Time) Message {
	return Message{
		Kind:    KindInterception,
		To:      to,
		Subject: "Your verification code was used on another device",
		Body: fmt.Sprintf("Someone entered your verification code from a different device at %s (IP %s). The code has been cancelled.\n",
			at.UTC().Format(time.RFC1123), ip),
	}
}
