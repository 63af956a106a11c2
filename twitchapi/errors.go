package twitchapi

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds how much of an upstream body is kept on an error.
const maxErrorBody = 200

var (
	// ErrAuthConfiguration is returned before any network call when the
	// client id, client secret or refresh token is missing.
	ErrAuthConfiguration = errors.New("twitch auth not configured: require client id, client secret and refresh token")

	// ErrNotFound is returned when a lookup succeeds but yields no rows,
	// e.g. a channel login that does not exist.
	ErrNotFound = errors.New("not found")
)

// TransportError describes a failed Helix round trip: a network failure,
// a timeout, a non-2xx status or a body that could not be decoded.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("twitch %s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("twitch %s: status %d: %v: %q", e.Op, e.StatusCode, e.Err, e.Body)
	default:
		return fmt.Sprintf("twitch %s: status %d: %q", e.Op, e.StatusCode, e.Body)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthRefreshError is returned when the token endpoint rejects a refresh or
// cannot be reached.
type AuthRefreshError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthRefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitch token refresh failed: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("twitch token refresh failed: %v", e.Err)
	}
	return "twitch token refresh failed: " + e.Message
}

func (e *AuthRefreshError) Unwrap() error { return e.Err }

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
