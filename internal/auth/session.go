// Package auth runs the challenge/poll login handshake and holds the
// resulting session identity.
package auth

import (
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// Stage is the position of the session in the login handshake.
type Stage int

const (
	Idle Stage = iota
	ChallengeIssued
	Polling
	Authenticated
	Expired
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case ChallengeIssued:
		return "challenge_issued"
	case Polling:
		return "polling"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session is a snapshot of the login state.
type Session struct {
	Stage     Stage         `json:"stage"`
	Person    domain.Person `json:"person"`
	Alias     string        `json:"alias,omitempty"`
	Challenge string        `json:"challenge,omitempty"`
	LoginURL  string        `json:"login_url,omitempty"`
	ExpiresAt time.Time     `json:"expires_at"`

	// Token is the bearer token issued by the server, if any.
	Token string `json:"-"`
}

// live reports whether s is authenticated and not past its expiry.
func (s Session) live(now time.Time) bool {
	if s.Stage != Authenticated {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
