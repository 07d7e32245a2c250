package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Storage keys shared with other clients of the same state store.
const (
	KeySession = "user"
	KeyExpiry  = "userExpiry"
	// KeyLegacyToken holds a bare bearer token written by the alternate
	// (OAuth) login flow.
	KeyLegacyToken = "jwt"
)

// Session represents the authenticated user. The token is the sole credential.
type Session struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token"`
}

// Equal reports whether two sessions carry the same values.
func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return *s == *o
}

// ParseSession decodes a persisted session value.
func ParseSession(raw string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

// Encode serialises the session in its persisted form.
func (s *Session) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(data), nil
}

// FormatExpiry renders an expiry instant as epoch milliseconds.
func FormatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseExpiry parses an epoch-millisecond expiry value.
func ParseExpiry(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiry %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}

// IsValidAt reports whether a session expiring at expiresAt is still valid at now.
func IsValidAt(expiresAt, now time.Time) bool {
	return now.Before(expiresAt)
}
