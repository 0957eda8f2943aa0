package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the signed-in user of this profile.
type Session struct {
	User      string    `json:"user"`
	Token     string    `json:"token"`
	BaseURL   string    `json:"base_url"` // deployment the token was issued by
	CreatedAt time.Time `json:"created_at"`
}

// ExpiresAt returns the token's exp claim. Tokens that are not JWTs, or
// carry no exp claim, report ok == false. The signature is not verified.
func (s Session) ExpiresAt() (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

// Expired reports whether the token's exp claim is at or before now.
func (s Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}
