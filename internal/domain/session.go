package domain

import (
	"context"
	"time"
)

// User is the authenticated account as reported by the auth backend.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
}

// Session 认证会话（由外部认证服务签发）
type Session struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	User         User      `json:"user" yaml:"user"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEvent 认证状态变更事件
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthStateListener receives auth state changes. s is nil after sign-out.
type AuthStateListener func(event AuthEvent, s *Session)

type sessionKey struct{}

// ContextWithSession attaches s so storage collaborators can act on behalf of the user.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by ContextWithSession, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
