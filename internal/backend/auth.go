package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (t *tokenResponse) session(now time.Time) *domain.Session {
	s := &domain.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         domain.User{ID: t.User.ID, Email: t.User.Email},
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	default:
		s.ExpiresAt = TokenExpiry(t.AccessToken)
	}
	return s
}

// TokenExpiry reads the exp claim of an access token without verifying it.
// Verification is the backend's job; the client only needs to know when to refresh.
func TokenExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// SignIn 邮箱 + 密码登录
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var out tokenResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer("")).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post("/auth/v1/token")
	if err != nil {
		c.logger.Error("Backend sign-in call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call backend sign-in: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return out.session(time.Now()), nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var out tokenResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer("")).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&out).
		Post("/auth/v1/token")
	if err != nil {
		return nil, fmt.Errorf("failed to call backend token refresh: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return out.session(time.Now()), nil
}

// SignUp registers a new account. The backend mails a confirmation link that
// returns to redirectTo.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer("")).
		SetBody(map[string]string{"email": email, "password": password})
	if redirectTo != "" {
		req.SetQueryParam("redirect_to", redirectTo)
	}
	resp, err := req.Post("/auth/v1/signup")
	if err != nil {
		c.logger.Error("Backend sign-up call failed", zap.Error(err))
		return fmt.Errorf("failed to call backend sign-up: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		Post("/auth/v1/logout")
	if err != nil {
		return fmt.Errorf("failed to call backend sign-out: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

// ResetPassword asks the backend to mail a password reset link for email.
func (c *Client) ResetPassword(ctx context.Context, email, redirectTo string) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer("")).
		SetBody(map[string]string{"email": email})
	if redirectTo != "" {
		req.SetQueryParam("redirect_to", redirectTo)
	}
	resp, err := req.Post("/auth/v1/recover")
	if err != nil {
		return fmt.Errorf("failed to call backend password recovery: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

// GetUser returns the user behind accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	var out domain.User
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		SetResult(&out).
		Get("/auth/v1/user")
	if err != nil {
		return nil, fmt.Errorf("failed to call backend get user: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return &out, nil
}
