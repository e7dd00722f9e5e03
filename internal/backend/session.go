package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/store"

	"go.uber.org/zap"
)

// AuthSession 持有一个用户会话（浏览器会话或 CLI），持久化到 KV，
// 并在登录/登出/刷新时通知监听者
type AuthSession struct {
	client *Client
	kv     store.KV
	key    string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]domain.AuthStateListener
	nextID    int
}

// NewAuthSession binds a session slot (kv key) to the backend client.
func NewAuthSession(client *Client, kv store.KV, key string, ttl time.Duration, logger *zap.Logger) *AuthSession {
	return &AuthSession{
		client:    client,
		kv:        kv,
		key:       key,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]domain.AuthStateListener),
	}
}

// OnAuthStateChange registers fn and returns the function that unregisters it.
func (a *AuthSession) OnAuthStateChange(fn domain.AuthStateListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *AuthSession) emit(event domain.AuthEvent, s *domain.Session) {
	a.mu.Lock()
	fns := make([]domain.AuthStateListener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

// GetSession returns the stored session, refreshing it when the access token
// has expired. (nil, nil) means signed out.
func (a *AuthSession) GetSession(ctx context.Context) (*domain.Session, error) {
	raw, err := a.kv.Get(ctx, a.key)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		a.logger.Warn("Discarding unreadable stored session", zap.String("key", a.key), zap.Error(err))
		_ = a.kv.Delete(ctx, a.key)
		return nil, nil
	}
	if !s.Expired(a.now()) {
		return &s, nil
	}

	refreshed, err := a.client.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		var be *Error
		if !errors.As(err, &be) {
			// transport failure: keep the stored session for the next attempt
			return nil, err
		}
		a.logger.Info("Session refresh rejected, signing out", zap.String("user_id", s.User.ID), zap.Error(err))
		if err := a.kv.Delete(ctx, a.key); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
		a.emit(domain.EventSignedOut, nil)
		return nil, nil
	}
	if err := a.save(ctx, refreshed); err != nil {
		return nil, err
	}
	a.emit(domain.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// SignIn authenticates and stores the new session.
func (a *AuthSession) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	s, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.save(ctx, s); err != nil {
		return nil, err
	}
	a.emit(domain.EventSignedIn, s)
	return s, nil
}

// SignUp registers an account; no session is stored until the e-mail is confirmed.
func (a *AuthSession) SignUp(ctx context.Context, email, password, redirectTo string) error {
	return a.client.SignUp(ctx, email, password, redirectTo)
}

// ResetPassword requests a reset link for email.
func (a *AuthSession) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return a.client.ResetPassword(ctx, email, redirectTo)
}

// SignOut revokes the stored session at the backend, then forgets it locally.
func (a *AuthSession) SignOut(ctx context.Context) error {
	raw, err := a.kv.Get(ctx, a.key)
	if err != nil && !errors.Is(err, store.ErrMiss) {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if err == nil {
		var s domain.Session
		if json.Unmarshal([]byte(raw), &s) == nil && s.AccessToken != "" {
			if err := a.client.SignOut(ctx, s.AccessToken); err != nil {
				var be *Error
				// an already revoked or expired token is signed out anyway
				if !errors.As(err, &be) || (be.Status != 401 && be.Status != 403 && be.Status != 404) {
					return err
				}
			}
		}
	}
	if err := a.kv.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	a.emit(domain.EventSignedOut, nil)
	return nil
}

func (a *AuthSession) save(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := a.kv.Set(ctx, a.key, string(raw), a.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
