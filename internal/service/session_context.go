package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"go.uber.org/zap"
)

// SessionSource 会话协作方：读取当前会话 + 订阅认证状态变化
type SessionSource interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(fn domain.AuthStateListener) (unsubscribe func())
}

// SessionContext owns the current session of one user. Start loads it and
// registers exactly one auth-state callback with the source; Stop
// unregisters it. Components read the user through Current and get change
// notifications through Subscribe.
type SessionContext struct {
	source SessionSource
	logger *zap.Logger

	mu          sync.Mutex
	current     *domain.Session
	loaded      bool
	unsubscribe func()
	subscribers map[int]domain.AuthStateListener
	nextID      int
}

func NewSessionContext(source SessionSource, logger *zap.Logger) *SessionContext {
	return &SessionContext{
		source:      source,
		logger:      logger,
		subscribers: make(map[int]domain.AuthStateListener),
	}
}

// Start loads the initial session and begins listening. Calling Start on a
// started context is a no-op.
func (c *SessionContext) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	s, err := c.source.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	unsubscribe := c.source.OnAuthStateChange(c.onAuthStateChange)

	c.mu.Lock()
	if c.unsubscribe != nil {
		// lost a race with a concurrent Start
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.unsubscribe = unsubscribe
	c.current = s
	c.loaded = true
	c.mu.Unlock()

	c.publish(domain.EventInitialSession, s)
	return nil
}

// Stop unregisters the auth-state callback and forgets the session.
func (c *SessionContext) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.current = nil
	c.loaded = false
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Loading reports whether the initial session has not been loaded yet.
func (c *SessionContext) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loaded
}

// Current returns the current session, nil when signed out.
func (c *SessionContext) Current() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// User returns the signed-in user, nil when signed out.
func (c *SessionContext) User() *domain.User {
	s := c.Current()
	if s == nil {
		return nil
	}
	u := s.User
	return &u
}

// Subscribe registers fn for session changes and returns its cancel function.
func (c *SessionContext) Subscribe(fn domain.AuthStateListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// WithSession attaches the current session to ctx for storage collaborators.
func (c *SessionContext) WithSession(ctx context.Context) context.Context {
	return domain.ContextWithSession(ctx, c.Current())
}

func (c *SessionContext) onAuthStateChange(event domain.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	if c.unsubscribe == nil {
		c.mu.Unlock()
		return
	}
	c.current = s
	c.mu.Unlock()

	c.logger.Debug("Auth state changed", zap.String("event", string(event)))
	c.publish(event, s)
}

func (c *SessionContext) publish(event domain.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	fns := make([]domain.AuthStateListener, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}
