package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookie 浏览器会话 cookie 名
const SessionCookie = "posyandu_session"

// AuthSlot is the auth collaborator bound to one browser session.
// backend.AuthSession implements it.
type AuthSlot interface {
	service.Authenticator
	service.SessionSource
}

// SlotFactory returns the AuthSlot of browser session sid.
type SlotFactory func(sid string) AuthSlot

// Sessions maps the session cookie to its auth slot and its auth form.
// Each browser session has one AuthForm, so overlapping submissions from the
// same browser are rejected. Only Submitting and Failed forms are retained;
// a Failed form idle longer than ttl is dropped.
type Sessions struct {
	factory SlotFactory
	ttl     time.Duration
	secure  bool
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	forms map[string]*formEntry
}

type formEntry struct {
	form *service.AuthForm
	used time.Time
}

func NewSessions(factory SlotFactory, ttl time.Duration, secure bool, logger *zap.Logger) *Sessions {
	return &Sessions{
		factory: factory,
		ttl:     ttl,
		secure:  secure,
		logger:  logger,
		now:     time.Now,
		forms:   make(map[string]*formEntry),
	}
}

// ID returns the session id of r, or "" when there is no cookie.
func (s *Sessions) ID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// Ensure returns the session id of r, issuing a new cookie if needed.
func (s *Sessions) Ensure(w http.ResponseWriter, r *http.Request) string {
	if sid := s.ID(r); sid != "" {
		return sid
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// Slot returns the auth slot of sid.
func (s *Sessions) Slot(sid string) AuthSlot {
	return s.factory(sid)
}

// Form returns the auth form of sid, creating it on first use.
func (s *Sessions) Form(sid string) *service.AuthForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expireLocked(now)
	e, ok := s.forms[sid]
	if !ok {
		e = &formEntry{form: service.NewAuthForm()}
		s.forms[sid] = e
	}
	e.used = now
	return e.form
}

// Release drops the auth form of sid unless it is Submitting or Failed.
func (s *Sessions) Release(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.forms[sid]
	if !ok {
		return
	}
	switch e.form.State() {
	case service.FormSubmitting, service.FormFailed:
		e.used = s.now()
	default:
		delete(s.forms, sid)
	}
}

// expireLocked 清理超过 ttl 未使用的 Failed 表单
func (s *Sessions) expireLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for sid, e := range s.forms {
		if e.form.State() != service.FormSubmitting && now.Sub(e.used) > s.ttl {
			delete(s.forms, sid)
		}
	}
}

func (s *Sessions) formCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// Forget drops the auth form of sid (after sign-out).
func (s *Sessions) Forget(sid string) {
	s.mu.Lock()
	delete(s.forms, sid)
	s.mu.Unlock()
}

// Open starts the SessionContext of r's session. The caller must Stop it.
// Without a cookie the returned context is started and signed out.
func (s *Sessions) Open(ctx context.Context, r *http.Request) (*service.SessionContext, error) {
	var source service.SessionSource = signedOut{}
	if sid := s.ID(r); sid != "" {
		source = s.factory(sid)
	}
	sc := service.NewSessionContext(source, s.logger)
	if err := sc.Start(ctx); err != nil {
		return nil, err
	}
	return sc, nil
}

// signedOut is the session source of a request without session cookie.
type signedOut struct{}

func (signedOut) GetSession(context.Context) (*domain.Session, error) { return nil, nil }

func (signedOut) OnAuthStateChange(domain.AuthStateListener) func() { return func() {} }
