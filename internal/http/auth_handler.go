package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"go.uber.org/zap"
)

// AuthHandler 认证 Handler（登录/注册/找回密码/登出）
type AuthHandler struct {
	authService service.AuthService
	sessions    *Sessions
	logger      *zap.Logger
}

// NewAuthHandler 创建认证 Handler
func NewAuthHandler(authService service.AuthService, sessions *Sessions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		logger:      logger,
	}
}

// sessionView 返回给前端的会话信息
type sessionView struct {
	User      *domain.User `json:"user"`
	ExpiresAt int64        `json:"expires_at,omitempty"`
}

func viewOf(s *domain.Session) *sessionView {
	if s == nil {
		return nil
	}
	v := &sessionView{User: &domain.User{ID: s.User.ID, Email: s.User.Email}}
	if !s.ExpiresAt.IsZero() {
		v.ExpiresAt = s.ExpiresAt.Unix()
	}
	return v
}

// Session 当前会话；未登录时 result 为 null
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sc, err := h.sessions.Open(r.Context(), r)
	if err != nil {
		h.logger.Error("Failed to load session", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(service.MsgUnexpected))
		return
	}
	defer sc.Stop()
	writeJSON(w, http.StatusOK, Ok(viewOf(sc.Current())))
}

// submit runs action as one submission of the session's auth form and writes
// the outcome. Validation errors are returned with their field messages.
func (h *AuthHandler) submit(w http.ResponseWriter, r *http.Request, sid, successMsg string, action func(ctx context.Context) error, result func() any) {
	form := h.sessions.Form(sid)
	defer h.sessions.Release(sid)
	form.Edit()

	var actionErr error
	outcome, err := form.Submit(r.Context(), successMsg, func(ctx context.Context) error {
		actionErr = action(ctx)
		return actionErr
	})
	if err != nil {
		writeJSON(w, http.StatusConflict, Fail(service.UserMessage(err)))
		return
	}
	if !outcome.OK {
		var verrs domain.ValidationErrors
		if errors.As(actionErr, &verrs) {
			writeJSON(w, http.StatusBadRequest, FailWith(outcome.Message, verrs))
			return
		}
		writeJSON(w, http.StatusOK, Fail(outcome.Message))
		return
	}
	var res any
	if result != nil {
		res = result()
	}
	writeJSON(w, http.StatusOK, OkWith(outcome.Message, res))
}

// SignIn 登录：username 先解析为 email，再调用认证服务
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req service.AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sid := h.sessions.Ensure(w, r)
	slot := h.sessions.Slot(sid)

	var session *domain.Session
	h.submit(w, r, sid, service.MsgSignedIn, func(ctx context.Context) error {
		s, err := h.authService.SignIn(ctx, slot, req)
		session = s
		return err
	}, func() any { return viewOf(session) })
}

// SignUp 注册：成功后等待邮件确认，不建立会话
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req service.AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sid := h.sessions.Ensure(w, r)
	slot := h.sessions.Slot(sid)

	h.submit(w, r, sid, service.MsgSignUpSent, func(ctx context.Context) error {
		return h.authService.SignUp(ctx, slot, req)
	}, nil)
}

// ForgotPassword 发送重置密码链接
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login string `json:"login"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sid := h.sessions.Ensure(w, r)
	slot := h.sessions.Slot(sid)

	h.submit(w, r, sid, service.MsgResetLinkSent, func(ctx context.Context) error {
		return h.authService.ForgotPassword(ctx, slot, req.Login)
	}, nil)
}

// SignOut 登出并清除 cookie
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sid := h.sessions.ID(r)
	if sid != "" {
		if err := h.authService.SignOut(r.Context(), h.sessions.Slot(sid)); err != nil {
			writeJSON(w, http.StatusOK, Fail(service.ActionMessage(err, service.MsgSignOutFail)))
			return
		}
		h.sessions.Forget(sid)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, OkWith[any](service.MsgSignedOut, nil))
}
