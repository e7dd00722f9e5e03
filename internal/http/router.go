package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method wraps h with a method check.
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterHealthRoutes /health
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterAuthRoutes 注册认证路由
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.Handle("/api/v1/auth/session", method(http.MethodGet, h.Session))
	r.Handle("/api/v1/auth/sign-in", method(http.MethodPost, h.SignIn))
	r.Handle("/api/v1/auth/sign-up", method(http.MethodPost, h.SignUp))
	r.Handle("/api/v1/auth/forgot-password", method(http.MethodPost, h.ForgotPassword))
	r.Handle("/api/v1/auth/sign-out", method(http.MethodPost, h.SignOut))
}

// RegisterParticipantRoutes 注册参与者路由
func (r *Router) RegisterParticipantRoutes(h *ParticipantHandler) {
	// list / create
	r.Handle("/api/v1/participants", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// export + {id}
	r.Handle("/api/v1/participants/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/participants/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if id == "export" {
			method(http.MethodGet, h.Export)(w, req)
			return
		}
		switch req.Method {
		case http.MethodPut:
			h.Update(w, req, id)
		case http.MethodDelete:
			h.Delete(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}
