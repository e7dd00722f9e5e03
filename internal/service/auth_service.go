package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"

	"go.uber.org/zap"
)

// Authenticator 认证协作方（一个用户会话的槽位，见 backend.AuthSession）
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) error
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
}

// AuthService 认证服务接口
// 每个方法都接收当前用户会话的 Authenticator，服务本身无状态
type AuthService interface {
	// 登录：用户名或邮箱 + 密码
	SignIn(ctx context.Context, auth Authenticator, req AuthRequest) (*domain.Session, error)

	// 注册：确认邮件跳回 SITE_URL
	SignUp(ctx context.Context, auth Authenticator, req AuthRequest) error

	// 忘记密码：只需要登录名
	ForgotPassword(ctx context.Context, auth Authenticator, login string) error

	SignOut(ctx context.Context, auth Authenticator) error
}

// AuthRequest 登录/注册表单
type AuthRequest struct {
	Login    string `json:"login"` // username or e-mail
	Password string `json:"password"`
}

// Validate checks the form fields: login at least 3 characters, password at least 6.
func (r AuthRequest) Validate() error {
	errs := domain.ValidationErrors{}
	if utf8.RuneCountInString(strings.TrimSpace(r.Login)) < 3 {
		errs["login"] = "Masukkan username atau email"
	}
	if utf8.RuneCountInString(r.Password) < 6 {
		errs["password"] = "Kata sandi minimal 6 karakter"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type authService struct {
	directory repository.UserDirectory
	siteURL   string
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(directory repository.UserDirectory, siteURL string, logger *zap.Logger) AuthService {
	return &authService{
		directory: directory,
		siteURL:   siteURL,
		logger:    logger,
	}
}

// redirectTo is where confirmation and reset e-mails send the user back to.
func (s *authService) redirectTo() string {
	return strings.TrimRight(s.siteURL, "/") + "/"
}

func (s *authService) SignIn(ctx context.Context, auth Authenticator, req AuthRequest) (*domain.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	email, err := s.resolve(ctx, req.Login, "sign_in")
	if err != nil {
		return nil, err
	}
	session, err := auth.SignIn(ctx, email, req.Password)
	if err != nil {
		s.logger.Warn("User sign-in failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	s.logger.Info("User signed in", zap.String("user_id", session.User.ID))
	return session, nil
}

func (s *authService) SignUp(ctx context.Context, auth Authenticator, req AuthRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	email, err := s.resolve(ctx, req.Login, "sign_up")
	if err != nil {
		return err
	}
	if err := auth.SignUp(ctx, email, req.Password, s.redirectTo()); err != nil {
		s.logger.Warn("User sign-up failed", zap.String("email", email), zap.Error(err))
		return err
	}
	s.logger.Info("User signed up, confirmation pending", zap.String("email", email))
	return nil
}

func (s *authService) ForgotPassword(ctx context.Context, auth Authenticator, login string) error {
	if strings.TrimSpace(login) == "" {
		return domain.ValidationErrors{"login": "Masukkan username atau email"}
	}
	email, err := s.resolve(ctx, login, "forgot_password")
	if err != nil {
		return err
	}
	if err := auth.ResetPassword(ctx, email, s.redirectTo()); err != nil {
		s.logger.Warn("Password reset request failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

func (s *authService) SignOut(ctx context.Context, auth Authenticator) error {
	if err := auth.SignOut(ctx); err != nil {
		s.logger.Error("User sign-out failed", zap.Error(err))
		return err
	}
	return nil
}

// resolve runs the username lookup before any auth call is made.
func (s *authService) resolve(ctx context.Context, login, flow string) (string, error) {
	email, err := ResolveEmail(ctx, login, s.directory)
	if err != nil {
		s.logger.Warn("Login resolution failed",
			zap.String("flow", flow),
			zap.String("login", strings.TrimSpace(login)),
			zap.Error(err),
		)
		return "", err
	}
	return email, nil
}
