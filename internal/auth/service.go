// Package auth はアカウント登録・ログイン・セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/notify"
	"github.com/hitoshi/booklog/internal/password"
	"github.com/hitoshi/booklog/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Check(hash, plain string) bool
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// RegisterInput はアカウント登録の入力。
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
}

// EmailConfirmTokenIssuer は登録確認トークンの発行・検証インターフェース。
type EmailConfirmTokenIssuer interface {
	Issue(userID, email string) (string, error)
	Verify(raw string, maxAge time.Duration) (userID, email string, err error)
}

// EmailVerification は登録時のメールアドレス確認の設定。
// Tokensが未設定の場合、確認メールは送信されない。
type EmailVerification struct {
	Tokens EmailConfirmTokenIssuer
	Sender notify.Sender
	Links  notify.Links
	MaxAge time.Duration
}

// usernamePattern は英数字と @.+-_ のみを許可する。
var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	config      ServiceConfig
	verify      EmailVerification
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		config:      config,
	}
}

// WithEmailVerification は登録時の確認メール送信を有効にする。
func (s *Service) WithEmailVerification(v EmailVerification) *Service {
	s.verify = v
	return s
}

// Register は新しいユーザーをREADERロールで登録する。
// ロールはクライアントから指定できない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	fields := map[string]string{}
	if !usernamePattern.MatchString(in.Username) {
		fields["username"] = "ユーザー名は150文字以内の英数字と @.+-_ で入力してください。"
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields["email"] = "有効なメールアドレスを入力してください。"
	}
	if len(in.Password) < password.MinLength {
		fields["password"] = fmt.Sprintf("パスワードは%d文字以上で入力してください。", password.MinLength)
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         string(model.RoleReader),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.SyncRoleFlags()

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	s.sendConfirmation(ctx, user)
	return user, nil
}

// sendConfirmation は登録確認メールを送る。失敗しても登録は取り消さない。
func (s *Service) sendConfirmation(ctx context.Context, user *model.User) {
	if s.verify.Tokens == nil || s.verify.Sender == nil {
		return
	}
	raw, err := s.verify.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		slog.WarnContext(ctx, "failed to issue email confirmation token",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	subject, body := notify.SignupConfirmationMessage(user.DisplayName(), s.verify.Links.VerifyEmail(raw), s.verify.MaxAge)
	if err := s.verify.Sender.Send(ctx, user.Email, subject, body); err != nil {
		slog.WarnContext(ctx, "failed to send email confirmation",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}
}

// ConfirmEmail は登録確認トークンを検証し、メールアドレスを確認済みにする。
// 発行後にメールアドレスが変更されている場合はINVALIDを返す。
func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) (*model.User, error) {
	if s.verify.Tokens == nil {
		return nil, model.NewInvalidSignatureError()
	}
	userID, email, err := s.verify.Tokens.Verify(strings.TrimSpace(rawToken), s.verify.MaxAge)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if !strings.EqualFold(user.Email, email) {
		return nil, model.NewInvalidSignatureError()
	}
	if user.EmailConfirmed {
		return user, nil
	}

	if err := s.userRepo.ConfirmEmail(ctx, user.ID, email); err != nil {
		return nil, err
	}
	user.EmailConfirmed = true

	slog.Info("user email confirmed", slog.String("user_id", user.ID))
	return user, nil
}

// Login はユーザー名またはメールアドレスとパスワードで認証し、セッションを発行する。
// 失敗理由は区別せずUNAUTHORIZEDを返す。
func (s *Service) Login(ctx context.Context, login, plain string) (*model.Session, *model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || plain == "" {
		return nil, nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByLogin(ctx, login)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive || !s.hasher.Check(user.PasswordHash, plain) {
		slog.Warn("login failed", slog.String("login", login))
		return nil, nil, model.NewUnauthorizedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションがない・期限切れの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
