// Package account はメールアドレス変更・パスワードリセット・プロフィール削除の
// トークンフローを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/notify"
	"github.com/hitoshi/booklog/internal/password"
	"github.com/hitoshi/booklog/internal/rbac"
	"github.com/hitoshi/booklog/internal/repository"
)

// フロー名。メトリクスとログのラベルに使う。
const (
	FlowEmailChange     = "email_change"
	FlowPasswordReset   = "password_reset"
	FlowProfileDeletion = "profile_deletion"
)

// PasswordHasher はパスワードのハッシュ化インターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// DeletionTokenIssuer は削除トークンの発行・検証インターフェース。
type DeletionTokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(raw string, maxAge time.Duration) (string, error)
}

// Withdrawer はユーザー削除のインターフェース。
type Withdrawer interface {
	Withdraw(ctx context.Context, userID string) error
}

// Config はアカウント操作の設定。
type Config struct {
	RequestTTL     time.Duration // メール変更・パスワードリセットの有効期間
	DeletionMaxAge time.Duration // 削除トークンの有効期間。0以下なら常に期限切れ
}

// Deps はServiceの依存関係。
type Deps struct {
	Users          repository.UserRepository
	EmailChanges   repository.EmailChangeRepository
	PasswordResets repository.PasswordResetRepository
	Sender         notify.Sender
	Links          notify.Links
	Hasher         PasswordHasher
	Tokens         DeletionTokenIssuer
	Withdrawer     Withdrawer
	Metrics        metrics.MetricsCollector
}

// Notice は通知送信の結果。送信に失敗してもリクエストは有効なまま残る。
type Notice struct {
	NotificationFailed bool
}

// EmailChangeOutcome はメールアドレス変更リクエストの作成結果。
type EmailChangeOutcome struct {
	Request *model.EmailChangeRequest
	Notice
}

// PasswordResetOutcome はパスワードリセットリクエストの作成結果。
type PasswordResetOutcome struct {
	Request *model.PasswordResetRequest
	Notice
}

// Service はアカウント操作のサービス層。
type Service struct {
	deps   Deps
	config Config
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps Deps, config Config) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if config.RequestTTL <= 0 {
		config.RequestTTL = model.DefaultRequestTTL
	}
	return &Service{deps: deps, config: config, now: time.Now}
}

// RequestEmailChange はメールアドレス変更リクエストを作成し、新しいアドレスへ確認メールを送る。
func (s *Service) RequestEmailChange(ctx context.Context, principal *model.User, newEmail string) (*EmailChangeOutcome, error) {
	outcome, err := s.requestEmailChange(ctx, principal, newEmail)
	s.record(FlowEmailChange, "request", err)
	return outcome, err
}

func (s *Service) requestEmailChange(ctx context.Context, principal *model.User, newEmail string) (*EmailChangeOutcome, error) {
	if rbac.ResolveRole(principal) == model.RoleAnon {
		return nil, model.NewUnauthorizedError()
	}

	newEmail = strings.TrimSpace(newEmail)
	if err := validateEmail("new_email", newEmail); err != nil {
		return nil, err
	}
	if strings.EqualFold(newEmail, principal.Email) {
		return nil, model.NewDuplicateTargetError("new_email")
	}

	req := &model.EmailChangeRequest{
		ExpiringRequest: model.ExpiringRequest{
			ID:        uuid.New().String(),
			UserID:    principal.ID,
			Token:     uuid.New().String(),
			CreatedAt: s.now(),
		},
		NewEmail: newEmail,
	}
	if err := s.deps.EmailChanges.Create(ctx, req, s.config.RequestTTL); err != nil {
		return nil, err
	}

	slog.Info("email change requested",
		slog.String("user_id", principal.ID),
		slog.String("request_id", req.ID),
	)

	subject, body := notify.EmailChangeMessage(s.deps.Links.ConfirmEmail(req.Token))
	return &EmailChangeOutcome{
		Request: req,
		Notice:  s.notify(ctx, FlowEmailChange, newEmail, subject, body),
	}, nil
}

// ConfirmEmailChange はトークンを検証してメールアドレスを変更する。
// 判定は存在 → 使用済み → 期限切れの順に行い、最初に該当したエラーを返す。
func (s *Service) ConfirmEmailChange(ctx context.Context, rawToken string) (*model.User, error) {
	user, err := s.confirmEmailChange(ctx, rawToken)
	s.record(FlowEmailChange, "confirm", err)
	return user, err
}

func (s *Service) confirmEmailChange(ctx context.Context, rawToken string) (*model.User, error) {
	tok, ok := normalizeToken(rawToken)
	if !ok {
		return nil, model.NewMalformedTokenError()
	}
	req, err := s.deps.EmailChanges.FindByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("failed to find email change request: %w", err)
	}
	if req == nil {
		return nil, model.NewInvalidTokenError()
	}
	if err := s.checkUsable(&req.ExpiringRequest); err != nil {
		return nil, err
	}

	if err := s.deps.EmailChanges.Consume(ctx, req); err != nil {
		return nil, err
	}

	slog.Info("email change confirmed",
		slog.String("user_id", req.UserID),
		slog.String("request_id", req.ID),
	)
	return s.reloadUser(ctx, req.UserID)
}

// RequestPasswordReset は登録済みメールアドレスに対してパスワードリセットリクエストを作成する。
// 未登録のアドレスにはNOT_FOUNDを返す。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetOutcome, error) {
	outcome, err := s.requestPasswordReset(ctx, email)
	s.record(FlowPasswordReset, "request", err)
	return outcome, err
}

func (s *Service) requestPasswordReset(ctx context.Context, email string) (*PasswordResetOutcome, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		notFound := model.NewNotFoundError("メールアドレスのユーザー")
		notFound.Fields = map[string]string{"email": "このメールアドレスのユーザーは存在しません。"}
		return nil, notFound
	}

	req := &model.PasswordResetRequest{
		ExpiringRequest: model.ExpiringRequest{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			Token:     uuid.New().String(),
			CreatedAt: s.now(),
		},
	}
	if err := s.deps.PasswordResets.Create(ctx, req, s.config.RequestTTL); err != nil {
		return nil, err
	}

	slog.Info("password reset requested",
		slog.String("user_id", user.ID),
		slog.String("request_id", req.ID),
	)

	subject, body := notify.PasswordResetMessage(s.deps.Links.ResetPassword(req.Token))
	return &PasswordResetOutcome{
		Request: req,
		Notice:  s.notify(ctx, FlowPasswordReset, user.Email, subject, body),
	}, nil
}

// ConfirmPasswordReset は新しいパスワードを設定する。
// 入力の一致確認はトークンの検索より先に行う。
func (s *Service) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword, reNewPassword string) (*model.User, error) {
	user, err := s.confirmPasswordReset(ctx, rawToken, newPassword, reNewPassword)
	s.record(FlowPasswordReset, "confirm", err)
	return user, err
}

func (s *Service) confirmPasswordReset(ctx context.Context, rawToken, newPassword, reNewPassword string) (*model.User, error) {
	if newPassword != reNewPassword {
		return nil, model.NewMismatchError("re_new_password")
	}
	if len(newPassword) < password.MinLength {
		return nil, model.NewValidationError(map[string]string{
			"new_password": fmt.Sprintf("パスワードは%d文字以上で入力してください。", password.MinLength),
		})
	}

	tok, ok := normalizeToken(rawToken)
	if !ok {
		return nil, model.NewMalformedTokenError()
	}
	req, err := s.deps.PasswordResets.FindByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset request: %w", err)
	}
	if req == nil {
		return nil, model.NewInvalidTokenError()
	}
	if err := s.checkUsable(&req.ExpiringRequest); err != nil {
		return nil, err
	}

	hash, err := s.deps.Hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.deps.PasswordResets.Consume(ctx, req, hash); err != nil {
		return nil, err
	}

	slog.Info("password reset confirmed",
		slog.String("user_id", req.UserID),
		slog.String("request_id", req.ID),
	)
	return s.reloadUser(ctx, req.UserID)
}

// RequestDeletion は削除トークンを発行し、本人のメールアドレスへ確認リンクを送る。
func (s *Service) RequestDeletion(ctx context.Context, principal *model.User) (*Notice, error) {
	notice, err := s.requestDeletion(ctx, principal)
	s.record(FlowProfileDeletion, "request", err)
	return notice, err
}

func (s *Service) requestDeletion(ctx context.Context, principal *model.User) (*Notice, error) {
	if rbac.ResolveRole(principal) == model.RoleAnon {
		return nil, model.NewUnauthorizedError()
	}

	raw, err := s.deps.Tokens.Issue(principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue deletion token: %w", err)
	}

	slog.Info("profile deletion requested", slog.String("user_id", principal.ID))

	subject, body := notify.DeletionMessage(principal.DisplayName(), s.deps.Links.ConfirmDeletion(raw), s.config.DeletionMaxAge)
	notice := s.notify(ctx, FlowProfileDeletion, principal.Email, subject, body)
	return &notice, nil
}

// ConfirmDeletion は削除トークンを検証してユーザーを削除する。
// トークンは使用済み管理をしないため、削除完了までは再利用できる。
func (s *Service) ConfirmDeletion(ctx context.Context, rawToken string) error {
	err := s.confirmDeletion(ctx, rawToken)
	s.record(FlowProfileDeletion, "confirm", err)
	return err
}

func (s *Service) confirmDeletion(ctx context.Context, rawToken string) error {
	userID, err := s.deps.Tokens.Verify(strings.TrimSpace(rawToken), s.config.DeletionMaxAge)
	if err != nil {
		return err
	}
	if err := s.deps.Withdrawer.Withdraw(ctx, userID); err != nil {
		if model.IsKind(err, model.ErrCodeUserNotFound) {
			return model.NewNotFoundError("ユーザー")
		}
		return err
	}
	slog.Info("profile deleted", slog.String("user_id", userID))
	return nil
}

// checkUsable は使用済み・期限切れを順に判定する。
func (s *Service) checkUsable(req *model.ExpiringRequest) error {
	if req.Used {
		return model.NewAlreadyUsedError()
	}
	if req.IsExpired(s.now(), s.config.RequestTTL) {
		return model.NewExpiredError()
	}
	return nil
}

// notify はメールを送信する。失敗はログとメトリクスに残し、呼び出し元へは結果のみ返す。
func (s *Service) notify(ctx context.Context, flow, to, subject, body string) Notice {
	if err := s.deps.Sender.Send(ctx, to, subject, body); err != nil {
		slog.Warn("failed to send notification",
			slog.String("flow", flow),
			slog.String("error", err.Error()),
		)
		s.deps.Metrics.RecordNotificationFailure(flow)
		return Notice{NotificationFailed: true}
	}
	return Notice{}
}

func (s *Service) reloadUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) record(flow, step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			outcome = apiErr.Code
		}
	}
	s.deps.Metrics.RecordAccountAction(flow, step, outcome)
}

// normalizeToken はトークン文字列をUUIDの正規形に変換する。
func normalizeToken(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func validateEmail(field, email string) error {
	if email == "" {
		return model.NewValidationError(map[string]string{field: "メールアドレスを入力してください。"})
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError(map[string]string{field: "有効なメールアドレスを入力してください。"})
	}
	return nil
}
