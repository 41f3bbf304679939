// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
	"github.com/hitoshi/booklog/internal/repository"
	"github.com/hitoshi/booklog/internal/security"
)

// MaxNameLength は表示名の最大文字数。
const MaxNameLength = 150

// Service はユーザー管理のサービス層。
// プロフィール更新・ロール変更・退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		metrics:     collector,
	}
}

// GetCurrent は主体の最新のユーザー情報を返す。
func (s *Service) GetCurrent(ctx context.Context, principal *model.User) (*model.User, error) {
	if rbac.ResolveRole(principal) == model.RoleAnon {
		return nil, model.NewUnauthorizedError()
	}
	user, err := s.userRepo.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は表示名を更新する。ロール・メールアドレスは本人が変更できない。
func (s *Service) UpdateProfile(ctx context.Context, principal *model.User, name string) (*model.User, error) {
	if rbac.ResolveRole(principal) == model.RoleAnon {
		return nil, model.NewUnauthorizedError()
	}

	name = s.sanitizer.StripTags(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, model.NewValidationError(map[string]string{
			"name": fmt.Sprintf("名前は%d文字以内で入力してください。", MaxNameLength),
		})
	}

	if err := s.userRepo.UpdateName(ctx, principal.ID, name); err != nil {
		return nil, err
	}
	return s.GetCurrent(ctx, principal)
}

// ChangeRole は対象ユーザーのロールを変更する。STAFF/ADMINのみ実行できる。
// ADMINの付与とADMINのロール変更はADMINのみ。
// is_staff / is_superuser はロールと同時に再計算する。
func (s *Service) ChangeRole(ctx context.Context, actor *model.User, targetID, role string) (*model.User, error) {
	allowed := rbac.UserRolePolicy.Authorize(actor, rbac.ActionUpdate, nil)
	s.metrics.RecordAuthzDecision("users.role", string(rbac.ActionUpdate), allowed)
	if err := rbac.UserRolePolicy.Require(actor, rbac.ActionUpdate, nil); err != nil {
		return nil, err
	}

	parsed, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewValidationError(map[string]string{"role": "不正なロールです。"})
	}
	actorIsAdmin := actor.Role == string(model.RoleAdmin)
	if parsed == model.RoleAdmin && !actorIsAdmin {
		slog.Warn("admin role grant denied",
			slog.String("actor_id", actor.ID),
			slog.String("user_id", targetID),
		)
		return nil, model.NewForbiddenError()
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	if target.Role == string(model.RoleAdmin) && !actorIsAdmin {
		return nil, model.NewForbiddenError()
	}

	target.Role = string(parsed)
	target.SyncRoleFlags()
	if err := s.userRepo.UpdateRole(ctx, target); err != nil {
		return nil, err
	}

	slog.Info("user role changed",
		slog.String("actor_id", actor.ID),
		slog.String("user_id", target.ID),
		slog.String("role", target.Role),
	)
	return target, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: リクエスト・読書記録・引用・いいね・共有）
// カタログ（著者・ジャンル・書籍）は作成者をNULLにして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
