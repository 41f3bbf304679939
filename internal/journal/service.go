// Package journal は読書記録ドメイン（著者・ジャンル・書籍・読書記録・引用・いいね・共有）の
// ビジネスロジックを提供する。認可はrbacの権限表、公開状態はmoderationで管理する。
package journal

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
	"github.com/hitoshi/booklog/internal/repository"
	"github.com/hitoshi/booklog/internal/security"
)

// リソース名。認可メトリクスのラベルとして使う。
const (
	ResourceAuthors = "authors"
	ResourceGenres  = "genres"
	ResourceBooks   = "books"
	ResourceLogs    = "logs"
	ResourceQuotes  = "quotes"
	ResourceLikes   = "likes"
	ResourceShares  = "shares"
)

// Deps はServiceが利用するリポジトリと共通コンポーネント。
type Deps struct {
	Authors   repository.AuthorRepository
	Genres    repository.GenreRepository
	Books     repository.BookRepository
	Logs      repository.BookLogRepository
	Quotes    repository.QuoteRepository
	Likes     repository.LikeRepository
	Shares    repository.ShareRepository
	Sanitizer security.TextSanitizer
	Metrics   metrics.MetricsCollector
}

// Service は読書記録ドメインのサービス層。
type Service struct {
	authors *Catalogue[*model.Author]
	genres  *Catalogue[*model.Genre]
	books   *Catalogue[*model.Book]

	logs   repository.BookLogRepository
	quotes repository.QuoteRepository
	likes  repository.LikeRepository
	shares repository.ShareRepository

	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = security.NewTextSanitizer()
	}

	s := &Service{
		logs:      deps.Logs,
		quotes:    deps.Quotes,
		likes:     deps.Likes,
		shares:    deps.Shares,
		sanitizer: deps.Sanitizer,
		metrics:   deps.Metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	s.authors = &Catalogue[*model.Author]{
		svc: s, resource: ResourceAuthors, subject: "著者", store: deps.Authors,
		idOf: func(a *model.Author) string { return a.ID },
	}
	s.genres = &Catalogue[*model.Genre]{
		svc: s, resource: ResourceGenres, subject: "ジャンル", store: deps.Genres,
		idOf: func(g *model.Genre) string { return g.ID },
	}
	s.books = &Catalogue[*model.Book]{
		svc: s, resource: ResourceBooks, subject: "書籍", store: deps.Books,
		idOf: func(b *model.Book) string { return b.ID },
	}
	return s
}

// Authors は著者カタログを返す。
func (s *Service) Authors() *Catalogue[*model.Author] { return s.authors }

// Genres はジャンルカタログを返す。
func (s *Service) Genres() *Catalogue[*model.Genre] { return s.genres }

// Books は書籍カタログを返す。
func (s *Service) Books() *Catalogue[*model.Book] { return s.books }

// require は権限表で判定し、結果をメトリクスに記録する。
// targetはコレクション操作ではnilを渡す（型付きnilを渡さないこと）。
func (s *Service) require(policy rbac.Policy, resource string, principal *model.User, action rbac.Action, target model.Owned) error {
	allowed := policy.Authorize(principal, action, target)
	s.metrics.RecordAuthzDecision(resource, string(action), allowed)
	if allowed {
		return nil
	}

	userID, role := viewer(principal)
	slog.Warn("authorization denied",
		slog.String("resource", resource),
		slog.String("action", string(action)),
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)
	return policy.Require(principal, action, target)
}

// viewer は閲覧者のIDと解決済みロールを返す。匿名の場合IDは空。
func viewer(principal *model.User) (string, model.Role) {
	role := rbac.ResolveRole(principal)
	if role == model.RoleAnon {
		return "", role
	}
	return principal.ID, role
}

// validID はIDがUUID形式かどうかを返す。不正な形式はストアに渡さずNOT_FOUNDにする。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
