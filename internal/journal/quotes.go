package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
)

// QuoteQuery は引用一覧のクエリパラメータ。すべて任意。
type QuoteQuery struct {
	Author   string
	Genre    string
	DateFrom string
	DateTo   string
}

func (q QuoteQuery) filter(viewerID string, role model.Role) (model.QuoteFilter, error) {
	f := newForm(false, nil)
	filter := model.QuoteFilter{ViewerID: viewerID, Elevated: role.IsElevated()}
	if q.Author != "" {
		f.ref("author", &q.Author, &filter.AuthorID, false)
	}
	if q.Genre != "" {
		f.ref("genre", &q.Genre, &filter.GenreID, false)
	}
	f.date("date_from", optional(q.DateFrom), &filter.DateFrom)
	f.date("date_to", optional(q.DateTo), &filter.DateTo)
	f.order("date_to", filter.DateFrom, filter.DateTo)
	return filter, f.err()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// QuoteInput は引用の作成・更新入力。
type QuoteInput struct {
	BookID    *string `json:"book_id"`
	BookLogID *string `json:"book_log_id"`
	Note      *string `json:"note"`
	IsPrivate *bool   `json:"is_private"`
}

func (in QuoteInput) apply(f *form, q *model.Quote) error {
	f.ref("book_id", in.BookID, &q.BookID, true)
	f.ref("book_log_id", in.BookLogID, &q.BookLogID, false)
	f.richText("note", in.Note, &q.Note, true)
	if in.IsPrivate != nil {
		q.IsPrivate = *in.IsPrivate
	}
	return f.err()
}

// quoteVisible は非公開引用を所有者とSTAFF/ADMINに限定する。
func quoteVisible(q *model.Quote, viewerID string, role model.Role) bool {
	return !q.IsPrivate || role.IsElevated() || (viewerID != "" && q.CreatedBy == viewerID)
}

// ListQuotes は引用一覧を新しい順に返す。著者・ジャンル・作成日で絞り込める。
func (s *Service) ListQuotes(ctx context.Context, principal *model.User, query QuoteQuery) ([]*model.Quote, error) {
	if err := s.require(rbac.QuotePolicy, ResourceQuotes, principal, rbac.ActionList, nil); err != nil {
		return nil, err
	}

	filter, err := query.filter(viewer(principal))
	if err != nil {
		return nil, err
	}
	quotes, err := s.quotes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

// GetQuote は引用をいいね数・共有数付きで返す。
func (s *Service) GetQuote(ctx context.Context, principal *model.User, id string) (*model.Quote, error) {
	q, err := s.findVisibleQuote(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := s.require(rbac.QuotePolicy, ResourceQuotes, principal, rbac.ActionRetrieve, q); err != nil {
		return nil, err
	}
	return q, nil
}

// CreateQuote は引用を作成する。読書記録を紐付ける場合は自分の同じ書籍の記録に限る。
func (s *Service) CreateQuote(ctx context.Context, principal *model.User, in QuoteInput) (*model.Quote, error) {
	if err := s.require(rbac.QuotePolicy, ResourceQuotes, principal, rbac.ActionCreate, nil); err != nil {
		return nil, err
	}

	q := &model.Quote{ID: s.newID(), CreatedBy: principal.ID, CreatedAt: s.now()}
	if err := in.apply(newForm(true, s.sanitizer), q); err != nil {
		return nil, err
	}
	if err := s.checkQuoteLog(ctx, principal, q); err != nil {
		return nil, err
	}
	if err := s.quotes.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuote は引用を更新する。所有者またはSTAFF/ADMINのみ。
func (s *Service) UpdateQuote(ctx context.Context, principal *model.User, id string, in QuoteInput, partial bool) (*model.Quote, error) {
	action := rbac.ActionUpdate
	if partial {
		action = rbac.ActionPartialUpdate
	}

	q, err := s.findVisibleQuote(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := s.require(rbac.QuotePolicy, ResourceQuotes, principal, action, q); err != nil {
		return nil, err
	}
	if err := in.apply(newForm(!partial, s.sanitizer), q); err != nil {
		return nil, err
	}
	if err := s.checkQuoteLog(ctx, principal, q); err != nil {
		return nil, err
	}
	if err := s.quotes.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// DeleteQuote は引用を削除する。所有者またはSTAFF/ADMINのみ。
func (s *Service) DeleteQuote(ctx context.Context, principal *model.User, id string) error {
	q, err := s.findVisibleQuote(ctx, principal, id)
	if err != nil {
		return err
	}
	if err := s.require(rbac.QuotePolicy, ResourceQuotes, principal, rbac.ActionDestroy, q); err != nil {
		return err
	}
	return s.quotes.Delete(ctx, id)
}

// checkQuoteLog は紐付ける読書記録が主体のもので、同じ書籍の記録であることを確認する。
func (s *Service) checkQuoteLog(ctx context.Context, principal *model.User, q *model.Quote) error {
	if q.BookLogID == "" {
		return nil
	}
	l, err := s.findOwnLog(ctx, principal, q.BookLogID)
	if model.IsKind(err, model.ErrCodeNotFound) {
		return model.NewValidationError(map[string]string{"book_log_id": "読書記録が存在しません。"})
	}
	if err != nil {
		return err
	}
	if l.BookID != q.BookID {
		return model.NewValidationError(map[string]string{"book_log_id": "読書記録の書籍と引用の書籍が一致しません。"})
	}
	return nil
}

func (s *Service) findVisibleQuote(ctx context.Context, principal *model.User, id string) (*model.Quote, error) {
	if !validID(id) {
		return nil, model.NewNotFoundError("引用")
	}
	q, err := s.quotes.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find quote: %w", err)
	}
	viewerID, role := viewer(principal)
	if q == nil || !quoteVisible(q, viewerID, role) {
		return nil, model.NewNotFoundError("引用")
	}
	return q, nil
}

// quoteRef はいいね・共有の対象引用を解決する。見えない引用は検証エラー。
func (s *Service) quoteRef(ctx context.Context, principal *model.User, quoteID string) (*model.Quote, error) {
	q, err := s.findVisibleQuote(ctx, principal, quoteID)
	if model.IsKind(err, model.ErrCodeNotFound) {
		return nil, model.NewValidationError(map[string]string{"quote_id": "引用が存在しません。"})
	}
	return q, err
}

func quoteListFilter(quoteID string) (string, error) {
	if quoteID == "" || validID(quoteID) {
		return quoteID, nil
	}
	return "", model.NewValidationError(map[string]string{"quote": "不正なIDです。"})
}

// --- いいね ---

// ListLikes はいいね一覧を返す。quoteIDを指定するとその引用に絞り込む。
func (s *Service) ListLikes(ctx context.Context, principal *model.User, quoteID string) ([]*model.Like, error) {
	if err := s.require(rbac.EngagementPolicy, ResourceLikes, principal, rbac.ActionList, nil); err != nil {
		return nil, err
	}
	quoteID, err := quoteListFilter(quoteID)
	if err != nil {
		return nil, err
	}
	likes, err := s.likes.List(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	return likes, nil
}

// GetLike はいいねを1件返す。
func (s *Service) GetLike(ctx context.Context, principal *model.User, id string) (*model.Like, error) {
	l, err := s.findLike(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.require(rbac.EngagementPolicy, ResourceLikes, principal, rbac.ActionRetrieve, l); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLike は引用にいいねする。同じ引用への2回目はCONFLICT。
func (s *Service) CreateLike(ctx context.Context, principal *model.User, quoteID string) (*model.Like, error) {
	if err := s.require(rbac.EngagementPolicy, ResourceLikes, principal, rbac.ActionCreate, nil); err != nil {
		return nil, err
	}
	q, err := s.quoteRef(ctx, principal, quoteID)
	if err != nil {
		return nil, err
	}

	l := &model.Like{ID: s.newID(), UserID: principal.ID, QuoteID: q.ID, Moment: s.now()}
	if err := s.likes.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLike はいいねを取り消す。本人またはSTAFF/ADMINのみ。
func (s *Service) DeleteLike(ctx context.Context, principal *model.User, id string) error {
	l, err := s.findLike(ctx, id)
	if err != nil {
		return err
	}
	if err := s.require(rbac.EngagementPolicy, ResourceLikes, principal, rbac.ActionDestroy, l); err != nil {
		return err
	}
	return s.likes.Delete(ctx, id)
}

func (s *Service) findLike(ctx context.Context, id string) (*model.Like, error) {
	if !validID(id) {
		return nil, model.NewNotFoundError("いいね")
	}
	l, err := s.likes.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find like: %w", err)
	}
	if l == nil {
		return nil, model.NewNotFoundError("いいね")
	}
	return l, nil
}

// --- 共有 ---

// ShareInput は共有の作成入力。
type ShareInput struct {
	QuoteID     string  `json:"quote_id"`
	Destination *string `json:"destination"`
}

// ListShares は共有一覧を新しい順に返す。
func (s *Service) ListShares(ctx context.Context, principal *model.User, quoteID string) ([]*model.Share, error) {
	if err := s.require(rbac.EngagementPolicy, ResourceShares, principal, rbac.ActionList, nil); err != nil {
		return nil, err
	}
	quoteID, err := quoteListFilter(quoteID)
	if err != nil {
		return nil, err
	}
	shares, err := s.shares.List(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

// GetShare は共有を1件返す。
func (s *Service) GetShare(ctx context.Context, principal *model.User, id string) (*model.Share, error) {
	sh, err := s.findShare(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.require(rbac.EngagementPolicy, ResourceShares, principal, rbac.ActionRetrieve, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// CreateShare は引用の共有を記録する。共有先はタグを除去して保存する。
func (s *Service) CreateShare(ctx context.Context, principal *model.User, in ShareInput) (*model.Share, error) {
	if err := s.require(rbac.EngagementPolicy, ResourceShares, principal, rbac.ActionCreate, nil); err != nil {
		return nil, err
	}

	sh := &model.Share{ID: s.newID(), UserID: principal.ID, Moment: s.now()}
	f := newForm(true, s.sanitizer)
	f.text("destination", in.Destination, &sh.Destination, true, 200)
	if err := f.err(); err != nil {
		return nil, err
	}
	q, err := s.quoteRef(ctx, principal, in.QuoteID)
	if err != nil {
		return nil, err
	}
	sh.QuoteID = q.ID

	if err := s.shares.Create(ctx, sh); err != nil {
		return nil, err
	}
	slog.Info("quote shared",
		slog.String("quote_id", sh.QuoteID),
		slog.String("user_id", sh.UserID),
		slog.String("destination", sh.Destination),
	)
	return sh, nil
}

// DeleteShare は共有を削除する。本人またはSTAFF/ADMINのみ。
func (s *Service) DeleteShare(ctx context.Context, principal *model.User, id string) error {
	sh, err := s.findShare(ctx, id)
	if err != nil {
		return err
	}
	if err := s.require(rbac.EngagementPolicy, ResourceShares, principal, rbac.ActionDestroy, sh); err != nil {
		return err
	}
	return s.shares.Delete(ctx, id)
}

func (s *Service) findShare(ctx context.Context, id string) (*model.Share, error) {
	if !validID(id) {
		return nil, model.NewNotFoundError("共有")
	}
	sh, err := s.shares.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find share: %w", err)
	}
	if sh == nil {
		return nil, model.NewNotFoundError("共有")
	}
	return sh, nil
}
