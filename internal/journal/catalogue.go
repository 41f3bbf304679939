package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/moderation"
	"github.com/hitoshi/booklog/internal/rbac"
)

// catalogueEntry は著者・ジャンル・書籍の共通制約。
type catalogueEntry interface {
	comparable
	model.Moderated
}

// catalogueStore は著者・ジャンル・書籍リポジトリの共通部分。
type catalogueStore[T catalogueEntry] interface {
	FindByID(ctx context.Context, id string) (T, error)
	List(ctx context.Context, filter model.ModeratedFilter) ([]T, error)
	Create(ctx context.Context, entry T) error
	Update(ctx context.Context, entry T) error
	UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error
	Delete(ctx context.Context, id string) error
}

// Catalogue はモデレーション対象エンティティのCRUDと承認・却下を提供する。
// 権限はすべてrbac.ModeratedPolicyに従う。
type Catalogue[T catalogueEntry] struct {
	svc      *Service
	resource string
	subject  string
	store    catalogueStore[T]
	idOf     func(T) string
}

// List は閲覧者に見えるエントリを返す。
// STAFF/ADMIN以外はAPPROVEDと自分の作成分のみ。statusを指定すると更に絞り込む。
func (c *Catalogue[T]) List(ctx context.Context, principal *model.User, status string) ([]T, error) {
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, rbac.ActionList, nil); err != nil {
		return nil, err
	}

	viewerID, role := viewer(principal)
	filter := model.ModeratedFilter{ViewerID: viewerID, Elevated: role.IsElevated()}
	if status != "" {
		st := model.ModerationStatus(strings.ToUpper(strings.TrimSpace(status)))
		if !st.Valid() {
			return nil, model.NewValidationError(map[string]string{"status": "不正なステータスです。"})
		}
		filter.Status = st
	}

	entries, err := c.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.resource, err)
	}
	return entries, nil
}

// Get は1件取得する。閲覧者に見えないエントリはNOT_FOUNDとして扱う。
func (c *Catalogue[T]) Get(ctx context.Context, principal *model.User, id string) (T, error) {
	var zero T
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, rbac.ActionRetrieve, nil); err != nil {
		return zero, err
	}

	entry, err := c.find(ctx, id)
	if err != nil {
		return zero, err
	}
	viewerID, role := viewer(principal)
	if !moderation.Visible(entry.State(), viewerID, role) {
		return zero, model.NewNotFoundError(c.subject)
	}
	return entry, nil
}

// Delete は削除する。STAFF/ADMINのみ。
func (c *Catalogue[T]) Delete(ctx context.Context, principal *model.User, id string) error {
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, rbac.ActionDestroy, nil); err != nil {
		return err
	}
	if _, err := c.find(ctx, id); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	slog.Info("catalogue entry deleted",
		slog.String("resource", c.resource),
		slog.String("id", id),
		slog.String("user_id", principal.ID),
	)
	return nil
}

// Approve はAPPROVEDに遷移させる。既にAPPROVEDなら何もしない。
func (c *Catalogue[T]) Approve(ctx context.Context, principal *model.User, id string) (T, error) {
	return c.transition(ctx, principal, id, moderation.EventApprove)
}

// Reject はREJECTEDに遷移させる。既にREJECTEDなら何もしない。
func (c *Catalogue[T]) Reject(ctx context.Context, principal *model.User, id string) (T, error) {
	return c.transition(ctx, principal, id, moderation.EventReject)
}

func (c *Catalogue[T]) transition(ctx context.Context, principal *model.User, id string, event moderation.Event) (T, error) {
	var zero T
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, rbac.Action(event), nil); err != nil {
		return zero, err
	}

	entry, err := c.find(ctx, id)
	if err != nil {
		return zero, err
	}

	_, role := viewer(principal)
	changed, err := moderation.Apply(entry.State(), role, event)
	if err != nil {
		return zero, err
	}
	if !changed {
		return entry, nil
	}

	status := entry.ModerationStatus()
	if err := c.store.UpdateStatus(ctx, id, status); err != nil {
		return zero, err
	}
	c.recordTransition(id, principal, status)
	return entry, nil
}

// create は作成権限を確認し、PENDINGで保存する。
// fieldsには入力検証の結果を渡す。権限エラーが検証エラーより優先される。
func (c *Catalogue[T]) create(ctx context.Context, principal *model.User, entry T, fields error) (T, error) {
	var zero T
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, rbac.ActionCreate, nil); err != nil {
		return zero, err
	}
	if fields != nil {
		return zero, fields
	}

	moderation.Initialize(entry.State(), principal.ID)
	if err := c.store.Create(ctx, entry); err != nil {
		return zero, err
	}
	c.recordTransition(c.idOf(entry), principal, model.StatusPending)
	return entry, nil
}

// edit は更新権限を確認し、editで入力を反映してから公開状態を決定する。
// STAFF/ADMIN以外の編集はPENDINGに戻る。
func (c *Catalogue[T]) edit(
	ctx context.Context,
	principal *model.User,
	id string,
	partial bool,
	requested *model.ModerationStatus,
	apply func(entry T) error,
) (T, error) {
	var zero T
	action := rbac.ActionUpdate
	if partial {
		action = rbac.ActionPartialUpdate
	}
	if err := c.svc.require(rbac.ModeratedPolicy, c.resource, principal, action, nil); err != nil {
		return zero, err
	}

	entry, err := c.find(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := apply(entry); err != nil {
		return zero, err
	}

	_, role := viewer(principal)
	changed, err := moderation.ApplyEdit(entry.State(), role, requested)
	if err != nil {
		return zero, err
	}
	if err := c.store.Update(ctx, entry); err != nil {
		return zero, err
	}
	if changed {
		c.recordTransition(id, principal, entry.ModerationStatus())
	}
	return entry, nil
}

func (c *Catalogue[T]) find(ctx context.Context, id string) (T, error) {
	var zero T
	if !validID(id) {
		return zero, model.NewNotFoundError(c.subject)
	}
	entry, err := c.store.FindByID(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to find %s: %w", c.resource, err)
	}
	if entry == zero {
		return zero, model.NewNotFoundError(c.subject)
	}
	return entry, nil
}

func (c *Catalogue[T]) recordTransition(id string, principal *model.User, to model.ModerationStatus) {
	c.svc.metrics.RecordModerationTransition(c.resource, string(to))
	slog.Info("moderation status changed",
		slog.String("resource", c.resource),
		slog.String("id", id),
		slog.String("status", string(to)),
		slog.String("user_id", principal.ID),
	)
}

// --- 著者 ---

// AuthorInput は著者の作成・更新入力。省略した項目はnil。
// statusはSTAFF/ADMINの更新時のみ反映され、作成時は常に無視される。
type AuthorInput struct {
	FirstName  *string                 `json:"first_name"`
	LastName   *string                 `json:"last_name"`
	Patronymic *string                 `json:"patronymic"`
	Birthday   *string                 `json:"birthday"`
	Death      *string                 `json:"death"`
	Country    *string                 `json:"country"`
	Status     *model.ModerationStatus `json:"status"`
}

func (in AuthorInput) apply(f *form, a *model.Author) error {
	f.text("first_name", in.FirstName, &a.FirstName, true, 150)
	f.text("last_name", in.LastName, &a.LastName, true, 150)
	f.text("patronymic", in.Patronymic, &a.Patronymic, false, 150)
	f.text("country", in.Country, &a.Country, false, 150)
	f.date("birthday", in.Birthday, &a.Birthday)
	f.date("death", in.Death, &a.Death)
	f.order("death", a.Birthday, a.Death)
	return f.err()
}

// CreateAuthor は著者を作成する。
func (s *Service) CreateAuthor(ctx context.Context, principal *model.User, in AuthorInput) (*model.Author, error) {
	now := s.now()
	a := &model.Author{ID: s.newID(), CreatedAt: now, UpdatedAt: now}
	return s.authors.create(ctx, principal, a, in.apply(newForm(true, s.sanitizer), a))
}

// UpdateAuthor は著者を更新する。partialがtrueならPATCHとして省略項目を維持する。
func (s *Service) UpdateAuthor(ctx context.Context, principal *model.User, id string, in AuthorInput, partial bool) (*model.Author, error) {
	return s.authors.edit(ctx, principal, id, partial, in.Status, func(a *model.Author) error {
		a.UpdatedAt = s.now()
		return in.apply(newForm(!partial, s.sanitizer), a)
	})
}

// --- ジャンル ---

// GenreInput はジャンルの作成・更新入力。
type GenreInput struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Status      *model.ModerationStatus `json:"status"`
}

func (in GenreInput) apply(f *form, g *model.Genre) error {
	f.text("title", in.Title, &g.Title, true, 200)
	f.text("description", in.Description, &g.Description, false, 200)
	return f.err()
}

// CreateGenre はジャンルを作成する。
func (s *Service) CreateGenre(ctx context.Context, principal *model.User, in GenreInput) (*model.Genre, error) {
	now := s.now()
	g := &model.Genre{ID: s.newID(), CreatedAt: now, UpdatedAt: now}
	return s.genres.create(ctx, principal, g, in.apply(newForm(true, s.sanitizer), g))
}

// UpdateGenre はジャンルを更新する。
func (s *Service) UpdateGenre(ctx context.Context, principal *model.User, id string, in GenreInput, partial bool) (*model.Genre, error) {
	return s.genres.edit(ctx, principal, id, partial, in.Status, func(g *model.Genre) error {
		g.UpdatedAt = s.now()
		return in.apply(newForm(!partial, s.sanitizer), g)
	})
}

// --- 書籍 ---

// BookInput は書籍の作成・更新入力。
type BookInput struct {
	Title    *string                 `json:"title"`
	AuthorID *string                 `json:"author_id"`
	GenreID  *string                 `json:"genre_id"`
	Symbols  *int                    `json:"symbols"`
	Type     *string                 `json:"type"`
	Status   *model.ModerationStatus `json:"status"`
}

func (in BookInput) apply(f *form, b *model.Book) error {
	f.text("title", in.Title, &b.Title, true, 200)
	f.ref("author_id", in.AuthorID, &b.AuthorID, true)
	f.ref("genre_id", in.GenreID, &b.GenreID, true)
	if in.Symbols != nil {
		if *in.Symbols < 0 {
			f.fail("symbols", "0以上の値を入力してください。")
		} else {
			b.Symbols = *in.Symbols
		}
	}
	switch {
	case in.Type == nil:
		f.absent("type", true)
	default:
		t := model.BookType(strings.ToUpper(strings.TrimSpace(*in.Type)))
		if t != model.BookTypeFiction && t != model.BookTypeNonFiction {
			f.fail("type", "FICTIONまたはNON_FICTIONを指定してください。")
		} else {
			b.Type = t
		}
	}
	return f.err()
}

// CreateBook は書籍を作成する。著者・ジャンルが存在しない場合は検証エラー。
func (s *Service) CreateBook(ctx context.Context, principal *model.User, in BookInput) (*model.Book, error) {
	now := s.now()
	b := &model.Book{ID: s.newID(), CreatedAt: now, UpdatedAt: now}
	return s.books.create(ctx, principal, b, in.apply(newForm(true, s.sanitizer), b))
}

// UpdateBook は書籍を更新する。
func (s *Service) UpdateBook(ctx context.Context, principal *model.User, id string, in BookInput, partial bool) (*model.Book, error) {
	return s.books.edit(ctx, principal, id, partial, in.Status, func(b *model.Book) error {
		b.UpdatedAt = s.now()
		return in.apply(newForm(!partial, s.sanitizer), b)
	})
}
