package journal

import (
	"context"
	"fmt"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
)

// BookLogInput は読書記録の作成・更新入力。自由記述欄は書式タグを許可リストで残す。
type BookLogInput struct {
	BookID             *string `json:"book_id"`
	Start              *string `json:"start"`
	End                *string `json:"end"`
	Score              *int    `json:"score"`
	Topic              *string `json:"topic"`
	ThreeSentences     *string `json:"three_sentences"`
	NewKnowledge       *string `json:"new_knowledge"`
	TransformedMe      *string `json:"transformed_me"`
	Impressions        *string `json:"impressions"`
	Ideas              *string `json:"ideas"`
	Heroes             *string `json:"heroes"`
	Begin              *string `json:"begin"`
	KeyEvents          *string `json:"key_events"`
	MostImportantEvent *string `json:"most_important_event"`
	Result             *string `json:"result"`
}

func (in BookLogInput) apply(f *form, l *model.BookLog) error {
	f.ref("book_id", in.BookID, &l.BookID, true)
	f.date("start", in.Start, &l.StartDate)
	f.date("end", in.End, &l.EndDate)
	f.order("end", l.StartDate, l.EndDate)
	f.intRange("score", in.Score, &l.Score, true, 1, 10)

	n := &l.Notes
	f.text("topic", in.Topic, &n.Topic, false, 0)
	f.richText("three_sentences", in.ThreeSentences, &n.ThreeSentences, false)
	f.richText("new_knowledge", in.NewKnowledge, &n.NewKnowledge, false)
	f.richText("transformed_me", in.TransformedMe, &n.TransformedMe, false)
	f.richText("impressions", in.Impressions, &n.Impressions, false)
	f.richText("ideas", in.Ideas, &n.Ideas, false)
	f.richText("heroes", in.Heroes, &n.Heroes, false)
	f.richText("begin", in.Begin, &n.Begin, false)
	f.richText("key_events", in.KeyEvents, &n.KeyEvents, false)
	f.richText("most_important_event", in.MostImportantEvent, &n.MostImportantEvent, false)
	f.richText("result", in.Result, &n.Result, false)
	return f.err()
}

// ListLogs は読書記録の一覧を返す。
// 匿名は拒否。STAFF/ADMINは全件、それ以外は自分の記録のみ。
func (s *Service) ListLogs(ctx context.Context, principal *model.User) ([]*model.BookLog, error) {
	if err := s.require(rbac.BookLogPolicy, ResourceLogs, principal, rbac.ActionList, nil); err != nil {
		return nil, err
	}

	viewerID, role := viewer(principal)
	if role.IsElevated() {
		viewerID = ""
	}
	logs, err := s.logs.ListByUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list book logs: %w", err)
	}
	return logs, nil
}

// GetLog は読書記録を1件返す。他人の記録はSTAFF/ADMIN以外にはNOT_FOUNDとなる。
func (s *Service) GetLog(ctx context.Context, principal *model.User, id string) (*model.BookLog, error) {
	if err := s.require(rbac.BookLogPolicy, ResourceLogs, principal, rbac.ActionRetrieve, nil); err != nil {
		return nil, err
	}
	return s.findOwnLog(ctx, principal, id)
}

// CreateLog は読書記録を作成する。作成者は主体自身。
func (s *Service) CreateLog(ctx context.Context, principal *model.User, in BookLogInput) (*model.BookLog, error) {
	if err := s.require(rbac.BookLogPolicy, ResourceLogs, principal, rbac.ActionCreate, nil); err != nil {
		return nil, err
	}

	now := s.now()
	l := &model.BookLog{ID: s.newID(), CreatedBy: principal.ID, CreatedAt: now, UpdatedAt: now}
	if err := in.apply(newForm(true, s.sanitizer), l); err != nil {
		return nil, err
	}
	if err := s.logs.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// UpdateLog は読書記録を更新する。partialがtrueならPATCH。
func (s *Service) UpdateLog(ctx context.Context, principal *model.User, id string, in BookLogInput, partial bool) (*model.BookLog, error) {
	action := rbac.ActionUpdate
	if partial {
		action = rbac.ActionPartialUpdate
	}
	if err := s.require(rbac.BookLogPolicy, ResourceLogs, principal, action, nil); err != nil {
		return nil, err
	}

	l, err := s.findOwnLog(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(newForm(!partial, s.sanitizer), l); err != nil {
		return nil, err
	}
	l.UpdatedAt = s.now()
	if err := s.logs.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLog は読書記録を削除する。関連する引用もCASCADE削除される。
func (s *Service) DeleteLog(ctx context.Context, principal *model.User, id string) error {
	if err := s.require(rbac.BookLogPolicy, ResourceLogs, principal, rbac.ActionDestroy, nil); err != nil {
		return err
	}
	if _, err := s.findOwnLog(ctx, principal, id); err != nil {
		return err
	}
	return s.logs.Delete(ctx, id)
}

// findOwnLog は主体が閲覧できる読書記録を取得する。
func (s *Service) findOwnLog(ctx context.Context, principal *model.User, id string) (*model.BookLog, error) {
	if !validID(id) {
		return nil, model.NewNotFoundError("読書記録")
	}
	l, err := s.logs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find book log: %w", err)
	}
	viewerID, role := viewer(principal)
	if l == nil || (!role.IsElevated() && l.CreatedBy != viewerID) {
		return nil, model.NewNotFoundError("読書記録")
	}
	return l, nil
}
