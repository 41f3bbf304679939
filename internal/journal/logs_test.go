package journal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/booklog/internal/model"
)

func logInput() BookLogInput {
	return BookLogInput{
		BookID:      ptr(bookID),
		Start:       ptr("2024-05-01"),
		End:         ptr("2024-05-20"),
		Score:       ptr(9),
		Topic:       ptr("<i>Война</i>"),
		Impressions: ptr(`<p>Сильно</p><script>alert(1)</script>`),
	}
}

// TestCreateLog は読書記録の作成と入力の整形を検証する。
func TestCreateLog(t *testing.T) {
	f := newFixture()

	l, err := f.svc.CreateLog(context.Background(), journalist, logInput())
	if err != nil {
		t.Fatalf("CreateLog: %v", err)
	}
	if l.CreatedBy != journalist.ID || l.BookID != bookID || l.Score != 9 {
		t.Errorf("log = %+v", l)
	}
	if l.Notes.Topic != "Война" {
		t.Errorf("topic = %q, want tags stripped", l.Notes.Topic)
	}
	if strings.Contains(l.Notes.Impressions, "script") || !strings.Contains(l.Notes.Impressions, "<p>") {
		t.Errorf("impressions = %q", l.Notes.Impressions)
	}
	if l.StartDate == nil || l.EndDate == nil || !l.CreatedAt.Equal(fixedNow) {
		t.Errorf("dates not set: %+v", l)
	}
}

// TestCreateLog_Permissions は読書記録の作成権限を検証する。
func TestCreateLog_Permissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.CreateLog(ctx, reader, logInput()); !model.IsKind(err, model.ErrCodeForbidden) {
		t.Errorf("reader: expected FORBIDDEN, got %v", err)
	}
	if _, err := f.svc.CreateLog(ctx, anon, logInput()); !model.IsKind(err, model.ErrCodeUnauthorized) {
		t.Errorf("anonymous: expected UNAUTHORIZED, got %v", err)
	}
	if len(f.logs.items) != 0 {
		t.Error("log must not be stored")
	}
}

// TestCreateLog_Validation はスコアの範囲と日付の前後関係を検証する。
func TestCreateLog_Validation(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(in *BookLogInput)
		field string
	}{
		{"score too high", func(in *BookLogInput) { in.Score = ptr(11) }, "score"},
		{"score missing", func(in *BookLogInput) { in.Score = nil }, "score"},
		{"end before start", func(in *BookLogInput) { in.End = ptr("2024-04-01") }, "end"},
		{"bad date", func(in *BookLogInput) { in.Start = ptr("01.05.2024") }, "start"},
		{"book missing", func(in *BookLogInput) { in.BookID = nil }, "book_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := logInput()
			tt.mod(&in)

			_, err := f.svc.CreateLog(context.Background(), journalist, in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
			if _, ok := apiErr.Fields[tt.field]; !ok {
				t.Errorf("missing field error %s: %v", tt.field, apiErr.Fields)
			}
		})
	}
}

// TestListLogs は一覧の範囲がロールで変わることを検証する。
func TestListLogs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.CreateLog(ctx, journalist, logInput()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateLog(ctx, journalist2, logInput()); err != nil {
		t.Fatal(err)
	}

	own, err := f.svc.ListLogs(ctx, journalist)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(own) != 1 || own[0].CreatedBy != journalist.ID {
		t.Errorf("journalist sees %d logs, want only own", len(own))
	}

	all, err := f.svc.ListLogs(ctx, staff)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("staff sees %d logs, want 2", len(all))
	}

	readerLogs, err := f.svc.ListLogs(ctx, reader)
	if err != nil {
		t.Fatalf("reader ListLogs: %v", err)
	}
	if len(readerLogs) != 0 {
		t.Errorf("reader sees %d logs, want 0", len(readerLogs))
	}

	if _, err := f.svc.ListLogs(ctx, anon); !model.IsKind(err, model.ErrCodeUnauthorized) {
		t.Errorf("anonymous: expected UNAUTHORIZED, got %v", err)
	}
}

// TestUpdateLog_OthersHidden は他人の読書記録を更新・削除できないことを検証する。
func TestUpdateLog_OthersHidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l, err := f.svc.CreateLog(ctx, journalist, logInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GetLog(ctx, journalist2, l.ID); !model.IsKind(err, model.ErrCodeNotFound) {
		t.Errorf("other journalist get: expected NOT_FOUND, got %v", err)
	}
	if _, err := f.svc.UpdateLog(ctx, journalist2, l.ID, BookLogInput{Score: ptr(1)}, true); !model.IsKind(err, model.ErrCodeNotFound) {
		t.Errorf("other journalist update: expected NOT_FOUND, got %v", err)
	}
	if err := f.svc.DeleteLog(ctx, journalist2, l.ID); !model.IsKind(err, model.ErrCodeNotFound) {
		t.Errorf("other journalist delete: expected NOT_FOUND, got %v", err)
	}

	updated, err := f.svc.UpdateLog(ctx, journalist, l.ID, BookLogInput{Score: ptr(7)}, true)
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Score != 7 || updated.BookID != bookID {
		t.Errorf("updated = %+v", updated)
	}

	if err := f.svc.DeleteLog(ctx, staff, l.ID); err != nil {
		t.Fatalf("staff delete: %v", err)
	}
	if len(f.logs.items) != 0 {
		t.Error("log should be deleted")
	}
}
