package journal

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/repository"
	"github.com/hitoshi/booklog/internal/security"
)

// --- インメモリのリポジトリ ---

type memCatalogue[T catalogueEntry] struct {
	mu            sync.Mutex
	order         []string
	items         map[string]T
	idOf          func(T) string
	statusUpdates int
}

func newMemCatalogue[T catalogueEntry](idOf func(T) string) *memCatalogue[T] {
	return &memCatalogue[T]{items: map[string]T{}, idOf: idOf}
}

func (m *memCatalogue[T]) FindByID(_ context.Context, id string) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id], nil
}

func (m *memCatalogue[T]) List(_ context.Context, f model.ModeratedFilter) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []T
	for _, id := range m.order {
		v := m.items[id]
		st := v.ModerationStatus()
		if !(f.Elevated || st == model.StatusApproved || v.OwnerID() == f.ViewerID) {
			continue
		}
		if f.Status != "" && st != f.Status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *memCatalogue[T]) Create(_ context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.idOf(v)
	m.items[id] = v
	m.order = append(m.order, id)
	return nil
}

func (m *memCatalogue[T]) Update(_ context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.idOf(v)] = v
	return nil
}

func (m *memCatalogue[T]) UpdateStatus(_ context.Context, id string, status model.ModerationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusUpdates++
	m.items[id].SetModerationStatus(status)
	return nil
}

func (m *memCatalogue[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// put はステータスと作成者を指定してエントリを直接登録する。
func (m *memCatalogue[T]) put(v T, status model.ModerationStatus, createdBy string) T {
	v.State().Status = status
	v.State().CreatedBy = createdBy
	_ = m.Create(context.Background(), v)
	return v
}

type memLogs struct {
	items []*model.BookLog
}

func (m *memLogs) FindByID(_ context.Context, id string) (*model.BookLog, error) {
	for _, l := range m.items {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memLogs) ListByUser(_ context.Context, userID string) ([]*model.BookLog, error) {
	var out []*model.BookLog
	for _, l := range m.items {
		if userID == "" || l.CreatedBy == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLogs) Create(_ context.Context, l *model.BookLog) error {
	m.items = append(m.items, l)
	return nil
}

func (m *memLogs) Update(_ context.Context, _ *model.BookLog) error { return nil }

func (m *memLogs) Delete(_ context.Context, id string) error {
	for i, l := range m.items {
		if l.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return model.NewNotFoundError("読書記録")
}

type memQuotes struct {
	items      []*model.Quote
	lastFilter model.QuoteFilter
}

func (m *memQuotes) FindByID(_ context.Context, id string) (*model.Quote, error) {
	for _, q := range m.items {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, nil
}

func (m *memQuotes) List(_ context.Context, f model.QuoteFilter) ([]*model.Quote, error) {
	m.lastFilter = f
	var out []*model.Quote
	for _, q := range m.items {
		if f.Elevated || !q.IsPrivate || q.CreatedBy == f.ViewerID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuotes) Create(_ context.Context, q *model.Quote) error {
	m.items = append(m.items, q)
	return nil
}

func (m *memQuotes) Update(_ context.Context, _ *model.Quote) error { return nil }

func (m *memQuotes) Delete(_ context.Context, id string) error {
	for i, q := range m.items {
		if q.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return model.NewNotFoundError("引用")
}

type memLikes struct {
	items []*model.Like
}

func (m *memLikes) FindByID(_ context.Context, id string) (*model.Like, error) {
	for _, l := range m.items {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memLikes) List(_ context.Context, quoteID string) ([]*model.Like, error) {
	var out []*model.Like
	for _, l := range m.items {
		if quoteID == "" || l.QuoteID == quoteID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLikes) Create(_ context.Context, like *model.Like) error {
	for _, l := range m.items {
		if l.UserID == like.UserID && l.QuoteID == like.QuoteID {
			return model.NewConflictError("この引用には既にいいねしています。")
		}
	}
	m.items = append(m.items, like)
	return nil
}

func (m *memLikes) Delete(_ context.Context, id string) error {
	for i, l := range m.items {
		if l.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return model.NewNotFoundError("いいね")
}

type memShares struct {
	items []*model.Share
}

func (m *memShares) FindByID(_ context.Context, id string) (*model.Share, error) {
	for _, s := range m.items {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memShares) List(_ context.Context, _ string) ([]*model.Share, error) {
	return m.items, nil
}

func (m *memShares) Create(_ context.Context, s *model.Share) error {
	m.items = append(m.items, s)
	return nil
}

func (m *memShares) Delete(_ context.Context, _ string) error { return nil }

var (
	_ repository.AuthorRepository  = (*memCatalogue[*model.Author])(nil)
	_ repository.GenreRepository   = (*memCatalogue[*model.Genre])(nil)
	_ repository.BookRepository    = (*memCatalogue[*model.Book])(nil)
	_ repository.BookLogRepository = (*memLogs)(nil)
	_ repository.QuoteRepository   = (*memQuotes)(nil)
	_ repository.LikeRepository    = (*memLikes)(nil)
	_ repository.ShareRepository   = (*memShares)(nil)
)

// --- メトリクス ---

type authzRecord struct {
	resource, action string
	allowed          bool
}

type recordingMetrics struct {
	metrics.Nop
	authz       []authzRecord
	transitions []string
}

func (m *recordingMetrics) RecordAuthzDecision(resource, action string, allowed bool) {
	m.authz = append(m.authz, authzRecord{resource, action, allowed})
}

func (m *recordingMetrics) RecordModerationTransition(entity, to string) {
	m.transitions = append(m.transitions, entity+":"+to)
}

// --- フィクスチャ ---

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	authors *memCatalogue[*model.Author]
	genres  *memCatalogue[*model.Genre]
	books   *memCatalogue[*model.Book]
	logs    *memLogs
	quotes  *memQuotes
	likes   *memLikes
	shares  *memShares
	metrics *recordingMetrics
}

func newFixture() *fixture {
	f := &fixture{
		authors: newMemCatalogue(func(a *model.Author) string { return a.ID }),
		genres:  newMemCatalogue(func(g *model.Genre) string { return g.ID }),
		books:   newMemCatalogue(func(b *model.Book) string { return b.ID }),
		logs:    &memLogs{},
		quotes:  &memQuotes{},
		likes:   &memLikes{},
		shares:  &memShares{},
		metrics: &recordingMetrics{},
	}
	f.svc = NewService(Deps{
		Authors:   f.authors,
		Genres:    f.genres,
		Books:     f.books,
		Logs:      f.logs,
		Quotes:    f.quotes,
		Likes:     f.likes,
		Shares:    f.shares,
		Sanitizer: security.NewTextSanitizer(),
		Metrics:   f.metrics,
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func principal(id string, role model.Role) *model.User {
	return &model.User{ID: id, Username: id, Role: string(role), IsActive: true}
}

var anon *model.User

var (
	journalist  = principal("journalist-1", model.RoleJournalist)
	journalist2 = principal("journalist-2", model.RoleJournalist)
	reader      = principal("reader-1", model.RoleReader)
	reader2     = principal("reader-2", model.RoleReader)
	staff       = principal("staff-1", model.RoleStaff)
	admin       = principal("admin-1", model.RoleAdmin)
)

const (
	bookID    = "2f0f5a54-5a0e-4c1b-9d3c-6a1f0c9e0001"
	otherBook = "2f0f5a54-5a0e-4c1b-9d3c-6a1f0c9e0002"
	authorID  = "7b3e2c10-8d4f-4e6a-b1c2-3d4e5f600001"
	genreID   = "7b3e2c10-8d4f-4e6a-b1c2-3d4e5f600002"
	missingID = "00000000-0000-4000-8000-000000000000"
)

func ptr[T any](v T) *T { return &v }
