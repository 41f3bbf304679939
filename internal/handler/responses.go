package handler

import (
	"time"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
)

// dateLayout は日付フィールドのJSON表現。
const dateLayout = time.DateOnly

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// userResponse はユーザー情報のJSONレスポンス型。パスワードハッシュは含めない。
type userResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	EmailConfirmed bool      `json:"email_confirmed"`
	IsStaff        bool      `json:"is_staff"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Name:           u.Name,
		Role:           string(rbac.ResolveRole(u)),
		EmailConfirmed: u.EmailConfirmed,
		IsStaff:        u.IsStaff,
		IsSuperuser:    u.IsSuperuser,
		CreatedAt:      u.CreatedAt,
	}
}

type authorResponse struct {
	ID         string                 `json:"id"`
	FirstName  string                 `json:"first_name"`
	LastName   string                 `json:"last_name"`
	Patronymic string                 `json:"patronymic"`
	Birthday   *string                `json:"birthday"`
	Death      *string                `json:"death"`
	Country    string                 `json:"country"`
	Status     model.ModerationStatus `json:"status"`
	CreatedBy  string                 `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func toAuthorResponse(a *model.Author) any {
	return authorResponse{
		ID:         a.ID,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Patronymic: a.Patronymic,
		Birthday:   formatDate(a.Birthday),
		Death:      formatDate(a.Death),
		Country:    a.Country,
		Status:     a.Status,
		CreatedBy:  a.CreatedBy,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type genreResponse struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Status      model.ModerationStatus `json:"status"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func toGenreResponse(g *model.Genre) any {
	return genreResponse{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description,
		Status:      g.Status,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type bookResponse struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	AuthorID  string                 `json:"author_id"`
	GenreID   string                 `json:"genre_id"`
	Symbols   int                    `json:"symbols"`
	Type      model.BookType         `json:"type"`
	Status    model.ModerationStatus `json:"status"`
	CreatedBy string                 `json:"created_by"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func toBookResponse(b *model.Book) any {
	return bookResponse{
		ID:        b.ID,
		Title:     b.Title,
		AuthorID:  b.AuthorID,
		GenreID:   b.GenreID,
		Symbols:   b.Symbols,
		Type:      b.Type,
		Status:    b.Status,
		CreatedBy: b.CreatedBy,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// bookLogResponse は読書記録のJSONレスポンス型。自由記述欄はトップレベルに展開する。
type bookLogResponse struct {
	ID        string  `json:"id"`
	BookID    string  `json:"book_id"`
	CreatedBy string  `json:"created_by"`
	Start     *string `json:"start"`
	End       *string `json:"end"`
	Score     int     `json:"score"`
	model.BookLogNotes
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toBookLogResponse(l *model.BookLog) bookLogResponse {
	return bookLogResponse{
		ID:           l.ID,
		BookID:       l.BookID,
		CreatedBy:    l.CreatedBy,
		Start:        formatDate(l.StartDate),
		End:          formatDate(l.EndDate),
		Score:        l.Score,
		BookLogNotes: l.Notes,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

type quoteResponse struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	BookLogID  *string   `json:"book_log_id"`
	Note       string    `json:"note"`
	IsPrivate  bool      `json:"is_private"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	LikeCount  int       `json:"like_count"`
	ShareCount int       `json:"share_count"`
}

func toQuoteResponse(q *model.Quote) quoteResponse {
	resp := quoteResponse{
		ID:         q.ID,
		BookID:     q.BookID,
		Note:       q.Note,
		IsPrivate:  q.IsPrivate,
		CreatedBy:  q.CreatedBy,
		CreatedAt:  q.CreatedAt,
		LikeCount:  q.LikeCount,
		ShareCount: q.ShareCount,
	}
	if q.BookLogID != "" {
		resp.BookLogID = &q.BookLogID
	}
	return resp
}

type likeResponse struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	QuoteID string    `json:"quote_id"`
	Moment  time.Time `json:"moment"`
}

func toLikeResponse(l *model.Like) likeResponse {
	return likeResponse{ID: l.ID, UserID: l.UserID, QuoteID: l.QuoteID, Moment: l.Moment}
}

type shareResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	QuoteID     string    `json:"quote_id"`
	Destination string    `json:"destination"`
	Moment      time.Time `json:"moment"`
}

func toShareResponse(s *model.Share) shareResponse {
	return shareResponse{ID: s.ID, UserID: s.UserID, QuoteID: s.QuoteID, Destination: s.Destination, Moment: s.Moment}
}

// mapSlice はスライスの各要素をレスポンス型に変換する。nilでも空配列としてエンコードされる。
func mapSlice[T, R any](items []T, f func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, f(item))
	}
	return out
}
