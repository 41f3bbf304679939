package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/journal"
	"github.com/hitoshi/booklog/internal/middleware"
	"github.com/hitoshi/booklog/internal/model"
)

// JournalServiceInterface は読書記録・引用・いいね・共有ハンドラーが必要とするサービスインターフェース。
type JournalServiceInterface interface {
	ListLogs(ctx context.Context, principal *model.User) ([]*model.BookLog, error)
	GetLog(ctx context.Context, principal *model.User, id string) (*model.BookLog, error)
	CreateLog(ctx context.Context, principal *model.User, in journal.BookLogInput) (*model.BookLog, error)
	UpdateLog(ctx context.Context, principal *model.User, id string, in journal.BookLogInput, partial bool) (*model.BookLog, error)
	DeleteLog(ctx context.Context, principal *model.User, id string) error

	ListQuotes(ctx context.Context, principal *model.User, query journal.QuoteQuery) ([]*model.Quote, error)
	GetQuote(ctx context.Context, principal *model.User, id string) (*model.Quote, error)
	CreateQuote(ctx context.Context, principal *model.User, in journal.QuoteInput) (*model.Quote, error)
	UpdateQuote(ctx context.Context, principal *model.User, id string, in journal.QuoteInput, partial bool) (*model.Quote, error)
	DeleteQuote(ctx context.Context, principal *model.User, id string) error

	ListLikes(ctx context.Context, principal *model.User, quoteID string) ([]*model.Like, error)
	GetLike(ctx context.Context, principal *model.User, id string) (*model.Like, error)
	CreateLike(ctx context.Context, principal *model.User, quoteID string) (*model.Like, error)
	DeleteLike(ctx context.Context, principal *model.User, id string) error

	ListShares(ctx context.Context, principal *model.User, quoteID string) ([]*model.Share, error)
	GetShare(ctx context.Context, principal *model.User, id string) (*model.Share, error)
	CreateShare(ctx context.Context, principal *model.User, in journal.ShareInput) (*model.Share, error)
	DeleteShare(ctx context.Context, principal *model.User, id string) error
}

// JournalHandler は読書記録・引用・いいね・共有のHTTPハンドラー。
type JournalHandler struct {
	service JournalServiceInterface
}

// NewJournalHandler はJournalHandlerを生成する。
func NewJournalHandler(service JournalServiceInterface) *JournalHandler {
	return &JournalHandler{service: service}
}

type likeRequest struct {
	QuoteID string `json:"quote_id"`
}

// principalOf はリクエストの主体を返す。匿名ならnil。
func principalOf(r *http.Request) *model.User {
	return middleware.PrincipalFromContext(r.Context())
}

// --- 読書記録 ---

// ListLogs は自分の読書記録一覧を返す。
// GET /api/logs
func (h *JournalHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListLogs(r.Context(), principalOf(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(logs, toBookLogResponse))
}

// GetLog は読書記録を1件返す。
// GET /api/logs/{id}
func (h *JournalHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetLog(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookLogResponse(l))
}

// CreateLog は読書記録を作成する。
// POST /api/logs
func (h *JournalHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var in journal.BookLogInput
	if !decodeJSON(w, r, &in) {
		return
	}
	l, err := h.service.CreateLog(r.Context(), principalOf(r), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookLogResponse(l))
}

// updateLog はPUT/PATCH /api/logs/{id} のハンドラーを返す。
func (h *JournalHandler) updateLog(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in journal.BookLogInput
		if !decodeJSON(w, r, &in) {
			return
		}
		l, err := h.service.UpdateLog(r.Context(), principalOf(r), chi.URLParam(r, "id"), in, partial)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookLogResponse(l))
	}
}

// DeleteLog は読書記録を削除する。
// DELETE /api/logs/{id}
func (h *JournalHandler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLog(r.Context(), principalOf(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- 引用 ---

// ListQuotes は引用一覧を返す。
// GET /api/quotes?author=&genre=&date_from=&date_to=
func (h *JournalHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quotes, err := h.service.ListQuotes(r.Context(), principalOf(r), journal.QuoteQuery{
		Author:   q.Get("author"),
		Genre:    q.Get("genre"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(quotes, toQuoteResponse))
}

// GetQuote は引用を1件返す。
// GET /api/quotes/{id}
func (h *JournalHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.GetQuote(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}

// CreateQuote は引用を作成する。
// POST /api/quotes
func (h *JournalHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var in journal.QuoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), principalOf(r), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteResponse(quote))
}

func (h *JournalHandler) updateQuote(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in journal.QuoteInput
		if !decodeJSON(w, r, &in) {
			return
		}
		quote, err := h.service.UpdateQuote(r.Context(), principalOf(r), chi.URLParam(r, "id"), in, partial)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toQuoteResponse(quote))
	}
}

// DeleteQuote は引用を削除する。
// DELETE /api/quotes/{id}
func (h *JournalHandler) DeleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuote(r.Context(), principalOf(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- いいね ---

// ListLikes はいいね一覧を返す。?quote= で引用を絞り込める。
// GET /api/likes
func (h *JournalHandler) ListLikes(w http.ResponseWriter, r *http.Request) {
	likes, err := h.service.ListLikes(r.Context(), principalOf(r), r.URL.Query().Get("quote"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(likes, toLikeResponse))
}

// GetLike はいいねを1件返す。
// GET /api/likes/{id}
func (h *JournalHandler) GetLike(w http.ResponseWriter, r *http.Request) {
	like, err := h.service.GetLike(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLikeResponse(like))
}

// CreateLike は引用にいいねする。同じ引用への2回目は409。
// POST /api/likes
func (h *JournalHandler) CreateLike(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	like, err := h.service.CreateLike(r.Context(), principalOf(r), req.QuoteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLikeResponse(like))
}

// DeleteLike はいいねを取り消す。
// DELETE /api/likes/{id}
func (h *JournalHandler) DeleteLike(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLike(r.Context(), principalOf(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- 共有 ---

// ListShares は共有一覧を新しい順に返す。?quote= で引用を絞り込める。
// GET /api/shares
func (h *JournalHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.service.ListShares(r.Context(), principalOf(r), r.URL.Query().Get("quote"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(shares, toShareResponse))
}

// GetShare は共有を1件返す。
// GET /api/shares/{id}
func (h *JournalHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	share, err := h.service.GetShare(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShareResponse(share))
}

// CreateShare は引用を共有する。
// POST /api/shares
func (h *JournalHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var in journal.ShareInput
	if !decodeJSON(w, r, &in) {
		return
	}
	share, err := h.service.CreateShare(r.Context(), principalOf(r), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareResponse(share))
}

// DeleteShare は共有を削除する。
// DELETE /api/shares/{id}
func (h *JournalHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteShare(r.Context(), principalOf(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes は読書記録・引用・いいね・共有のルーティングを登録する。
func (h *JournalHandler) Routes(r chi.Router) {
	r.Route("/api/logs", func(r chi.Router) {
		r.Get("/", h.ListLogs)
		r.Post("/", h.CreateLog)
		r.Get("/{id}", h.GetLog)
		r.Put("/{id}", h.updateLog(false))
		r.Patch("/{id}", h.updateLog(true))
		r.Delete("/{id}", h.DeleteLog)
	})
	r.Route("/api/quotes", func(r chi.Router) {
		r.Get("/", h.ListQuotes)
		r.Post("/", h.CreateQuote)
		r.Get("/{id}", h.GetQuote)
		r.Put("/{id}", h.updateQuote(false))
		r.Patch("/{id}", h.updateQuote(true))
		r.Delete("/{id}", h.DeleteQuote)
	})
	r.Route("/api/likes", func(r chi.Router) {
		r.Get("/", h.ListLikes)
		r.Post("/", h.CreateLike)
		r.Get("/{id}", h.GetLike)
		r.Delete("/{id}", h.DeleteLike)
	})
	r.Route("/api/shares", func(r chi.Router) {
		r.Get("/", h.ListShares)
		r.Post("/", h.CreateShare)
		r.Get("/{id}", h.GetShare)
		r.Delete("/{id}", h.DeleteShare)
	})
}
