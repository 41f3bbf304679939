package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/journal"
	"github.com/hitoshi/booklog/internal/model"
)

// ModeratedCatalogue はモデレーション対象エンティティの共通操作。
// journal.Catalogueが実装する。
type ModeratedCatalogue[T any] interface {
	List(ctx context.Context, principal *model.User, status string) ([]T, error)
	Get(ctx context.Context, principal *model.User, id string) (T, error)
	Delete(ctx context.Context, principal *model.User, id string) error
	Approve(ctx context.Context, principal *model.User, id string) (T, error)
	Reject(ctx context.Context, principal *model.User, id string) (T, error)
}

// CatalogueServiceInterface は著者・ジャンル・書籍ハンドラーが必要とするサービスインターフェース。
type CatalogueServiceInterface interface {
	Authors() ModeratedCatalogue[*model.Author]
	Genres() ModeratedCatalogue[*model.Genre]
	Books() ModeratedCatalogue[*model.Book]

	CreateAuthor(ctx context.Context, principal *model.User, in journal.AuthorInput) (*model.Author, error)
	UpdateAuthor(ctx context.Context, principal *model.User, id string, in journal.AuthorInput, partial bool) (*model.Author, error)
	CreateGenre(ctx context.Context, principal *model.User, in journal.GenreInput) (*model.Genre, error)
	UpdateGenre(ctx context.Context, principal *model.User, id string, in journal.GenreInput, partial bool) (*model.Genre, error)
	CreateBook(ctx context.Context, principal *model.User, in journal.BookInput) (*model.Book, error)
	UpdateBook(ctx context.Context, principal *model.User, id string, in journal.BookInput, partial bool) (*model.Book, error)
}

// catalogueRoutes は1種類のカタログエンティティのHTTPハンドラー群。
type catalogueRoutes[T any, In any] struct {
	store  ModeratedCatalogue[T]
	create func(ctx context.Context, principal *model.User, in In) (T, error)
	update func(ctx context.Context, principal *model.User, id string, in In, partial bool) (T, error)
	render func(T) any
}

// mount は一覧・作成・詳細・更新・削除・承認・却下のルートを登録する。
func (c *catalogueRoutes[T, In]) mount(r chi.Router) {
	r.Get("/", c.list)
	r.Post("/", c.createEntry)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", c.get)
		r.Put("/", c.updateEntry(false))
		r.Patch("/", c.updateEntry(true))
		r.Delete("/", c.delete)
		r.Post("/approve", c.moderate(c.store.Approve))
		r.Post("/reject", c.moderate(c.store.Reject))
	})
}

func (c *catalogueRoutes[T, In]) list(w http.ResponseWriter, r *http.Request) {
	entries, err := c.store.List(r.Context(), principalOf(r), r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, c.render))
}

func (c *catalogueRoutes[T, In]) get(w http.ResponseWriter, r *http.Request) {
	entry, err := c.store.Get(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.render(entry))
}

func (c *catalogueRoutes[T, In]) createEntry(w http.ResponseWriter, r *http.Request) {
	var in In
	if !decodeJSON(w, r, &in) {
		return
	}
	entry, err := c.create(r.Context(), principalOf(r), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c.render(entry))
}

// updateEntry はPUT（partial=false）とPATCH（partial=true）のハンドラーを返す。
func (c *catalogueRoutes[T, In]) updateEntry(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if !decodeJSON(w, r, &in) {
			return
		}
		entry, err := c.update(r.Context(), principalOf(r), chi.URLParam(r, "id"), in, partial)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.render(entry))
	}
}

func (c *catalogueRoutes[T, In]) delete(w http.ResponseWriter, r *http.Request) {
	if err := c.store.Delete(r.Context(), principalOf(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moderate は承認・却下のハンドラーを返す。遷移後のエンティティを返す。
func (c *catalogueRoutes[T, In]) moderate(
	transition func(ctx context.Context, principal *model.User, id string) (T, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := transition(r.Context(), principalOf(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.render(entry))
	}
}

// CatalogueHandler は著者・ジャンル・書籍のHTTPハンドラー。
type CatalogueHandler struct {
	authors *catalogueRoutes[*model.Author, journal.AuthorInput]
	genres  *catalogueRoutes[*model.Genre, journal.GenreInput]
	books   *catalogueRoutes[*model.Book, journal.BookInput]
}

// NewCatalogueHandler はCatalogueHandlerを生成する。
func NewCatalogueHandler(service CatalogueServiceInterface) *CatalogueHandler {
	return &CatalogueHandler{
		authors: &catalogueRoutes[*model.Author, journal.AuthorInput]{
			store:  service.Authors(),
			create: service.CreateAuthor,
			update: service.UpdateAuthor,
			render: toAuthorResponse,
		},
		genres: &catalogueRoutes[*model.Genre, journal.GenreInput]{
			store:  service.Genres(),
			create: service.CreateGenre,
			update: service.UpdateGenre,
			render: toGenreResponse,
		},
		books: &catalogueRoutes[*model.Book, journal.BookInput]{
			store:  service.Books(),
			create: service.CreateBook,
			update: service.UpdateBook,
			render: toBookResponse,
		},
	}
}

// Routes はカタログのルーティングを登録する。
func (h *CatalogueHandler) Routes(r chi.Router) {
	r.Route("/api/authors", h.authors.mount)
	r.Route("/api/genres", h.genres.mount)
	r.Route("/api/books", h.books.mount)
}
