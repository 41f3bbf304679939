package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/booklog/internal/model"
)

// moderatedVisibility はモデレーション対象一覧の可視性条件。引数は$1〜$3を使う。
// STAFF/ADMINは全件、それ以外はAPPROVEDと自身の作成分のみ。
const moderatedVisibility = `($1::boolean OR status = 'APPROVED' OR created_by::text = $2::text)
	AND ($3::text = '' OR status = $3::text)`

func moderatedArgs(f model.ModeratedFilter) []any {
	return []any{f.Elevated, f.ViewerID, string(f.Status)}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// updateStatus はモデレーション状態のみを単一行で更新する。
func updateStatus(ctx context.Context, db *sql.DB, table, id string, status model.ModerationStatus, subject string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE `+table+` SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", subject, err)
	}
	return requireAffected(result, model.NewNotFoundError(subject))
}

func deleteByID(ctx context.Context, db *sql.DB, table, id, subject string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", subject, err)
	}
	return requireAffected(result, model.NewNotFoundError(subject))
}

// --- authors ---

const authorColumns = `id, first_name, last_name, patronymic, birthday, death, country,
	status, created_by, created_at, updated_at`

// PostgresAuthorRepo はPostgreSQLを使用した著者リポジトリ。
type PostgresAuthorRepo struct {
	db *sql.DB
}

// NewPostgresAuthorRepo はPostgresAuthorRepoを生成する。
func NewPostgresAuthorRepo(db *sql.DB) *PostgresAuthorRepo {
	return &PostgresAuthorRepo{db: db}
}

func scanAuthor(row rowScanner) (*model.Author, error) {
	a := &model.Author{}
	var birthday, death sql.NullTime
	var createdBy sql.NullString
	var status string
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Patronymic, &birthday, &death, &a.Country,
		&status, &createdBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Birthday, a.Death = timePtr(birthday), timePtr(death)
	a.Status = model.ModerationStatus(status)
	a.CreatedBy = createdBy.String
	return a, nil
}

// FindByID は指定IDの著者を取得する。見つからない場合はnilを返す。
func (r *PostgresAuthorRepo) FindByID(ctx context.Context, id string) (*model.Author, error) {
	a, err := scanAuthor(r.db.QueryRowContext(ctx, `SELECT `+authorColumns+` FROM authors WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}
	return a, nil
}

// List は可視性条件に従って著者一覧を返す。
func (r *PostgresAuthorRepo) List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Author, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+authorColumns+` FROM authors WHERE `+moderatedVisibility+` ORDER BY last_name, first_name`,
		moderatedArgs(filter)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var authors []*model.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// Create は著者を作成する。
func (r *PostgresAuthorRepo) Create(ctx context.Context, a *model.Author) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authors (id, first_name, last_name, patronymic, birthday, death, country,
		                      status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.FirstName, a.LastName, a.Patronymic, nullTime(a.Birthday), nullTime(a.Death), a.Country,
		string(a.Status), nullString(a.CreatedBy), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert author: %w", err)
	}
	return nil
}

// Update は著者を更新する。created_byは変更しない。
func (r *PostgresAuthorRepo) Update(ctx context.Context, a *model.Author) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE authors SET first_name = $2, last_name = $3, patronymic = $4, birthday = $5, death = $6,
		        country = $7, status = $8, updated_at = $9
		 WHERE id = $1`,
		a.ID, a.FirstName, a.LastName, a.Patronymic, nullTime(a.Birthday), nullTime(a.Death),
		a.Country, string(a.Status), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update author: %w", err)
	}
	return requireAffected(result, model.NewNotFoundError("著者"))
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresAuthorRepo) UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error {
	return updateStatus(ctx, r.db, "authors", id, status, "著者")
}

// Delete は著者を削除する。
func (r *PostgresAuthorRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "authors", id, "著者")
}

// --- genres ---

const genreColumns = `id, title, description, status, created_by, created_at, updated_at`

// PostgresGenreRepo はPostgreSQLを使用したジャンルリポジトリ。
type PostgresGenreRepo struct {
	db *sql.DB
}

// NewPostgresGenreRepo はPostgresGenreRepoを生成する。
func NewPostgresGenreRepo(db *sql.DB) *PostgresGenreRepo {
	return &PostgresGenreRepo{db: db}
}

func scanGenre(row rowScanner) (*model.Genre, error) {
	g := &model.Genre{}
	var createdBy sql.NullString
	var status string
	if err := row.Scan(&g.ID, &g.Title, &g.Description, &status, &createdBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Status = model.ModerationStatus(status)
	g.CreatedBy = createdBy.String
	return g, nil
}

// FindByID は指定IDのジャンルを取得する。見つからない場合はnilを返す。
func (r *PostgresGenreRepo) FindByID(ctx context.Context, id string) (*model.Genre, error) {
	g, err := scanGenre(r.db.QueryRowContext(ctx, `SELECT `+genreColumns+` FROM genres WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find genre: %w", err)
	}
	return g, nil
}

// List は可視性条件に従ってジャンル一覧を返す。
func (r *PostgresGenreRepo) List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Genre, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+genreColumns+` FROM genres WHERE `+moderatedVisibility+` ORDER BY title`,
		moderatedArgs(filter)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []*model.Genre
	for rows.Next() {
		g, err := scanGenre(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// Create はジャンルを作成する。
func (r *PostgresGenreRepo) Create(ctx context.Context, g *model.Genre) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO genres (id, title, description, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Title, g.Description, string(g.Status), nullString(g.CreatedBy), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert genre: %w", err)
	}
	return nil
}

// Update はジャンルを更新する。
func (r *PostgresGenreRepo) Update(ctx context.Context, g *model.Genre) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE genres SET title = $2, description = $3, status = $4, updated_at = $5 WHERE id = $1`,
		g.ID, g.Title, g.Description, string(g.Status), g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update genre: %w", err)
	}
	return requireAffected(result, model.NewNotFoundError("ジャンル"))
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresGenreRepo) UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error {
	return updateStatus(ctx, r.db, "genres", id, status, "ジャンル")
}

// Delete はジャンルを削除する。
func (r *PostgresGenreRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "genres", id, "ジャンル")
}

// --- books ---

const bookColumns = `id, title, author_id, genre_id, symbols, type, status, created_by, created_at, updated_at`

// PostgresBookRepo はPostgreSQLを使用した書籍リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

func scanBook(row rowScanner) (*model.Book, error) {
	b := &model.Book{}
	var createdBy sql.NullString
	var status, bookType string
	err := row.Scan(&b.ID, &b.Title, &b.AuthorID, &b.GenreID, &b.Symbols, &bookType, &status,
		&createdBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Type = model.BookType(bookType)
	b.Status = model.ModerationStatus(status)
	b.CreatedBy = createdBy.String
	return b, nil
}

// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	return b, nil
}

// List は可視性条件に従って書籍一覧を返す。
func (r *PostgresBookRepo) List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE `+moderatedVisibility+` ORDER BY title`,
		moderatedArgs(filter)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Create は書籍を作成する。存在しない著者・ジャンルはVALIDATION_FAILEDを返す。
func (r *PostgresBookRepo) Create(ctx context.Context, b *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, author_id, genre_id, symbols, type, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Title, b.AuthorID, b.GenreID, b.Symbols, string(b.Type), string(b.Status),
		nullString(b.CreatedBy), b.CreatedAt, b.UpdatedAt,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"author": "著者またはジャンルが存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

// Update は書籍を更新する。
func (r *PostgresBookRepo) Update(ctx context.Context, b *model.Book) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE books SET title = $2, author_id = $3, genre_id = $4, symbols = $5, type = $6,
		        status = $7, updated_at = $8
		 WHERE id = $1`,
		b.ID, b.Title, b.AuthorID, b.GenreID, b.Symbols, string(b.Type), string(b.Status), b.UpdatedAt,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"author": "著者またはジャンルが存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	return requireAffected(result, model.NewNotFoundError("書籍"))
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresBookRepo) UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error {
	return updateStatus(ctx, r.db, "books", id, status, "書籍")
}

// Delete は書籍を削除する。
func (r *PostgresBookRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "books", id, "書籍")
}

// compile-time interface check
var (
	_ AuthorRepository = (*PostgresAuthorRepo)(nil)
	_ GenreRepository  = (*PostgresGenreRepo)(nil)
	_ BookRepository   = (*PostgresBookRepo)(nil)
)
