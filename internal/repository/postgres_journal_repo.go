package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/booklog/internal/model"
)

// --- book_logs ---

const bookLogColumns = `id, book_id, created_by, start_date, end_date, score,
	topic, three_sentences, new_knowledge, transformed_me, impressions, ideas, heroes,
	begin_text, key_events, most_important_event, result, created_at, updated_at`

// PostgresBookLogRepo はPostgreSQLを使用した読書記録リポジトリ。
type PostgresBookLogRepo struct {
	db *sql.DB
}

// NewPostgresBookLogRepo はPostgresBookLogRepoを生成する。
func NewPostgresBookLogRepo(db *sql.DB) *PostgresBookLogRepo {
	return &PostgresBookLogRepo{db: db}
}

func scanBookLog(row rowScanner) (*model.BookLog, error) {
	l := &model.BookLog{}
	var start, end sql.NullTime
	n := &l.Notes
	err := row.Scan(&l.ID, &l.BookID, &l.CreatedBy, &start, &end, &l.Score,
		&n.Topic, &n.ThreeSentences, &n.NewKnowledge, &n.TransformedMe, &n.Impressions, &n.Ideas, &n.Heroes,
		&n.Begin, &n.KeyEvents, &n.MostImportantEvent, &n.Result, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.StartDate, l.EndDate = timePtr(start), timePtr(end)
	return l, nil
}

// FindByID は指定IDの読書記録を取得する。見つからない場合はnilを返す。
func (r *PostgresBookLogRepo) FindByID(ctx context.Context, id string) (*model.BookLog, error) {
	l, err := scanBookLog(r.db.QueryRowContext(ctx, `SELECT `+bookLogColumns+` FROM book_logs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book log: %w", err)
	}
	return l, nil
}

// ListByUser はuserIDの読書記録を新しい順に返す。userIDが空なら全件。
func (r *PostgresBookLogRepo) ListByUser(ctx context.Context, userID string) ([]*model.BookLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookLogColumns+` FROM book_logs
		 WHERE ($1::text = '' OR created_by::text = $1::text)
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list book logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.BookLog
	for rows.Next() {
		l, err := scanBookLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Create は読書記録を作成する。
func (r *PostgresBookLogRepo) Create(ctx context.Context, l *model.BookLog) error {
	n := l.Notes
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO book_logs (id, book_id, created_by, start_date, end_date, score,
		        topic, three_sentences, new_knowledge, transformed_me, impressions, ideas, heroes,
		        begin_text, key_events, most_important_event, result, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		l.ID, l.BookID, l.CreatedBy, nullTime(l.StartDate), nullTime(l.EndDate), l.Score,
		n.Topic, n.ThreeSentences, n.NewKnowledge, n.TransformedMe, n.Impressions, n.Ideas, n.Heroes,
		n.Begin, n.KeyEvents, n.MostImportantEvent, n.Result, l.CreatedAt, l.UpdatedAt,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"book": "書籍が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to insert book log: %w", err)
	}
	return nil
}

// Update は読書記録を更新する。
func (r *PostgresBookLogRepo) Update(ctx context.Context, l *model.BookLog) error {
	n := l.Notes
	result, err := r.db.ExecContext(ctx,
		`UPDATE book_logs SET book_id = $2, start_date = $3, end_date = $4, score = $5,
		        topic = $6, three_sentences = $7, new_knowledge = $8, transformed_me = $9,
		        impressions = $10, ideas = $11, heroes = $12, begin_text = $13, key_events = $14,
		        most_important_event = $15, result = $16, updated_at = $17
		 WHERE id = $1`,
		l.ID, l.BookID, nullTime(l.StartDate), nullTime(l.EndDate), l.Score,
		n.Topic, n.ThreeSentences, n.NewKnowledge, n.TransformedMe, n.Impressions, n.Ideas, n.Heroes,
		n.Begin, n.KeyEvents, n.MostImportantEvent, n.Result, l.UpdatedAt,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"book": "書籍が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to update book log: %w", err)
	}
	return requireAffected(result, model.NewNotFoundError("読書記録"))
}

// Delete は読書記録を削除する。
func (r *PostgresBookLogRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "book_logs", id, "読書記録")
}

// --- quotes ---

const quoteSelect = `SELECT q.id, q.book_id, q.book_log_id, q.note, q.is_private, q.created_by, q.created_at,
	(SELECT count(*) FROM likes l WHERE l.quote_id = q.id),
	(SELECT count(*) FROM shares s WHERE s.quote_id = q.id)
	FROM quotes q`

// PostgresQuoteRepo はPostgreSQLを使用した引用リポジトリ。
type PostgresQuoteRepo struct {
	db *sql.DB
}

// NewPostgresQuoteRepo はPostgresQuoteRepoを生成する。
func NewPostgresQuoteRepo(db *sql.DB) *PostgresQuoteRepo {
	return &PostgresQuoteRepo{db: db}
}

func scanQuote(row rowScanner) (*model.Quote, error) {
	q := &model.Quote{}
	var bookLogID sql.NullString
	err := row.Scan(&q.ID, &q.BookID, &bookLogID, &q.Note, &q.IsPrivate, &q.CreatedBy, &q.CreatedAt,
		&q.LikeCount, &q.ShareCount)
	if err != nil {
		return nil, err
	}
	q.BookLogID = bookLogID.String
	return q, nil
}

// FindByID は引用をいいね数・共有数付きで取得する。見つからない場合はnilを返す。
func (r *PostgresQuoteRepo) FindByID(ctx context.Context, id string) (*model.Quote, error) {
	q, err := scanQuote(r.db.QueryRowContext(ctx, quoteSelect+` WHERE q.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find quote: %w", err)
	}
	return q, nil
}

// List は絞り込み条件と可視性に従って引用を新しい順に返す。
// date_toは指定日の終わりまでを含む。
func (r *PostgresQuoteRepo) List(ctx context.Context, f model.QuoteFilter) ([]*model.Quote, error) {
	rows, err := r.db.QueryContext(ctx,
		quoteSelect+` JOIN books b ON b.id = q.book_id
		 WHERE ($1::boolean OR NOT q.is_private OR q.created_by::text = $2::text)
		   AND ($3::text = '' OR b.author_id::text = $3::text)
		   AND ($4::text = '' OR b.genre_id::text = $4::text)
		   AND ($5::timestamptz IS NULL OR q.created_at >= $5::timestamptz)
		   AND ($6::timestamptz IS NULL OR q.created_at < $6::timestamptz + interval '1 day')
		 ORDER BY q.created_at DESC`,
		f.Elevated, f.ViewerID, f.AuthorID, f.GenreID, nullTime(f.DateFrom), nullTime(f.DateTo),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// Create は引用を作成する。
func (r *PostgresQuoteRepo) Create(ctx context.Context, q *model.Quote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quotes (id, book_id, book_log_id, note, is_private, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, q.BookID, nullString(q.BookLogID), q.Note, q.IsPrivate, q.CreatedBy, q.CreatedAt,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"book": "書籍または読書記録が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// Update は引用を更新する。
func (r *PostgresQuoteRepo) Update(ctx context.Context, q *model.Quote) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE quotes SET book_id = $2, book_log_id = $3, note = $4, is_private = $5 WHERE id = $1`,
		q.ID, q.BookID, nullString(q.BookLogID), q.Note, q.IsPrivate,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"book": "書籍または読書記録が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	return requireAffected(result, model.NewNotFoundError("引用"))
}

// Delete は引用を削除する。いいね・共有はCASCADE削除される。
func (r *PostgresQuoteRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "quotes", id, "引用")
}

// --- likes ---

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
type PostgresLikeRepo struct {
	db *sql.DB
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db *sql.DB) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// FindByID は指定IDのいいねを取得する。見つからない場合はnilを返す。
func (r *PostgresLikeRepo) FindByID(ctx context.Context, id string) (*model.Like, error) {
	l := &model.Like{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, quote_id, moment FROM likes WHERE id = $1`, id,
	).Scan(&l.ID, &l.UserID, &l.QuoteID, &l.Moment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find like: %w", err)
	}
	return l, nil
}

// List はいいね一覧を返す。quoteIDが空なら全件。
func (r *PostgresLikeRepo) List(ctx context.Context, quoteID string) ([]*model.Like, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, quote_id, moment FROM likes
		 WHERE ($1::text = '' OR quote_id::text = $1::text)
		 ORDER BY moment DESC`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	defer rows.Close()

	var likes []*model.Like
	for rows.Next() {
		l := &model.Like{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.QuoteID, &l.Moment); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

// Create はいいねを作成する。同一(user, quote)はCONFLICTを返す。
func (r *PostgresLikeRepo) Create(ctx context.Context, l *model.Like) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO likes (id, user_id, quote_id, moment) VALUES ($1, $2, $3, $4)`,
		l.ID, l.UserID, l.QuoteID, l.Moment,
	)
	if isPQCode(err, uniqueViolation) {
		return model.NewConflictError("この引用には既にいいねしています。")
	}
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"quote": "引用が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to insert like: %w", err)
	}
	return nil
}

// Delete はいいねを削除する。
func (r *PostgresLikeRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "likes", id, "いいね")
}

// --- shares ---

// PostgresShareRepo はPostgreSQLを使用した共有リポジトリ。
type PostgresShareRepo struct {
	db *sql.DB
}

// NewPostgresShareRepo はPostgresShareRepoを生成する。
func NewPostgresShareRepo(db *sql.DB) *PostgresShareRepo {
	return &PostgresShareRepo{db: db}
}

// FindByID は指定IDの共有を取得する。見つからない場合はnilを返す。
func (r *PostgresShareRepo) FindByID(ctx context.Context, id string) (*model.Share, error) {
	s := &model.Share{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, quote_id, destination, moment FROM shares WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.QuoteID, &s.Destination, &s.Moment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find share: %w", err)
	}
	return s, nil
}

// List は共有を新しい順に返す。quoteIDが空なら全件。
func (r *PostgresShareRepo) List(ctx context.Context, quoteID string) ([]*model.Share, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, quote_id, destination, moment FROM shares
		 WHERE ($1::text = '' OR quote_id::text = $1::text)
		 ORDER BY moment DESC`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var shares []*model.Share
	for rows.Next() {
		s := &model.Share{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.QuoteID, &s.Destination, &s.Moment); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// Create は共有を作成する。
func (r *PostgresShareRepo) Create(ctx context.Context, s *model.Share) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shares (id, user_id, quote_id, destination, moment) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.QuoteID, s.Destination, s.Moment,
	)
	if isPQCode(err, foreignKeyViolation) {
		return model.NewValidationError(map[string]string{"quote": "引用が存在しません。"})
	}
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

// Delete は共有を削除する。
func (r *PostgresShareRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "shares", id, "共有")
}

// compile-time interface check
var (
	_ BookLogRepository = (*PostgresBookLogRepo)(nil)
	_ QuoteRepository   = (*PostgresQuoteRepo)(nil)
	_ LikeRepository    = (*PostgresLikeRepo)(nil)
	_ ShareRepository   = (*PostgresShareRepo)(nil)
)
