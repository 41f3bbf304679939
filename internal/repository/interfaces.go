// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/booklog/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByLogin はユーザー名またはメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByLogin(ctx context.Context, login string) (*model.User, error)

	// Create はユーザーを作成する。ユーザー名・メールの重複はCONFLICTを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateName は表示名を更新する。
	UpdateName(ctx context.Context, id, name string) error

	// ConfirmEmail はメールアドレスを確認済みにする。
	// 登録メールアドレスがemailと一致しない場合はUSER_NOT_FOUNDを返す。
	ConfirmEmail(ctx context.Context, id, email string) error

	// UpdateRole はロールと派生フラグ（is_staff, is_superuser）を同時に更新する。
	UpdateRole(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するセッション・読書記録・引用などはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// EmailChangeRepository はメールアドレス変更リクエストの永続化インターフェース。
type EmailChangeRepository interface {
	// Create はリクエストを作成する。
	// 同一(user, new_email)に有効なリクエストが存在する場合はDUPLICATE_REQUESTを返す。
	// 一意性はストアの制約で保証し、事前チェックには依存しない。
	Create(ctx context.Context, req *model.EmailChangeRequest, ttl time.Duration) error

	// FindByToken はトークンでリクエストを取得する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.EmailChangeRequest, error)

	// Consume はリクエストを使用済みにし、ユーザーのメールアドレスを更新する。
	// 使用済みへの遷移は比較交換で行い、競合に負けた場合はALREADY_USEDを返す。
	Consume(ctx context.Context, req *model.EmailChangeRequest) error
}

// PasswordResetRepository はパスワードリセットリクエストの永続化インターフェース。
type PasswordResetRepository interface {
	// Create はリクエストを作成する。
	// 同一ユーザーに有効なリクエストが存在する場合はDUPLICATE_REQUESTを返す。
	Create(ctx context.Context, req *model.PasswordResetRequest, ttl time.Duration) error

	// FindByToken はトークンでリクエストを取得する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.PasswordResetRequest, error)

	// Consume はリクエストを使用済みにし、ユーザーのパスワードハッシュを更新する。
	// 競合に負けた場合はALREADY_USEDを返す。
	Consume(ctx context.Context, req *model.PasswordResetRequest, passwordHash string) error
}

// AuthorRepository は著者の永続化インターフェース。
type AuthorRepository interface {
	FindByID(ctx context.Context, id string) (*model.Author, error)
	List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Author, error)
	Create(ctx context.Context, author *model.Author) error
	Update(ctx context.Context, author *model.Author) error
	// UpdateStatus はステータスのみを更新する。単一行の後勝ち更新。
	UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error
	Delete(ctx context.Context, id string) error
}

// GenreRepository はジャンルの永続化インターフェース。
type GenreRepository interface {
	FindByID(ctx context.Context, id string) (*model.Genre, error)
	List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Genre, error)
	Create(ctx context.Context, genre *model.Genre) error
	Update(ctx context.Context, genre *model.Genre) error
	UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error
	Delete(ctx context.Context, id string) error
}

// BookRepository は書籍の永続化インターフェース。
type BookRepository interface {
	FindByID(ctx context.Context, id string) (*model.Book, error)
	List(ctx context.Context, filter model.ModeratedFilter) ([]*model.Book, error)
	Create(ctx context.Context, book *model.Book) error
	Update(ctx context.Context, book *model.Book) error
	UpdateStatus(ctx context.Context, id string, status model.ModerationStatus) error
	Delete(ctx context.Context, id string) error
}

// BookLogRepository は読書記録の永続化インターフェース。
type BookLogRepository interface {
	FindByID(ctx context.Context, id string) (*model.BookLog, error)
	// ListByUser はuserIDの読書記録を返す。userIDが空なら全件。
	ListByUser(ctx context.Context, userID string) ([]*model.BookLog, error)
	Create(ctx context.Context, log *model.BookLog) error
	Update(ctx context.Context, log *model.BookLog) error
	Delete(ctx context.Context, id string) error
}

// QuoteRepository は引用の永続化インターフェース。
type QuoteRepository interface {
	// FindByID は引用をいいね数・共有数付きで取得する。
	FindByID(ctx context.Context, id string) (*model.Quote, error)
	// List は絞り込み条件と可視性に従って引用を返す。
	List(ctx context.Context, filter model.QuoteFilter) ([]*model.Quote, error)
	Create(ctx context.Context, quote *model.Quote) error
	Update(ctx context.Context, quote *model.Quote) error
	Delete(ctx context.Context, id string) error
}

// LikeRepository はいいねの永続化インターフェース。
type LikeRepository interface {
	FindByID(ctx context.Context, id string) (*model.Like, error)
	List(ctx context.Context, quoteID string) ([]*model.Like, error)
	// Create はいいねを作成する。同一(user, quote)はCONFLICTを返す。
	Create(ctx context.Context, like *model.Like) error
	Delete(ctx context.Context, id string) error
}

// ShareRepository は共有の永続化インターフェース。
type ShareRepository interface {
	FindByID(ctx context.Context, id string) (*model.Share, error)
	// List は共有を新しい順に返す。
	List(ctx context.Context, quoteID string) ([]*model.Share, error)
	Create(ctx context.Context, share *model.Share) error
	Delete(ctx context.Context, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// foreignKeyViolation はPostgreSQLの外部キー制約違反コード。
const foreignKeyViolation = "23503"

// isPQCode はerrが指定コードのPostgreSQLエラーかどうかを判定する。
func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// constraintName は制約違反の制約名を返す。
func constraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
