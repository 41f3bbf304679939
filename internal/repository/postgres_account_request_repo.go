package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/booklog/internal/model"
)

// emailChangeKey はメールアドレス変更の有効リクエストを一意にするキー。
func emailChangeKey(userID, newEmail string) string {
	return userID + ":" + strings.ToLower(strings.TrimSpace(newEmail))
}

// passwordResetKey はパスワードリセットの有効リクエストを一意にするキー。
func passwordResetKey(userID string) string {
	return userID
}

// insertLiveRequest は有効キーを確保してリクエストを挿入する。
// 期限切れの保持者からキーを解放してから挿入し、同時作成の競合は一意制約で検出する。
func insertLiveRequest(ctx context.Context, db TxBeginner, table, key string, cutoff time.Time, field string, insert func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE `+table+` SET live_key = NULL WHERE live_key = $1 AND created_at < $2`,
		key, cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to release expired request: %w", err)
	}

	if err := insert(tx); err != nil {
		if isPQCode(err, uniqueViolation) && !strings.HasSuffix(constraintName(err), "_token_key") {
			return model.NewDuplicateRequestError(field)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isPQCode(err, uniqueViolation) {
			return model.NewDuplicateRequestError(field)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// markUsed はリクエストを使用済みにする。既に使用済みならALREADY_USEDを返す。
// used = false を条件にした更新で比較交換を行う。
func markUsed(ctx context.Context, tx *sql.Tx, table, id string, usedAt time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET used = true, used_at = $2, live_key = NULL WHERE id = $1 AND used = false`,
		id, usedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark request used: %w", err)
	}
	return requireAffected(result, model.NewAlreadyUsedError())
}

// PostgresEmailChangeRepo はPostgreSQLを使用したメールアドレス変更リクエストのリポジトリ。
type PostgresEmailChangeRepo struct {
	db *sql.DB
}

// NewPostgresEmailChangeRepo はPostgresEmailChangeRepoを生成する。
func NewPostgresEmailChangeRepo(db *sql.DB) *PostgresEmailChangeRepo {
	return &PostgresEmailChangeRepo{db: db}
}

// Create はリクエストを作成する。
func (r *PostgresEmailChangeRepo) Create(ctx context.Context, req *model.EmailChangeRequest, ttl time.Duration) error {
	key := emailChangeKey(req.UserID, req.NewEmail)
	return insertLiveRequest(ctx, r.db, "email_change_requests", key, req.CreatedAt.Add(-ttl), "new_email", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO email_change_requests (id, user_id, new_email, token, live_key, used, created_at)
			 VALUES ($1, $2, $3, $4, $5, false, $6)`,
			req.ID, req.UserID, req.NewEmail, req.Token, key, req.CreatedAt,
		)
		return err
	})
}

// FindByToken はトークンでリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresEmailChangeRepo) FindByToken(ctx context.Context, token string) (*model.EmailChangeRequest, error) {
	req := &model.EmailChangeRequest{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, new_email, token, used, used_at, created_at
		 FROM email_change_requests WHERE token = $1`,
		token,
	).Scan(&req.ID, &req.UserID, &req.NewEmail, &req.Token, &req.Used, &usedAt, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find email change request: %w", err)
	}
	if usedAt.Valid {
		req.UsedAt = &usedAt.Time
	}
	return req, nil
}

// Consume はリクエストを使用済みにし、ユーザーのメールアドレスを確認済みとして更新する。
func (r *PostgresEmailChangeRepo) Consume(ctx context.Context, req *model.EmailChangeRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if err := markUsed(ctx, tx, "email_change_requests", req.ID, now); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET email = $2, email_confirmed = true, updated_at = $3 WHERE id = $1`,
		req.UserID, req.NewEmail, now,
	)
	if isPQCode(err, uniqueViolation) {
		return model.NewConflictError("このメールアドレスは既に使用されています。")
	}
	if err != nil {
		return fmt.Errorf("failed to update user email: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	req.Used = true
	req.UsedAt = &now
	return nil
}

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワードリセットリクエストのリポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create はリクエストを作成する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, req *model.PasswordResetRequest, ttl time.Duration) error {
	key := passwordResetKey(req.UserID)
	return insertLiveRequest(ctx, r.db, "password_reset_requests", key, req.CreatedAt.Add(-ttl), "email", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO password_reset_requests (id, user_id, token, live_key, used, created_at)
			 VALUES ($1, $2, $3, $4, false, $5)`,
			req.ID, req.UserID, req.Token, key, req.CreatedAt,
		)
		return err
	})
}

// FindByToken はトークンでリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresPasswordResetRepo) FindByToken(ctx context.Context, token string) (*model.PasswordResetRequest, error) {
	req := &model.PasswordResetRequest{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, used, used_at, created_at
		 FROM password_reset_requests WHERE token = $1`,
		token,
	).Scan(&req.ID, &req.UserID, &req.Token, &req.Used, &usedAt, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset request: %w", err)
	}
	if usedAt.Valid {
		req.UsedAt = &usedAt.Time
	}
	return req, nil
}

// Consume はリクエストを使用済みにし、パスワードハッシュを更新する。
func (r *PostgresPasswordResetRepo) Consume(ctx context.Context, req *model.PasswordResetRequest, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if err := markUsed(ctx, tx, "password_reset_requests", req.ID, now); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		req.UserID, passwordHash, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update user password: %w", err)
	}
	if err := requireAffected(result, model.NewUserNotFoundError()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	req.Used = true
	req.UsedAt = &now
	return nil
}

// compile-time interface check
var (
	_ EmailChangeRepository   = (*PostgresEmailChangeRepo)(nil)
	_ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
)
