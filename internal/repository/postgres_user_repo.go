package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/booklog/internal/model"
)

const userColumns = `id, username, email, name, password_hash, role, email_confirmed,
	is_active, is_staff, is_superuser, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Name, &user.PasswordHash, &user.Role,
		&user.EmailConfirmed, &user.IsActive, &user.IsStaff, &user.IsSuperuser,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where,
		arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, email)
}

// FindByLogin はユーザー名またはメールアドレスでユーザーを検索する。
func (r *PostgresUserRepo) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.findOne(ctx, `username = $1::text OR lower(email) = lower($1::text) ORDER BY username = $1::text DESC LIMIT 1`, login)
}

// Create はユーザーを作成する。ユーザー名・メールの重複はCONFLICTを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, name, password_hash, role, email_confirmed,
		                    is_active, is_staff, is_superuser, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Username, user.Email, user.Name, user.PasswordHash, user.Role, user.EmailConfirmed,
		user.IsActive, user.IsStaff, user.IsSuperuser, user.CreatedAt, user.UpdatedAt,
	)
	if isPQCode(err, uniqueViolation) {
		if constraintName(err) == "idx_users_username" {
			return model.NewConflictError("このユーザー名は既に使用されています。")
		}
		return model.NewConflictError("このメールアドレスは既に使用されています。")
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateName は表示名を更新する。
func (r *PostgresUserRepo) UpdateName(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update user name: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// ConfirmEmail は登録メールアドレスが一致する場合に限り確認済みにする。
func (r *PostgresUserRepo) ConfirmEmail(ctx context.Context, id, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_confirmed = true, updated_at = now() WHERE id = $1 AND lower(email) = lower($2)`,
		id, email,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm user email: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// UpdateRole はロールと派生フラグを同時に更新する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, is_staff = $3, is_superuser = $4, updated_at = now() WHERE id = $1`,
		user.ID, user.Role, user.IsStaff, user.IsSuperuser,
	)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するセッション・リクエスト・読書記録・引用はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// requireAffected は更新件数が0の場合にnotFoundを返す。
func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
