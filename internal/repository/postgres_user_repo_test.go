package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/booklog/internal/model"
)

var userRowColumns = []string{
	"id", "username", "email", "name", "password_hash", "role", "email_confirmed",
	"is_active", "is_staff", "is_superuser", "created_at", "updated_at",
}

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// TestPostgresUserRepo_FindByID はユーザーの全カラムを読み込むことを検証する。
func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "taro", "taro@example.com", "Taro", "hash", "STAFF", true, true, true, false, now, now))

	got, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "taro", got.Username)
	assert.Equal(t, "STAFF", got.Role)
	assert.True(t, got.IsStaff)
	assert.True(t, got.EmailConfirmed)
}

// TestPostgresUserRepo_FindByID_NotFound は該当なしでnilを返すことを検証する。
func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestPostgresUserRepo_FindByEmail は大文字小文字を区別せずに検索することを検証する。
func TestPostgresUserRepo_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("Taro@Example.com").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByEmail(context.Background(), "Taro@Example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresUserRepo_Create_Conflict は一意制約違反をCONFLICTに変換することを検証する。
func TestPostgresUserRepo_Create_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "idx_users_username"})

	err := repo.Create(context.Background(), &model.User{ID: "u", Username: "taro", Role: "READER"})
	assert.True(t, model.IsKind(err, model.ErrCodeConflict), "got %v", err)
}

// TestPostgresUserRepo_UpdateRole はロールと派生フラグを同時に更新することを検証する。
func TestPostgresUserRepo_UpdateRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`UPDATE users SET role = \$2, is_staff = \$3, is_superuser = \$4`).
		WithArgs("user-1", "ADMIN", false, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{ID: "user-1", Role: "ADMIN"}
	u.SyncRoleFlags()
	require.NoError(t, repo.UpdateRole(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresUserRepo_DeleteByID_NotFound は削除対象がない場合にUSER_NOT_FOUNDを返すことを検証する。
func TestPostgresUserRepo_DeleteByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.True(t, model.IsKind(err, model.ErrCodeUserNotFound), "got %v", err)
}


// TestPostgresUserRepo_ConfirmEmail はメールアドレスが一致する行だけが確認済みになることを検証する。
func TestPostgresUserRepo_ConfirmEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`UPDATE users SET email_confirmed = true, updated_at = now\(\) WHERE id = \$1 AND lower\(email\) = lower\(\$2\)`).
		WithArgs("user-1", "reader@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET email_confirmed = true`).
		WithArgs("user-1", "old@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ConfirmEmail(context.Background(), "user-1", "reader@example.com"))
	err := repo.ConfirmEmail(context.Background(), "user-1", "old@example.com")
	assert.True(t, model.IsKind(err, model.ErrCodeUserNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
