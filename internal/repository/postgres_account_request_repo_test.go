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

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newEmailChangeRequest() *model.EmailChangeRequest {
	return &model.EmailChangeRequest{
		ExpiringRequest: model.ExpiringRequest{
			ID:        "req-1",
			UserID:    "user-1",
			Token:     "3b241101-e2bb-4255-8caf-4136c566a962",
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		NewEmail: "New@Example.com",
	}
}

// TestEmailChangeRepo_Create は期限切れキーを解放してから挿入することを検証する。
func TestEmailChangeRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)
	req := newEmailChangeRequest()
	ttl := 24 * time.Hour

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE email_change_requests SET live_key = NULL WHERE live_key = \$1 AND created_at < \$2$`).
		WithArgs("user-1:new@example.com", req.CreatedAt.Add(-ttl)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT INTO email_change_requests`).
		WithArgs("req-1", "user-1", "New@Example.com", req.Token, "user-1:new@example.com", req.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), req, ttl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailChangeRepo_Create_LiveDuplicate は有効キーの一意制約違反がDUPLICATE_REQUESTになることを検証する。
func TestEmailChangeRepo_Create_LiveDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE email_change_requests SET live_key = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO email_change_requests`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "email_change_requests_live_key_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), newEmailChangeRequest(), 24*time.Hour)
	assert.True(t, model.IsKind(err, model.ErrCodeDuplicateRequest), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailChangeRepo_Create_TokenCollision はトークン衝突を重複リクエスト扱いしないことを検証する。
func TestEmailChangeRepo_Create_TokenCollision(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE email_change_requests SET live_key = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO email_change_requests`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "email_change_requests_token_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), newEmailChangeRequest(), 24*time.Hour)
	require.Error(t, err)
	assert.False(t, model.IsKind(err, model.ErrCodeDuplicateRequest))
}

// TestEmailChangeRepo_FindByToken_NotFound は該当なしでnilを返すことを検証する。
func TestEmailChangeRepo_FindByToken_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)

	mock.ExpectQuery(`FROM email_change_requests WHERE token = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByToken(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestEmailChangeRepo_FindByToken はレコードを正しく読み込むことを検証する。
func TestEmailChangeRepo_FindByToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "new_email", "token", "used", "used_at", "created_at"}).
		AddRow("req-1", "user-1", "new@example.com", "tok", true, created.Add(time.Hour), created)
	mock.ExpectQuery(`FROM email_change_requests WHERE token = \$1`).
		WithArgs("tok").
		WillReturnRows(rows)

	got, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new@example.com", got.NewEmail)
	assert.True(t, got.Used)
	require.NotNil(t, got.UsedAt)
	assert.Equal(t, created.Add(time.Hour), *got.UsedAt)
}

// TestEmailChangeRepo_Consume は使用済み化とメール更新を同一トランザクションで行うことを検証する。
func TestEmailChangeRepo_Consume(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)
	req := newEmailChangeRequest()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE email_change_requests SET used = true, used_at = \$2, live_key = NULL WHERE id = \$1 AND used = false$`).
		WithArgs("req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET email = \$2, email_confirmed = true`).
		WithArgs("user-1", "New@Example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Consume(context.Background(), req))
	assert.True(t, req.Used)
	assert.NotNil(t, req.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailChangeRepo_Consume_LostRace は比較交換に負けた場合にALREADY_USEDを返すことを検証する。
func TestEmailChangeRepo_Consume_LostRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)
	req := newEmailChangeRequest()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE email_change_requests SET used = true`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Consume(context.Background(), req)
	assert.True(t, model.IsKind(err, model.ErrCodeAlreadyUsed), "got %v", err)
	assert.False(t, req.Used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailChangeRepo_Consume_EmailTaken はメールアドレスが他ユーザーと重複した場合にロールバックすることを検証する。
func TestEmailChangeRepo_Consume_EmailTaken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEmailChangeRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE email_change_requests SET used = true`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET email`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "idx_users_email_lower"})
	mock.ExpectRollback()

	err := repo.Consume(context.Background(), newEmailChangeRequest())
	assert.True(t, model.IsKind(err, model.ErrCodeConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPasswordResetRepo_Create はユーザー単位のキーで挿入することを検証する。
func TestPasswordResetRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPasswordResetRepo(db)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	req := &model.PasswordResetRequest{ExpiringRequest: model.ExpiringRequest{
		ID: "req-2", UserID: "user-1", Token: "tok", CreatedAt: created,
	}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_requests SET live_key = NULL`).
		WithArgs("user-1", created.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO password_reset_requests`).
		WithArgs("req-2", "user-1", "tok", "user-1", created).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "password_reset_requests_live_key_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), req, time.Hour)
	assert.True(t, model.IsKind(err, model.ErrCodeDuplicateRequest), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPasswordResetRepo_Consume はパスワードハッシュを更新することを検証する。
func TestPasswordResetRepo_Consume(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPasswordResetRepo(db)
	req := &model.PasswordResetRequest{ExpiringRequest: model.ExpiringRequest{ID: "req-2", UserID: "user-1"}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_requests SET used = true`).
		WithArgs("req-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs("user-1", "$2a$hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Consume(context.Background(), req, "$2a$hash"))
	assert.True(t, req.Used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailChangeKey はキーがメールアドレスの大文字小文字を区別しないことを検証する。
func TestEmailChangeKey(t *testing.T) {
	assert.Equal(t, emailChangeKey("u", " A@B.com "), emailChangeKey("u", "a@b.com"))
	assert.NotEqual(t, emailChangeKey("u1", "a@b.com"), emailChangeKey("u2", "a@b.com"))
}
