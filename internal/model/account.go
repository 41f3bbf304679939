package model

import "time"

// DefaultRequestTTL はアカウント操作リクエストの有効期間。
const DefaultRequestTTL = 24 * time.Hour

// ExpiringRequest はメールアドレス変更・パスワードリセットの単一使用リクエスト。
// usedはfalseからtrueへ一度だけ遷移し、戻ることはない。
type ExpiringRequest struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// IsExpired はnowの時点でttlを超過しているかどうかを返す。
// 保存値ではなくcreated_atから都度算出する。
func (r *ExpiringRequest) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.After(r.CreatedAt.Add(ttl))
}

// EmailChangeRequest はメールアドレス変更リクエスト。
type EmailChangeRequest struct {
	ExpiringRequest
	NewEmail string
}

// PasswordResetRequest はパスワードリセットリクエスト。
type PasswordResetRequest struct {
	ExpiringRequest
}
