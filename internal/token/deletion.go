// Package token はプロフィール削除と登録メール確認に使う署名付きトークンを発行・検証する。
// トークンはステートレスで、使用済み管理は行わない。用途はaudienceで区別する。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeProfileDeletion は削除トークンのaudience。
const PurposeProfileDeletion = "profile_deletion"

// DeletionClaims は削除トークンのクレーム。SubjectにユーザーIDを持つ。
type DeletionClaims struct {
	jwt.RegisteredClaims
}

// DeletionTokens は削除トークンの発行・検証を行う。
type DeletionTokens struct {
	secret []byte
	now    func() time.Time
}

// NewDeletionTokens はDeletionTokensを生成する。
func NewDeletionTokens(secret string) *DeletionTokens {
	return &DeletionTokens{secret: []byte(secret), now: time.Now}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func (d *DeletionTokens) WithClock(now func() time.Time) *DeletionTokens {
	d.now = now
	return d
}

// Issue はuserIDと発行時刻を埋め込んだトークンを発行する。
func (d *DeletionTokens) Issue(userID string) (string, error) {
	claims := DeletionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Audience: jwt.ClaimStrings{PurposeProfileDeletion},
			IssuedAt: jwt.NewNumericDate(d.now()),
		},
	}
	return sign(d.secret, claims)
}

// Verify はトークンを検証してユーザーIDを返す。
// maxAgeが0以下なら常にEXPIRED、署名不正はINVALID、経過時間がmaxAgeを超えればEXPIRED。
func (d *DeletionTokens) Verify(raw string, maxAge time.Duration) (string, error) {
	claims := &DeletionClaims{}
	if err := verifySigned(raw, d.secret, PurposeProfileDeletion, d.now, maxAge, claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ErrNoSecret はシークレット未設定時のエラー。
var ErrNoSecret = errors.New("deletion token secret is empty")

// Validate は設定値を検証する。
func (d *DeletionTokens) Validate() error {
	if len(d.secret) == 0 {
		return ErrNoSecret
	}
	return nil
}
