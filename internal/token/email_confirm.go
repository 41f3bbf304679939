package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeEmailConfirm は登録メール確認トークンのaudience。
const PurposeEmailConfirm = "email_confirm"

// EmailConfirmClaims は登録メール確認トークンのクレーム。
// 発行時点のメールアドレスを含み、アドレス変更後のトークンを無効にする。
type EmailConfirmClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// EmailConfirmTokens は登録メール確認トークンの発行・検証を行う。
type EmailConfirmTokens struct {
	secret []byte
	now    func() time.Time
}

// NewEmailConfirmTokens はEmailConfirmTokensを生成する。
func NewEmailConfirmTokens(secret string) *EmailConfirmTokens {
	return &EmailConfirmTokens{secret: []byte(secret), now: time.Now}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func (t *EmailConfirmTokens) WithClock(now func() time.Time) *EmailConfirmTokens {
	t.now = now
	return t
}

// Issue はuserIDと確認対象のメールアドレスを埋め込んだトークンを発行する。
func (t *EmailConfirmTokens) Issue(userID, email string) (string, error) {
	claims := EmailConfirmClaims{
		Email: strings.ToLower(strings.TrimSpace(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Audience: jwt.ClaimStrings{PurposeEmailConfirm},
			IssuedAt: jwt.NewNumericDate(t.now()),
		},
	}
	return sign(t.secret, claims)
}

// Verify はトークンを検証し、ユーザーIDとメールアドレスを返す。
func (t *EmailConfirmTokens) Verify(raw string, maxAge time.Duration) (userID, email string, err error) {
	claims := &EmailConfirmClaims{}
	if err := verifySigned(raw, t.secret, PurposeEmailConfirm, t.now, maxAge, claims); err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Email, nil
}
