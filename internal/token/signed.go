package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/booklog/internal/model"
)

// sign はHS256でclaimsに署名する。
func sign(secret []byte, claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifySigned はaudienceがpurposeのトークンを検証し、claimsへ読み込む。
// maxAgeが0以下なら常にEXPIRED、署名やaudienceの不一致はINVALID、
// 発行からmaxAgeを超えていればEXPIREDを返す。
func verifySigned(raw string, secret []byte, purpose string, now func() time.Time, maxAge time.Duration, claims jwt.Claims) error {
	if maxAge <= 0 {
		return model.NewExpiredError()
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(purpose),
		jwt.WithTimeFunc(now),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return model.NewInvalidSignatureError()
	}

	sub, _ := claims.GetSubject()
	iat, _ := claims.GetIssuedAt()
	if sub == "" || iat == nil {
		return model.NewInvalidSignatureError()
	}
	if now().Sub(iat.Time) > maxAge {
		return model.NewExpiredError()
	}
	return nil
}
