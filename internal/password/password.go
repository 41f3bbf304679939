// Package password はパスワードのハッシュ化と照合を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength はパスワードの最小文字数。
const MinLength = 8

// ErrTooShort はパスワードが短すぎる場合のエラー。
var ErrTooShort = errors.New("password is too short")

// Hasher はbcryptによるパスワードハッシュ。
type Hasher struct {
	cost int
}

// NewHasher はHasherを生成する。costが範囲外ならbcrypt.DefaultCostを使う。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードをハッシュ化する。
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", ErrTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Check はハッシュと平文が一致するかを返す。
func (h *Hasher) Check(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
