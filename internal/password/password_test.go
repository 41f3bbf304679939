package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// TestHasher_HashAndCheck はハッシュ化したパスワードが照合できることを検証する。
func TestHasher_HashAndCheck(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash should not equal plaintext")
	}
	if !h.Check(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if h.Check(hash, "wrong horse") {
		t.Error("expected wrong password to be rejected")
	}
}

// TestHasher_TooShort は短すぎるパスワードを拒否することを検証する。
func TestHasher_TooShort(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Hash("short")
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}

// TestNewHasher_InvalidCostFallsBack は範囲外のコストがデフォルトになることを検証する。
func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	if got := NewHasher(0).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := NewHasher(99).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}

// TestHasher_CheckMalformedHash は不正なハッシュでfalseになることを検証する。
func TestHasher_CheckMalformedHash(t *testing.T) {
	if NewHasher(bcrypt.MinCost).Check("not-a-hash", "whatever1") {
		t.Error("malformed hash should not match")
	}
}
