package token

import (
	"testing"
	"time"

	"github.com/hitoshi/booklog/internal/model"
)

// TestEmailConfirmTokens_RoundTrip は発行したトークンからユーザーIDとメールアドレスが復元できることを検証する。
func TestEmailConfirmTokens_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	tokens := NewEmailConfirmTokens("test-secret").WithClock(clock.Now)

	raw, err := tokens.Issue("user-1", " Reader@Example.com ")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	clock.t = clock.t.Add(48 * time.Hour)
	userID, email, err := tokens.Verify(raw, 72*time.Hour)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if userID != "user-1" || email != "reader@example.com" {
		t.Errorf("got (%q, %q), want (user-1, reader@example.com)", userID, email)
	}
}

// TestEmailConfirmTokens_Expired は有効期間を過ぎたトークンと0以下の有効期間が期限切れになることを検証する。
func TestEmailConfirmTokens_Expired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	tokens := NewEmailConfirmTokens("test-secret").WithClock(clock.Now)
	raw, err := tokens.Issue("user-1", "reader@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, _, err := tokens.Verify(raw, 0); !model.IsKind(err, model.ErrCodeExpired) {
		t.Errorf("maxAge=0: err = %v, want EXPIRED", err)
	}
	clock.t = clock.t.Add(72*time.Hour + time.Second)
	if _, _, err := tokens.Verify(raw, 72*time.Hour); !model.IsKind(err, model.ErrCodeExpired) {
		t.Errorf("err = %v, want EXPIRED", err)
	}
}

// TestTokens_PurposesAreNotInterchangeable は削除トークンと確認トークンを取り違えられないことを検証する。
func TestTokens_PurposesAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	deletion := NewDeletionTokens("test-secret").WithClock(clock.Now)
	confirm := NewEmailConfirmTokens("test-secret").WithClock(clock.Now)

	deletionRaw, err := deletion.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	confirmRaw, err := confirm.Issue("user-1", "reader@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, _, err := confirm.Verify(deletionRaw, time.Hour); !model.IsKind(err, model.ErrCodeInvalid) {
		t.Errorf("deletion token as confirm: err = %v, want INVALID", err)
	}
	if _, err := deletion.Verify(confirmRaw, time.Hour); !model.IsKind(err, model.ErrCodeInvalid) {
		t.Errorf("confirm token as deletion: err = %v, want INVALID", err)
	}
}
