package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/account"
	"github.com/hitoshi/booklog/internal/middleware"
	"github.com/hitoshi/booklog/internal/model"
)

// AccountServiceInterface はアカウント操作ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	RequestEmailChange(ctx context.Context, principal *model.User, newEmail string) (*account.EmailChangeOutcome, error)
	ConfirmEmailChange(ctx context.Context, rawToken string) (*model.User, error)
	RequestPasswordReset(ctx context.Context, email string) (*account.PasswordResetOutcome, error)
	ConfirmPasswordReset(ctx context.Context, rawToken, newPassword, reNewPassword string) (*model.User, error)
	RequestDeletion(ctx context.Context, principal *model.User) (*account.Notice, error)
	ConfirmDeletion(ctx context.Context, rawToken string) error
}

// AccountHandler はメールアドレス変更・パスワードリセット・プロフィール削除のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

type emailChangeRequestBody struct {
	NewEmail string `json:"new_email"`
}

type passwordResetRequestBody struct {
	Email string `json:"email"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type passwordResetConfirmBody struct {
	Token         string `json:"token"`
	NewPassword   string `json:"new_password"`
	ReNewPassword string `json:"re_new_password"`
}

// accountRequestResponse は作成したリクエストのレスポンス。トークンはメールでのみ届く。
type accountRequestResponse struct {
	ID                 string    `json:"id"`
	NewEmail           string    `json:"new_email,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Used               bool      `json:"used"`
	NotificationFailed bool      `json:"notification_failed"`
}

type detailResponse struct {
	Detail             string `json:"detail"`
	NotificationFailed bool   `json:"notification_failed,omitempty"`
}

// RequestEmailChange はメールアドレス変更リクエストを作成する。
// POST /api/account_actions/email-change/request
func (h *AccountHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	var body emailChangeRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	outcome, err := h.service.RequestEmailChange(r.Context(), middleware.PrincipalFromContext(r.Context()), body.NewEmail)
	if err != nil {
		handleTokenFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountRequestResponse{
		ID:                 outcome.Request.ID,
		NewEmail:           outcome.Request.NewEmail,
		CreatedAt:          outcome.Request.CreatedAt,
		Used:               outcome.Request.Used,
		NotificationFailed: outcome.NotificationFailed,
	})
}

// ConfirmEmailChange はトークンを検証してメールアドレスを変更する。
// POST /api/account_actions/email-change/confirm
func (h *AccountHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.ConfirmEmailChange(r.Context(), body.Token)
	if err != nil {
		handleTokenFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// RequestPasswordReset はパスワードリセットリクエストを作成する。
// POST /api/account_actions/password-reset/request
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body passwordResetRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	outcome, err := h.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		handleTokenFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountRequestResponse{
		ID:                 outcome.Request.ID,
		CreatedAt:          outcome.Request.CreatedAt,
		Used:               outcome.Request.Used,
		NotificationFailed: outcome.NotificationFailed,
	})
}

// ConfirmPasswordReset は新しいパスワードを設定する。
// POST /api/account_actions/password-reset/confirm
func (h *AccountHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body passwordResetConfirmBody
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.ConfirmPasswordReset(r.Context(), body.Token, body.NewPassword, body.ReNewPassword)
	if err != nil {
		handleTokenFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// RequestDeletion は削除確認メールを送る。
// POST /api/profile-delete/request
func (h *AccountHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	notice, err := h.service.RequestDeletion(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detailResponse{
		Detail:             "削除確認メールを送信しました。",
		NotificationFailed: notice.NotificationFailed,
	})
}

// ConfirmDeletion は削除トークンを検証してプロフィールを削除する。
// 対象ユーザーが存在しない場合は404を返す。
// POST /api/profile-delete/confirm
func (h *AccountHandler) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ConfirmDeletion(r.Context(), body.Token); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "プロフィールを削除しました。"})
}

// Routes はアカウント操作のルーティングを登録する。
// authenticatedは認証必須のエンドポイント、throttledはトークンを発行するエンドポイントに適用する。
func (h *AccountHandler) Routes(r chi.Router, authenticated, throttled func(http.Handler) http.Handler) {
	r.Route("/api/account_actions", func(r chi.Router) {
		r.With(authenticated, throttled).Post("/email-change/request", h.RequestEmailChange)
		r.Post("/email-change/confirm", h.ConfirmEmailChange)
		r.With(throttled).Post("/password-reset/request", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
	})
	r.Route("/api/profile-delete", func(r chi.Router) {
		r.With(authenticated, throttled).Post("/request", h.RequestDeletion)
		r.Post("/confirm", h.ConfirmDeletion)
	})
}
