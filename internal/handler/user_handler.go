package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/middleware"
	"github.com/hitoshi/booklog/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetCurrent(ctx context.Context, principal *model.User) (*model.User, error)
	UpdateProfile(ctx context.Context, principal *model.User, name string) (*model.User, error)
	// ChangeRole はSTAFF/ADMINのみ実行できる。派生フラグも同時に更新される。
	ChangeRole(ctx context.Context, actor *model.User, targetID, role string) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// GetCurrent はログインユーザーのプロフィールを返す。
// GET /api/user/current
func (h *UserHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetCurrent(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateProfile は表示名を更新する。
// PATCH /api/user/current
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ChangeRole は対象ユーザーのロールを変更する。
// PUT /api/users/{id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.ChangeRole(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Routes はユーザー管理関連のルーティングを登録する。
func (h *UserHandler) Routes(r chi.Router) {
	r.Get("/api/user/current", h.GetCurrent)
	r.Patch("/api/user/current", h.UpdateProfile)
	r.Put("/api/users/{id}/role", h.ChangeRole)
}
