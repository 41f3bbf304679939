package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, account, journal, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位の検証エラー（フォーム入力向け）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyUsed      = "ALREADY_USED"
	ErrCodeExpired          = "EXPIRED"
	ErrCodeDuplicateTarget  = "DUPLICATE_TARGET"
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
	ErrCodeMismatch         = "MISMATCH"
	ErrCodeInvalid          = "INVALID"
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeCSRFFailed       = "CSRF_FAILED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// IsKind はerrがcodeを持つAPIErrorかどうかを判定する。
func IsKind(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "必要なロールを持つアカウントで操作してください。",
	}
}

// NewNotFoundError は対象が存在しない場合のエラーを生成する。
// subjectには "author" や "token" などの対象種別を指定する。
func NewNotFoundError(subject string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません。", subject),
		Category: "validation",
		Action:   "IDまたはトークンを確認してください。",
	}
}

// NewInvalidTokenError はトークンが存在しない場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "無効または存在しないトークンです。",
		Category: "account",
		Action:   "メールに記載されたリンクを確認してください。",
		Fields:   map[string]string{"token": "無効または存在しないトークンです。"},
	}
}

// NewAlreadyUsedError は使用済みトークンのエラーを生成する。
func NewAlreadyUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyUsed,
		Message:  "このトークンは既に使用されています。",
		Category: "account",
		Action:   "もう一度リクエストを作成してください。",
		Fields:   map[string]string{"token": "このトークンは既に使用されています。"},
	}
}

// NewExpiredError は有効期限切れトークンのエラーを生成する。
func NewExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeExpired,
		Message:  "トークンの有効期限が切れています。",
		Category: "account",
		Action:   "もう一度リクエストを作成してください。",
		Fields:   map[string]string{"token": "トークンの有効期限が切れています。"},
	}
}

// NewDuplicateTargetError は新しい値が現在の値と同じ場合のエラーを生成する。
func NewDuplicateTargetError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTarget,
		Message:  "新しい値が現在の値と同じです。",
		Category: "validation",
		Action:   "現在とは異なる値を入力してください。",
		Fields:   map[string]string{field: "新しい値が現在の値と同じです。"},
	}
}

// NewDuplicateRequestError は有効なリクエストが既に存在する場合のエラーを生成する。
func NewDuplicateRequestError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRequest,
		Message:  "直近24時間以内に同じリクエストが送信されています。",
		Category: "account",
		Action:   "届いたメールを確認するか、時間をおいて再度お試しください。",
		Fields:   map[string]string{field: "直近24時間以内に同じリクエストが送信されています。"},
	}
}

// NewMismatchError は入力値が一致しない場合のエラーを生成する。
func NewMismatchError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMismatch,
		Message:  "パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
		Fields:   map[string]string{field: "パスワードが一致しません。"},
	}
}

// NewInvalidSignatureError は署名検証に失敗したトークンのエラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalid,
		Message:  "無効なトークンです。",
		Category: "account",
		Action:   "メールに記載されたリンクを確認してください。",
	}
}

// NewMalformedTokenError は形式が不正なトークンのエラーを生成する。
func NewMalformedTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalid,
		Message:  "トークンの形式が不正です。",
		Category: "account",
		Action:   "メールに記載されたリンクを確認してください。",
		Fields:   map[string]string{"token": "トークンの形式が不正です。"},
	}
}

// NewValidationError はフィールド単位の検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目のエラーを確認して再度送信してください。",
		Fields:   fields,
	}
}

// NewConflictError は一意制約違反などの競合エラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  message,
		Category: "validation",
		Action:   "既存のデータを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
