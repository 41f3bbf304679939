package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Links はフロントエンドの確認ページURLを組み立てる。
type Links struct {
	FrontendURL string
}

func (l Links) base() string {
	return strings.TrimRight(l.FrontendURL, "/")
}

// ConfirmEmail はメールアドレス変更の確認URLを返す。
func (l Links) ConfirmEmail(token string) string {
	return fmt.Sprintf("%s/confirm-email/%s/", l.base(), url.PathEscape(token))
}

// ResetPassword はパスワードリセットのURLを返す。
func (l Links) ResetPassword(token string) string {
	return fmt.Sprintf("%s/reset-password/%s/", l.base(), url.PathEscape(token))
}

// ConfirmDeletion はプロフィール削除の確認URLを返す。
func (l Links) ConfirmDeletion(token string) string {
	return fmt.Sprintf("%s/profile/delete/confirm?token=%s", l.base(), url.QueryEscape(token))
}

// VerifyEmail は登録時のメールアドレス確認URLを返す。
func (l Links) VerifyEmail(token string) string {
	return fmt.Sprintf("%s/signup/confirm?token=%s", l.base(), url.QueryEscape(token))
}

// EmailChangeMessage はメールアドレス変更の確認メールを組み立てる。
func EmailChangeMessage(link string) (subject, body string) {
	subject = "メールアドレス変更の確認"
	body = "メールアドレスの変更を確定するには、次のリンクを開いてください:\n" + link +
		"\n\nこのリンクの有効期限は24時間です。心当たりがない場合はこのメールを破棄してください。"
	return subject, body
}

// PasswordResetMessage はパスワードリセットのメールを組み立てる。
func PasswordResetMessage(link string) (subject, body string) {
	subject = "パスワードのリセット"
	body = "パスワードを再設定するには、次のリンクを開いてください:\n" + link +
		"\n\nこのリンクの有効期限は24時間です。心当たりがない場合はこのメールを破棄してください。"
	return subject, body
}

// DeletionMessage はプロフィール削除の確認メールを組み立てる。validityは有効期間。
func DeletionMessage(name, link string, validity time.Duration) (subject, body string) {
	subject = "プロフィール削除の確認"
	body = fmt.Sprintf("%s さん\n\nプロフィールを削除するには、次のリンクを開いてください:\n%s\n\n"+
		"このリンクの有効期限は%d時間です。削除は取り消せません。",
		name, link, int(validity.Hours()))
	return subject, body
}

// SignupConfirmationMessage は登録時のメールアドレス確認メールを組み立てる。validityは有効期間。
func SignupConfirmationMessage(name, link string, validity time.Duration) (subject, body string) {
	subject = "メールアドレスの確認"
	body = fmt.Sprintf("%s さん\n\nBookLogへのご登録ありがとうございます。メールアドレスを確認するには、次のリンクを開いてください:\n%s\n\n"+
		"このリンクの有効期限は%d時間です。心当たりがない場合はこのメールを破棄してください。",
		name, link, int(validity.Hours()))
	return subject, body
}
