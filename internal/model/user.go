// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーに割り当てられるロールを表す。
// 固定の列挙値のみ有効で、ANONは永続化されない合成ロール。
type Role string

const (
	RoleAnon       Role = "ANON"
	RoleJournalist Role = "JOURNALIST"
	RoleReader     Role = "READER"
	RoleStaff      Role = "STAFF"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole は文字列を正規化してRoleに変換する。
// 大文字小文字と前後の空白は無視する。ANONおよび未知の値はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleJournalist, RoleReader, RoleStaff, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// IsElevated はSTAFFまたはADMINかどうかを返す。
func (r Role) IsElevated() bool {
	return r == RoleStaff || r == RoleAdmin
}

// User はサービス利用ユーザーを表す。
// Roleは保存値そのままで、解決はrbac.ResolveRoleを通す。
type User struct {
	ID             string
	Username       string
	Email          string
	Name           string
	PasswordHash   string
	Role           string
	EmailConfirmed bool
	IsActive       bool
	IsStaff        bool
	IsSuperuser    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncRoleFlags はロールから派生フラグ（is_staff, is_superuser）を再計算する。
// ロールを変更する箇所で必ず呼び出す。
func (u *User) SyncRoleFlags() {
	role, _ := ParseRole(u.Role)
	u.IsStaff = role == RoleStaff
	u.IsSuperuser = role == RoleAdmin
}

// DisplayName はメール本文などで使う表示名を返す。
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
