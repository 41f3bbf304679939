// Package rbac はロール解決とアクション単位の認可判定を提供する。
// 権限はリソースごとの Policy（アクション → Rule）としてデータで宣言する。
package rbac

import (
	"github.com/hitoshi/booklog/internal/model"
)

// Action は認可対象の操作名。
type Action string

const (
	ActionList          Action = "list"
	ActionRetrieve      Action = "retrieve"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDestroy       Action = "destroy"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
)

// roleNone は未知の保存値から解決される、何も許可しない状態。
const roleNone model.Role = ""

// ResolveRole は主体のロールを解決する。
// nilまたは非アクティブな主体はANON。保存値は大文字化して正規化し、
// 未知の値はどのロールにも一致しない状態に倒す。
func ResolveRole(principal *model.User) model.Role {
	if principal == nil || !principal.IsActive {
		return model.RoleAnon
	}
	role, ok := model.ParseRole(principal.Role)
	if !ok {
		return roleNone
	}
	return role
}

type checkerKind int

const (
	kindAllowAny checkerKind = iota
	kindDenyAnonymous
	kindRoleIs
	kindIsOwner
)

// Checker はロールまたは所有者に基づく単一の判定条件。
type Checker struct {
	kind checkerKind
	role model.Role
}

// AllowAny は常に許可する。
func AllowAny() Checker { return Checker{kind: kindAllowAny} }

// DenyAnonymous は認証済みかつ有効なロールを持つ主体を許可する。
func DenyAnonymous() Checker { return Checker{kind: kindDenyAnonymous} }

// RoleIs は解決済みロールがroleと一致する場合に許可する。
func RoleIs(role model.Role) Checker { return Checker{kind: kindRoleIs, role: role} }

// IsOwner は対象の作成者が主体自身である場合に許可する。
// 対象がない一覧・作成アクションでは常に拒否となる。
func IsOwner() Checker { return Checker{kind: kindIsOwner} }

// Check は判定を1回評価する。
func (c Checker) Check(principal *model.User, target model.Owned) bool {
	role := ResolveRole(principal)
	switch c.kind {
	case kindAllowAny:
		return true
	case kindDenyAnonymous:
		return role != model.RoleAnon && role != roleNone
	case kindRoleIs:
		return role != roleNone && role == c.role
	case kindIsOwner:
		if target == nil || role == model.RoleAnon || role == roleNone {
			return false
		}
		return target.OwnerID() == principal.ID
	}
	return false
}

// Rule は複数のCheckerをOR結合したもの。いずれかが真なら許可する。
type Rule []Checker

// AnyOf はCheckerを並べてRuleを作る。
func AnyOf(checkers ...Checker) Rule { return Rule(checkers) }

// Roles は指定ロールのいずれかを許可するRuleを作る。
func Roles(roles ...model.Role) Rule {
	rule := make(Rule, 0, len(roles))
	for _, r := range roles {
		rule = append(rule, RoleIs(r))
	}
	return rule
}

// Allows はRuleを評価する。
func (r Rule) Allows(principal *model.User, target model.Owned) bool {
	for _, c := range r {
		if c.Check(principal, target) {
			return true
		}
	}
	return false
}

// Policy はリソースのアクションごとの権限表。
// エントリのないアクションはAllowAnyとして扱う。
type Policy map[Action]Rule

// Authorize はprincipalがactionを実行できるかを判定する。
// targetは詳細アクションで読み込んだ対象、コレクション操作ではnil。
func (p Policy) Authorize(principal *model.User, action Action, target model.Owned) bool {
	rule, ok := p[action]
	if !ok {
		return true
	}
	return rule.Allows(principal, target)
}

// Require はAuthorizeの結果をエラーに変換する。
// 匿名の拒否はUNAUTHORIZED、認証済みの拒否はFORBIDDENを返す。
func (p Policy) Require(principal *model.User, action Action, target model.Owned) error {
	if p.Authorize(principal, action, target) {
		return nil
	}
	if ResolveRole(principal) == model.RoleAnon {
		return model.NewUnauthorizedError()
	}
	return model.NewForbiddenError()
}
