// Package moderation は著者・ジャンル・書籍の公開状態の遷移を管理する。
package moderation

import (
	"github.com/hitoshi/booklog/internal/model"
)

// Event はモデレーションの遷移イベント。
type Event string

const (
	EventApprove Event = "approve"
	EventReject  Event = "reject"
)

var eventTargets = map[Event]model.ModerationStatus{
	EventApprove: model.StatusApproved,
	EventReject:  model.StatusRejected,
}

// Initialize は作成時の状態を設定する。
// クライアントが指定したステータスは破棄され、常にPENDINGになる。
func Initialize(m *model.Moderation, creatorID string) {
	m.Status = model.StatusPending
	m.CreatedBy = creatorID
}

// ApplyEdit は編集時の状態を決定する。
// STAFF/ADMIN以外による編集は承認を無効化してPENDINGに戻す。
// STAFF/ADMINの編集はrequestedが指定された場合のみ反映する。
// 状態が変わった場合にtrueを返す。
func ApplyEdit(m *model.Moderation, editorRole model.Role, requested *model.ModerationStatus) (bool, error) {
	before := m.Status
	if !editorRole.IsElevated() {
		m.Status = model.StatusPending
		return before != m.Status, nil
	}
	if requested == nil {
		return false, nil
	}
	if !requested.Valid() {
		return false, model.NewValidationError(map[string]string{"status": "不正なステータスです。"})
	}
	m.Status = *requested
	return before != m.Status, nil
}

// Apply は承認・却下イベントを適用する。STAFF/ADMINのみ実行できる。
// 既に遷移先の状態であれば何もせずfalseを返す。
func Apply(m *model.Moderation, actorRole model.Role, event Event) (bool, error) {
	to, ok := eventTargets[event]
	if !ok {
		return false, model.NewValidationError(map[string]string{"event": "不正な操作です。"})
	}
	if !actorRole.IsElevated() {
		if actorRole == model.RoleAnon {
			return false, model.NewUnauthorizedError()
		}
		return false, model.NewForbiddenError()
	}
	if m.Status == to {
		return false, nil
	}
	m.Status = to
	return true, nil
}

// Visible は一覧で閲覧者に表示してよいかを返す。
// STAFF/ADMINは全件、それ以外はAPPROVEDと自身の作成分のみ。
func Visible(m *model.Moderation, viewerID string, viewerRole model.Role) bool {
	if viewerRole.IsElevated() {
		return true
	}
	if m.Status == model.StatusApproved {
		return true
	}
	return viewerID != "" && m.CreatedBy == viewerID
}
