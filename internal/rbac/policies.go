package rbac

import "github.com/hitoshi/booklog/internal/model"

var (
	elevated     = Roles(model.RoleStaff, model.RoleAdmin)
	contributors = Roles(model.RoleJournalist, model.RoleStaff, model.RoleAdmin)
	members      = Roles(model.RoleJournalist, model.RoleReader, model.RoleStaff, model.RoleAdmin)
	ownerOrStaff = AnyOf(IsOwner(), RoleIs(model.RoleStaff), RoleIs(model.RoleAdmin))
)

// ModeratedPolicy は著者・ジャンル・書籍の権限表。
var ModeratedPolicy = Policy{
	ActionList:          AnyOf(AllowAny()),
	ActionRetrieve:      AnyOf(AllowAny()),
	ActionCreate:        contributors,
	ActionUpdate:        contributors,
	ActionPartialUpdate: contributors,
	ActionDestroy:       elevated,
	ActionApprove:       elevated,
	ActionReject:        elevated,
}

// BookLogPolicy は読書記録の権限表。
var BookLogPolicy = Policy{
	ActionList:          AnyOf(DenyAnonymous()),
	ActionRetrieve:      AnyOf(DenyAnonymous()),
	ActionCreate:        contributors,
	ActionUpdate:        contributors,
	ActionPartialUpdate: contributors,
	ActionDestroy:       contributors,
}

// QuotePolicy は引用の権限表。
var QuotePolicy = Policy{
	ActionList:          AnyOf(AllowAny()),
	ActionRetrieve:      AnyOf(AllowAny()),
	ActionCreate:        members,
	ActionUpdate:        ownerOrStaff,
	ActionPartialUpdate: ownerOrStaff,
	ActionDestroy:       ownerOrStaff,
}

// EngagementPolicy はいいね・共有の権限表。更新ルートは公開しない。
var EngagementPolicy = Policy{
	ActionList:     AnyOf(AllowAny()),
	ActionRetrieve: AnyOf(AllowAny()),
	ActionCreate:   members,
	ActionDestroy:  ownerOrStaff,
}

// UserRolePolicy はユーザーのロール変更の権限表。
var UserRolePolicy = Policy{
	ActionUpdate: elevated,
}
