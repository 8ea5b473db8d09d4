// Package policy はロールと所有者に基づく認可判定を提供する。
// 判定はすべて純粋関数で、HTTPやストアには依存しない。
package policy

import "github.com/hitoshi/friendsplace/internal/model"

// RequireRole はユーザーが指定ロールのいずれかを持たない場合にForbiddenErrorを返す。
// 未認証(nil)の場合はUnauthorizedErrorを返す。
func RequireRole(user *model.User, roles ...model.Role) error {
	if user == nil {
		return model.NewUnauthorizedError()
	}
	if !user.HasRole(roles...) {
		return model.NewForbiddenError()
	}
	return nil
}

// CanActOnUser はrequesterがtargetIDのユーザーレコードを変更・削除できるかを検証する。
// 本人または管理者のみ許可する。
func CanActOnUser(requester *model.User, targetID string) error {
	if requester == nil {
		return model.NewUnauthorizedError()
	}
	if requester.ID == targetID || requester.HasRole(model.RoleAdmin) {
		return nil
	}
	return model.NewForbiddenError()
}

// CanModifyPost はrequesterが投稿を更新・削除できるかを検証する。
// 投稿者本人または管理者のみ許可する。
func CanModifyPost(requester *model.User, post *model.Post) error {
	if requester == nil {
		return model.NewUnauthorizedError()
	}
	if post.UserID == requester.ID || requester.HasRole(model.RoleAdmin) {
		return nil
	}
	return model.NewForbiddenError()
}
