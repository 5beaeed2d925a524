package service

import (
	"time"

	"eegility/internal/domain"
)

// CanAccess is the access policy for EEG records. It is a pure function of
// its arguments; rules are evaluated in order and the first match wins:
//
//  1. admins may do anything, including sharing on behalf of the owner;
//  2. the owner may do anything;
//  3. a department head may view and download records of their own
//     department in their own institution, nothing more;
//  4. otherwise a live accepted grant decides: view_only allows view,
//     view_download allows view and download.
//
// Grants never confer modify, delete or share. grant may be nil or stale;
// it is re-validated here against the record, the caller and now.
func CanAccess(
	identity domain.Identity,
	record *domain.EegRecord,
	action domain.Action,
	grant *domain.SharingRequest,
	now time.Time,
) bool {
	if record == nil || identity.UserID == "" || !identity.IsActive || !knownAction(action) {
		return false
	}

	switch {
	case identity.IsAdmin():
		return true
	case record.OwnerUserID == identity.UserID:
		return true
	case identity.Role == domain.RoleDepartmentHead &&
		identity.SameDepartment(record.Institution, record.Department):
		return action == domain.ActionView || action == domain.ActionDownload
	}

	if !grant.GrantsAccessTo(record.ID, identity.UserID, now) {
		return false
	}
	return GrantAllows(grant.Permission, action)
}

// GrantAllows проверяет, достаточно ли уровня доступа по шарингу для операции.
func GrantAllows(permission domain.Permission, action domain.Action) bool {
	switch permission {
	case domain.PermissionViewOnly:
		return action == domain.ActionView

	case domain.PermissionViewDownload:
		return action == domain.ActionView || action == domain.ActionDownload

	default:
		return false
	}
}

// needsGrant reports whether rules 1-3 are inconclusive for the caller, so
// the grant has to be looked up.
func needsGrant(identity domain.Identity, record *domain.EegRecord) bool {
	if identity.IsAdmin() || record.OwnerUserID == identity.UserID {
		return false
	}
	if identity.Role == domain.RoleDepartmentHead &&
		identity.SameDepartment(record.Institution, record.Department) {
		return false
	}
	return true
}

// ClassifyAccess derives how a record is visible to the caller. grant is
// the caller's live grant permission on the record, if any. ok is false
// when the record is outside the caller's visible set.
func ClassifyAccess(
	identity domain.Identity,
	record *domain.EegRecord,
	grant *domain.Permission,
) (accessType domain.AccessType, permission domain.Permission, ok bool) {
	if record == nil || identity.UserID == "" || !identity.IsActive {
		return "", "", false
	}

	switch {
	case record.OwnerUserID == identity.UserID:
		return domain.AccessTypeOwner, domain.PermissionViewDownload, true
	case identity.IsAdmin():
		return domain.AccessTypeDepartment, domain.PermissionViewDownload, true
	case identity.Role == domain.RoleDepartmentHead &&
		identity.SameDepartment(record.Institution, record.Department):
		return domain.AccessTypeDepartment, domain.PermissionViewDownload, true
	case grant != nil && grant.Valid():
		return domain.AccessTypeShared, *grant, true
	}
	return "", "", false
}

func knownAction(action domain.Action) bool {
	switch action {
	case domain.ActionView, domain.ActionDownload, domain.ActionModify,
		domain.ActionDelete, domain.ActionShare:
		return true
	}
	return false
}

// checkActive отсекает запросы без идентичности и от отключённых учётных записей.
func checkActive(identity domain.Identity) error {
	if identity.UserID == "" {
		return domain.ErrUnauthenticated
	}
	if !identity.IsActive {
		return domain.ErrAccountInactive
	}
	return nil
}
