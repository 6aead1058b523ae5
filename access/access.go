// Package access is the single capability check every engine entry point
// consults before touching the store.
package access

import (
	"voucherpos/apperrors"
	"voucherpos/models"
	"voucherpos/session"
)

type Action string

const (
	SellVoucher      Action = "sell voucher"
	ViewInventory    Action = "view inventory"
	ViewSales        Action = "view sales"
	ViewLogs         Action = "view activity log"
	ManageInventory  Action = "manage inventory"
	CancelSale       Action = "cancel sale"
	ManageUsers      Action = "manage users"
	ViewUsers        Action = "view users"
	ManageSettings   Action = "manage settings"
	ViewTenant       Action = "view tenant"
	ManageTenants    Action = "manage tenants"
	ManageCredits    Action = "manage credits"
	ManagePlans      Action = "manage plans"
	ViewPlans        Action = "view plans"
	ReconcileTenant  Action = "reconcile tenant"
	ListAllTenants   Action = "list all tenants"
	ManageOwnSession Action = "manage own session"
)

// tenantRoles lists, per action, which tenant-scoped roles may perform it
// inside their own tenant. SUPER_ADMIN is allowed everything everywhere and is
// not listed. An action absent from the table is operator-only.
var tenantRoles = map[Action][]models.Role{
	SellVoucher:      {models.RoleAdmin, models.RoleSeller},
	ViewInventory:    {models.RoleAdmin, models.RoleSeller},
	ViewSales:        {models.RoleAdmin, models.RoleSeller},
	ViewLogs:         {models.RoleAdmin},
	ManageInventory:  {models.RoleAdmin},
	CancelSale:       {models.RoleAdmin},
	ManageUsers:      {models.RoleAdmin},
	ViewUsers:        {models.RoleAdmin},
	ManageSettings:   {models.RoleAdmin},
	ViewTenant:       {models.RoleAdmin, models.RoleSeller},
	ViewPlans:        {models.RoleAdmin, models.RoleSeller},
	ReconcileTenant:  {models.RoleAdmin},
	ManageOwnSession: {models.RoleAdmin, models.RoleSeller},
}

// Authorize fails closed: an unknown role, a foreign tenant or an action not
// granted to the role all yield an AuthorizationError.
func Authorize(actor session.Actor, action Action, tenantID string) error {
	if actor.UserID == "" {
		return apperrors.Forbidden(string(action), "no authenticated actor")
	}
	if actor.IsSuperAdmin() {
		return nil
	}
	roles, ok := tenantRoles[action]
	if !ok {
		return apperrors.Forbidden(string(action), "operator only")
	}
	if tenantID != "" && actor.TenantID != tenantID {
		return apperrors.Forbidden(string(action), "tenant out of scope")
	}
	for _, r := range roles {
		if r == actor.Role {
			return nil
		}
	}
	return apperrors.Forbidden(string(action), "role "+string(actor.Role)+" not permitted")
}

// AuthorizeUserManagement checks that actor may edit, delete or reset the
// password of target. Nobody manages their own account this way, and only a
// SUPER_ADMIN manages another SUPER_ADMIN.
func AuthorizeUserManagement(actor session.Actor, target *models.User) error {
	const action = string(ManageUsers)
	if actor.UserID == target.ID {
		return apperrors.Forbidden(action, "cannot manage your own account")
	}
	if target.Role == models.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return apperrors.Forbidden(action, "target is a super admin")
	}
	return Authorize(actor, ManageUsers, target.TenantID)
}

// AuthorizeRoleGrant checks that actor may hand out role.
func AuthorizeRoleGrant(actor session.Actor, role models.Role) error {
	if !role.Valid() {
		return apperrors.Validation("role", "unknown role "+string(role))
	}
	if role == models.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return apperrors.Forbidden(string(ManageUsers), "only a super admin can grant SUPER_ADMIN")
	}
	return nil
}

// CanAccessModule applies the module switches of a tenant. A module missing
// from the tenant settings is allowed; only an explicit false denies it. An
// inactive tenant denies every module.
func CanAccessModule(actor session.Actor, tenant *models.Tenant, module string) bool {
	if actor.IsSuperAdmin() {
		return true
	}
	if tenant == nil || tenant.Status == models.TenantInactive {
		return false
	}
	enabled, ok := tenant.Settings.Modules[module]
	return !ok || enabled
}
