package access

import (
	"testing"

	"voucherpos/apperrors"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/stretchr/testify/assert"
)

var (
	superAdmin = session.Actor{UserID: "root", Role: models.RoleSuperAdmin}
	admin      = session.Actor{UserID: "a1", TenantID: "t1", Role: models.RoleAdmin}
	seller     = session.Actor{UserID: "s1", TenantID: "t1", Role: models.RoleSeller}
)

func TestAuthorizeTable(t *testing.T) {
	cases := []struct {
		name    string
		actor   session.Actor
		action  Action
		tenant  string
		allowed bool
	}{
		{"seller sells in own tenant", seller, SellVoucher, "t1", true},
		{"seller cannot import", seller, ManageInventory, "t1", false},
		{"seller cannot cancel", seller, CancelSale, "t1", false},
		{"seller cannot manage users", seller, ManageUsers, "t1", false},
		{"seller cannot change settings", seller, ManageSettings, "t1", false},
		{"admin imports in own tenant", admin, ManageInventory, "t1", true},
		{"admin cancels in own tenant", admin, CancelSale, "t1", true},
		{"admin cannot touch other tenant", admin, ManageInventory, "t2", false},
		{"admin cannot recharge credits", admin, ManageCredits, "t1", false},
		{"admin cannot manage plans", admin, ManagePlans, "", false},
		{"super admin crosses tenants", superAdmin, ManageInventory, "t9", true},
		{"super admin manages tenants", superAdmin, ManageTenants, "t9", true},
		{"anonymous is refused", session.Actor{}, ViewPlans, "", false},
		{"unknown role is refused", session.Actor{UserID: "x", TenantID: "t1", Role: "OWNER"}, SellVoucher, "t1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.actor, tc.action, tc.tenant)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsAuthorization(err), "expected authorization error, got %v", err)
			}
		})
	}
}

func TestSelfManagementForbidden(t *testing.T) {
	for _, actor := range []session.Actor{superAdmin, admin, seller} {
		self := &models.User{ID: actor.UserID, TenantID: actor.TenantID, Role: actor.Role}
		err := AuthorizeUserManagement(actor, self)
		assert.True(t, apperrors.IsAuthorization(err), "role %s", actor.Role)
	}
}

func TestManagingSuperAdmins(t *testing.T) {
	other := &models.User{ID: "root2", Role: models.RoleSuperAdmin}

	assert.Error(t, AuthorizeUserManagement(admin, other))
	assert.NoError(t, AuthorizeUserManagement(superAdmin, other))
}

func TestAdminManagesOwnTenantSellers(t *testing.T) {
	mine := &models.User{ID: "s1", TenantID: "t1", Role: models.RoleSeller}
	theirs := &models.User{ID: "s9", TenantID: "t2", Role: models.RoleSeller}

	assert.NoError(t, AuthorizeUserManagement(admin, mine))
	assert.Error(t, AuthorizeUserManagement(admin, theirs))
	assert.Error(t, AuthorizeUserManagement(seller, &models.User{ID: "s2", TenantID: "t1", Role: models.RoleSeller}))
}

func TestAuthorizeRoleGrant(t *testing.T) {
	assert.NoError(t, AuthorizeRoleGrant(admin, models.RoleSeller))
	assert.True(t, apperrors.IsAuthorization(AuthorizeRoleGrant(admin, models.RoleSuperAdmin)))
	assert.NoError(t, AuthorizeRoleGrant(superAdmin, models.RoleSuperAdmin))
	assert.True(t, apperrors.IsValidation(AuthorizeRoleGrant(admin, "OWNER")))
}

func TestModuleDefaultAllow(t *testing.T) {
	tenant := &models.Tenant{
		Status:   models.TenantActive,
		Settings: models.TenantSettings{Modules: map[string]bool{models.ModuleSales: true}},
	}

	assert.True(t, CanAccessModule(seller, tenant, models.ModuleTasks), "absent key must allow")

	tenant.Settings.Modules[models.ModuleTasks] = false
	assert.False(t, CanAccessModule(seller, tenant, models.ModuleTasks))
	assert.True(t, CanAccessModule(superAdmin, tenant, models.ModuleTasks))

	tenant.Settings.Modules = nil
	assert.True(t, CanAccessModule(admin, tenant, models.ModuleTeam))
}

func TestInactiveTenantDeniesModules(t *testing.T) {
	tenant := &models.Tenant{Status: models.TenantInactive}

	assert.False(t, CanAccessModule(admin, tenant, models.ModuleSales))
	assert.True(t, CanAccessModule(superAdmin, tenant, models.ModuleSales))
}
