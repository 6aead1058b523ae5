package accounts

import (
	"context"
	"testing"
	"time"

	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/database"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var operator = session.Actor{UserID: "root", Name: "Operator", Role: models.RoleSuperAdmin}

type accountsFixture struct {
	db       *gorm.DB
	engine   *Engine
	sessions *session.Manager
	tenant   *models.Tenant
	admin    *models.User
	seller   *models.User
}

func setupAccountsTestDB(t *testing.T) *accountsFixture {
	hashCost = bcrypt.MinCost

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	sink := audit.NewSink(db, audit.Options{})
	t.Cleanup(sink.Close)

	sessions := session.NewManager("test-key", time.Hour)
	engine := NewEngine(db, sink, sessions)

	tenant := models.Tenant{Name: "Agency", Status: models.TenantActive}
	require.NoError(t, db.Create(&tenant).Error)

	admin, err := engine.AddUser(context.Background(), operator, tenant.ID, NewUser{Name: "Admin", Email: "Admin@Agency.test", Password: "secret1", Role: models.RoleAdmin})
	require.NoError(t, err)
	seller, err := engine.AddUser(context.Background(), operator, tenant.ID, NewUser{Name: "Seller", Email: "seller@agency.test", Password: "secret2", Role: models.RoleSeller})
	require.NoError(t, err)

	return &accountsFixture{db: db, engine: engine, sessions: sessions, tenant: &tenant, admin: admin, seller: seller}
}

func TestSignIn(t *testing.T) {
	f := setupAccountsTestDB(t)

	res, err := f.engine.SignIn(context.Background(), " admin@agency.TEST ", "secret1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, f.admin.ID, res.User.ID)

	actor, err := f.sessions.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.ID, actor.TenantID)
	assert.Equal(t, models.RoleAdmin, actor.Role)

	res, err = f.engine.SignIn(context.Background(), "admin@agency.test", "wrong")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = f.engine.SignIn(context.Background(), "nobody@agency.test", "secret1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestPin(t *testing.T) {
	f := setupAccountsTestDB(t)
	seller := session.ActorFromUser(f.seller)

	ok, err := f.engine.VerifyPin(context.Background(), seller, f.seller.ID, "1234")
	require.NoError(t, err)
	assert.False(t, ok, "no pin set yet")

	assert.True(t, apperrors.IsValidation(f.engine.SetPin(context.Background(), seller, "12a4")))
	assert.True(t, apperrors.IsValidation(f.engine.SetPin(context.Background(), seller, "12345")))
	require.NoError(t, f.engine.SetPin(context.Background(), seller, "4321"))

	ok, err = f.engine.VerifyPin(context.Background(), seller, f.seller.ID, "4321")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.VerifyPin(context.Background(), seller, f.seller.ID, "0000")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.engine.VerifyPin(context.Background(), session.ActorFromUser(f.admin), f.seller.ID, "4321")
	assert.True(t, apperrors.IsAuthorization(err))
}

func TestAddUser(t *testing.T) {
	f := setupAccountsTestDB(t)
	admin := session.ActorFromUser(f.admin)

	u, err := f.engine.AddUser(context.Background(), admin, f.tenant.ID, NewUser{Name: "New", Email: "new@agency.test", Password: "secret3", Role: models.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, f.tenant.ID, u.TenantID)
	assert.NotEqual(t, "secret3", u.PasswordHash)

	_, err = f.engine.AddUser(context.Background(), admin, f.tenant.ID, NewUser{Name: "Dup", Email: "NEW@agency.test", Password: "secret3", Role: models.RoleSeller})
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.engine.AddUser(context.Background(), admin, f.tenant.ID, NewUser{Name: "Boss", Email: "boss@agency.test", Password: "secret3", Role: models.RoleSuperAdmin})
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = f.engine.AddUser(context.Background(), admin, f.tenant.ID, NewUser{Name: "Short", Email: "short@agency.test", Password: "abc", Role: models.RoleSeller})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.engine.AddUser(context.Background(), session.ActorFromUser(f.seller), f.tenant.ID, NewUser{Name: "X", Email: "x@agency.test", Password: "secret3", Role: models.RoleSeller})
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = f.engine.AddUser(context.Background(), operator, "missing", NewUser{Name: "X", Email: "x@agency.test", Password: "secret3", Role: models.RoleSeller})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSelfManagementForbidden(t *testing.T) {
	f := setupAccountsTestDB(t)
	for _, u := range []*models.User{f.admin, f.seller} {
		self := session.ActorFromUser(u)
		assert.True(t, apperrors.IsAuthorization(f.engine.DeleteUser(context.Background(), self, u.ID)))
		assert.True(t, apperrors.IsAuthorization(f.engine.UpdateUserRole(context.Background(), self, u.ID, models.RoleAdmin)))
		assert.True(t, apperrors.IsAuthorization(f.engine.UpdatePassword(context.Background(), self, u.ID, "changed1")))
	}

	boss, err := f.engine.AddUser(context.Background(), operator, "", NewUser{Name: "Boss", Email: "boss@ops.test", Password: "secret9", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	self := session.ActorFromUser(boss)
	assert.True(t, apperrors.IsAuthorization(f.engine.DeleteUser(context.Background(), self, boss.ID)))
}

func TestManageUsers(t *testing.T) {
	f := setupAccountsTestDB(t)
	admin := session.ActorFromUser(f.admin)

	require.NoError(t, f.engine.UpdateUserRole(context.Background(), admin, f.seller.ID, models.RoleAdmin))
	var reloaded models.User
	require.NoError(t, f.db.First(&reloaded, "id = ?", f.seller.ID).Error)
	assert.Equal(t, models.RoleAdmin, reloaded.Role)

	require.NoError(t, f.engine.UpdatePassword(context.Background(), admin, f.seller.ID, "rotated1"))
	res, err := f.engine.SignIn(context.Background(), "seller@agency.test", "rotated1")
	require.NoError(t, err)
	assert.NotNil(t, res)

	users, err := f.engine.ListUsers(context.Background(), admin, f.tenant.ID)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, f.engine.DeleteUser(context.Background(), admin, f.seller.ID))
	assert.True(t, apperrors.IsAuthorization(f.engine.DeleteUser(context.Background(), admin, f.seller.ID)))
	assert.True(t, apperrors.IsNotFound(f.engine.DeleteUser(context.Background(), operator, f.seller.ID)))
}

func TestAdminCannotTellForeignUsersFromMissingOnes(t *testing.T) {
	f := setupAccountsTestDB(t)
	other := models.Tenant{Name: "Other", Status: models.TenantActive}
	require.NoError(t, f.db.Create(&other).Error)
	foreign, err := f.engine.AddUser(context.Background(), operator, other.ID, NewUser{Name: "Foreign", Email: "foreign@other.test", Password: "secret3", Role: models.RoleSeller})
	require.NoError(t, err)

	admin := session.ActorFromUser(f.admin)
	existing := f.engine.DeleteUser(context.Background(), admin, foreign.ID)
	missing := f.engine.DeleteUser(context.Background(), admin, "00000000-0000-0000-0000-000000000000")
	require.True(t, apperrors.IsAuthorization(existing))
	require.True(t, apperrors.IsAuthorization(missing))
	assert.Equal(t, existing.Error(), missing.Error())

	assert.True(t, apperrors.IsAuthorization(f.engine.UpdatePassword(context.Background(), admin, foreign.ID, "hijacked")))
	var kept models.User
	assert.NoError(t, f.db.First(&kept, "id = ?", foreign.ID).Error)
}

func TestAuthenticateUsesStoredAccount(t *testing.T) {
	f := setupAccountsTestDB(t)
	adminToken, err := f.sessions.Issue(session.ActorFromUser(f.admin))
	require.NoError(t, err)
	sellerToken, err := f.sessions.Issue(session.ActorFromUser(f.seller))
	require.NoError(t, err)

	actor, err := f.engine.Authenticate(context.Background(), adminToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, actor.Role)

	require.NoError(t, f.engine.UpdateUserRole(context.Background(), operator, f.admin.ID, models.RoleSeller))
	actor, err = f.engine.Authenticate(context.Background(), adminToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeller, actor.Role)
	assert.Equal(t, f.tenant.ID, actor.TenantID)

	require.NoError(t, f.engine.DeleteUser(context.Background(), operator, f.seller.ID))
	_, err = f.engine.Authenticate(context.Background(), sellerToken)
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = f.engine.Authenticate(context.Background(), "garbage")
	assert.True(t, apperrors.IsAuthorization(err))
}

func TestOnlySuperAdminManagesSuperAdmin(t *testing.T) {
	f := setupAccountsTestDB(t)
	boss, err := f.engine.AddUser(context.Background(), operator, "", NewUser{Name: "Boss", Email: "boss@ops.test", Password: "secret9", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	assert.Empty(t, boss.TenantID)

	admin := session.ActorFromUser(f.admin)
	assert.True(t, apperrors.IsAuthorization(f.engine.DeleteUser(context.Background(), admin, boss.ID)))
	assert.True(t, apperrors.IsAuthorization(f.engine.UpdatePassword(context.Background(), admin, boss.ID, "hijacked")))

	require.NoError(t, f.engine.UpdatePassword(context.Background(), operator, boss.ID, "rotated9"))
	require.NoError(t, f.engine.DeleteUser(context.Background(), operator, boss.ID))
}

func TestEnsureSuperAdmin(t *testing.T) {
	f := setupAccountsTestDB(t)

	created, err := f.engine.EnsureSuperAdmin(context.Background(), "ops@voucherpos.test", "bootstrap")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.engine.EnsureSuperAdmin(context.Background(), "OPS@voucherpos.test", "bootstrap")
	require.NoError(t, err)
	assert.False(t, created)

	res, err := f.engine.SignIn(context.Background(), "ops@voucherpos.test", "bootstrap")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.RoleSuperAdmin, res.User.Role)

	created, err = f.engine.EnsureSuperAdmin(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, created)
}
