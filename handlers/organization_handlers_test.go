package handlers

import (
	"net/http"
	"testing"

	"voucherpos/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTenant(t *testing.T) {
	env := setupTestDB(t)

	w := env.do("POST", "/tenants", env.adminToken, CreateTenantRequest{Name: "Rogue"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("POST", "/tenants", env.operatorToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/tenants", env.operatorToken, CreateTenantRequest{Name: "New Agency"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tenant models.Tenant
	decode(t, w, &tenant)
	assert.Equal(t, models.PlanTrial, tenant.SubscriptionPlan)
	assert.Equal(t, "5", tenant.CreditBalance.String())

	w = env.do("GET", "/tenants", env.operatorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []TenantResponse
	decode(t, w, &all)
	assert.Len(t, all, 2)

	w = env.do("GET", "/tenants", env.sellerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &all)
	require.Len(t, all, 1)
	assert.Equal(t, env.tenant.ID, all[0].Tenant.ID)
}

func TestUpdateTenantSettings(t *testing.T) {
	env := setupTestDB(t)
	path := "/tenants/" + env.tenant.ID + "/settings"
	body := UpdateSettingsRequest{Name: "Renamed", Settings: models.TenantSettings{Currency: "XOF", ReceiptFooter: "Merci"}}

	w := env.do("PUT", path, env.sellerToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("PUT", path, env.adminToken, body)
	require.Equal(t, http.StatusOK, w.Code)
	var tenant models.Tenant
	decode(t, w, &tenant)
	assert.Equal(t, "Renamed", tenant.Name)
	assert.Equal(t, "Merci", tenant.Settings.ReceiptFooter)
}

func TestModuleGating(t *testing.T) {
	env := setupTestDB(t)
	stats := "/tenants/" + env.tenant.ID + "/stats"

	require.Equal(t, http.StatusOK, env.do("GET", stats, env.sellerToken, nil).Code)

	w := env.do("POST", "/tenants/"+env.tenant.ID+"/modules", env.adminToken, gin.H{"module": "dashboard", "enabled": false})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("POST", "/tenants/"+env.tenant.ID+"/modules", env.operatorToken, gin.H{"module": "dashboard", "enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, env.do("GET", stats, env.sellerToken, nil).Code)
	assert.Equal(t, http.StatusOK, env.do("GET", stats, env.operatorToken, nil).Code)

	w = env.do("POST", "/tenants/"+env.tenant.ID+"/modules", env.operatorToken, gin.H{"module": "dashboard"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInactiveTenantLosesEveryModule(t *testing.T) {
	env := setupTestDB(t)

	w := env.do("POST", "/tenants/"+env.tenant.ID+"/status", env.operatorToken, SetStatusRequest{Status: models.TenantInactive})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, env.do("GET", "/tenants/"+env.tenant.ID+"/vouchers", env.sellerToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do("GET", "/tenants/"+env.tenant.ID+"/sales", env.adminToken, nil).Code)

	w = env.do("POST", "/tenants/"+env.tenant.ID+"/status", env.operatorToken, gin.H{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTenant(t *testing.T) {
	env := setupTestDB(t)

	assert.Equal(t, http.StatusForbidden, env.do("DELETE", "/tenants/"+env.tenant.ID, env.adminToken, nil).Code)
	assert.Equal(t, http.StatusOK, env.do("DELETE", "/tenants/"+env.tenant.ID, env.operatorToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/tenants/"+env.tenant.ID, env.operatorToken, nil).Code)
}
