package handlers

import (
	"net/http"

	"voucherpos/licensing"
	"voucherpos/models"

	"github.com/gin-gonic/gin"
)

type CreateTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

func CreateTenant(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "CreateTenant")
	defer span.End()

	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{"name": req.Name})

	tenant, err := Tenants.Create(ctx, currentActor(c), req.Name)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

func ListTenants(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListTenants")
	defer span.End()

	list, err := Tenants.List(ctx, currentActor(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	now := Licensing.Now()
	out := make([]TenantResponse, 0, len(list))
	for i := range list {
		out = append(out, TenantResponse{Tenant: list[i], License: licensing.Describe(&list[i], now)})
	}
	c.JSON(http.StatusOK, out)
}

// TenantResponse pairs a tenant with its license state, so operators can tell
// an expired license from a disabled tenant.
type TenantResponse struct {
	Tenant  models.Tenant     `json:"tenant"`
	License licensing.License `json:"license"`
}

func GetTenant(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "GetTenant")
	defer span.End()

	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID})

	tenant, err := Tenants.Get(ctx, currentActor(c), tenantID)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TenantResponse{Tenant: *tenant, License: licensing.Describe(tenant, Licensing.Now())})
}

type UpdateSettingsRequest struct {
	Name     string                `json:"name" binding:"required"`
	Settings models.TenantSettings `json:"settings"`
}

func UpdateTenantSettings(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "UpdateTenantSettings")
	defer span.End()

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := Tenants.UpdateSettings(ctx, currentActor(c), c.Param("id"), req.Name, req.Settings)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

type SetStatusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required,oneof=active inactive"`
}

func SetTenantStatus(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SetTenantStatus")
	defer span.End()

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "status": string(req.Status)})

	if err := Licensing.SetStatus(ctx, currentActor(c), tenantID, req.Status); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated successfully"})
}

type SetModuleRequest struct {
	Module  string `json:"module" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

func SetTenantModule(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SetTenantModule")
	defer span.End()

	var req SetModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := Licensing.SetModule(ctx, currentActor(c), c.Param("id"), req.Module, *req.Enabled)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant.Settings.Modules)
}

func DeleteTenant(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "DeleteTenant")
	defer span.End()

	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID})

	if err := Tenants.Delete(ctx, currentActor(c), tenantID); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tenant deleted successfully"})
}

func GetTenantStats(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "GetTenantStats")
	defer span.End()

	stats, err := Inventory.Stats(ctx, currentActor(c), c.Param("id"))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
