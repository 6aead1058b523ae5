package handlers

import (
	"net/http"

	"voucherpos/metrics"
	"voucherpos/models"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the public and authenticated API on r.
func RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/auth/signin", SignIn)

	authRequired := r.Group("/")
	authRequired.Use(AuthMiddleware())
	{
		authRequired.POST("/auth/pin/verify", VerifyPin)
		authRequired.POST("/auth/pin", SetPin)

		authRequired.GET("/tenants", ListTenants)
		authRequired.POST("/tenants", CreateTenant)
		authRequired.GET("/tenants/:id", GetTenant)
		authRequired.PUT("/tenants/:id/settings", UpdateTenantSettings)
		authRequired.POST("/tenants/:id/status", SetTenantStatus)
		authRequired.POST("/tenants/:id/subscription", ActivateSubscription)
		authRequired.POST("/tenants/:id/credits", AddCredits)
		authRequired.POST("/tenants/:id/modules", SetTenantModule)
		authRequired.DELETE("/tenants/:id", DeleteTenant)
		authRequired.POST("/tenants/:id/reconcile", ReconcileTenant)

		tickets := RequireModule(models.ModuleTickets)
		authRequired.GET("/tenants/:id/vouchers", RequireModuleForRole(models.ModuleTickets, models.ModuleSales), ListVouchers)
		authRequired.POST("/tenants/:id/vouchers/import", tickets, ImportVouchers)
		authRequired.POST("/tenants/:id/vouchers/sell", RequireModule(models.ModuleSales), SellFromProfile)
		authRequired.POST("/tenants/:id/vouchers/:voucherId/sell", RequireModule(models.ModuleSales), SellVoucher)
		authRequired.DELETE("/tenants/:id/vouchers/:voucherId", tickets, DeleteVoucher)
		authRequired.DELETE("/tenants/:id/profiles/:profile", tickets, PurgeProfile)
		authRequired.PUT("/tenants/:id/profiles/:profile/price", tickets, RepriceProfile)
		authRequired.GET("/tenants/:id/stats", RequireModule(models.ModuleDashboard), GetTenantStats)

		history := RequireModule(models.ModuleHistory)
		authRequired.GET("/tenants/:id/sales", history, ListSales)
		authRequired.DELETE("/tenants/:id/sales/:saleId", history, CancelSale)
		authRequired.GET("/tenants/:id/logs", history, ListLogs)

		team := RequireModule(models.ModuleTeam)
		authRequired.GET("/tenants/:id/users", team, ListUsers)
		authRequired.POST("/tenants/:id/users", team, CreateUser)
		authRequired.PUT("/users/:userId/role", UpdateUserRole)
		authRequired.PUT("/users/:userId/password", UpdateUserPassword)
		authRequired.DELETE("/users/:userId", DeleteUser)
		authRequired.POST("/users", CreateOperator)

		authRequired.GET("/plans", ListPlans)
		authRequired.POST("/plans", UpsertSubscriptionPlan)
		authRequired.DELETE("/plans/:planId", DeleteSubscriptionPlan)

		authRequired.GET("/logs", ListAllLogs)
		authRequired.POST("/admin/clear_db", ClearDatabase)
	}
}
