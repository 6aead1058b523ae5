package handlers

import (
	"errors"
	"net/http"

	"voucherpos/audit"
	"voucherpos/database"

	"github.com/gin-gonic/gin"
)

func ClearDatabase(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "ClearDatabase")
	defer span.End()

	if !AllowClearDatabase || !currentActor(c).IsSuperAdmin() {
		err := errors.New("clearing the database is disabled")
		span.SetError(err.Error(), "")
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if err := database.ClearDBAndMigrate(database.DB); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear and migrate database"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Database cleared and migrated successfully"})
}

func ReconcileTenant(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ReconcileTenant")
	defer span.End()

	res, err := Inventory.Reconcile(ctx, currentActor(c), c.Param("id"))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func ListLogs(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListLogs")
	defer span.End()

	logs, err := audit.List(ctx, database.DB, currentActor(c), c.Param("id"), queryLimit(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// ListAllLogs is the operator's cross-tenant view of the activity log.
func ListAllLogs(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListAllLogs")
	defer span.End()

	logs, err := audit.List(ctx, database.DB, currentActor(c), "", queryLimit(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
