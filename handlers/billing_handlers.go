package handlers

import (
	"net/http"

	"voucherpos/credits"
	"voucherpos/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ActivateSubscriptionRequest struct {
	PlanName string `json:"plan_name" binding:"required"`
	Months   int    `json:"months" binding:"min=0"`
}

func ActivateSubscription(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ActivateSubscription")
	defer span.End()

	var req ActivateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "plan": req.PlanName, "months": req.Months})

	tenant, err := Licensing.Activate(ctx, currentActor(c), tenantID, req.PlanName, req.Months)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "Subscription activated successfully",
		"subscription_end": tenant.SubscriptionEnd,
	})
}

type AddCreditsRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func AddCredits(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "AddCredits")
	defer span.End()

	var req AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "amount": req.Amount.String()})

	balance, err := Credits.Recharge(ctx, currentActor(c), tenantID, req.Amount, req.Note)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Credits added successfully",
		"balance": balance.StringFixed(credits.Scale),
	})
}

func ListPlans(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListPlans")
	defer span.End()

	list, err := Plans.List(ctx, currentActor(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type SubscriptionPlanRequest struct {
	ID             string   `json:"id"`
	Name           string   `json:"name" binding:"required"`
	DurationMonths int      `json:"duration_months" binding:"required,gt=0"`
	Price          int64    `json:"price" binding:"min=0"`
	Currency       string   `json:"currency"`
	Features       []string `json:"features"`
	Popular        bool     `json:"popular"`
	DisplayOrder   int      `json:"display_order"`
}

func UpsertSubscriptionPlan(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "UpsertSubscriptionPlan")
	defer span.End()

	var req SubscriptionPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{"plan": req.Name})

	plan, err := Plans.Upsert(ctx, currentActor(c), models.SubscriptionPlan{
		ID:             req.ID,
		Name:           req.Name,
		DurationMonths: req.DurationMonths,
		Price:          req.Price,
		Currency:       req.Currency,
		Features:       req.Features,
		Popular:        req.Popular,
		DisplayOrder:   req.DisplayOrder,
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "Subscription plan saved successfully", "plan": plan})
}

func DeleteSubscriptionPlan(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "DeleteSubscriptionPlan")
	defer span.End()

	if err := Plans.Delete(ctx, currentActor(c), c.Param("planId")); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscription plan deleted successfully"})
}
