// Package plans is the operator-managed subscription catalog. Tenants copy a
// plan's name when they subscribe and never reference the row itself.
package plans

import (
	"context"
	"strings"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/logger"
	"voucherpos/models"
	"voucherpos/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Engine struct {
	db    *gorm.DB
	audit audit.Recorder
}

func NewEngine(db *gorm.DB, recorder audit.Recorder) *Engine {
	return &Engine{db: db, audit: recorder}
}

// List returns the catalog in display order.
func (e *Engine) List(ctx context.Context, actor session.Actor) ([]models.SubscriptionPlan, error) {
	if err := access.Authorize(actor, access.ViewPlans, ""); err != nil {
		return nil, err
	}
	var plans []models.SubscriptionPlan
	if err := e.db.WithContext(ctx).Order("display_order asc").Order("name asc").Find(&plans).Error; err != nil {
		logger.FromContext(ctx).Warn("listing plans failed", zap.Error(err))
		return []models.SubscriptionPlan{}, nil
	}
	return plans, nil
}

// Upsert creates plan when its ID is empty and replaces the stored plan
// otherwise.
func (e *Engine) Upsert(ctx context.Context, actor session.Actor, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	if err := access.Authorize(actor, access.ManagePlans, ""); err != nil {
		return nil, err
	}
	plan.Name = strings.TrimSpace(plan.Name)
	switch {
	case plan.Name == "":
		return nil, apperrors.Validation("name", "is required")
	case plan.DurationMonths <= 0:
		return nil, apperrors.Validation("duration_months", "must be positive")
	case plan.Price < 0:
		return nil, apperrors.Validation("price", "must not be negative")
	}
	if plan.Currency == "" {
		plan.Currency = "USD"
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}

	db := e.db.WithContext(ctx)
	if plan.ID == "" {
		if err := db.Create(&plan).Error; err != nil {
			return nil, apperrors.Backend("create plan", err)
		}
	} else {
		res := db.Model(&models.SubscriptionPlan{ID: plan.ID}).
			Select("name", "duration_months", "price", "currency", "features", "popular", "display_order").
			Updates(&plan)
		if res.Error != nil {
			return nil, apperrors.Backend("update plan", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.NotFound("plan", plan.ID)
		}
	}

	e.audit.Record(ctx, actor, "", audit.ActionUpsertPlan, "plan "+plan.Name+" saved")
	return &plan, nil
}

func (e *Engine) Delete(ctx context.Context, actor session.Actor, planID string) error {
	if err := access.Authorize(actor, access.ManagePlans, ""); err != nil {
		return err
	}
	res := e.db.WithContext(ctx).Delete(&models.SubscriptionPlan{}, "id = ?", planID)
	if res.Error != nil {
		return apperrors.Backend("delete plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("plan", planID)
	}
	e.audit.Record(ctx, actor, "", audit.ActionDeletePlan, "plan "+planID+" deleted")
	return nil
}
