// Package licensing manages a tenant's subscription window, its operator
// kill switch and its per-module access flags.
package licensing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/logger"
	"voucherpos/models"
	"voucherpos/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DaysPerMonth is the fixed month length used for subscription windows.
const DaysPerMonth = 30

// SubscriptionEnd returns start plus months fixed 30-day months.
func SubscriptionEnd(start time.Time, months int) time.Time {
	return start.Add(time.Duration(months*DaysPerMonth) * 24 * time.Hour)
}

// IsLicenseActive reports whether now falls before the subscription end. It
// ignores the tenant status on purpose: an active tenant can hold an expired
// license and an inactive one a valid license.
func IsLicenseActive(t *models.Tenant, now time.Time) bool {
	return t.SubscriptionEnd != nil && now.Before(*t.SubscriptionEnd)
}

// License summarizes what operators see for a tenant.
type License struct {
	TenantID      string              `json:"tenant_id"`
	Status        models.TenantStatus `json:"status"`
	Plan          string              `json:"plan"`
	Start         *time.Time          `json:"start"`
	End           *time.Time          `json:"end"`
	LicenseActive bool                `json:"license_active"`
	DaysRemaining int                 `json:"days_remaining"`
}

func Describe(t *models.Tenant, now time.Time) License {
	l := License{
		TenantID:      t.ID,
		Status:        t.Status,
		Plan:          t.SubscriptionPlan,
		Start:         t.SubscriptionStart,
		End:           t.SubscriptionEnd,
		LicenseActive: IsLicenseActive(t, now),
	}
	if l.LicenseActive {
		l.DaysRemaining = int(t.SubscriptionEnd.Sub(now).Hours() / 24)
	}
	return l
}

type Engine struct {
	db    *gorm.DB
	audit audit.Recorder
	now   func() time.Time
}

func NewEngine(db *gorm.DB, recorder audit.Recorder) *Engine {
	return &Engine{db: db, audit: recorder, now: time.Now}
}

// WithNow injects a deterministic clock for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

func (e *Engine) Now() time.Time {
	return e.now()
}

// Activate starts a new subscription window now. The plan name is copied onto
// the tenant and is not a reference to the catalog: renaming or deleting the
// catalog plan later leaves the tenant untouched. With months == 0 the
// duration is taken from the catalog plan of that name.
func (e *Engine) Activate(ctx context.Context, actor session.Actor, tenantID, planName string, months int) (*models.Tenant, error) {
	if err := access.Authorize(actor, access.ManageTenants, tenantID); err != nil {
		return nil, err
	}
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return nil, apperrors.Validation("plan_name", "is required")
	}
	if months < 0 {
		return nil, apperrors.Validation("months", "must not be negative")
	}
	if months == 0 {
		var plan models.SubscriptionPlan
		if err := e.db.WithContext(ctx).Where("name = ?", planName).First(&plan).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, apperrors.Validation("months", "required when the plan is not in the catalog")
			}
			return nil, apperrors.Backend("activate subscription", err)
		}
		months = plan.DurationMonths
		if months <= 0 {
			return nil, apperrors.Validation("months", "catalog plan has no duration")
		}
	}

	start := e.now()
	end := SubscriptionEnd(start, months)
	res := e.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Updates(map[string]interface{}{
		"subscription_plan":  planName,
		"subscription_start": start,
		"subscription_end":   end,
	})
	if res.Error != nil {
		return nil, apperrors.Backend("activate subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("tenant", tenantID)
	}

	logger.FromContext(ctx).Info("subscription activated",
		zap.String("tenant_id", tenantID),
		zap.String("plan", planName),
		zap.Int("months", months),
		zap.Time("end", end))
	e.audit.Record(ctx, actor, tenantID, audit.ActionActivatePlan,
		fmt.Sprintf("plan %s for %d months, until %s", planName, months, end.Format(time.RFC3339)))
	return e.load(ctx, tenantID)
}

// SetStatus flips the operator kill switch.
func (e *Engine) SetStatus(ctx context.Context, actor session.Actor, tenantID string, status models.TenantStatus) error {
	if err := access.Authorize(actor, access.ManageTenants, tenantID); err != nil {
		return err
	}
	if status != models.TenantActive && status != models.TenantInactive {
		return apperrors.Validation("status", "must be active or inactive")
	}

	res := e.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Update("status", status)
	if res.Error != nil {
		return apperrors.Backend("set tenant status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("tenant", tenantID)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionSetStatus, "status set to "+string(status))
	return nil
}

// SetModule enables or disables one module for a tenant.
func (e *Engine) SetModule(ctx context.Context, actor session.Actor, tenantID, module string, enabled bool) (*models.Tenant, error) {
	if err := access.Authorize(actor, access.ManageTenants, tenantID); err != nil {
		return nil, err
	}
	if !knownModule(module) {
		return nil, apperrors.Validation("module", "unknown module "+module)
	}

	var tenant models.Tenant
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tenant, "id = ?", tenantID).Error; err != nil {
			return err
		}
		if tenant.Settings.Modules == nil {
			tenant.Settings.Modules = map[string]bool{}
		}
		tenant.Settings.Modules[module] = enabled
		return tx.Model(&tenant).Select("settings").Updates(&tenant).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
		return nil, apperrors.Backend("set module", err)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionSetModule, fmt.Sprintf("module %s enabled=%t", module, enabled))
	return &tenant, nil
}

// CheckModule loads the tenant and applies the module switches for actor.
func (e *Engine) CheckModule(ctx context.Context, actor session.Actor, tenantID, module string) error {
	if actor.IsSuperAdmin() {
		return nil
	}
	tenant, err := e.load(ctx, tenantID)
	if err != nil {
		return err
	}
	if !access.CanAccessModule(actor, tenant, module) {
		return apperrors.Forbidden("use module "+module, "module disabled for this agency")
	}
	return nil
}

func (e *Engine) load(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := e.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
		return nil, apperrors.Backend("load tenant", err)
	}
	return &tenant, nil
}

func knownModule(module string) bool {
	for _, k := range models.ModuleKeys {
		if k == module {
			return true
		}
	}
	return false
}
