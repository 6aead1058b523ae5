package tenants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/credits"
	"voucherpos/logger"
	"voucherpos/metrics"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Trial is what every new agency starts with.
type Trial struct {
	Days    int
	Credits decimal.Decimal
}

type Engine struct {
	db    *gorm.DB
	audit audit.Recorder
	trial Trial
	now   func() time.Time
}

func NewEngine(db *gorm.DB, recorder audit.Recorder, trial Trial) *Engine {
	return &Engine{db: db, audit: recorder, trial: trial, now: time.Now}
}

// WithNow injects a deterministic clock for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// DefaultSettings enables every known module.
func DefaultSettings() models.TenantSettings {
	modules := make(map[string]bool, len(models.ModuleKeys))
	for _, k := range models.ModuleKeys {
		modules[k] = true
	}
	return models.TenantSettings{Currency: "XOF", Modules: modules}
}

// Create seeds a new agency with the trial license and trial credit grant.
func (e *Engine) Create(ctx context.Context, actor session.Actor, name string) (*models.Tenant, error) {
	if err := access.Authorize(actor, access.ManageTenants, ""); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("name", "is required")
	}

	start := e.now()
	end := start.AddDate(0, 0, e.trial.Days)
	tenant := models.Tenant{
		Name:              name,
		Status:            models.TenantActive,
		SubscriptionPlan:  models.PlanTrial,
		SubscriptionStart: &start,
		SubscriptionEnd:   &end,
		CreditBalance:     credits.Normalize(e.trial.Credits),
		Settings:          DefaultSettings(),
	}
	if err := e.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, apperrors.Backend("create tenant", err)
	}

	logger.FromContext(ctx).Info("tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("name", tenant.Name))
	e.audit.Record(ctx, actor, tenant.ID, audit.ActionCreateTenant,
		fmt.Sprintf("agency %s created with %s trial credits", tenant.Name, tenant.CreditBalance.StringFixed(credits.Scale)))
	return &tenant, nil
}

func (e *Engine) Get(ctx context.Context, actor session.Actor, tenantID string) (*models.Tenant, error) {
	if err := access.Authorize(actor, access.ViewTenant, tenantID); err != nil {
		return nil, err
	}
	var tenant models.Tenant
	if err := e.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
		return nil, apperrors.Backend("get tenant", err)
	}
	tenant.CreditBalance = credits.Normalize(tenant.CreditBalance)
	return &tenant, nil
}

// List is role scoped: operators see every tenant, everyone else only their own.
func (e *Engine) List(ctx context.Context, actor session.Actor) ([]models.Tenant, error) {
	q := e.db.WithContext(ctx).Order("created_at desc")
	if !actor.IsSuperAdmin() {
		if err := access.Authorize(actor, access.ViewTenant, actor.TenantID); err != nil {
			return nil, err
		}
		q = q.Where("id = ?", actor.TenantID)
	}

	var tenants []models.Tenant
	if err := q.Find(&tenants).Error; err != nil {
		metrics.StoreReadDegraded.WithLabelValues("list_tenants").Inc()
		logger.FromContext(ctx).Warn("listing tenants failed", zap.Error(err))
		return []models.Tenant{}, nil
	}
	for i := range tenants {
		tenants[i].CreditBalance = credits.Normalize(tenants[i].CreditBalance)
	}
	return tenants, nil
}

// UpdateSettings replaces the agency name and settings. Module flags are
// operator controlled and survive a settings update from an agency admin.
func (e *Engine) UpdateSettings(ctx context.Context, actor session.Actor, tenantID, name string, settings models.TenantSettings) (*models.Tenant, error) {
	if err := access.Authorize(actor, access.ManageSettings, tenantID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("name", "is required")
	}

	var tenant models.Tenant
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tenant, "id = ?", tenantID).Error; err != nil {
			return err
		}
		if !actor.IsSuperAdmin() || settings.Modules == nil {
			settings.Modules = tenant.Settings.Modules
		}
		tenant.Name = name
		tenant.Settings = settings
		return tx.Model(&tenant).Select("name", "settings").Updates(&tenant).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
		return nil, apperrors.Backend("update settings", err)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionUpdateSettings, "settings updated")
	return &tenant, nil
}

// Delete removes a tenant with its vouchers, sales and users. Activity logs
// are kept.
func (e *Engine) Delete(ctx context.Context, actor session.Actor, tenantID string) error {
	if err := access.Authorize(actor, access.ManageTenants, tenantID); err != nil {
		return err
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Tenant{}, "id = ?", tenantID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("tenant", tenantID)
		}
		for _, m := range []interface{}{&models.Sale{}, &models.Voucher{}, &models.User{}} {
			if err := tx.Where("tenant_id = ?", tenantID).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Backend("delete tenant", err)
	}

	logger.FromContext(ctx).Warn("tenant deleted", zap.String("tenant_id", tenantID))
	e.audit.Record(ctx, actor, tenantID, audit.ActionDeleteTenant, "agency deleted")
	return nil
}
