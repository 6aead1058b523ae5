// Package inventory enforces the voucher lifecycle: UNSOLD vouchers are
// imported in batches, sold exactly once, and restored by cancelling the sale.
package inventory

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

const (
	DefaultPaymentMethod = "CASH"
	importBatchSize      = 500
)

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

// SaleDetails are the optional fields a seller attaches to a sale.
type SaleDetails struct {
	CustomerContact string
	PaymentMethod   string
}

// Sell claims voucherID for actor. The UNSOLD to SOLD transition is a
// conditional update: when another seller got there first the result is a nil
// sale and a nil error, and the caller should pick another voucher.
func (e *Engine) Sell(ctx context.Context, actor session.Actor, tenantID, voucherID string, details SaleDetails) (*models.Sale, error) {
	if err := access.Authorize(actor, access.SellVoucher, tenantID); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	db := e.db.WithContext(ctx)

	soldAt := e.now()
	res := db.Model(&models.Voucher{}).
		Where("id = ? AND tenant_id = ? AND status = ?", voucherID, tenantID, models.VoucherUnsold).
		Updates(map[string]interface{}{
			"status":  models.VoucherSold,
			"sold_by": actor.UserID,
			"sold_at": soldAt,
		})
	if res.Error != nil {
		return nil, apperrors.Backend("claim voucher", res.Error)
	}

	var voucher models.Voucher
	if err := db.First(&voucher, "id = ? AND tenant_id = ?", voucherID, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("voucher", voucherID)
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.Backend("load voucher", err)
		}
		e.compensate(ctx, voucherID, actor.UserID, err)
		return nil, apperrors.Backend("load voucher", err)
	}
	if res.RowsAffected == 0 {
		metrics.SellConflicts.Inc()
		log.Info("voucher already sold",
			zap.String("tenant_id", tenantID),
			zap.String("voucher_id", voucherID))
		return nil, nil
	}

	method := strings.TrimSpace(details.PaymentMethod)
	if method == "" {
		method = DefaultPaymentMethod
	}
	sale := models.Sale{
		VoucherID:       voucher.ID,
		TenantID:        tenantID,
		SellerID:        actor.UserID,
		Amount:          voucher.Price,
		CustomerContact: strings.TrimSpace(details.CustomerContact),
		PaymentMethod:   method,
		CreatedAt:       soldAt,
	}
	if err := db.Create(&sale).Error; err != nil {
		e.compensate(ctx, voucherID, actor.UserID, err)
		return nil, apperrors.Backend("record sale", err)
	}
	sale.Voucher = &voucher

	metrics.VouchersSold.WithLabelValues(tenantID).Inc()
	log.Info("voucher sold",
		zap.String("tenant_id", tenantID),
		zap.String("voucher_id", voucherID),
		zap.String("sale_id", sale.ID),
		zap.Int64("amount", sale.Amount))
	e.audit.Record(ctx, actor, tenantID, audit.ActionSell,
		fmt.Sprintf("sold %s (%s) for %d via %s", voucher.Username, voucher.Profile, sale.Amount, method))
	return &sale, nil
}

// compensate releases a voucher claimed by sellerID whose sale could not be
// recorded.
func (e *Engine) compensate(ctx context.Context, voucherID, sellerID string, cause error) {
	metrics.SellCompensations.Inc()
	res := e.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("id = ? AND status = ? AND sold_by = ?", voucherID, models.VoucherSold, sellerID).
		Updates(releaseColumns())
	fields := []zap.Field{zap.String("voucher_id", voucherID), zap.NamedError("cause", cause)}
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to release voucher after sale error, reconcile required",
			append(fields, zap.Error(res.Error))...)
		return
	}
	logger.FromContext(ctx).Warn("voucher released after sale error", fields...)
}

func releaseColumns() map[string]interface{} {
	return map[string]interface{}{
		"status":  models.VoucherUnsold,
		"sold_by": nil,
		"sold_at": nil,
	}
}

// Cancel deletes a sale and returns its voucher to the pool. Retrying a
// completed cancel reports NotFound.
func (e *Engine) Cancel(ctx context.Context, actor session.Actor, tenantID, saleID string) error {
	if err := access.Authorize(actor, access.CancelSale, tenantID); err != nil {
		return err
	}

	var sale models.Sale
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sale, "id = ? AND tenant_id = ?", saleID, tenantID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("sale", saleID)
			}
			return err
		}
		if err := tx.Model(&models.Voucher{}).
			Where("id = ? AND tenant_id = ?", sale.VoucherID, tenantID).
			Updates(releaseColumns()).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Sale{}, "id = ?", sale.ID).Error
	})
	if err != nil {
		return apperrors.Backend("cancel sale", err)
	}

	logger.FromContext(ctx).Info("sale cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("sale_id", saleID),
		zap.String("voucher_id", sale.VoucherID))
	e.audit.Record(ctx, actor, tenantID, audit.ActionCancelSale,
		fmt.Sprintf("cancelled sale %s of %d, voucher %s back in stock", sale.ID, sale.Amount, sale.VoucherID))
	return nil
}

// Row is one normalized line of an import file.
type Row struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Profile   string `json:"profile"`
	TimeLimit string `json:"time_limit"`
	Price     int64  `json:"price"`
}

type ImportResult struct {
	InsertedCount int             `json:"inserted_count"`
	Cost          decimal.Decimal `json:"cost"`
}

// BulkImport inserts every row with a non-empty username as an UNSOLD voucher
// and charges the tenant for them. The insert and the deduction commit
// together: a failed insert charges nothing and an unaffordable batch inserts
// nothing.
func (e *Engine) BulkImport(ctx context.Context, actor session.Actor, tenantID string, rows []Row) (*ImportResult, error) {
	if err := access.Authorize(actor, access.ManageInventory, tenantID); err != nil {
		return nil, err
	}

	vouchers := make([]models.Voucher, 0, len(rows))
	for i, r := range rows {
		username := strings.TrimSpace(r.Username)
		if username == "" {
			continue
		}
		if r.Price < 0 {
			return nil, apperrors.Validation("price", fmt.Sprintf("row %d has a negative price", i+1))
		}
		vouchers = append(vouchers, models.Voucher{
			TenantID:  tenantID,
			Username:  username,
			Password:  strings.TrimSpace(r.Password),
			Profile:   strings.TrimSpace(r.Profile),
			TimeLimit: strings.TrimSpace(r.TimeLimit),
			Price:     r.Price,
			Status:    models.VoucherUnsold,
		})
	}
	if len(vouchers) == 0 {
		return nil, apperrors.Validation("rows", "no valid rows to import")
	}
	cost := credits.Cost(len(vouchers))

	var tenant models.Tenant
	if err := e.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
		return nil, apperrors.Backend("import vouchers", err)
	}
	if !credits.CanAfford(&tenant, cost) {
		return nil, &apperrors.InsufficientBalanceError{Required: cost, Available: credits.Normalize(tenant.CreditBalance)}
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&vouchers, importBatchSize).Error; err != nil {
			return err
		}
		return credits.Deduct(ctx, tx, tenantID, cost)
	})
	if err != nil {
		return nil, apperrors.Backend("import vouchers", err)
	}

	metrics.VouchersImported.WithLabelValues(tenantID).Add(float64(len(vouchers)))
	logger.FromContext(ctx).Info("vouchers imported",
		zap.String("tenant_id", tenantID),
		zap.Int("count", len(vouchers)),
		zap.String("cost", cost.StringFixed(credits.Scale)))
	e.audit.Record(ctx, actor, tenantID, audit.ActionImport,
		fmt.Sprintf("imported %d vouchers for %s credits", len(vouchers), cost.StringFixed(credits.Scale)))
	return &ImportResult{InsertedCount: len(vouchers), Cost: cost}, nil
}

// UpdatePriceByProfile reprices the UNSOLD vouchers of a profile. Sold
// vouchers keep their price and sales keep their amount.
func (e *Engine) UpdatePriceByProfile(ctx context.Context, actor session.Actor, tenantID, profile string, price int64) (int64, error) {
	if err := access.Authorize(actor, access.ManageInventory, tenantID); err != nil {
		return 0, err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return 0, apperrors.Validation("profile", "is required")
	}
	if price < 0 {
		return 0, apperrors.Validation("price", "must not be negative")
	}

	res := e.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("tenant_id = ? AND profile = ? AND status = ?", tenantID, profile, models.VoucherUnsold).
		Update("price", price)
	if res.Error != nil {
		return 0, apperrors.Backend("reprice profile", res.Error)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionReprice,
		fmt.Sprintf("profile %s repriced to %d (%d vouchers)", profile, price, res.RowsAffected))
	return res.RowsAffected, nil
}

// PurgeByProfile deletes the UNSOLD vouchers of a profile and returns how many
// were removed.
func (e *Engine) PurgeByProfile(ctx context.Context, actor session.Actor, tenantID, profile string) (int64, error) {
	if err := access.Authorize(actor, access.ManageInventory, tenantID); err != nil {
		return 0, err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return 0, apperrors.Validation("profile", "is required")
	}

	res := e.db.WithContext(ctx).
		Where("tenant_id = ? AND profile = ? AND status = ?", tenantID, profile, models.VoucherUnsold).
		Delete(&models.Voucher{})
	if res.Error != nil {
		return 0, apperrors.Backend("purge profile", res.Error)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionPurge,
		fmt.Sprintf("purged %d unsold vouchers of profile %s", res.RowsAffected, profile))
	return res.RowsAffected, nil
}

// DeleteOne removes a single UNSOLD voucher. A sold voucher must be cancelled
// first.
func (e *Engine) DeleteOne(ctx context.Context, actor session.Actor, tenantID, voucherID string) error {
	if err := access.Authorize(actor, access.ManageInventory, tenantID); err != nil {
		return err
	}

	db := e.db.WithContext(ctx)
	res := db.Where("id = ? AND tenant_id = ? AND status = ?", voucherID, tenantID, models.VoucherUnsold).
		Delete(&models.Voucher{})
	if res.Error != nil {
		return apperrors.Backend("delete voucher", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.Voucher{}).Where("id = ? AND tenant_id = ?", voucherID, tenantID).Count(&count).Error; err != nil {
			return apperrors.Backend("delete voucher", err)
		}
		if count == 0 {
			return apperrors.NotFound("voucher", voucherID)
		}
		return apperrors.Conflict("voucher %s is sold, cancel the sale first", voucherID)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionDeleteVoucher, "deleted voucher "+voucherID)
	return nil
}
