package inventory

import (
	"context"
	"fmt"
	"time"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/logger"
	"voucherpos/metrics"
	"voucherpos/models"
	"voucherpos/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

type VoucherFilter struct {
	Profile string
	Status  models.VoucherStatus
	Limit   int
}

// List returns the tenant's vouchers, oldest first. Store failures degrade to
// an empty result.
func (e *Engine) List(ctx context.Context, actor session.Actor, tenantID string, f VoucherFilter) ([]models.Voucher, error) {
	if err := access.Authorize(actor, access.ViewInventory, tenantID); err != nil {
		return nil, err
	}

	q := e.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Profile != "" {
		q = q.Where("profile = ?", f.Profile)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var vouchers []models.Voucher
	if err := q.Order("created_at asc").Limit(clampLimit(f.Limit)).Find(&vouchers).Error; err != nil {
		degraded(ctx, "list_vouchers", err)
		return []models.Voucher{}, nil
	}
	return vouchers, nil
}

type SalesFilter struct {
	SellerID string
	Limit    int
}

// ListSales returns sales newest first with their voucher. Sellers only ever
// see their own sales.
func (e *Engine) ListSales(ctx context.Context, actor session.Actor, tenantID string, f SalesFilter) ([]models.Sale, error) {
	if err := access.Authorize(actor, access.ViewSales, tenantID); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleSeller {
		f.SellerID = actor.UserID
	}

	q := e.db.WithContext(ctx).Preload("Voucher").Where("tenant_id = ?", tenantID)
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}

	var sales []models.Sale
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&sales).Error; err != nil {
		degraded(ctx, "list_sales", err)
		return []models.Sale{}, nil
	}
	return sales, nil
}

// NextAvailable picks the oldest UNSOLD voucher of profile not in exclude.
func (e *Engine) NextAvailable(ctx context.Context, actor session.Actor, tenantID, profile string, exclude []string) (*models.Voucher, error) {
	if err := access.Authorize(actor, access.SellVoucher, tenantID); err != nil {
		return nil, err
	}

	q := e.db.WithContext(ctx).
		Where("tenant_id = ? AND profile = ? AND status = ?", tenantID, profile, models.VoucherUnsold)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var voucher models.Voucher
	if err := q.Order("created_at asc").Order("id").First(&voucher).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("unsold voucher of profile", profile)
		}
		return nil, apperrors.Backend("pick voucher", err)
	}
	return &voucher, nil
}

type ProfileStock struct {
	Profile string `json:"profile"`
	Unsold  int64  `json:"unsold"`
	Price   int64  `json:"price"`
}

type Stats struct {
	Profiles     []ProfileStock `json:"profiles"`
	Unsold       int64          `json:"unsold"`
	Sold         int64          `json:"sold"`
	Revenue      int64          `json:"revenue"`
	TodayRevenue int64          `json:"today_revenue"`
}

// Stats summarizes stock per profile and revenue. Stock is tenant wide; the
// sales figures of a seller cover only their own sales, as in ListSales.
// Store failures degrade to zero values.
func (e *Engine) Stats(ctx context.Context, actor session.Actor, tenantID string) (*Stats, error) {
	if err := access.Authorize(actor, access.ViewSales, tenantID); err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	stats := &Stats{Profiles: []ProfileStock{}}

	if err := db.Model(&models.Voucher{}).
		Select("profile, COUNT(*) AS unsold, MAX(price) AS price").
		Where("tenant_id = ? AND status = ?", tenantID, models.VoucherUnsold).
		Group("profile").Order("profile").
		Scan(&stats.Profiles).Error; err != nil {
		degraded(ctx, "stats", err)
		return &Stats{Profiles: []ProfileStock{}}, nil
	}
	for _, p := range stats.Profiles {
		stats.Unsold += p.Unsold
	}

	now := e.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sales := db.Model(&models.Sale{}).Where("tenant_id = ?", tenantID)
	if actor.Role == models.RoleSeller {
		sales = sales.Where("seller_id = ?", actor.UserID)
	}
	sales = sales.Session(&gorm.Session{})
	const sum = "CAST(COALESCE(SUM(amount), 0) AS BIGINT)"
	err := sales.Count(&stats.Sold).Error
	if err == nil {
		err = sales.Select(sum).Scan(&stats.Revenue).Error
	}
	if err == nil {
		err = sales.Where("created_at >= ?", startOfDay).Select(sum).Scan(&stats.TodayRevenue).Error
	}
	if err != nil {
		degraded(ctx, "stats", err)
	}
	return stats, nil
}

type ReconcileResult struct {
	RestoredVouchers int64 `json:"restored_vouchers"`
	RemovedSales     int64 `json:"removed_sales"`
}

// ReconcileGrace is how old an inconsistent row must be before Reconcile
// repairs it. Younger rows may belong to a sell still in flight.
const ReconcileGrace = 5 * time.Minute

// Reconcile repairs what an interrupted sell or cancel can leave behind: sales
// whose voucher is not SOLD are removed, then SOLD vouchers without a sale go
// back to UNSOLD. Only rows older than ReconcileGrace are touched. Running it
// twice is a no-op the second time.
func (e *Engine) Reconcile(ctx context.Context, actor session.Actor, tenantID string) (*ReconcileResult, error) {
	if err := access.Authorize(actor, access.ReconcileTenant, tenantID); err != nil {
		return nil, err
	}

	cutoff := e.now().Add(-ReconcileGrace)
	var result ReconcileResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		soldIDs := tx.Model(&models.Voucher{}).Select("id").
			Where("tenant_id = ? AND status = ?", tenantID, models.VoucherSold)
		res := tx.Where("tenant_id = ? AND created_at < ? AND voucher_id NOT IN (?)", tenantID, cutoff, soldIDs).
			Delete(&models.Sale{})
		if res.Error != nil {
			return res.Error
		}
		result.RemovedSales = res.RowsAffected

		saleVoucherIDs := tx.Model(&models.Sale{}).Select("voucher_id").Where("tenant_id = ?", tenantID)
		res = tx.Model(&models.Voucher{}).
			Where("tenant_id = ? AND status = ? AND (sold_at IS NULL OR sold_at < ?) AND id NOT IN (?)",
				tenantID, models.VoucherSold, cutoff, saleVoucherIDs).
			Updates(releaseColumns())
		if res.Error != nil {
			return res.Error
		}
		result.RestoredVouchers = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, apperrors.Backend("reconcile", err)
	}

	if result.RemovedSales > 0 || result.RestoredVouchers > 0 {
		logger.FromContext(ctx).Warn("inventory repaired",
			zap.String("tenant_id", tenantID),
			zap.Int64("removed_sales", result.RemovedSales),
			zap.Int64("restored_vouchers", result.RestoredVouchers))
	}
	e.audit.Record(ctx, actor, tenantID, audit.ActionReconcile,
		fmt.Sprintf("removed %d orphan sales, restored %d vouchers", result.RemovedSales, result.RestoredVouchers))
	return &result, nil
}

func degraded(ctx context.Context, op string, err error) {
	metrics.StoreReadDegraded.WithLabelValues(op).Inc()
	logger.FromContext(ctx).Warn("store read failed, returning empty result",
		zap.String("operation", op), zap.Error(err))
}
