// Package credits meters bulk imports against a tenant's prepaid balance.
//
// One credit pays for VouchersPerCredit imported vouchers. Every amount is
// rounded to Scale decimal places on each read-modify-write of the balance,
// both in Go and inside the SQL update.
package credits

import (
	"context"
	"fmt"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/logger"
	"voucherpos/metrics"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	VouchersPerCredit = 20
	Scale             = 4
)

// Cost returns the credit price of importing batchSize vouchers.
func Cost(batchSize int) decimal.Decimal {
	if batchSize <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(batchSize)).
		Div(decimal.NewFromInt(VouchersPerCredit)).
		Round(Scale)
}

// Normalize rounds a stored balance to the metering scale.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

func IsUnlimited(t *models.Tenant) bool {
	return t.SubscriptionPlan == models.PlanUnlimited
}

// CanAfford reports whether the tenant may spend cost right now.
func CanAfford(t *models.Tenant, cost decimal.Decimal) bool {
	return IsUnlimited(t) || Normalize(t.CreditBalance).GreaterThanOrEqual(cost)
}

// Deduct atomically subtracts cost from the tenant balance. The check and the
// write are a single conditional UPDATE, so two concurrent imports can never
// both spend the same credit. Pass a transaction to tie the deduction to
// another write. Unlimited tenants and zero costs are not charged.
func Deduct(ctx context.Context, db *gorm.DB, tenantID string, cost decimal.Decimal) error {
	cost = cost.Round(Scale)
	if !cost.IsPositive() {
		return nil
	}

	res := db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND COALESCE(subscription_plan, '') <> ? AND credit_balance >= ?", tenantID, models.PlanUnlimited, cost).
		Update("credit_balance", gorm.Expr("ROUND(credit_balance - ?, ?)", cost, Scale))
	if res.Error != nil {
		return apperrors.Backend("deduct credits", res.Error)
	}
	if res.RowsAffected == 1 {
		metrics.CreditsDeducted.Add(cost.InexactFloat64())
		return nil
	}

	// nothing matched: find out why
	var tenant models.Tenant
	if err := db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("tenant", tenantID)
		}
		return apperrors.Backend("deduct credits", err)
	}
	if IsUnlimited(&tenant) {
		return nil
	}
	return &apperrors.InsufficientBalanceError{Required: cost, Available: Normalize(tenant.CreditBalance)}
}

// Engine exposes the operator-facing credit operations.
type Engine struct {
	db    *gorm.DB
	audit audit.Recorder
}

func NewEngine(db *gorm.DB, recorder audit.Recorder) *Engine {
	return &Engine{db: db, audit: recorder}
}

// Recharge adds amount to the balance. Operators are trusted with the amount;
// the only guard is that the balance cannot go below zero. A zero amount
// leaves the balance as is and is still recorded.
func (e *Engine) Recharge(ctx context.Context, actor session.Actor, tenantID string, amount decimal.Decimal, note string) (decimal.Decimal, error) {
	if err := access.Authorize(actor, access.ManageCredits, tenantID); err != nil {
		return decimal.Zero, err
	}
	amount = amount.Round(Scale)

	res := e.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND credit_balance + ? >= 0", tenantID, amount).
		Update("credit_balance", gorm.Expr("ROUND(credit_balance + ?, ?)", amount, Scale))
	if res.Error != nil {
		return decimal.Zero, apperrors.Backend("recharge credits", res.Error)
	}

	balance, err := e.Balance(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	if res.RowsAffected == 0 {
		return balance, apperrors.Validation("amount", "balance cannot become negative")
	}

	logger.FromContext(ctx).Info("credits recharged",
		zap.String("tenant_id", tenantID),
		zap.String("amount", amount.StringFixed(Scale)),
		zap.String("balance", balance.StringFixed(Scale)))
	e.audit.Record(ctx, actor, tenantID, audit.ActionAddCredits,
		fmt.Sprintf("added %s credits (%s), balance %s", amount.StringFixed(Scale), note, balance.StringFixed(Scale)))
	return balance, nil
}

// Balance reads the current rounded balance.
func (e *Engine) Balance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	var tenant models.Tenant
	if err := e.db.WithContext(ctx).Select("id", "credit_balance").First(&tenant, "id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, apperrors.NotFound("tenant", tenantID)
		}
		return decimal.Zero, apperrors.Backend("read balance", err)
	}
	return Normalize(tenant.CreditBalance), nil
}
