package credits

import (
	"context"
	"sync"
	"testing"

	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/database"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var operator = session.Actor{UserID: "root", Name: "Operator", Role: models.RoleSuperAdmin}

func setupCreditsTestDB(t *testing.T, plan, balance string) (*gorm.DB, *models.Tenant) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	tenant := models.Tenant{
		Name:             "Agency",
		Status:           models.TenantActive,
		SubscriptionPlan: plan,
		CreditBalance:    decimal.RequireFromString(balance),
	}
	require.NoError(t, db.Create(&tenant).Error)
	return db, &tenant
}

func reload(t *testing.T, db *gorm.DB, id string) models.Tenant {
	var tenant models.Tenant
	require.NoError(t, db.First(&tenant, "id = ?", id).Error)
	return tenant
}

func TestCost(t *testing.T) {
	cases := map[int]string{
		20: "1",
		5:  "0.25",
		1:  "0.05",
		0:  "0",
		-3: "0",
		33: "1.65",
		7:  "0.35",
	}
	for size, want := range cases {
		assert.True(t, decimal.RequireFromString(want).Equal(Cost(size)), "size %d: got %s", size, Cost(size))
	}
}

func TestCanAfford(t *testing.T) {
	tenant := &models.Tenant{CreditBalance: decimal.RequireFromString("0.1")}
	assert.False(t, CanAfford(tenant, Cost(20)))
	assert.True(t, CanAfford(tenant, Cost(2)))

	tenant.SubscriptionPlan = models.PlanUnlimited
	assert.True(t, CanAfford(tenant, Cost(10000)))
}

func TestDeduct(t *testing.T) {
	db, tenant := setupCreditsTestDB(t, models.PlanTrial, "1.5")

	require.NoError(t, Deduct(context.Background(), db, tenant.ID, Cost(5)))
	assert.True(t, decimal.RequireFromString("1.25").Equal(Normalize(reload(t, db, tenant.ID).CreditBalance)))

	err := Deduct(context.Background(), db, tenant.ID, Cost(40))
	var insufficient *apperrors.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, decimal.RequireFromString("2").Equal(insufficient.Required))
	assert.True(t, decimal.RequireFromString("1.25").Equal(insufficient.Available))
}

func TestDeductRepeatedSmallBatchesDoesNotDrift(t *testing.T) {
	db, tenant := setupCreditsTestDB(t, models.PlanTrial, "1")

	for i := 0; i < 20; i++ {
		require.NoError(t, Deduct(context.Background(), db, tenant.ID, Cost(1)))
	}
	assert.True(t, Normalize(reload(t, db, tenant.ID).CreditBalance).IsZero())
	assert.True(t, apperrors.IsInsufficientBalance(Deduct(context.Background(), db, tenant.ID, Cost(1))))
}

func TestDeductUnlimitedIsFree(t *testing.T) {
	db, tenant := setupCreditsTestDB(t, models.PlanUnlimited, "0")

	require.NoError(t, Deduct(context.Background(), db, tenant.ID, Cost(500)))
	assert.True(t, reload(t, db, tenant.ID).CreditBalance.IsZero())
}

func TestDeductUnknownTenant(t *testing.T) {
	db, _ := setupCreditsTestDB(t, models.PlanTrial, "10")
	assert.True(t, apperrors.IsNotFound(Deduct(context.Background(), db, "missing", Cost(1))))
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	db, tenant := setupCreditsTestDB(t, models.PlanTrial, "1")

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- Deduct(context.Background(), db, tenant.ID, Cost(5))
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.IsInsufficientBalance(err))
		}
	}
	assert.Equal(t, 4, succeeded)
	assert.True(t, Normalize(reload(t, db, tenant.ID).CreditBalance).IsZero())
}

func TestRecharge(t *testing.T) {
	db, tenant := setupCreditsTestDB(t, models.PlanTrial, "0.5")
	sink := audit.NewSink(db, audit.Options{})
	defer sink.Close()
	engine := NewEngine(db, sink)

	balance, err := engine.Recharge(context.Background(), operator, tenant.ID, decimal.RequireFromString("2.25"), "cash top-up")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.75").Equal(balance))

	_, err = engine.Recharge(context.Background(), operator, tenant.ID, decimal.RequireFromString("-5"), "correction")
	assert.True(t, apperrors.IsValidation(err))

	balance, err = engine.Recharge(context.Background(), operator, tenant.ID, decimal.Zero, "recount")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.75").Equal(balance))

	admin := session.Actor{UserID: "a1", TenantID: tenant.ID, Role: models.RoleAdmin}
	_, err = engine.Recharge(context.Background(), admin, tenant.ID, decimal.NewFromInt(100), "self service")
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = engine.Recharge(context.Background(), operator, "missing", decimal.NewFromInt(1), "")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, sink.Flush(context.Background()))
	var logs int64
	db.Model(&models.ActivityLog{}).Where("action = ?", audit.ActionAddCredits).Count(&logs)
	assert.Equal(t, int64(2), logs)
}
