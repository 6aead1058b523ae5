package handlers

import (
	"errors"
	"net/http"

	"voucherpos/apperrors"
	"voucherpos/inventory"
	"voucherpos/models"

	"github.com/gin-gonic/gin"
)

// maxSellAttempts bounds how many candidates a sell by profile tries when
// other sellers keep claiming them first.
const maxSellAttempts = 5

func ListVouchers(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListVouchers")
	defer span.End()

	vouchers, err := Inventory.List(ctx, currentActor(c), c.Param("id"), inventory.VoucherFilter{
		Profile: c.Query("profile"),
		Status:  models.VoucherStatus(c.Query("status")),
		Limit:   queryLimit(c),
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vouchers)
}

type ImportVouchersRequest struct {
	Rows []inventory.Row `json:"rows" binding:"required"`
}

func ImportVouchers(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ImportVouchers")
	defer span.End()

	var req ImportVouchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "rows": len(req.Rows)})

	res, err := Inventory.BulkImport(ctx, currentActor(c), tenantID, req.Rows)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type SellRequest struct {
	CustomerContact string `json:"customer_contact"`
	PaymentMethod   string `json:"payment_method"`
}

func SellVoucher(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SellVoucher")
	defer span.End()

	var req SellRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.SetError(err.Error(), "")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	tenantID, voucherID := c.Param("id"), c.Param("voucherId")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "voucher_id": voucherID})

	sale, err := Inventory.Sell(ctx, currentActor(c), tenantID, voucherID, inventory.SaleDetails{
		CustomerContact: req.CustomerContact,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	if sale == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Voucher already sold"})
		return
	}
	c.JSON(http.StatusCreated, sale)
}

type SellFromProfileRequest struct {
	Profile         string `json:"profile" binding:"required"`
	CustomerContact string `json:"customer_contact"`
	PaymentMethod   string `json:"payment_method"`
}

// SellFromProfile sells the oldest unsold voucher of a profile. A candidate
// lost to another seller is skipped and the next one tried.
func SellFromProfile(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SellFromProfile")
	defer span.End()

	var req SellFromProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, tenantID := currentActor(c), c.Param("id")
	details := inventory.SaleDetails{CustomerContact: req.CustomerContact, PaymentMethod: req.PaymentMethod}

	var lost []string
	for attempt := 1; attempt <= maxSellAttempts; attempt++ {
		voucher, err := Inventory.NextAvailable(ctx, actor, tenantID, req.Profile, lost)
		if err != nil {
			span.SetError(err.Error(), "")
			if apperrors.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No unsold voucher left for profile " + req.Profile})
				return
			}
			respondError(c, err)
			return
		}

		sale, err := Inventory.Sell(ctx, actor, tenantID, voucher.ID, details)
		if err != nil {
			span.SetError(err.Error(), "")
			respondError(c, err)
			return
		}
		if sale != nil {
			span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "voucher_id": voucher.ID, "attempts": attempt})
			c.JSON(http.StatusCreated, sale)
			return
		}
		lost = append(lost, voucher.ID)
	}

	err := errors.New("vouchers are being sold concurrently, try again")
	span.SetError(err.Error(), "")
	c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
}

func DeleteVoucher(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "DeleteVoucher")
	defer span.End()

	if err := Inventory.DeleteOne(ctx, currentActor(c), c.Param("id"), c.Param("voucherId")); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Voucher deleted successfully"})
}

func PurgeProfile(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "PurgeProfile")
	defer span.End()

	deleted, err := Inventory.PurgeByProfile(ctx, currentActor(c), c.Param("id"), c.Param("profile"))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type RepriceRequest struct {
	Price *int64 `json:"price" binding:"required,min=0"`
}

func RepriceProfile(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "RepriceProfile")
	defer span.End()

	var req RepriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := Inventory.UpdatePriceByProfile(ctx, currentActor(c), c.Param("id"), c.Param("profile"), *req.Price)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func ListSales(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListSales")
	defer span.End()

	sales, err := Inventory.ListSales(ctx, currentActor(c), c.Param("id"), inventory.SalesFilter{
		SellerID: c.Query("seller_id"),
		Limit:    queryLimit(c),
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func CancelSale(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "CancelSale")
	defer span.End()

	saleID := c.Param("saleId")
	span.SetAttributes(map[string]interface{}{"sale_id": saleID})

	if err := Inventory.Cancel(ctx, currentActor(c), c.Param("id"), saleID); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sale cancelled successfully"})
}
