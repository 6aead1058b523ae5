package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucherpos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voucherpos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	VouchersSold = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucherpos_vouchers_sold_total",
			Help: "Vouchers transitioned from UNSOLD to SOLD",
		},
		[]string{"tenant_id"},
	)

	SellConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voucherpos_sell_conflicts_total",
			Help: "Sell attempts that lost the race for a voucher",
		},
	)

	SellCompensations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voucherpos_sell_compensations_total",
			Help: "Claimed vouchers reverted because the sale could not be recorded",
		},
	)

	VouchersImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucherpos_vouchers_imported_total",
			Help: "Vouchers inserted by bulk import",
		},
		[]string{"tenant_id"},
	)

	CreditsDeducted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voucherpos_credits_deducted_total",
			Help: "Credits consumed by imports",
		},
	)

	AuditFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voucherpos_audit_failures_total",
			Help: "Activity log entries that could not be written after all attempts",
		},
	)

	StoreReadDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucherpos_store_read_degraded_total",
			Help: "Reads answered with an empty result because the store failed",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDurationHistogram,
		VouchersSold,
		SellConflicts,
		SellCompensations,
		VouchersImported,
		CreditsDeducted,
		AuditFailures,
		StoreReadDegraded,
	)
}

// Middleware records request count and duration per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		RequestCounter.WithLabelValues(c.Request.Method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
