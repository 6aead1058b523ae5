// Package audit records an activity log entry for every mutating action.
//
// Writes are queued and performed by a background worker so a failing log
// store never blocks or fails the operation being recorded.
package audit

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/logger"
	"voucherpos/metrics"
	"voucherpos/models"
	"voucherpos/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Action tags written to the log.
const (
	ActionSell           = "SELL"
	ActionCancelSale     = "CANCEL_SALE"
	ActionImport         = "IMPORT"
	ActionReprice        = "REPRICE_PROFILE"
	ActionPurge          = "PURGE_PROFILE"
	ActionDeleteVoucher  = "DELETE_VOUCHER"
	ActionReconcile      = "RECONCILE"
	ActionCreateTenant   = "CREATE_TENANT"
	ActionDeleteTenant   = "DELETE_TENANT"
	ActionUpdateSettings = "UPDATE_SETTINGS"
	ActionSetStatus      = "SET_STATUS"
	ActionSetModule      = "SET_MODULE"
	ActionActivatePlan   = "ACTIVATE_SUBSCRIPTION"
	ActionAddCredits     = "ADD_CREDITS"
	ActionAddUser        = "ADD_USER"
	ActionUpdateRole     = "UPDATE_ROLE"
	ActionUpdatePassword = "UPDATE_PASSWORD"
	ActionDeleteUser     = "DELETE_USER"
	ActionUpsertPlan     = "UPSERT_PLAN"
	ActionDeletePlan     = "DELETE_PLAN"
	ActionSignIn         = "SIGN_IN"
)

// Recorder is what the engines depend on.
type Recorder interface {
	Record(ctx context.Context, actor session.Actor, tenantID, action, details string)
}

type Options struct {
	Buffer      int
	MaxAttempts int
	RetryDelay  time.Duration
}

type request struct {
	entry models.ActivityLog
	flush chan struct{}
}

// Sink is a queue-backed Recorder writing to the logs table.
type Sink struct {
	db       *gorm.DB
	queue    chan request
	opts     Options
	now      func() time.Time
	wg       sync.WaitGroup
	overflow sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

func NewSink(db *gorm.DB, opts Options) *Sink {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	s := &Sink{
		db:    db,
		queue: make(chan request, opts.Buffer),
		opts:  opts,
		now:   time.Now,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues an entry and returns immediately. When the queue is full the
// entry is written from its own goroutine rather than dropped.
func (s *Sink) Record(ctx context.Context, actor session.Actor, tenantID, action, details string) {
	entry := models.ActivityLog{
		TenantID:  tenantID,
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    action,
		Details:   details,
		CreatedAt: s.now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.FromContext(ctx).Warn("audit sink closed, entry not recorded",
			zap.String("action", action), zap.String("tenant_id", tenantID))
		return
	}

	select {
	case s.queue <- request{entry: entry}:
	default:
		s.overflow.Add(1)
		go func() {
			defer s.overflow.Done()
			defer s.recoverPanic()
			s.write(entry)
		}()
	}
}

// Flush blocks until every entry queued before the call has been handled.
func (s *Sink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.queue <- request{flush: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.overflow.Wait()
	return nil
}

// Close drains the queue and stops the worker.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.overflow.Wait()
}

func (s *Sink) run() {
	defer s.wg.Done()
	for req := range s.queue {
		if req.flush != nil {
			close(req.flush)
			continue
		}
		s.safeWrite(req.entry)
	}
}

func (s *Sink) safeWrite(entry models.ActivityLog) {
	defer s.recoverPanic()
	s.write(entry)
}

func (s *Sink) write(entry models.ActivityLog) {
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		// BeforeCreate fixes the id on the first attempt; retries reuse it
		if err = s.db.Create(&entry).Error; err == nil {
			return
		}
		if attempt < s.opts.MaxAttempts {
			time.Sleep(s.opts.RetryDelay * time.Duration(attempt))
		}
	}
	metrics.AuditFailures.Inc()
	logger.GetLogger().Warn("failed to write activity log",
		zap.String("action", entry.Action),
		zap.String("tenant_id", entry.TenantID),
		zap.Error(err))
}

func (s *Sink) recoverPanic() {
	if r := recover(); r != nil {
		metrics.AuditFailures.Inc()
		logger.GetLogger().Error("audit writer panic",
			zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	}
}

// List returns the newest entries first. A tenantID of "" lists every tenant.
// Store failures degrade to an empty result.
func List(ctx context.Context, db *gorm.DB, actor session.Actor, tenantID string, limit int) ([]models.ActivityLog, error) {
	if err := authorizeList(actor, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	q := db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}

	var logs []models.ActivityLog
	if err := q.Find(&logs).Error; err != nil {
		metrics.StoreReadDegraded.WithLabelValues("list_logs").Inc()
		logger.FromContext(ctx).Warn("listing activity logs failed", zap.Error(err))
		return []models.ActivityLog{}, nil
	}
	return logs, nil
}

func authorizeList(actor session.Actor, tenantID string) error {
	if tenantID == "" && !actor.IsSuperAdmin() {
		return apperrors.Forbidden("view activity log", "tenant required")
	}
	return access.Authorize(actor, access.ViewLogs, tenantID)
}
