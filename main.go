package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voucherpos/accounts"
	"voucherpos/audit"
	"voucherpos/config"
	"voucherpos/credits"
	"voucherpos/database"
	"voucherpos/handlers"
	"voucherpos/inventory"
	"voucherpos/licensing"
	"voucherpos/logger"
	"voucherpos/metrics"
	"voucherpos/plans"
	"voucherpos/session"
	"voucherpos/tenants"

	tracer "github.com/dhawal-pandya/aeonis/packages/tracer-sdk/go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("starting", cfg.LogFields()...)

	if cfg.Tracer.APIKey == "" {
		log.Warn("AEONIS_API_KEY not set, traces will be rejected by the collector")
	}
	aeonisTracer := tracer.NewTracer(
		cfg.ServiceName,
		cfg.Tracer.Endpoint,
		cfg.Tracer.APIKey,
		tracer.NewPIISanitizer(),
	)
	defer aeonisTracer.Shutdown()
	handlers.SetTracer(aeonisTracer)

	db, err := database.ConnectDatabase(&cfg.DB)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}

	sink := audit.NewSink(db, audit.Options{Buffer: cfg.Audit.Buffer, MaxAttempts: cfg.Audit.MaxAttempts})
	defer sink.Close()

	trialCredits, err := decimal.NewFromString(cfg.Trial.Credits)
	if err != nil {
		log.Fatal("invalid TRIAL_CREDITS", zap.String("value", cfg.Trial.Credits), zap.Error(err))
	}

	sessions := session.NewManager(cfg.JWT.SigningKey, time.Duration(cfg.JWT.ExpirationHours)*time.Hour)
	handlers.SetEngines(handlers.Engines{
		Accounts:  accounts.NewEngine(db, sink, sessions),
		Tenants:   tenants.NewEngine(db, sink, tenants.Trial{Days: cfg.Trial.Days, Credits: trialCredits}),
		Inventory: inventory.NewEngine(db, sink),
		Credits:   credits.NewEngine(db, sink),
		Licensing: licensing.NewEngine(db, sink),
		Plans:     plans.NewEngine(db, sink),
	})
	handlers.AllowClearDatabase = cfg.Server.Env != "production"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap.SuperAdminEmail != "" {
		created, err := handlers.Accounts.EnsureSuperAdmin(ctx, cfg.Bootstrap.SuperAdminEmail, cfg.Bootstrap.SuperAdminPassword)
		if err != nil {
			log.Fatal("failed to bootstrap super admin", zap.Error(err))
		}
		if created {
			log.Info("super admin created", zap.String("email", cfg.Bootstrap.SuperAdminEmail))
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), logger.Middleware(), metrics.Middleware())

	// Middleware to create the root span for each request.
	r.Use(func(c *gin.Context) {
		ctx, span := aeonisTracer.StartSpan(c.Request.Context(), c.Request.URL.Path)
		defer span.End()

		span.SetAttributes(map[string]interface{}{
			"http.method":     c.Request.Method,
			"http.url":        c.Request.URL.String(),
			"http.client_ip":  c.ClientIP(),
			"http.user_agent": c.Request.UserAgent(),
			"request_id":      c.GetString("request_id"),
		})

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(map[string]interface{}{
			"http.status_code": c.Writer.Status(),
		})
	})

	handlers.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := sink.Flush(shutdownCtx); err != nil {
		log.Warn("audit flush incomplete", zap.Error(err))
	}
}
