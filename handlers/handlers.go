package handlers

import (
	"voucherpos/accounts"
	"voucherpos/credits"
	"voucherpos/inventory"
	"voucherpos/licensing"
	"voucherpos/plans"
	"voucherpos/tenants"

	tracer "github.com/dhawal-pandya/aeonis/packages/tracer-sdk/go"
)

var Tracer *tracer.Tracer

func SetTracer(t *tracer.Tracer) {
	Tracer = t
}

// InitTracerForTests points the tracer at a local collector that is not
// expected to be running.
func InitTracerForTests() {
	SetTracer(tracer.NewTracer(
		"voucherpos-test",
		"http://localhost:8000/v1/traces",
		"test-api-key",
		tracer.NewPIISanitizer(),
	))
}

// Engines are the domain services the handlers call into.
type Engines struct {
	Accounts  *accounts.Engine
	Tenants   *tenants.Engine
	Inventory *inventory.Engine
	Credits   *credits.Engine
	Licensing *licensing.Engine
	Plans     *plans.Engine
}

var (
	Accounts  *accounts.Engine
	Tenants   *tenants.Engine
	Inventory *inventory.Engine
	Credits   *credits.Engine
	Licensing *licensing.Engine
	Plans     *plans.Engine

	// AllowClearDatabase enables POST /admin/clear_db outside production.
	AllowClearDatabase bool
)

func SetEngines(e Engines) {
	Accounts = e.Accounts
	Tenants = e.Tenants
	Inventory = e.Inventory
	Credits = e.Credits
	Licensing = e.Licensing
	Plans = e.Plans
}
