package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleSeller     Role = "SELLER"
)

func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleSeller
}

type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
)

type VoucherStatus string

const (
	VoucherUnsold VoucherStatus = "UNSOLD"
	VoucherSold   VoucherStatus = "SOLD"
	// Reserved for time-based expiry; nothing produces these yet.
	VoucherActive  VoucherStatus = "ACTIVE"
	VoucherExpired VoucherStatus = "EXPIRED"
)

// Plan names with special meaning.
const (
	PlanTrial     = "TRIAL"
	PlanUnlimited = "UNLIMITED"
)

// Module keys toggled per tenant.
const (
	ModuleDashboard = "dashboard"
	ModuleSales     = "sales"
	ModuleHistory   = "history"
	ModuleTickets   = "tickets"
	ModuleTeam      = "team"
	ModuleTasks     = "tasks"
)

var ModuleKeys = []string{ModuleDashboard, ModuleSales, ModuleHistory, ModuleTickets, ModuleTeam, ModuleTasks}

// TenantSettings is stored as a JSON column on the tenant row.
type TenantSettings struct {
	Currency      string          `json:"currency"`
	ReceiptHeader string          `json:"receipt_header"`
	ReceiptFooter string          `json:"receipt_footer"`
	ContactPhone  string          `json:"contact_phone"`
	ContactEmail  string          `json:"contact_email"`
	Modules       map[string]bool `json:"modules"`
}

type Tenant struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name              string          `gorm:"not null" json:"name"`
	Status            TenantStatus    `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	SubscriptionPlan  string          `gorm:"type:varchar(64)" json:"subscription_plan"`
	SubscriptionStart *time.Time      `json:"subscription_start"`
	SubscriptionEnd   *time.Time      `json:"subscription_end"`
	CreditBalance     decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"credit_balance"`
	Settings          TenantSettings  `gorm:"serializer:json" json:"settings"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TenantID     string    `gorm:"type:varchar(36);index" json:"tenant_id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	PinHash      string    `json:"-"`
	Role         Role      `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Voucher struct {
	ID        string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TenantID  string        `gorm:"type:varchar(36);not null;index:idx_voucher_pool,priority:1" json:"tenant_id"`
	Username  string        `gorm:"not null" json:"username"`
	Password  string        `json:"password"`
	Profile   string        `gorm:"not null;index:idx_voucher_pool,priority:2" json:"profile"`
	TimeLimit string        `json:"time_limit"`
	Price     int64         `gorm:"not null;default:0" json:"price"`
	Status    VoucherStatus `gorm:"type:varchar(16);not null;index:idx_voucher_pool,priority:3" json:"status"`
	SoldBy    *string       `gorm:"type:varchar(36)" json:"sold_by"`
	SoldAt    *time.Time    `json:"sold_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Sale struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	VoucherID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"voucher_id"`
	Voucher         *Voucher  `json:"voucher,omitempty"`
	TenantID        string    `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	SellerID        string    `gorm:"type:varchar(36);not null;index" json:"seller_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	CustomerContact string    `json:"customer_contact"`
	PaymentMethod   string    `gorm:"type:varchar(32);not null;default:'CASH'" json:"payment_method"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

type SubscriptionPlan struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	DurationMonths int       `gorm:"not null" json:"duration_months"`
	Price          int64     `gorm:"not null" json:"price"`
	Currency       string    `gorm:"not null;default:'USD'" json:"currency"`
	Features       []string  `gorm:"serializer:json" json:"features"`
	Popular        bool      `gorm:"default:false" json:"popular"`
	DisplayOrder   int       `gorm:"default:0" json:"display_order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ActivityLog struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TenantID  string    `gorm:"type:varchar(36);index" json:"tenant_id"`
	ActorID   string    `gorm:"type:varchar(36)" json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `gorm:"type:varchar(64);not null" json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&Voucher{},
		&Sale{},
		&SubscriptionPlan{},
		&ActivityLog{},
	}
}

func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

func (v *Voucher) BeforeCreate(tx *gorm.DB) error {
	assignID(&v.ID)
	return nil
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&l.ID)
	return nil
}
