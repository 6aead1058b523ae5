// Package accounts manages the people who use a tenant's terminal: sign in,
// PIN lock and user administration.
package accounts

import (
	"context"
	"regexp"
	"strings"

	"voucherpos/access"
	"voucherpos/apperrors"
	"voucherpos/audit"
	"voucherpos/logger"
	"voucherpos/models"
	"voucherpos/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

var (
	hashCost   = bcrypt.DefaultCost
	pinPattern = regexp.MustCompile(`^[0-9]{4}$`)
)

type Engine struct {
	db       *gorm.DB
	audit    audit.Recorder
	sessions *session.Manager
}

func NewEngine(db *gorm.DB, recorder audit.Recorder, sessions *session.Manager) *Engine {
	return &Engine{db: db, audit: recorder, sessions: sessions}
}

func hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), hashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignInResult is returned for valid credentials.
type SignInResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// SignIn checks credentials and issues a session token. Unknown emails and
// wrong passwords both yield a nil result and a nil error.
func (e *Engine) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var user models.User
	if err := e.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperrors.Backend("sign in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		logger.FromContext(ctx).Info("sign in refused", zap.String("user_id", user.ID))
		return nil, nil
	}

	actor := session.ActorFromUser(&user)
	token, err := e.sessions.Issue(actor)
	if err != nil {
		return nil, apperrors.Backend("issue session", err)
	}
	e.audit.Record(ctx, actor, user.TenantID, audit.ActionSignIn, user.Email+" signed in")
	return &SignInResult{User: &user, Token: token}, nil
}

// Authenticate resolves a session token to the actor as currently stored. A
// token outlives role changes and deletions, so the role and tenant always
// come from the user row; a deleted user yields an AuthorizationError.
func (e *Engine) Authenticate(ctx context.Context, token string) (session.Actor, error) {
	claimed, err := e.sessions.Validate(token)
	if err != nil {
		return session.Actor{}, apperrors.Forbidden(string(access.ManageOwnSession), err.Error())
	}
	user, err := e.load(ctx, claimed.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return session.Actor{}, apperrors.Forbidden(string(access.ManageOwnSession), "account no longer exists")
		}
		return session.Actor{}, err
	}
	return session.ActorFromUser(user), nil
}

// VerifyPin checks the terminal unlock PIN of userID. Only the user themself
// or an operator may check it. A user without a PIN never verifies.
func (e *Engine) VerifyPin(ctx context.Context, actor session.Actor, userID, pin string) (bool, error) {
	if err := access.Authorize(actor, access.ManageOwnSession, ""); err != nil {
		return false, err
	}
	if actor.UserID != userID && !actor.IsSuperAdmin() {
		return false, apperrors.Forbidden(string(access.ManageOwnSession), "can only verify your own pin")
	}
	if !pinPattern.MatchString(pin) {
		return false, apperrors.Validation("pin", "must be 4 digits")
	}

	user, err := e.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.PinHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(pin)) == nil, nil
}

// SetPin replaces the actor's own PIN.
func (e *Engine) SetPin(ctx context.Context, actor session.Actor, pin string) error {
	if err := access.Authorize(actor, access.ManageOwnSession, ""); err != nil {
		return err
	}
	if !pinPattern.MatchString(pin) {
		return apperrors.Validation("pin", "must be 4 digits")
	}
	h, err := hash(pin)
	if err != nil {
		return apperrors.Backend("hash pin", err)
	}

	res := e.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", actor.UserID).Update("pin_hash", h)
	if res.Error != nil {
		return apperrors.Backend("set pin", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("user", actor.UserID)
	}
	return nil
}

type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// AddUser creates a member of tenantID. Operators are created without a
// tenant.
func (e *Engine) AddUser(ctx context.Context, actor session.Actor, tenantID string, in NewUser) (*models.User, error) {
	if err := access.Authorize(actor, access.ManageUsers, tenantID); err != nil {
		return nil, err
	}
	if err := access.AuthorizeRoleGrant(actor, in.Role); err != nil {
		return nil, err
	}
	name, email := strings.TrimSpace(in.Name), normalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, apperrors.Validation("name", "is required")
	case !strings.Contains(email, "@"):
		return nil, apperrors.Validation("email", "is not a valid address")
	case len(in.Password) < minPasswordLength:
		return nil, apperrors.Validation("password", "must be at least 6 characters")
	}
	if in.Role == models.RoleSuperAdmin {
		tenantID = ""
	} else if tenantID == "" {
		return nil, apperrors.Validation("tenant_id", "is required")
	}

	db := e.db.WithContext(ctx)
	if tenantID != "" {
		var n int64
		if err := db.Model(&models.Tenant{}).Where("id = ?", tenantID).Count(&n).Error; err != nil {
			return nil, apperrors.Backend("add user", err)
		}
		if n == 0 {
			return nil, apperrors.NotFound("tenant", tenantID)
		}
	}
	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, apperrors.Backend("add user", err)
	}
	if existing > 0 {
		return nil, apperrors.Conflict("email address %s already in use", email)
	}

	h, err := hash(in.Password)
	if err != nil {
		return nil, apperrors.Backend("hash password", err)
	}
	user := models.User{TenantID: tenantID, Name: name, Email: email, PasswordHash: h, Role: in.Role}
	if err := db.Create(&user).Error; err != nil {
		return nil, apperrors.Backend("add user", err)
	}

	e.audit.Record(ctx, actor, tenantID, audit.ActionAddUser, "added "+string(user.Role)+" "+user.Email)
	return &user, nil
}

func (e *Engine) UpdateUserRole(ctx context.Context, actor session.Actor, userID string, role models.Role) error {
	target, err := e.managed(ctx, actor, userID)
	if err != nil {
		return err
	}
	if err := access.AuthorizeRoleGrant(actor, role); err != nil {
		return err
	}
	updates := map[string]interface{}{"role": role}
	switch {
	case role == models.RoleSuperAdmin:
		updates["tenant_id"] = ""
	case target.TenantID == "":
		return apperrors.Validation("role", "an operator without a tenant cannot take a tenant role")
	}

	if err := e.db.WithContext(ctx).Model(target).Updates(updates).Error; err != nil {
		return apperrors.Backend("update role", err)
	}
	e.audit.Record(ctx, actor, target.TenantID, audit.ActionUpdateRole, target.Email+" is now "+string(role))
	return nil
}

func (e *Engine) UpdatePassword(ctx context.Context, actor session.Actor, userID, password string) error {
	target, err := e.managed(ctx, actor, userID)
	if err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return apperrors.Validation("password", "must be at least 6 characters")
	}
	h, err := hash(password)
	if err != nil {
		return apperrors.Backend("hash password", err)
	}

	if err := e.db.WithContext(ctx).Model(target).Update("password_hash", h).Error; err != nil {
		return apperrors.Backend("update password", err)
	}
	e.audit.Record(ctx, actor, target.TenantID, audit.ActionUpdatePassword, "password reset for "+target.Email)
	return nil
}

func (e *Engine) DeleteUser(ctx context.Context, actor session.Actor, userID string) error {
	target, err := e.managed(ctx, actor, userID)
	if err != nil {
		return err
	}

	if err := e.db.WithContext(ctx).Delete(target).Error; err != nil {
		return apperrors.Backend("delete user", err)
	}
	logger.FromContext(ctx).Info("user deleted", zap.String("user_id", userID), zap.String("tenant_id", target.TenantID))
	e.audit.Record(ctx, actor, target.TenantID, audit.ActionDeleteUser, "deleted "+target.Email)
	return nil
}

// ListUsers returns the members of a tenant. Store failures degrade to an
// empty result.
func (e *Engine) ListUsers(ctx context.Context, actor session.Actor, tenantID string) ([]models.User, error) {
	if err := access.Authorize(actor, access.ViewUsers, tenantID); err != nil {
		return nil, err
	}
	var users []models.User
	if err := e.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&users).Error; err != nil {
		logger.FromContext(ctx).Warn("listing users failed", zap.Error(err))
		return []models.User{}, nil
	}
	return users, nil
}

// EnsureSuperAdmin creates the bootstrap operator account when no user holds
// email yet. It reports whether an account was created.
func (e *Engine) EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	if len(password) < minPasswordLength {
		return false, apperrors.Validation("password", "bootstrap password must be at least 6 characters")
	}

	var n int64
	if err := e.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, apperrors.Backend("bootstrap super admin", err)
	}
	if n > 0 {
		return false, nil
	}
	h, err := hash(password)
	if err != nil {
		return false, apperrors.Backend("hash password", err)
	}
	user := models.User{Name: "Operator", Email: email, PasswordHash: h, Role: models.RoleSuperAdmin}
	if err := e.db.WithContext(ctx).Create(&user).Error; err != nil {
		return false, apperrors.Backend("bootstrap super admin", err)
	}
	logger.FromContext(ctx).Info("super admin bootstrapped", zap.String("email", email))
	return true, nil
}

func (e *Engine) load(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := e.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, apperrors.Backend("load user", err)
	}
	return &user, nil
}

// managed loads userID and checks actor may manage it. Tenant members only
// ever look inside their own tenant, and a miss there is reported as a
// refusal so user ids of other tenants cannot be discovered.
func (e *Engine) managed(ctx context.Context, actor session.Actor, userID string) (*models.User, error) {
	if actor.UserID == userID {
		return nil, apperrors.Forbidden(string(access.ManageUsers), "cannot manage your own account")
	}
	if err := access.Authorize(actor, access.ManageUsers, actor.TenantID); err != nil {
		return nil, err
	}

	q := e.db.WithContext(ctx)
	if !actor.IsSuperAdmin() {
		q = q.Where("tenant_id = ?", actor.TenantID)
	}
	var target models.User
	if err := q.First(&target, "id = ?", userID).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, apperrors.Backend("load user", err)
		}
		if actor.IsSuperAdmin() {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, apperrors.Forbidden(string(access.ManageUsers), "user is not a member of your agency")
	}
	if err := access.AuthorizeUserManagement(actor, &target); err != nil {
		return nil, err
	}
	return &target, nil
}
