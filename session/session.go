// Package session carries the authenticated actor through a request.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voucherpos/models"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the identity every engine operation is performed on behalf of.
type Actor struct {
	UserID   string
	TenantID string
	Name     string
	Role     models.Role
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == models.RoleSuperAdmin
}

// ActorFromUser builds the actor for a stored user.
func ActorFromUser(u *models.User) Actor {
	return Actor{UserID: u.ID, TenantID: u.TenantID, Name: u.Name, Role: u.Role}
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// Claims is the JWT payload of a session token.
type Claims struct {
	UserID   string      `json:"user_id"`
	TenantID string      `json:"tenant_id,omitempty"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates session tokens.
type Manager struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	return &Manager{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
}

// WithNow injects a deterministic clock for tests.
func (m *Manager) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Manager) Issue(a Actor) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   a.UserID,
		TenantID: a.TenantID,
		Name:     a.Name,
		Role:     a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

func (m *Manager) Validate(tokenString string) (Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return Actor{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if !claims.Role.Valid() {
		return Actor{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return Actor{UserID: claims.UserID, TenantID: claims.TenantID, Name: claims.Name, Role: claims.Role}, nil
}
