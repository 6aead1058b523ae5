package handlers

import (
	"net/http"
	"strings"

	"voucherpos/apperrors"
	"voucherpos/logger"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actorKey = "actor"

// RequestID tags every request with an id, reusing the caller's X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// AuthMiddleware resolves the bearer token into the acting user as currently
// stored.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			c.Abort()
			return
		}

		actor, err := Accounts.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !apperrors.IsAuthorization(err) {
				respondError(c, err)
				c.Abort()
				return
			}
			logger.FromContext(c.Request.Context()).Info("rejected session token", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		ctx := session.WithActor(c.Request.Context(), actor)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(
			zap.String("user_id", actor.UserID),
			zap.String("role", string(actor.Role))))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireModule rejects the request unless the tenant in the :id path
// parameter has module enabled for the caller.
func RequireModule(module string) gin.HandlerFunc {
	return RequireModuleForRole(module, module)
}

// RequireModuleForRole gates sellers on sellerModule and everyone else on
// module.
func RequireModuleForRole(module, sellerModule string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := currentActor(c)
		key := module
		if actor.Role == models.RoleSeller {
			key = sellerModule
		}
		if err := Licensing.CheckModule(c.Request.Context(), actor, c.Param("id"), key); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) session.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(session.Actor); ok {
			return actor
		}
	}
	return session.Actor{}
}
