package handlers

import (
	"errors"
	"net/http"

	"voucherpos/accounts"
	"voucherpos/models"

	"github.com/gin-gonic/gin"
)

type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func SignIn(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SignIn")
	defer span.End()

	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{"email": req.Email})

	res, err := Accounts.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	if res == nil {
		err := errors.New("invalid email or password")
		span.SetError(err.Error(), "")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

type VerifyPinRequest struct {
	UserID string `json:"user_id"`
	Pin    string `json:"pin" binding:"required"`
}

func VerifyPin(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "VerifyPin")
	defer span.End()

	var req VerifyPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := currentActor(c)
	if req.UserID == "" {
		req.UserID = actor.UserID
	}

	ok, err := Accounts.VerifyPin(ctx, actor, req.UserID, req.Pin)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

type SetPinRequest struct {
	Pin string `json:"pin" binding:"required,len=4,numeric"`
}

func SetPin(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "SetPin")
	defer span.End()

	var req SetPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Accounts.SetPin(ctx, currentActor(c), req.Pin); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "PIN updated successfully"})
}

type CreateUserRequest struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=6"`
	Role     models.Role `json:"role" binding:"required"`
}

func CreateUser(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "CreateUser")
	defer span.End()

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID := c.Param("id")
	span.SetAttributes(map[string]interface{}{"tenant_id": tenantID, "email": req.Email, "role": string(req.Role)})

	user, err := Accounts.AddUser(ctx, currentActor(c), tenantID, accounts.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

func ListUsers(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "ListUsers")
	defer span.End()

	users, err := Accounts.ListUsers(ctx, currentActor(c), c.Param("id"))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type UpdateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func UpdateUserRole(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "UpdateUserRole")
	defer span.End()

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.Param("userId")
	span.SetAttributes(map[string]interface{}{"user_id": userID, "role": string(req.Role)})

	if err := Accounts.UpdateUserRole(ctx, currentActor(c), userID, req.Role); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role updated successfully"})
}

type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

func UpdateUserPassword(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "UpdateUserPassword")
	defer span.End()

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Accounts.UpdatePassword(ctx, currentActor(c), c.Param("userId"), req.Password); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func DeleteUser(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "DeleteUser")
	defer span.End()

	userID := c.Param("userId")
	span.SetAttributes(map[string]interface{}{"user_id": userID})

	if err := Accounts.DeleteUser(ctx, currentActor(c), userID); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// CreateOperator adds a SUPER_ADMIN account that belongs to no tenant.
func CreateOperator(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "CreateOperator")
	defer span.End()

	var req CreateUserRequest
	req.Role = models.RoleSuperAdmin
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{"email": req.Email})

	user, err := Accounts.AddUser(ctx, currentActor(c), "", accounts.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.RoleSuperAdmin,
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}
