package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careconnect/careconnect-api/internal/services"
)

type RegisterUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=admin doctor patient"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (r RegisterUserRequest) input() services.RegisterInput {
	return services.RegisterInput{
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
		Role:     r.Role,
		FullName: r.FullName,
		Phone:    r.Phone,
		Address:  r.Address,
	}
}

// RegisterUser creates a patient or doctor account.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if !h.bind(c, &req) {
		return
	}

	account, err := h.Accounts.Register(c.Request.Context(), req.input(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// Login accepts an email or a username as identifier.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}
	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}

	result, err := h.Accounts.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCurrentUser returns the authenticated user with its role profile.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	account, err := h.Accounts.Me(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		FullName        *string `json:"fullName"`
		Phone           *string `json:"phone"`
		Address         *string `json:"address"`
		CurrentPassword string  `json:"currentPassword"`
		NewPassword     string  `json:"newPassword" binding:"omitempty,min=8"`
	}
	if !h.bind(c, &req) {
		return
	}

	user, err := h.Accounts.UpdateMe(c.Request.Context(), actor, services.UserPatch{
		FullName:        req.FullName,
		Phone:           req.Phone,
		Address:         req.Address,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

const resetRequestedMessage = "If an account exists for that email, a reset link has been sent"

// RequestPasswordReset answers the same way whether or not the email is known.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !h.bind(c, &req) {
		return
	}
	if err := h.Accounts.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": resetRequestedMessage})
}

func (h *Handler) VerifyResetToken(c *gin.Context) {
	if err := h.Accounts.VerifyResetToken(c.Request.Context(), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token is valid", "valid": true})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if !h.bind(c, &req) {
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}
