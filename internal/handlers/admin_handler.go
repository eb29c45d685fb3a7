package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
)

// AdminRegisterUser creates an account of any role, including admin.
func (h *Handler) AdminRegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if !h.bind(c, &req) {
		return
	}
	account, err := h.Accounts.Register(c.Request.Context(), req.input(), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) ListUsers(c *gin.Context) {
	role := c.Query("role")
	if role != "" && !models.ValidRole(role) {
		h.fail(c, apperrors.Validation("unknown role "+role))
		return
	}
	users, err := h.Accounts.ListUsers(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := h.pathID(c, "userId")
	if !ok {
		return
	}
	account, err := h.Accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteUser removes a user, its profile and every appointment of that
// profile.
func (h *Handler) DeleteUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "userId")
	if !ok {
		return
	}
	if err := h.Accounts.DeleteUser(c.Request.Context(), actor, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.Dashboard.Admin(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListSpecializations(c *gin.Context) {
	list, err := h.Accounts.ListSpecializations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateSpecialization(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if !h.bind(c, &req) {
		return
	}
	sp, err := h.Accounts.CreateSpecialization(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

func (h *Handler) DeleteSpecialization(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Accounts.DeleteSpecialization(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Specialization deleted"})
}

func reportStatuses(raw []string) ([]models.ReportStatus, error) {
	out := make([]models.ReportStatus, 0, len(raw))
	for _, s := range raw {
		st := models.ReportStatus(s)
		if !lo.Contains([]models.ReportStatus{models.ReportPending, models.ReportProcessing, models.ReportCompleted, models.ReportFailed}, st) {
			return nil, apperrors.Validation("unknown report status " + s)
		}
		out = append(out, st)
	}
	return out, nil
}
