package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/middleware"
	"github.com/careconnect/careconnect-api/internal/services"
	"github.com/careconnect/careconnect-api/internal/store"
)

// Handler holds everything the route handlers need. Services are built once
// in cmd/api and shared across requests.
type Handler struct {
	Store         store.Store
	Accounts      *services.AccountService
	Appointments  *services.AppointmentService
	Clinical      *services.ClinicalService
	Reports       *services.ReportService
	Notifications *services.NotificationService
	Dashboard     *services.DashboardService

	Log zerolog.Logger
	// Production hides raw error details from responses.
	Production bool
}

// fail writes err as a JSON error response with the status of its kind.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := kind.Status()

	message := "Internal server error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && kind != apperrors.KindInternal {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).
			Str("kind", kind.String()).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
	}
	_ = c.Error(err)

	body := gin.H{"message": message}
	if !h.Production {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// bind decodes the JSON body into dst and answers 400 when it does not
// validate.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperrors.Wrap(apperrors.KindValidation, "Invalid request body", err))
		return false
	}
	return true
}

// actor reads the authenticated user set by middleware.AuthMiddleware.
func (h *Handler) actor(c *gin.Context) (services.Actor, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middleware.UserIDKey))
	if err != nil {
		h.fail(c, apperrors.Unauthorized("Invalid token subject"))
		return services.Actor{}, false
	}
	return services.Actor{UserID: id, Role: c.GetString(middleware.UserRoleKey)}, true
}

func (h *Handler) pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		h.fail(c, apperrors.Validation("invalid "+name))
		return primitive.NilObjectID, false
	}
	return id, true
}

// parseID parses an optional hex id, returning nil for an empty string.
func parseID(raw, field string) (*primitive.ObjectID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, apperrors.Validation("invalid " + field)
	}
	return &id, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperrors.Validation("invalid " + name + ", use RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

// queryList splits a comma separated query parameter.
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, v := range strings.Split(c.Query(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// queryRange reads startDate and endDate. A plain endDate covers the whole
// day.
func queryRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = queryTime(c, "startDate"); err != nil {
		return nil, nil, err
	}
	if to, err = queryTime(c, "endDate"); err != nil {
		return nil, nil, err
	}
	if to != nil && len(c.Query("endDate")) == len(time.DateOnly) {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	return from, to, nil
}

// bindOptional is bind for endpoints whose body may be omitted.
func (h *Handler) bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bind(c, dst)
}
