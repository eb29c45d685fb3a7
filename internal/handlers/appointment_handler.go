package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/services"
)

type CreateAppointmentRequest struct {
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	Date      time.Time `json:"date" binding:"required"`
	Duration  int       `json:"duration" binding:"omitempty,min=1,max=480"`
	Reason    string    `json:"reason" binding:"required"`
	Notes     string    `json:"notes"`
}

// CreateAppointment books an appointment. Patients pass doctorId, doctors
// pass patientId and admins pass both.
func (h *Handler) CreateAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !h.bind(c, &req) {
		return
	}

	in := services.CreateAppointmentInput{
		Date:     req.Date,
		Duration: req.Duration,
		Reason:   req.Reason,
		Notes:    req.Notes,
	}
	if !actor.IsDoctor() {
		doctorID, err := parseID(req.DoctorID, "doctorId")
		if err == nil && doctorID == nil {
			err = apperrors.Validation("doctorId is required")
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		in.DoctorID = *doctorID
	}
	if !actor.IsPatient() {
		patientID, err := parseID(req.PatientID, "patientId")
		if err == nil && patientID == nil {
			err = apperrors.Validation("patientId is required")
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		in.PatientID = *patientID
	}

	apt, err := h.Appointments.Create(c.Request.Context(), actor, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, apt)
}

// ListAppointments supports status (comma separated), startDate and endDate
// filters. Admins may also filter by doctor and patient profile id.
func (h *Handler) ListAppointments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	q := services.AppointmentQuery{
		Status: lo.Map(queryList(c, "status"), func(s string, _ int) models.AppointmentStatus {
			return models.AppointmentStatus(s)
		}),
	}
	var err error
	if q.From, q.To, err = queryRange(c); err != nil {
		h.fail(c, err)
		return
	}
	if q.Doctor, err = parseID(c.Query("doctor"), "doctor"); err != nil {
		h.fail(c, err)
		return
	}
	if q.Patient, err = parseID(c.Query("patient"), "patient"); err != nil {
		h.fail(c, err)
		return
	}

	list, err := h.Appointments.List(c.Request.Context(), actor, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	apt, err := h.Appointments.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

type UpdateAppointmentRequest struct {
	Date       *time.Time `json:"date"`
	Duration   *int       `json:"duration" binding:"omitempty,min=1,max=480"`
	Reason     *string    `json:"reason"`
	Notes      *string    `json:"notes"`
	Status     *string    `json:"status"`
	StatusNote string     `json:"statusNote"`
}

// UpdateAppointment patches an appointment. A status of completed or
// cancelled releases it from both profiles.
func (h *Handler) UpdateAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateAppointmentRequest
	if !h.bind(c, &req) {
		return
	}

	patch := services.AppointmentPatch{
		Date:       req.Date,
		Duration:   req.Duration,
		Reason:     req.Reason,
		Notes:      req.Notes,
		StatusNote: req.StatusNote,
	}
	if req.Status != nil {
		st := models.AppointmentStatus(*req.Status)
		patch.Status = &st
	}

	apt, err := h.Appointments.Update(c.Request.Context(), actor, id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.bindOptional(c, &req) {
		return
	}

	apt, err := h.Appointments.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *Handler) ConfirmAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if !h.bindOptional(c, &req) {
		return
	}

	apt, err := h.Appointments.Confirm(c.Request.Context(), actor, id, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Appointments.Delete(c.Request.Context(), actor, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appointment deleted"})
}
