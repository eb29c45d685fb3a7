package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/services"
)

func (h *Handler) clinicalQuery(c *gin.Context) (services.ClinicalQuery, bool) {
	patient, err := parseID(c.Query("patient"), "patient")
	if err != nil {
		h.fail(c, err)
		return services.ClinicalQuery{}, false
	}
	return services.ClinicalQuery{
		Patient:    patient,
		Status:     c.Query("status"),
		RecordType: c.Query("recordType"),
	}, true
}

type IssuePrescriptionRequest struct {
	PatientID     string              `json:"patientId" binding:"required"`
	AppointmentID string              `json:"appointmentId"`
	Medications   []models.Medication `json:"medications" binding:"required,min=1"`
	Diagnosis     string              `json:"diagnosis"`
	Notes         string              `json:"notes"`
	ValidUntil    *time.Time          `json:"validUntil"`
}

func (h *Handler) IssuePrescription(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req IssuePrescriptionRequest
	if !h.bind(c, &req) {
		return
	}
	patientID, err := parseID(req.PatientID, "patientId")
	if err != nil {
		h.fail(c, err)
		return
	}
	appointmentID, err := parseID(req.AppointmentID, "appointmentId")
	if err != nil {
		h.fail(c, err)
		return
	}

	rx, err := h.Clinical.IssuePrescription(c.Request.Context(), actor, services.PrescriptionInput{
		PatientID:     *patientID,
		AppointmentID: appointmentID,
		Medications:   req.Medications,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
		ValidUntil:    req.ValidUntil,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rx)
}

func (h *Handler) UpdatePrescription(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Medications *[]models.Medication `json:"medications"`
		Diagnosis   *string              `json:"diagnosis"`
		Notes       *string              `json:"notes"`
		Status      *string              `json:"status" binding:"omitempty,oneof=active completed cancelled"`
		ValidUntil  *time.Time           `json:"validUntil"`
	}
	if !h.bind(c, &req) {
		return
	}

	rx, err := h.Clinical.UpdatePrescription(c.Request.Context(), actor, id, services.PrescriptionPatch{
		Medications: req.Medications,
		Diagnosis:   req.Diagnosis,
		Notes:       req.Notes,
		Status:      req.Status,
		ValidUntil:  req.ValidUntil,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rx)
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	q, ok := h.clinicalQuery(c)
	if !ok {
		return
	}
	list, err := h.Clinical.ListPrescriptions(c.Request.Context(), actor, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type AddRecordRequest struct {
	PatientID   string              `json:"patientId" binding:"required"`
	RecordType  string              `json:"recordType"`
	Title       string              `json:"title" binding:"required"`
	Description string              `json:"description"`
	Diagnosis   string              `json:"diagnosis"`
	Treatment   string              `json:"treatment"`
	Attachments []models.Attachment `json:"attachments"`
	VisitDate   time.Time           `json:"visitDate"`
}

func (h *Handler) AddRecord(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req AddRecordRequest
	if !h.bind(c, &req) {
		return
	}
	patientID, err := parseID(req.PatientID, "patientId")
	if err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.Clinical.AddRecord(c.Request.Context(), actor, services.RecordInput{
		PatientID:   *patientID,
		RecordType:  req.RecordType,
		Title:       req.Title,
		Description: req.Description,
		Diagnosis:   req.Diagnosis,
		Treatment:   req.Treatment,
		Attachments: req.Attachments,
		VisitDate:   req.VisitDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		RecordType  *string              `json:"recordType"`
		Title       *string              `json:"title"`
		Description *string              `json:"description"`
		Diagnosis   *string              `json:"diagnosis"`
		Treatment   *string              `json:"treatment"`
		Attachments *[]models.Attachment `json:"attachments"`
		VisitDate   *time.Time           `json:"visitDate"`
	}
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.Clinical.UpdateRecord(c.Request.Context(), actor, id, services.RecordPatch{
		RecordType:  req.RecordType,
		Title:       req.Title,
		Description: req.Description,
		Diagnosis:   req.Diagnosis,
		Treatment:   req.Treatment,
		Attachments: req.Attachments,
		VisitDate:   req.VisitDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	q, ok := h.clinicalQuery(c)
	if !ok {
		return
	}
	list, err := h.Clinical.ListRecords(c.Request.Context(), actor, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
