package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careconnect/careconnect-api/internal/services"
)

type RequestReportRequest struct {
	PatientID string     `json:"patientId"`
	DoctorID  string     `json:"doctorId"`
	Type      string     `json:"reportType" binding:"omitempty,oneof=summary appointments prescriptions medical-records comprehensive doctor-activity"`
	Title     string     `json:"title"`
	From      *time.Time `json:"startDate"`
	To        *time.Time `json:"endDate"`
}

// RequestReport stores a pending report and answers 202; the document is
// generated by the report worker.
func (h *Handler) RequestReport(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req RequestReportRequest
	if !h.bindOptional(c, &req) {
		return
	}

	in := services.ReportRequest{Type: req.Type, Title: req.Title, From: req.From, To: req.To}
	var err error
	if in.PatientID, err = parseID(req.PatientID, "patientId"); err != nil {
		h.fail(c, err)
		return
	}
	if in.DoctorID, err = parseID(req.DoctorID, "doctorId"); err != nil {
		h.fail(c, err)
		return
	}

	report, err := h.Reports.Request(c.Request.Context(), actor, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, report)
}

func (h *Handler) ListReports(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	status, err := reportStatuses(queryList(c, "status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Reports.List(c.Request.Context(), actor, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetReport(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.Reports.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
