package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/services"
)

func (h *Handler) GetDoctorProfile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	doctor, err := h.Accounts.DoctorProfile(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doctor)
}

func (h *Handler) UpdateDoctorProfile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		Specializations *[]string `json:"specializations"`
		Qualifications  *[]string `json:"qualifications"`
		Experience      *int      `json:"experience" binding:"omitempty,min=0"`
		ConsultationFee *float64  `json:"consultationFee" binding:"omitempty,min=0"`
		Bio             *string   `json:"bio"`
	}
	if !h.bind(c, &req) {
		return
	}

	patch := services.DoctorProfilePatch{
		Qualifications:  req.Qualifications,
		Experience:      req.Experience,
		ConsultationFee: req.ConsultationFee,
		Bio:             req.Bio,
	}
	if req.Specializations != nil {
		ids := make([]primitive.ObjectID, 0, len(*req.Specializations))
		for _, raw := range *req.Specializations {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				h.fail(c, apperrors.Validation("invalid specialization id "+raw))
				return
			}
			ids = append(ids, id)
		}
		patch.Specializations = &ids
	}

	doctor, err := h.Accounts.UpdateDoctorProfile(c.Request.Context(), actor, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doctor)
}

func (h *Handler) GetPatientProfile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	patient, err := h.Accounts.PatientProfile(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (h *Handler) UpdatePatientProfile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		DateOfBirth      *time.Time               `json:"dateOfBirth"`
		Gender           *string                  `json:"gender" binding:"omitempty,oneof=male female other"`
		BloodGroup       *string                  `json:"bloodGroup"`
		Allergies        *[]string                `json:"allergies"`
		EmergencyContact *models.EmergencyContact `json:"emergencyContact"`
	}
	if !h.bind(c, &req) {
		return
	}

	patient, err := h.Accounts.UpdatePatientProfile(c.Request.Context(), actor, services.PatientProfilePatch{
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		BloodGroup:       req.BloodGroup,
		Allergies:        req.Allergies,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

// ListDoctors lets patients browse doctors, optionally by specialization.
func (h *Handler) ListDoctors(c *gin.Context) {
	spec, err := parseID(c.Query("specialization"), "specialization")
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Accounts.ListDoctors(c.Request.Context(), spec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ConsultedDoctors(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.Accounts.ConsultedDoctors(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) PatientsUnderCare(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.Accounts.PatientsUnderCare(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DoctorDashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	dash, err := h.Dashboard.Doctor(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (h *Handler) PatientDashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	dash, err := h.Dashboard.Patient(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}
