package services

import (
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
)

// linkAppointment indexes an open appointment on both profiles. Repeated
// calls for the same appointment or pair add nothing twice.
func linkAppointment(d *models.Doctor, p *models.Patient, aptID primitive.ObjectID) {
	if !lo.Contains(d.Appointments, aptID) {
		d.Appointments = append(d.Appointments, aptID)
	}
	if !lo.Contains(d.PatientsUnderCare, p.ID) {
		d.PatientsUnderCare = append(d.PatientsUnderCare, p.ID)
	}

	entry := p.ConsultedEntry(d.ID)
	if entry == nil {
		p.ConsultedDoctors = append(p.ConsultedDoctors, models.ConsultedDoctor{
			Doctor:       d.ID,
			Appointments: []primitive.ObjectID{aptID},
		})
		return
	}
	if !lo.Contains(entry.Appointments, aptID) {
		entry.Appointments = append(entry.Appointments, aptID)
	}
}

// releaseAppointment drops an appointment from the open indexes of both
// profiles. With archive set the id moves to the doctor's exhausted list,
// otherwise it is removed from there too (the appointment is being deleted).
// When no other open appointment remains between the pair, the pairing is
// removed on both sides; the return value reports whether that happened.
func releaseAppointment(d *models.Doctor, p *models.Patient, aptID primitive.ObjectID, archive bool) bool {
	d.Appointments = lo.Without(d.Appointments, aptID)
	if archive {
		if !lo.Contains(d.ExhaustedAppointments, aptID) {
			d.ExhaustedAppointments = append(d.ExhaustedAppointments, aptID)
		}
	} else {
		d.ExhaustedAppointments = lo.Without(d.ExhaustedAppointments, aptID)
	}

	if entry := p.ConsultedEntry(d.ID); entry != nil {
		entry.Appointments = lo.Without(entry.Appointments, aptID)
		if len(entry.Appointments) > 0 {
			return false
		}
	}

	p.ConsultedDoctors = lo.Reject(p.ConsultedDoctors, func(c models.ConsultedDoctor, _ int) bool {
		return c.Doctor == d.ID
	})
	d.PatientsUnderCare = lo.Without(d.PatientsUnderCare, p.ID)
	return true
}

// hasRelationship reports whether the doctor currently has the patient under care.
func hasRelationship(d *models.Doctor, patientID primitive.ObjectID) bool {
	return lo.Contains(d.PatientsUnderCare, patientID)
}
