package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
)

func TestLinkAppointmentIsIdempotent(t *testing.T) {
	d := &models.Doctor{ID: primitive.NewObjectID()}
	p := &models.Patient{ID: primitive.NewObjectID()}
	apt := primitive.NewObjectID()

	linkAppointment(d, p, apt)
	linkAppointment(d, p, apt)

	assert.Equal(t, []primitive.ObjectID{apt}, d.Appointments)
	assert.Equal(t, []primitive.ObjectID{p.ID}, d.PatientsUnderCare)
	assert.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, []primitive.ObjectID{apt}, p.ConsultedDoctors[0].Appointments)
}

func TestReleaseAppointment(t *testing.T) {
	d := &models.Doctor{ID: primitive.NewObjectID()}
	p := &models.Patient{ID: primitive.NewObjectID()}
	first, second := primitive.NewObjectID(), primitive.NewObjectID()
	linkAppointment(d, p, first)
	linkAppointment(d, p, second)

	assert.False(t, releaseAppointment(d, p, first, true), "second appointment keeps the pair")
	assert.Equal(t, []primitive.ObjectID{second}, d.Appointments)
	assert.Equal(t, []primitive.ObjectID{first}, d.ExhaustedAppointments)
	assert.True(t, hasRelationship(d, p.ID))

	assert.True(t, releaseAppointment(d, p, second, true))
	assert.Empty(t, d.Appointments)
	assert.Empty(t, d.PatientsUnderCare)
	assert.Empty(t, p.ConsultedDoctors)
	assert.Equal(t, []primitive.ObjectID{first, second}, d.ExhaustedAppointments)

	// Deleting a released appointment only touches the exhausted list.
	releaseAppointment(d, p, first, false)
	assert.Equal(t, []primitive.ObjectID{second}, d.ExhaustedAppointments)
}

func TestReleaseOtherDoctorLeavesEntries(t *testing.T) {
	house := &models.Doctor{ID: primitive.NewObjectID()}
	wilson := &models.Doctor{ID: primitive.NewObjectID()}
	p := &models.Patient{ID: primitive.NewObjectID()}
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	linkAppointment(house, p, a)
	linkAppointment(wilson, p, b)

	releaseAppointment(house, p, a, true)
	assert.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, wilson.ID, p.ConsultedDoctors[0].Doctor)
}
