package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
)

var amoxicillin = []models.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", Duration: "7 days"}}

func TestIssuePrescriptionRequiresCareRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, _ := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")

	_, err := env.clinical.IssuePrescription(ctx, doctor, PrescriptionInput{PatientID: patientID, Medications: amoxicillin})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden), "got %v", err)
}

func TestIssuePrescription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	alice, patientID := env.patient(t, "alice")
	apt := env.book(t, alice, doctorID, primitive.NilObjectID, 1)

	_, err := env.clinical.IssuePrescription(ctx, doctor, PrescriptionInput{PatientID: patientID})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	rx, err := env.clinical.IssuePrescription(ctx, doctor, PrescriptionInput{
		PatientID:     patientID,
		AppointmentID: &apt.ID,
		Medications:   amoxicillin,
		Diagnosis:     "Sinusitis",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionActive, rx.Status)
	assert.Contains(t, env.loadDoctor(t, doctorID).Prescriptions, rx.ID)
	assert.Contains(t, env.loadPatient(t, patientID).Prescriptions, rx.ID)

	inbox, err := env.notify.List(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Contains(t, notificationTypes(inbox), models.NotifyPrescriptionIssued)

	mine, err := env.clinical.ListPrescriptions(ctx, alice, ClinicalQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, rx.ID, mine[0].ID)
}

func TestPrescriptionAllowedAfterRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, _ := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")
	apt := env.book(t, doctor, primitive.NilObjectID, patientID, 1)
	_, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Status: statusPtr(models.StatusCompleted)})
	require.NoError(t, err)

	_, err = env.clinical.IssuePrescription(ctx, doctor, PrescriptionInput{PatientID: patientID, Medications: amoxicillin})
	assert.NoError(t, err, "a past appointment is enough to prescribe")
}

func TestUpdatePrescriptionOnlyByIssuer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, _ := env.doctor(t, "house")
	other, _ := env.doctor(t, "wilson")
	_, patientID := env.patient(t, "alice")
	env.book(t, doctor, primitive.NilObjectID, patientID, 1)
	rx, err := env.clinical.IssuePrescription(ctx, doctor, PrescriptionInput{PatientID: patientID, Medications: amoxicillin})
	require.NoError(t, err)

	_, err = env.clinical.UpdatePrescription(ctx, other, rx.ID, PrescriptionPatch{Notes: strPtr("mine now")})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = env.clinical.UpdatePrescription(ctx, doctor, rx.ID, PrescriptionPatch{Status: strPtr("lost")})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	updated, err := env.clinical.UpdatePrescription(ctx, doctor, rx.ID, PrescriptionPatch{Status: strPtr(models.PrescriptionCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionCompleted, updated.Status)
}

func TestRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	alice, patientID := env.patient(t, "alice")
	env.book(t, doctor, primitive.NilObjectID, patientID, 1)

	_, err := env.clinical.AddRecord(ctx, doctor, RecordInput{PatientID: patientID})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	rec, err := env.clinical.AddRecord(ctx, doctor, RecordInput{PatientID: patientID, Title: "Initial visit", Diagnosis: "Flu"})
	require.NoError(t, err)
	assert.Equal(t, "consultation", rec.RecordType)
	assert.False(t, rec.VisitDate.IsZero())
	assert.Contains(t, env.loadDoctor(t, doctorID).PatientRecords, rec.ID)
	assert.Contains(t, env.loadPatient(t, patientID).Records, rec.ID)

	_, err = env.clinical.UpdateRecord(ctx, alice, rec.ID, RecordPatch{Title: strPtr("edited")})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	updated, err := env.clinical.UpdateRecord(ctx, doctor, rec.ID, RecordPatch{Treatment: strPtr("Rest")})
	require.NoError(t, err)
	assert.Equal(t, "Rest", updated.Treatment)

	list, err := env.clinical.ListRecords(ctx, alice, ClinicalQuery{RecordType: "consultation"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = env.clinical.ListRecords(ctx, alice, ClinicalQuery{RecordType: "imaging"})
	require.NoError(t, err)
	assert.Empty(t, list)
}
