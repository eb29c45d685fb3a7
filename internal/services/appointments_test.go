package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/events"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

func statusPtr(s models.AppointmentStatus) *models.AppointmentStatus { return &s }
func strPtr(s string) *string                                         { return &s }

func TestCreateIndexesPairOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, doctorID := env.doctor(t, "house")
	patient, patientID := env.patient(t, "alice")

	first := env.book(t, patient, doctorID, primitive.NilObjectID, 1)
	second := env.book(t, patient, doctorID, primitive.NilObjectID, 2)

	assert.Equal(t, models.StatusPending, first.Status)
	require.Len(t, first.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, first.StatusHistory[0].Status)
	assert.Equal(t, patient.UserID, first.StatusHistory[0].ChangedBy)
	assert.Equal(t, patientID, first.Patient, "patient books for themselves")

	d := env.loadDoctor(t, doctorID)
	assert.ElementsMatch(t, []primitive.ObjectID{first.ID, second.ID}, d.Appointments)
	assert.Equal(t, []primitive.ObjectID{patientID}, d.PatientsUnderCare)

	p := env.loadPatient(t, patientID)
	require.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, doctorID, p.ConsultedDoctors[0].Doctor)
	assert.ElementsMatch(t, []primitive.ObjectID{first.ID, second.ID}, p.ConsultedDoctors[0].Appointments)

	n, err := env.store.Appointments().Count(ctx, store.AppointmentFilter{Doctor: &doctorID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDoctorBookingStartsScheduled(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")

	apt := env.book(t, doctor, primitive.NilObjectID, patientID, 1)
	assert.Equal(t, models.StatusScheduled, apt.Status)
	assert.Equal(t, doctorID, apt.Doctor)
	assert.Equal(t, models.DefaultAppointmentDuration, apt.Duration)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")

	cases := map[string]CreateAppointmentInput{
		"missing reason": {DoctorID: doctorID, PatientID: patientID, Date: slot(1)},
		"missing date":   {DoctorID: doctorID, PatientID: patientID, Reason: "checkup"},
		"in the past":    {DoctorID: doctorID, PatientID: patientID, Reason: "checkup", Date: slot(-100)},
		"too long":       {DoctorID: doctorID, PatientID: patientID, Reason: "checkup", Date: slot(1), Duration: 1000},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.appointments.Create(ctx, env.admin, in)
			assert.True(t, apperrors.Is(err, apperrors.KindValidation), "got %v", err)
		})
	}
}

func TestCreateUnknownDoctor(t *testing.T) {
	env := newTestEnv(t)
	patient, _ := env.patient(t, "alice")

	_, err := env.appointments.Create(context.Background(), patient, CreateAppointmentInput{
		DoctorID: primitive.NewObjectID(), Date: slot(1), Reason: "checkup",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestCreateRejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	_, doctorID := env.doctor(t, "house")
	alice, _ := env.patient(t, "alice")
	bob, _ := env.patient(t, "bob")

	env.book(t, alice, doctorID, primitive.NilObjectID, 1)
	_, err := env.appointments.Create(context.Background(), bob, CreateAppointmentInput{
		DoctorID: doctorID, Date: slot(1).Add(15 * time.Minute), Reason: "overlap",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "got %v", err)

	// Back to back is fine.
	_, err = env.appointments.Create(context.Background(), bob, CreateAppointmentInput{
		DoctorID: doctorID, Date: slot(1).Add(30 * time.Minute), Reason: "next",
	})
	assert.NoError(t, err)
}

func TestCompletingReleasesAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	patient, patientID := env.patient(t, "alice")
	apt := env.book(t, patient, doctorID, primitive.NilObjectID, 1)

	_, err := env.appointments.Confirm(ctx, doctor, apt.ID, "see you")
	require.NoError(t, err)
	done, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Status: statusPtr(models.StatusCompleted)})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, done.Status)
	require.Len(t, done.StatusHistory, 3)
	assert.Equal(t, models.StatusConfirmed, done.StatusHistory[1].Status)
	assert.Equal(t, "see you", done.StatusHistory[1].Notes)

	d := env.loadDoctor(t, doctorID)
	assert.NotContains(t, d.Appointments, apt.ID)
	assert.Contains(t, d.ExhaustedAppointments, apt.ID)
	assert.Empty(t, d.PatientsUnderCare)
	assert.Empty(t, env.loadPatient(t, patientID).ConsultedDoctors)
}

func TestReleaseKeepsPairingWhileAnotherIsOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, doctorID := env.doctor(t, "house")
	patient, patientID := env.patient(t, "alice")
	first := env.book(t, patient, doctorID, primitive.NilObjectID, 1)
	second := env.book(t, patient, doctorID, primitive.NilObjectID, 2)

	_, err := env.appointments.Cancel(ctx, patient, first.ID, "cannot make it")
	require.NoError(t, err)

	d := env.loadDoctor(t, doctorID)
	assert.Equal(t, []primitive.ObjectID{second.ID}, d.Appointments)
	assert.Equal(t, []primitive.ObjectID{first.ID}, d.ExhaustedAppointments)
	assert.Equal(t, []primitive.ObjectID{patientID}, d.PatientsUnderCare)

	p := env.loadPatient(t, patientID)
	require.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, []primitive.ObjectID{second.ID}, p.ConsultedDoctors[0].Appointments)
}

func TestNoShowStaysIndexed(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")
	apt := env.book(t, doctor, primitive.NilObjectID, patientID, 1)

	_, err := env.appointments.Update(context.Background(), doctor, apt.ID, AppointmentPatch{Status: statusPtr(models.StatusNoShow)})
	require.NoError(t, err)

	assert.Contains(t, env.loadDoctor(t, doctorID).Appointments, apt.ID)
	p := env.loadPatient(t, patientID)
	require.Len(t, p.ConsultedDoctors, 1)
	assert.Contains(t, p.ConsultedDoctors[0].Appointments, apt.ID)
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.doctor(t, "house")
	patient, _ := env.patient(t, "alice")
	apt := env.book(t, patient, doctorID, primitive.NilObjectID, 1)

	_, err := env.appointments.Update(context.Background(), doctor, apt.ID, AppointmentPatch{Status: statusPtr(models.StatusCompleted)})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "pending cannot complete directly: %v", err)

	_, err = env.appointments.Update(context.Background(), doctor, apt.ID, AppointmentPatch{Status: statusPtr("teleported")})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestRescheduleRejectsPastDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	patient, _ := env.patient(t, "alice")
	apt := env.book(t, patient, doctorID, primitive.NilObjectID, 1)

	past := time.Now().UTC().Add(-24 * time.Hour)
	_, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Date: &past})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "%v", err)

	same := apt.Date
	updated, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Date: &same, Notes: strPtr("unchanged slot")})
	require.NoError(t, err)
	assert.True(t, apt.Date.Equal(updated.Date))

	later := slot(5)
	moved, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Date: &later})
	require.NoError(t, err)
	assert.True(t, later.Equal(moved.Date))
}

func TestTerminalAppointmentOnlyTakesNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	patient, _ := env.patient(t, "alice")
	apt := env.book(t, patient, doctorID, primitive.NilObjectID, 1)
	_, err := env.appointments.Cancel(ctx, patient, apt.ID, "")
	require.NoError(t, err)

	_, err = env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Reason: strPtr("changed")})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	_, err = env.appointments.Cancel(ctx, patient, apt.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	updated, err := env.appointments.Update(ctx, doctor, apt.ID, AppointmentPatch{Notes: strPtr("patient called")})
	require.NoError(t, err)
	assert.Equal(t, "patient called", updated.Notes)
	assert.Equal(t, models.StatusCancelled, updated.Status)
}

func TestDeleteOnlyAppointmentRemovesPairing(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")
	apt := env.book(t, doctor, primitive.NilObjectID, patientID, 1)

	require.NoError(t, env.appointments.Delete(context.Background(), doctor, apt.ID))

	d := env.loadDoctor(t, doctorID)
	assert.Empty(t, d.Appointments)
	assert.Empty(t, d.ExhaustedAppointments)
	assert.Empty(t, d.PatientsUnderCare)
	assert.Empty(t, env.loadPatient(t, patientID).ConsultedDoctors)

	_, err := env.appointments.Get(context.Background(), doctor, apt.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestDeleteOneOfTwoKeepsPairing(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")
	first := env.book(t, doctor, primitive.NilObjectID, patientID, 1)
	second := env.book(t, doctor, primitive.NilObjectID, patientID, 2)

	require.NoError(t, env.appointments.Delete(context.Background(), doctor, first.ID))

	d := env.loadDoctor(t, doctorID)
	assert.Equal(t, []primitive.ObjectID{second.ID}, d.Appointments)
	assert.Equal(t, []primitive.ObjectID{patientID}, d.PatientsUnderCare)
	p := env.loadPatient(t, patientID)
	require.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, []primitive.ObjectID{second.ID}, p.ConsultedDoctors[0].Appointments)
}

func TestDeleteReleasedAppointmentClearsExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")
	apt := env.book(t, doctor, primitive.NilObjectID, patientID, 1)
	_, err := env.appointments.Cancel(ctx, doctor, apt.ID, "")
	require.NoError(t, err)

	require.NoError(t, env.appointments.Delete(ctx, env.admin, apt.ID))
	assert.Empty(t, env.loadDoctor(t, doctorID).ExhaustedAppointments)
}

func TestAppointmentAccessIsScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, doctorID := env.doctor(t, "house")
	otherDoctor, _ := env.doctor(t, "wilson")
	alice, _ := env.patient(t, "alice")
	bob, _ := env.patient(t, "bob")
	apt := env.book(t, alice, doctorID, primitive.NilObjectID, 1)
	env.book(t, bob, doctorID, primitive.NilObjectID, 2)

	_, err := env.appointments.Get(ctx, bob, apt.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	_, err = env.appointments.Confirm(ctx, otherDoctor, apt.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	_, err = env.appointments.Update(ctx, alice, apt.ID, AppointmentPatch{Notes: strPtr("x")})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	assert.True(t, apperrors.Is(env.appointments.Delete(ctx, alice, apt.ID), apperrors.KindForbidden))

	mine, err := env.appointments.List(ctx, alice, AppointmentQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, apt.ID, mine[0].ID)

	none, err := env.appointments.List(ctx, otherDoctor, AppointmentQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := env.appointments.List(ctx, env.admin, AppointmentQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all[0].Date.After(all[1].Date), "newest first")
}

func TestFailedStepRollsBackCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, doctorID := env.doctor(t, "house")
	_, patientID := env.patient(t, "alice")

	broken := NewAppointmentService(patientWritesFail{env.store}, env.notify, events.Nop{}, zerolog.Nop())
	_, err := broken.Create(ctx, env.admin, CreateAppointmentInput{
		DoctorID: doctorID, PatientID: patientID, Date: slot(1), Reason: "checkup",
	})
	require.Error(t, err)

	n, err := env.store.Appointments().Count(ctx, store.AppointmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	d := env.loadDoctor(t, doctorID)
	assert.Empty(t, d.Appointments)
	assert.Empty(t, d.PatientsUnderCare)
}

func TestAppointmentNotifiesCounterparty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	patient, _ := env.patient(t, "alice")
	apt := env.book(t, patient, doctorID, primitive.NilObjectID, 1)

	inbox, err := env.notify.List(ctx, doctor.UserID)
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, models.NotifyAppointmentCreated, inbox.Notifications[0].Type)
	assert.Equal(t, apt.ID, *inbox.Notifications[0].Appointment)
	assert.EqualValues(t, 1, inbox.Unread)

	own, err := env.notify.List(ctx, patient.UserID)
	require.NoError(t, err)
	assert.Empty(t, own.Notifications)

	_, err = env.appointments.Confirm(ctx, doctor, apt.ID, "")
	require.NoError(t, err)
	own, err = env.notify.List(ctx, patient.UserID)
	require.NoError(t, err)
	require.Len(t, own.Notifications, 1)
	assert.Equal(t, models.NotifyAppointmentConfirmed, own.Notifications[0].Type)

	require.Len(t, env.events.events, 2)
	assert.Equal(t, models.NotifyAppointmentCreated, env.events.events[0].Type)
	assert.Equal(t, string(models.StatusConfirmed), env.events.events[1].Status)
}

func TestAdminActionsNotifyBothParties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	patient, patientID := env.patient(t, "alice")
	env.book(t, env.admin, doctorID, patientID, 1)

	for _, who := range []Actor{doctor, patient} {
		inbox, err := env.notify.List(ctx, who.UserID)
		require.NoError(t, err)
		assert.Len(t, inbox.Notifications, 1)
	}
}
