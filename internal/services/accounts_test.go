package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
	"github.com/careconnect/careconnect-api/internal/utils"
)

func TestRegisterCreatesProfile(t *testing.T) {
	env := newTestEnv(t)
	_, doc := env.register(t, models.RoleDoctor, "house")
	require.NotNil(t, doc.Doctor)
	assert.Nil(t, doc.Patient)
	assert.Equal(t, doc.User.ID, doc.Doctor.User)

	_, pat := env.register(t, models.RolePatient, "alice")
	require.NotNil(t, pat.Patient)
	assert.Equal(t, pat.User.ID, pat.Patient.User)
	assert.NotEqual(t, "password123", pat.User.Password)
}

func TestRegisterRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, models.RolePatient, "alice")

	_, err := env.accounts.Register(ctx, RegisterInput{Username: "other", Email: "ALICE@careconnect.test", Password: "password123"}, false)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "email is case-insensitive: %v", err)

	_, err = env.accounts.Register(ctx, RegisterInput{Username: "alice", Email: "new@careconnect.test", Password: "password123"}, false)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	_, err = env.accounts.Register(ctx, RegisterInput{Username: "short", Email: "short@careconnect.test", Password: "1234"}, false)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = env.accounts.Register(ctx, RegisterInput{Username: "boss", Email: "boss@careconnect.test", Password: "password123", Role: models.RoleAdmin}, false)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	users, err := env.accounts.ListUsers(ctx, models.RolePatient)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, acc := env.register(t, models.RolePatient, "alice")

	for _, id := range []string{"alice", "alice@careconnect.test", " Alice@CareConnect.TEST "} {
		res, err := env.accounts.Login(ctx, id, "password123")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, acc.User.ID, res.User.ID)

		claims, err := env.accounts.jwt.ValidateJWT(res.Token)
		require.NoError(t, err)
		assert.Equal(t, acc.User.ID.Hex(), claims.UserID)
		assert.Equal(t, models.RolePatient, claims.Role)
	}

	_, err := env.accounts.Login(ctx, "alice", "wrong-password")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
	_, err = env.accounts.Login(ctx, "nobody", "password123")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
	_, err = env.accounts.Login(ctx, "ALICE", "password123")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized), "usernames match exactly")
}

func TestUpdateMeChangesPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.register(t, models.RolePatient, "alice")

	_, err := env.accounts.UpdateMe(ctx, alice, UserPatch{CurrentPassword: "nope", NewPassword: "new-password"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))

	u, err := env.accounts.UpdateMe(ctx, alice, UserPatch{FullName: strPtr("Alice Liddell"), CurrentPassword: "password123", NewPassword: "new-password"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", u.FullName)

	_, err = env.accounts.Login(ctx, "alice", "new-password")
	assert.NoError(t, err)
}

// resetToken pulls the token out of the last mailed reset link.
func resetToken(t *testing.T, env *testEnv) string {
	t.Helper()
	env.mail.mu.Lock()
	defer env.mail.mu.Unlock()
	require.NotEmpty(t, env.mail.sent)
	body := env.mail.sent[len(env.mail.sent)-1].Body
	i := strings.Index(body, "/reset-password/")
	require.GreaterOrEqual(t, i, 0)
	return strings.Fields(body[i+len("/reset-password/"):])[0]
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, acc := env.register(t, models.RolePatient, "alice")

	require.NoError(t, env.accounts.RequestReset(ctx, "Alice@CareConnect.test"))
	token := resetToken(t, env)
	assert.Equal(t, acc.User.Email, env.mail.sent[0].To)

	stored, err := env.store.Users().FindByID(ctx, acc.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.ResetPasswordToken, "only the hash is stored")

	require.NoError(t, env.accounts.VerifyResetToken(ctx, token))
	require.NoError(t, env.accounts.ResetPassword(ctx, token, "brand-new-pass"))

	err = env.accounts.ResetPassword(ctx, token, "another-pass")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "tokens are single use")
	assert.True(t, apperrors.Is(env.accounts.VerifyResetToken(ctx, token), apperrors.KindValidation))

	_, err = env.accounts.Login(ctx, "alice", "brand-new-pass")
	assert.NoError(t, err)
}

func TestPasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, models.RolePatient, "alice")

	require.NoError(t, env.accounts.RequestReset(ctx, "alice@careconnect.test"))
	token := resetToken(t, env)

	env.accounts.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.True(t, apperrors.Is(env.accounts.VerifyResetToken(ctx, token), apperrors.KindValidation))
	assert.True(t, apperrors.Is(env.accounts.ResetPassword(ctx, token, "brand-new-pass"), apperrors.KindValidation))
}

func TestPasswordResetHidesUnknownEmails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, models.RolePatient, "alice")

	assert.NoError(t, env.accounts.RequestReset(ctx, "ghost@careconnect.test"))
	assert.Empty(t, env.mail.sent)

	env.mail.err = assert.AnError
	assert.NoError(t, env.accounts.RequestReset(ctx, "alice@careconnect.test"), "mail failures are not reported")
}

func TestDeleteDoctorCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	_, wilsonID := env.doctor(t, "wilson")
	alice, aliceID := env.patient(t, "alice")
	env.book(t, alice, doctorID, primitive.NilObjectID, 1)
	env.book(t, alice, doctorID, primitive.NilObjectID, 2)
	kept := env.book(t, alice, wilsonID, primitive.NilObjectID, 3)

	require.NoError(t, env.accounts.DeleteUser(ctx, env.admin, doctor.UserID))

	_, err := env.store.Doctors().FindByID(ctx, doctorID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.accounts.GetUser(ctx, doctor.UserID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	p := env.loadPatient(t, aliceID)
	require.Len(t, p.ConsultedDoctors, 1)
	assert.Equal(t, wilsonID, p.ConsultedDoctors[0].Doctor)
	assert.Equal(t, []primitive.ObjectID{kept.ID}, p.ConsultedDoctors[0].Appointments)

	left, err := env.store.Appointments().Count(ctx, store.AppointmentFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, left)
}

func TestDeleteUserAnnouncesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	alice, _ := env.patient(t, "alice")
	env.book(t, alice, doctorID, primitive.NilObjectID, 1)
	env.book(t, alice, doctorID, primitive.NilObjectID, 2)

	require.NoError(t, env.accounts.DeleteUser(ctx, env.admin, doctor.UserID))

	deleted := 0
	for _, evt := range env.events.events {
		if evt.Type == models.NotifyAppointmentDeleted {
			deleted++
		}
	}
	assert.Equal(t, 2, deleted)

	inbox, err := env.notify.List(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Contains(t, notificationTypes(inbox), models.NotifyAppointmentDeleted)

	gone, err := env.notify.List(ctx, doctor.UserID)
	require.NoError(t, err)
	assert.NotContains(t, notificationTypes(gone), models.NotifyAppointmentDeleted)
}

func TestFailedDeleteUserAnnouncesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	alice, _ := env.patient(t, "alice")
	apt := env.book(t, alice, doctorID, primitive.NilObjectID, 1)

	broken := userDeletesFail{env.store}
	published := &recordingPublisher{}
	appointments := NewAppointmentService(broken, env.notify, published, zerolog.Nop())
	accounts := NewAccountService(broken, utils.NewJWTManager("test-secret", time.Hour), env.mail, appointments,
		AccountOptions{BcryptCost: bcrypt.MinCost, ResetTTL: time.Hour}, zerolog.Nop())

	require.Error(t, accounts.DeleteUser(ctx, env.admin, doctor.UserID))
	assert.Empty(t, published.events)

	inbox, err := env.notify.List(ctx, alice.UserID)
	require.NoError(t, err)
	assert.NotContains(t, notificationTypes(inbox), models.NotifyAppointmentDeleted)

	_, err = env.store.Appointments().FindByID(ctx, apt.ID)
	assert.NoError(t, err, "appointment deletion rolled back")
	assert.Contains(t, env.loadDoctor(t, doctorID).Appointments, apt.ID)
}

func TestDeleteSelfRefused(t *testing.T) {
	env := newTestEnv(t)
	err := env.accounts.DeleteUser(context.Background(), env.admin, env.admin.UserID)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestSpecializations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")

	sp, err := env.accounts.CreateSpecialization(ctx, "Diagnostics", "Puzzles")
	require.NoError(t, err)
	_, err = env.accounts.CreateSpecialization(ctx, "diagnostics", "")
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	ids := []primitive.ObjectID{sp.ID, sp.ID}
	d, err := env.accounts.UpdateDoctorProfile(ctx, doctor, DoctorProfilePatch{Specializations: &ids})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{sp.ID}, d.Specializations)

	listed, err := env.accounts.ListDoctors(ctx, &sp.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "house", listed[0].FullName)

	require.NoError(t, env.accounts.DeleteSpecialization(ctx, sp.ID))
	assert.Empty(t, env.loadDoctor(t, doctorID).Specializations)

	bogus := []primitive.ObjectID{primitive.NewObjectID()}
	_, err = env.accounts.UpdateDoctorProfile(ctx, doctor, DoctorProfilePatch{Specializations: &bogus})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestRelationshipListings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, doctorID := env.doctor(t, "house")
	alice, _ := env.patient(t, "alice")
	env.book(t, alice, doctorID, primitive.NilObjectID, 1)

	docs, err := env.accounts.ConsultedDoctors(ctx, alice)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doctorID, docs[0].ID)

	pats, err := env.accounts.PatientsUnderCare(ctx, doctor)
	require.NoError(t, err)
	require.Len(t, pats, 1)
	assert.Equal(t, "alice@careconnect.test", pats[0].Email)
}
