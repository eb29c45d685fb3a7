package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

func TestUniqueEmailAndUsername(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users().Create(ctx, &models.User{Email: "a@test", Username: "alice"}))

	err := s.Users().Create(ctx, &models.User{Email: "A@TEST", Username: "other"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	err = s.Users().Create(ctx, &models.User{Email: "b@test", Username: "Alice"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := &models.Doctor{User: primitive.NewObjectID()}
	require.NoError(t, s.Doctors().Create(ctx, d))

	got, err := s.Doctors().FindByID(ctx, d.ID)
	require.NoError(t, err)
	got.Bio = "changed without saving"

	again, err := s.Doctors().FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Bio)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	kept := &models.Specialization{Name: "Cardiology", CreatedAt: time.Now()}
	require.NoError(t, s.Specializations().Create(ctx, kept))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Specializations().Create(ctx, &models.Specialization{Name: "Neurology"}))
		require.NoError(t, s.Specializations().Delete(ctx, kept.ID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.Specializations().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Cardiology", list[0].Name)
}

func TestRollbackKeepsWritesOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	recipient := primitive.NewObjectID()
	report := &models.MedicalReport{Status: models.ReportPending, Title: "before"}
	require.NoError(t, s.Reports().Create(ctx, report))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(txCtx context.Context) error {
		changed := *report
		changed.Title = "inside"
		require.NoError(t, s.Reports().Update(txCtx, &changed))
		require.NoError(t, s.Notifications().Create(ctx, &models.Notification{Recipient: recipient, Message: "outside"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Reports().FindByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Title)

	n, err := s.Notifications().CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestClaimReport(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	report := &models.MedicalReport{Status: models.ReportPending}
	require.NoError(t, s.Reports().Create(ctx, report))

	claimed, err := s.Reports().Claim(ctx, report.ID, now.Add(-time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, models.ReportProcessing, claimed.Status)

	_, err = s.Reports().Claim(ctx, report.ID, now.Add(-time.Minute), now)
	assert.ErrorIs(t, err, store.ErrNotClaimed)

	later := now.Add(time.Hour)
	_, err = s.Reports().Claim(ctx, report.ID, later.Add(-time.Minute), later)
	require.NoError(t, err, "stale claims are taken over")

	claimed.Status = models.ReportCompleted
	require.NoError(t, s.Reports().Update(ctx, claimed))
	_, err = s.Reports().Claim(ctx, report.ID, later, later)
	assert.ErrorIs(t, err, store.ErrNotClaimed)
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		inner := s.WithTransaction(ctx, func(ctx context.Context) error {
			return s.Specializations().Create(ctx, &models.Specialization{Name: "Dermatology"})
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.Specializations().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFindMissing(t *testing.T) {
	_, err := New().Appointments().FindByID(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
