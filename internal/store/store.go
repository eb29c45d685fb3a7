// Package store defines the persistence contract for CareConnect documents.
// mongostore implements it on MongoDB, memstore in memory for tests and
// local development.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrDuplicate  = errors.New("duplicate key")
	// ErrNotClaimed means a conditional update found the document in a state
	// it may not move from.
	ErrNotClaimed = errors.New("document not claimable")
)

// Store groups the collection repositories and the transaction boundary.
type Store interface {
	Users() UserRepository
	Doctors() DoctorRepository
	Patients() PatientRepository
	Appointments() AppointmentRepository
	Prescriptions() PrescriptionRepository
	Records() RecordRepository
	Reports() ReportRepository
	Notifications() NotificationRepository
	Specializations() SpecializationRepository

	// WithTransaction runs fn as one unit of work. Repository calls made with
	// the ctx passed to fn either all commit or none do.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}

type UserFilter struct {
	Role string
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// FindByLogin matches identifier against the email, ignoring case, or the
	// username.
	FindByLogin(ctx context.Context, identifier string) (*models.User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f UserFilter) ([]models.User, error)
	Count(ctx context.Context, f UserFilter) (int64, error)
}

type DoctorFilter struct {
	Specialization *primitive.ObjectID
	IDs            []primitive.ObjectID
}

type DoctorRepository interface {
	Create(ctx context.Context, d *models.Doctor) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Doctor, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Doctor, error)
	Update(ctx context.Context, d *models.Doctor) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f DoctorFilter) ([]models.Doctor, error)
}

type PatientFilter struct {
	IDs []primitive.ObjectID
}

type PatientRepository interface {
	Create(ctx context.Context, p *models.Patient) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Patient, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Patient, error)
	Update(ctx context.Context, p *models.Patient) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f PatientFilter) ([]models.Patient, error)
}

type AppointmentFilter struct {
	Doctor  *primitive.ObjectID
	Patient *primitive.ObjectID
	Status  []models.AppointmentStatus
	From    *time.Time
	To      *time.Time
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *models.Appointment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error)
	Update(ctx context.Context, a *models.Appointment) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// List returns matches sorted by date, newest first.
	List(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error)
	Count(ctx context.Context, f AppointmentFilter) (int64, error)
}

type ClinicalFilter struct {
	Doctor     *primitive.ObjectID
	Patient    *primitive.ObjectID
	Status     string // prescriptions only
	RecordType string // records only
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *models.Prescription) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Prescription, error)
	Update(ctx context.Context, p *models.Prescription) error
	// List returns matches sorted by issue date, newest first.
	List(ctx context.Context, f ClinicalFilter) ([]models.Prescription, error)
	Count(ctx context.Context, f ClinicalFilter) (int64, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *models.PatientRecord) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PatientRecord, error)
	Update(ctx context.Context, r *models.PatientRecord) error
	// List returns matches sorted by visit date, newest first.
	List(ctx context.Context, f ClinicalFilter) ([]models.PatientRecord, error)
	Count(ctx context.Context, f ClinicalFilter) (int64, error)
}

type ReportFilter struct {
	Patient *primitive.ObjectID
	Doctor  *primitive.ObjectID
	Status  []models.ReportStatus
}

type ReportRepository interface {
	Create(ctx context.Context, r *models.MedicalReport) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.MedicalReport, error)
	Update(ctx context.Context, r *models.MedicalReport) error
	// Claim atomically moves a pending report, or a processing one last
	// touched at or before staleBefore, to processing stamped with now.
	// It returns ErrNotClaimed when the report is in any other state.
	Claim(ctx context.Context, id primitive.ObjectID, staleBefore, now time.Time) (*models.MedicalReport, error)
	// List returns matches sorted by creation time, newest first.
	List(ctx context.Context, f ReportFilter) ([]models.MedicalReport, error)
	Count(ctx context.Context, f ReportFilter) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	// ListForRecipient returns at most limit notifications, newest first.
	ListForRecipient(ctx context.Context, recipient primitive.ObjectID, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, recipient, id primitive.ObjectID) error
	MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error)
}

type SpecializationRepository interface {
	Create(ctx context.Context, s *models.Specialization) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Specialization, error)
	List(ctx context.Context) ([]models.Specialization, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}
