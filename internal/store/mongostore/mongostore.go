// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

const (
	colUsers           = "users"
	colDoctors         = "doctors"
	colPatients        = "patients"
	colAppointments    = "appointments"
	colPrescriptions   = "prescriptions"
	colRecords         = "patientrecords"
	colReports         = "medicalreports"
	colNotifications   = "notifications"
	colSpecializations = "specializations"
)

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

var _ store.Store = (*Store)(nil)

// Connect dials MongoDB and verifies the connection. With transactions
// enabled the deployment must be a replica set or sharded cluster.
func Connect(ctx context.Context, uri, database string, transactions bool) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return New(client, database, transactions), nil
}

func New(client *mongo.Client, database string, transactions bool) *Store {
	return &Store{client: client, db: client.Database(database), transactions: transactions}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// WithTransaction runs fn in a multi-document transaction. Calls made while
// a session is already bound to ctx join it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colDoctors: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "specializations", Value: 1}}},
		},
		colPatients: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAppointments: {
			{Keys: bson.D{{Key: "doctor", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colPrescriptions: {
			{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "issuedAt", Value: -1}}},
			{Keys: bson.D{{Key: "doctor", Value: 1}, {Key: "issuedAt", Value: -1}}},
		},
		colRecords: {
			{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "visitDate", Value: -1}}},
		},
		colReports: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colSpecializations: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, idx := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Users() store.UserRepository {
	return userRepo{collection[models.User]{s.db.Collection(colUsers), func(u *models.User) *primitive.ObjectID { return &u.ID }}}
}

func (s *Store) Doctors() store.DoctorRepository {
	return doctorRepo{collection[models.Doctor]{s.db.Collection(colDoctors), func(d *models.Doctor) *primitive.ObjectID { return &d.ID }}}
}

func (s *Store) Patients() store.PatientRepository {
	return patientRepo{collection[models.Patient]{s.db.Collection(colPatients), func(p *models.Patient) *primitive.ObjectID { return &p.ID }}}
}

func (s *Store) Appointments() store.AppointmentRepository {
	return appointmentRepo{collection[models.Appointment]{s.db.Collection(colAppointments), func(a *models.Appointment) *primitive.ObjectID { return &a.ID }}}
}

func (s *Store) Prescriptions() store.PrescriptionRepository {
	return prescriptionRepo{collection[models.Prescription]{s.db.Collection(colPrescriptions), func(p *models.Prescription) *primitive.ObjectID { return &p.ID }}}
}

func (s *Store) Records() store.RecordRepository {
	return recordRepo{collection[models.PatientRecord]{s.db.Collection(colRecords), func(r *models.PatientRecord) *primitive.ObjectID { return &r.ID }}}
}

func (s *Store) Reports() store.ReportRepository {
	return reportRepo{collection[models.MedicalReport]{s.db.Collection(colReports), func(r *models.MedicalReport) *primitive.ObjectID { return &r.ID }}}
}

func (s *Store) Notifications() store.NotificationRepository {
	return notificationRepo{collection[models.Notification]{s.db.Collection(colNotifications), func(n *models.Notification) *primitive.ObjectID { return &n.ID }}}
}

func (s *Store) Specializations() store.SpecializationRepository {
	return specializationRepo{collection[models.Specialization]{s.db.Collection(colSpecializations), func(sp *models.Specialization) *primitive.ObjectID { return &sp.ID }}}
}

func dateRange(from, to *time.Time) bson.M {
	r := bson.M{}
	if from != nil {
		r["$gte"] = *from
	}
	if to != nil {
		r["$lte"] = *to
	}
	return r
}
