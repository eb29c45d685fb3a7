// Package memstore is an in-memory store.Store. Transactions are serialized
// and undo their own writes on error.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

type txKey struct{}

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users           *table[models.User]
	doctors         *table[models.Doctor]
	patients        *table[models.Patient]
	appointments    *table[models.Appointment]
	prescriptions   *table[models.Prescription]
	records         *table[models.PatientRecord]
	reports         *table[models.MedicalReport]
	notifications   *table[models.Notification]
	specializations *table[models.Specialization]
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.users = newTable(s, func(u *models.User) *primitive.ObjectID { return &u.ID })
	s.users.conflicts = func(a, b *models.User) bool {
		return strings.EqualFold(a.Email, b.Email) || (a.Username != "" && strings.EqualFold(a.Username, b.Username))
	}
	s.doctors = newTable(s, func(d *models.Doctor) *primitive.ObjectID { return &d.ID })
	s.doctors.conflicts = func(a, b *models.Doctor) bool { return a.User == b.User }
	s.patients = newTable(s, func(p *models.Patient) *primitive.ObjectID { return &p.ID })
	s.patients.conflicts = func(a, b *models.Patient) bool { return a.User == b.User }
	s.appointments = newTable(s, func(a *models.Appointment) *primitive.ObjectID { return &a.ID })
	s.prescriptions = newTable(s, func(p *models.Prescription) *primitive.ObjectID { return &p.ID })
	s.records = newTable(s, func(r *models.PatientRecord) *primitive.ObjectID { return &r.ID })
	s.reports = newTable(s, func(r *models.MedicalReport) *primitive.ObjectID { return &r.ID })
	s.notifications = newTable(s, func(n *models.Notification) *primitive.ObjectID { return &n.ID })
	s.specializations = newTable(s, func(sp *models.Specialization) *primitive.ObjectID { return &sp.ID })
	s.specializations.conflicts = func(a, b *models.Specialization) bool { return strings.EqualFold(a.Name, b.Name) }
	return s
}

func (s *Store) Users() store.UserRepository                     { return userRepo{s.users} }
func (s *Store) Doctors() store.DoctorRepository                 { return doctorRepo{s.doctors} }
func (s *Store) Patients() store.PatientRepository               { return patientRepo{s.patients} }
func (s *Store) Appointments() store.AppointmentRepository       { return appointmentRepo{s.appointments} }
func (s *Store) Prescriptions() store.PrescriptionRepository     { return prescriptionRepo{s.prescriptions} }
func (s *Store) Records() store.RecordRepository                 { return recordRepo{s.records} }
func (s *Store) Reports() store.ReportRepository                 { return reportRepo{s.reports} }
func (s *Store) Notifications() store.NotificationRepository     { return notificationRepo{s.notifications} }
func (s *Store) Specializations() store.SpecializationRepository { return specializationRepo{s.specializations} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// journal records how to undo each write made inside a transaction.
type journal struct {
	undo []func()
}

// WithTransaction serializes units of work. When fn fails, the writes it made
// are undone in reverse order; writes made outside the transaction survive.
// A nested call joins the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func matchID(want *primitive.ObjectID, got primitive.ObjectID) bool {
	return want == nil || *want == got
}

func matchOptionalID(want *primitive.ObjectID, got *primitive.ObjectID) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

// users

type userRepo struct{ t *table[models.User] }

func (r userRepo) Create(ctx context.Context, u *models.User) error { return r.t.insert(ctx, u) }
func (r userRepo) Update(ctx context.Context, u *models.User) error { return r.t.put(ctx, u) }
func (r userRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.t.remove(ctx, id)
}
func (r userRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.t.get(id)
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.t.first(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r userRepo) FindByLogin(_ context.Context, identifier string) (*models.User, error) {
	return r.t.first(func(u *models.User) bool {
		return strings.EqualFold(u.Email, identifier) || u.Username == identifier
	})
}

func (r userRepo) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return r.t.first(func(u *models.User) bool {
		return tokenHash != "" && u.ResetPasswordToken == tokenHash &&
			u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
	})
}

func (r userRepo) List(_ context.Context, f store.UserFilter) ([]models.User, error) {
	return r.t.find(func(u *models.User) bool { return f.Role == "" || u.Role == f.Role },
		func(a, b *models.User) bool { return a.CreatedAt.After(b.CreatedAt) })
}

func (r userRepo) Count(ctx context.Context, f store.UserFilter) (int64, error) {
	users, err := r.List(ctx, f)
	return int64(len(users)), err
}

// doctors

type doctorRepo struct{ t *table[models.Doctor] }

func (r doctorRepo) Create(ctx context.Context, d *models.Doctor) error { return r.t.insert(ctx, d) }
func (r doctorRepo) Update(ctx context.Context, d *models.Doctor) error { return r.t.put(ctx, d) }
func (r doctorRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.t.remove(ctx, id)
}
func (r doctorRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Doctor, error) {
	return r.t.get(id)
}

func (r doctorRepo) FindByUser(_ context.Context, userID primitive.ObjectID) (*models.Doctor, error) {
	return r.t.first(func(d *models.Doctor) bool { return d.User == userID })
}

func (r doctorRepo) List(_ context.Context, f store.DoctorFilter) ([]models.Doctor, error) {
	return r.t.find(func(d *models.Doctor) bool {
		if f.Specialization != nil && !lo.Contains(d.Specializations, *f.Specialization) {
			return false
		}
		return f.IDs == nil || lo.Contains(f.IDs, d.ID)
	}, func(a, b *models.Doctor) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

// patients

type patientRepo struct{ t *table[models.Patient] }

func (r patientRepo) Create(ctx context.Context, p *models.Patient) error { return r.t.insert(ctx, p) }
func (r patientRepo) Update(ctx context.Context, p *models.Patient) error { return r.t.put(ctx, p) }
func (r patientRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.t.remove(ctx, id)
}
func (r patientRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Patient, error) {
	return r.t.get(id)
}

func (r patientRepo) FindByUser(_ context.Context, userID primitive.ObjectID) (*models.Patient, error) {
	return r.t.first(func(p *models.Patient) bool { return p.User == userID })
}

func (r patientRepo) List(_ context.Context, f store.PatientFilter) ([]models.Patient, error) {
	return r.t.find(func(p *models.Patient) bool { return f.IDs == nil || lo.Contains(f.IDs, p.ID) },
		func(a, b *models.Patient) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

// appointments

type appointmentRepo struct{ t *table[models.Appointment] }

func (r appointmentRepo) Create(ctx context.Context, a *models.Appointment) error {
	return r.t.insert(ctx, a)
}
func (r appointmentRepo) Update(ctx context.Context, a *models.Appointment) error {
	return r.t.put(ctx, a)
}
func (r appointmentRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.t.remove(ctx, id)
}
func (r appointmentRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	return r.t.get(id)
}

func (r appointmentRepo) List(_ context.Context, f store.AppointmentFilter) ([]models.Appointment, error) {
	return r.t.find(func(a *models.Appointment) bool {
		if !matchID(f.Doctor, a.Doctor) || !matchID(f.Patient, a.Patient) {
			return false
		}
		if len(f.Status) > 0 && !lo.Contains(f.Status, a.Status) {
			return false
		}
		if f.From != nil && a.Date.Before(*f.From) {
			return false
		}
		return f.To == nil || !a.Date.After(*f.To)
	}, func(a, b *models.Appointment) bool { return a.Date.After(b.Date) })
}

func (r appointmentRepo) Count(ctx context.Context, f store.AppointmentFilter) (int64, error) {
	list, err := r.List(ctx, f)
	return int64(len(list)), err
}

// prescriptions

type prescriptionRepo struct{ t *table[models.Prescription] }

func (r prescriptionRepo) Create(ctx context.Context, p *models.Prescription) error {
	return r.t.insert(ctx, p)
}
func (r prescriptionRepo) Update(ctx context.Context, p *models.Prescription) error {
	return r.t.put(ctx, p)
}
func (r prescriptionRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Prescription, error) {
	return r.t.get(id)
}

func (r prescriptionRepo) List(_ context.Context, f store.ClinicalFilter) ([]models.Prescription, error) {
	return r.t.find(func(p *models.Prescription) bool {
		return matchID(f.Doctor, p.Doctor) && matchID(f.Patient, p.Patient) && (f.Status == "" || p.Status == f.Status)
	}, func(a, b *models.Prescription) bool { return a.IssuedAt.After(b.IssuedAt) })
}

func (r prescriptionRepo) Count(ctx context.Context, f store.ClinicalFilter) (int64, error) {
	list, err := r.List(ctx, f)
	return int64(len(list)), err
}

// patient records

type recordRepo struct{ t *table[models.PatientRecord] }

func (r recordRepo) Create(ctx context.Context, rec *models.PatientRecord) error {
	return r.t.insert(ctx, rec)
}
func (r recordRepo) Update(ctx context.Context, rec *models.PatientRecord) error {
	return r.t.put(ctx, rec)
}
func (r recordRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.PatientRecord, error) {
	return r.t.get(id)
}

func (r recordRepo) List(_ context.Context, f store.ClinicalFilter) ([]models.PatientRecord, error) {
	return r.t.find(func(rec *models.PatientRecord) bool {
		return matchID(f.Doctor, rec.Doctor) && matchID(f.Patient, rec.Patient) && (f.RecordType == "" || rec.RecordType == f.RecordType)
	}, func(a, b *models.PatientRecord) bool { return a.VisitDate.After(b.VisitDate) })
}

func (r recordRepo) Count(ctx context.Context, f store.ClinicalFilter) (int64, error) {
	list, err := r.List(ctx, f)
	return int64(len(list)), err
}

// reports

type reportRepo struct{ t *table[models.MedicalReport] }

func (r reportRepo) Create(ctx context.Context, rep *models.MedicalReport) error {
	return r.t.insert(ctx, rep)
}
func (r reportRepo) Update(ctx context.Context, rep *models.MedicalReport) error {
	return r.t.put(ctx, rep)
}
func (r reportRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.MedicalReport, error) {
	return r.t.get(id)
}

func (r reportRepo) Claim(ctx context.Context, id primitive.ObjectID, staleBefore, now time.Time) (*models.MedicalReport, error) {
	return r.t.update(ctx, id, func(rep *models.MedicalReport) bool {
		switch {
		case rep.Status == models.ReportPending:
		case rep.Status == models.ReportProcessing && !rep.UpdatedAt.After(staleBefore):
		default:
			return false
		}
		rep.Status = models.ReportProcessing
		rep.UpdatedAt = now
		return true
	})
}

func (r reportRepo) List(_ context.Context, f store.ReportFilter) ([]models.MedicalReport, error) {
	return r.t.find(func(rep *models.MedicalReport) bool {
		if !matchOptionalID(f.Patient, rep.Patient) || !matchOptionalID(f.Doctor, rep.Doctor) {
			return false
		}
		return len(f.Status) == 0 || lo.Contains(f.Status, rep.Status)
	}, func(a, b *models.MedicalReport) bool { return a.CreatedAt.After(b.CreatedAt) })
}

func (r reportRepo) Count(ctx context.Context, f store.ReportFilter) (int64, error) {
	list, err := r.List(ctx, f)
	return int64(len(list)), err
}

// notifications

type notificationRepo struct{ t *table[models.Notification] }

func (r notificationRepo) Create(ctx context.Context, n *models.Notification) error {
	return r.t.insert(ctx, n)
}

func (r notificationRepo) ListForRecipient(_ context.Context, recipient primitive.ObjectID, limit int) ([]models.Notification, error) {
	list, err := r.t.find(func(n *models.Notification) bool { return n.Recipient == recipient },
		func(a, b *models.Notification) bool { return a.CreatedAt.After(b.CreatedAt) })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r notificationRepo) CountUnread(_ context.Context, recipient primitive.ObjectID) (int64, error) {
	list, err := r.t.find(func(n *models.Notification) bool { return n.Recipient == recipient && !n.Read }, nil)
	return int64(len(list)), err
}

func (r notificationRepo) MarkRead(ctx context.Context, recipient, id primitive.ObjectID) error {
	n, err := r.t.get(id)
	if err != nil {
		return err
	}
	if n.Recipient != recipient {
		return store.ErrNotFound
	}
	n.Read = true
	return r.t.put(ctx, n)
}

func (r notificationRepo) MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	unread, err := r.t.find(func(n *models.Notification) bool { return n.Recipient == recipient && !n.Read }, nil)
	if err != nil {
		return 0, err
	}
	for i := range unread {
		unread[i].Read = true
		if err := r.t.put(ctx, &unread[i]); err != nil {
			return 0, err
		}
	}
	return int64(len(unread)), nil
}

// specializations

type specializationRepo struct{ t *table[models.Specialization] }

func (r specializationRepo) Create(ctx context.Context, sp *models.Specialization) error {
	return r.t.insert(ctx, sp)
}
func (r specializationRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.t.remove(ctx, id)
}
func (r specializationRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Specialization, error) {
	return r.t.get(id)
}

func (r specializationRepo) List(_ context.Context) ([]models.Specialization, error) {
	return r.t.find(nil, func(a, b *models.Specialization) bool { return a.Name < b.Name })
}
