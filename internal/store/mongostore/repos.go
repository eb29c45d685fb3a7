package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

type userRepo struct{ c collection[models.User] }

func (r userRepo) Create(ctx context.Context, u *models.User) error { return r.c.insert(ctx, u) }
func (r userRepo) Update(ctx context.Context, u *models.User) error { return r.c.replace(ctx, u) }
func (r userRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.c.deleteByID(ctx, id)
}
func (r userRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.c.byID(ctx, id)
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.c.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

// FindByLogin matches the email case-insensitively, as emails are stored
// lowercased, and the username exactly.
func (r userRepo) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	return r.c.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": strings.ToLower(identifier)},
		bson.M{"username": identifier},
	}})
}

func (r userRepo) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	if tokenHash == "" {
		return nil, store.ErrNotFound
	}
	return r.c.findOne(ctx, bson.M{
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": bson.M{"$gt": now},
	})
}

func userFilter(f store.UserFilter) bson.M {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	return filter
}

func (r userRepo) List(ctx context.Context, f store.UserFilter) ([]models.User, error) {
	return r.c.find(ctx, userFilter(f), newestFirst("createdAt"))
}

func (r userRepo) Count(ctx context.Context, f store.UserFilter) (int64, error) {
	return r.c.count(ctx, userFilter(f))
}

type doctorRepo struct{ c collection[models.Doctor] }

func (r doctorRepo) Create(ctx context.Context, d *models.Doctor) error { return r.c.insert(ctx, d) }
func (r doctorRepo) Update(ctx context.Context, d *models.Doctor) error { return r.c.replace(ctx, d) }
func (r doctorRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.c.deleteByID(ctx, id)
}
func (r doctorRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Doctor, error) {
	return r.c.byID(ctx, id)
}

func (r doctorRepo) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Doctor, error) {
	return r.c.findOne(ctx, bson.M{"user": userID})
}

func (r doctorRepo) List(ctx context.Context, f store.DoctorFilter) ([]models.Doctor, error) {
	filter := bson.M{}
	if f.Specialization != nil {
		filter["specializations"] = *f.Specialization
	}
	if f.IDs != nil {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	return r.c.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

type patientRepo struct{ c collection[models.Patient] }

func (r patientRepo) Create(ctx context.Context, p *models.Patient) error { return r.c.insert(ctx, p) }
func (r patientRepo) Update(ctx context.Context, p *models.Patient) error { return r.c.replace(ctx, p) }
func (r patientRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.c.deleteByID(ctx, id)
}
func (r patientRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Patient, error) {
	return r.c.byID(ctx, id)
}

func (r patientRepo) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Patient, error) {
	return r.c.findOne(ctx, bson.M{"user": userID})
}

func (r patientRepo) List(ctx context.Context, f store.PatientFilter) ([]models.Patient, error) {
	filter := bson.M{}
	if f.IDs != nil {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	return r.c.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

type appointmentRepo struct{ c collection[models.Appointment] }

func (r appointmentRepo) Create(ctx context.Context, a *models.Appointment) error {
	return r.c.insert(ctx, a)
}
func (r appointmentRepo) Update(ctx context.Context, a *models.Appointment) error {
	return r.c.replace(ctx, a)
}
func (r appointmentRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.c.deleteByID(ctx, id)
}
func (r appointmentRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	return r.c.byID(ctx, id)
}

func appointmentFilter(f store.AppointmentFilter) bson.M {
	filter := bson.M{}
	if f.Doctor != nil {
		filter["doctor"] = *f.Doctor
	}
	if f.Patient != nil {
		filter["patient"] = *f.Patient
	}
	if len(f.Status) > 0 {
		filter["status"] = bson.M{"$in": f.Status}
	}
	if f.From != nil || f.To != nil {
		filter["date"] = dateRange(f.From, f.To)
	}
	return filter
}

func (r appointmentRepo) List(ctx context.Context, f store.AppointmentFilter) ([]models.Appointment, error) {
	return r.c.find(ctx, appointmentFilter(f), newestFirst("date"))
}

func (r appointmentRepo) Count(ctx context.Context, f store.AppointmentFilter) (int64, error) {
	return r.c.count(ctx, appointmentFilter(f))
}

func clinicalFilter(f store.ClinicalFilter) bson.M {
	filter := bson.M{}
	if f.Doctor != nil {
		filter["doctor"] = *f.Doctor
	}
	if f.Patient != nil {
		filter["patient"] = *f.Patient
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.RecordType != "" {
		filter["recordType"] = f.RecordType
	}
	return filter
}

type prescriptionRepo struct{ c collection[models.Prescription] }

func (r prescriptionRepo) Create(ctx context.Context, p *models.Prescription) error {
	return r.c.insert(ctx, p)
}
func (r prescriptionRepo) Update(ctx context.Context, p *models.Prescription) error {
	return r.c.replace(ctx, p)
}
func (r prescriptionRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Prescription, error) {
	return r.c.byID(ctx, id)
}
func (r prescriptionRepo) List(ctx context.Context, f store.ClinicalFilter) ([]models.Prescription, error) {
	return r.c.find(ctx, clinicalFilter(f), newestFirst("issuedAt"))
}
func (r prescriptionRepo) Count(ctx context.Context, f store.ClinicalFilter) (int64, error) {
	return r.c.count(ctx, clinicalFilter(f))
}

type recordRepo struct{ c collection[models.PatientRecord] }

func (r recordRepo) Create(ctx context.Context, rec *models.PatientRecord) error {
	return r.c.insert(ctx, rec)
}
func (r recordRepo) Update(ctx context.Context, rec *models.PatientRecord) error {
	return r.c.replace(ctx, rec)
}
func (r recordRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PatientRecord, error) {
	return r.c.byID(ctx, id)
}
func (r recordRepo) List(ctx context.Context, f store.ClinicalFilter) ([]models.PatientRecord, error) {
	return r.c.find(ctx, clinicalFilter(f), newestFirst("visitDate"))
}
func (r recordRepo) Count(ctx context.Context, f store.ClinicalFilter) (int64, error) {
	return r.c.count(ctx, clinicalFilter(f))
}

type reportRepo struct{ c collection[models.MedicalReport] }

func (r reportRepo) Create(ctx context.Context, rep *models.MedicalReport) error {
	return r.c.insert(ctx, rep)
}
func (r reportRepo) Update(ctx context.Context, rep *models.MedicalReport) error {
	return r.c.replace(ctx, rep)
}
func (r reportRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.MedicalReport, error) {
	return r.c.byID(ctx, id)
}

func (r reportRepo) Claim(ctx context.Context, id primitive.ObjectID, staleBefore, now time.Time) (*models.MedicalReport, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"status": models.ReportPending},
			bson.M{"status": models.ReportProcessing, "updatedAt": bson.M{"$lte": staleBefore}},
		},
	}
	update := bson.M{"$set": bson.M{"status": models.ReportProcessing, "updatedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rep models.MedicalReport
	err := r.c.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rep)
	if errors.Is(translate(err), store.ErrNotFound) {
		if _, err := r.c.byID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrNotClaimed
	}
	if err != nil {
		return nil, translate(err)
	}
	return &rep, nil
}

func reportFilter(f store.ReportFilter) bson.M {
	filter := bson.M{}
	if f.Patient != nil {
		filter["patient"] = *f.Patient
	}
	if f.Doctor != nil {
		filter["doctor"] = *f.Doctor
	}
	if len(f.Status) > 0 {
		filter["status"] = bson.M{"$in": f.Status}
	}
	return filter
}

func (r reportRepo) List(ctx context.Context, f store.ReportFilter) ([]models.MedicalReport, error) {
	return r.c.find(ctx, reportFilter(f), newestFirst("createdAt"))
}
func (r reportRepo) Count(ctx context.Context, f store.ReportFilter) (int64, error) {
	return r.c.count(ctx, reportFilter(f))
}

type notificationRepo struct{ c collection[models.Notification] }

func (r notificationRepo) Create(ctx context.Context, n *models.Notification) error {
	return r.c.insert(ctx, n)
}

func (r notificationRepo) ListForRecipient(ctx context.Context, recipient primitive.ObjectID, limit int) ([]models.Notification, error) {
	opts := newestFirst("createdAt")
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.c.find(ctx, bson.M{"recipient": recipient}, opts)
}

func (r notificationRepo) CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	return r.c.count(ctx, bson.M{"recipient": recipient, "read": false})
}

func (r notificationRepo) MarkRead(ctx context.Context, recipient, id primitive.ObjectID) error {
	res, err := r.c.c.UpdateOne(ctx, bson.M{"_id": id, "recipient": recipient}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r notificationRepo) MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	res, err := r.c.c.UpdateMany(ctx, bson.M{"recipient": recipient, "read": false}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, translate(err)
	}
	return res.ModifiedCount, nil
}

type specializationRepo struct{ c collection[models.Specialization] }

func (r specializationRepo) Create(ctx context.Context, sp *models.Specialization) error {
	return r.c.insert(ctx, sp)
}
func (r specializationRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.c.deleteByID(ctx, id)
}
func (r specializationRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Specialization, error) {
	return r.c.byID(ctx, id)
}
func (r specializationRepo) List(ctx context.Context) ([]models.Specialization, error) {
	return r.c.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}
