package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

const defaultRecordType = "consultation"

// ClinicalService manages prescriptions and patient records. Both are
// authored by doctors and referenced from the doctor and patient profiles.
type ClinicalService struct {
	store    store.Store
	notifier *NotificationService
	log      zerolog.Logger
	now      func() time.Time
}

func NewClinicalService(st store.Store, notifier *NotificationService, log zerolog.Logger) *ClinicalService {
	return &ClinicalService{store: st, notifier: notifier, log: log, now: time.Now}
}

type PrescriptionInput struct {
	PatientID     primitive.ObjectID
	AppointmentID *primitive.ObjectID
	Medications   []models.Medication
	Diagnosis     string
	Notes         string
	ValidUntil    *time.Time
}

type PrescriptionPatch struct {
	Medications *[]models.Medication
	Diagnosis   *string
	Notes       *string
	Status      *string
	ValidUntil  *time.Time
}

type ClinicalQuery struct {
	Patient    *primitive.ObjectID
	Status     string
	RecordType string
}

func validMedications(meds []models.Medication) error {
	if len(meds) == 0 {
		return apperrors.Validation("at least one medication is required")
	}
	for i, m := range meds {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Dosage) == "" || strings.TrimSpace(m.Frequency) == "" {
			return apperrors.Validation(fmt.Sprintf("medication %d needs name, dosage and frequency", i+1))
		}
	}
	return nil
}

func validPrescriptionStatus(s string) bool {
	return lo.Contains([]string{models.PrescriptionActive, models.PrescriptionCompleted, models.PrescriptionCancelled}, s)
}

// authorFor resolves the doctor profile of actor and the patient it wants to
// write about, and checks the doctor treats that patient.
func (s *ClinicalService) authorFor(ctx context.Context, actor Actor, patientID primitive.ObjectID) (*models.Doctor, *models.Patient, error) {
	if !actor.IsDoctor() {
		return nil, nil, apperrors.Forbidden("only doctors can author clinical documents")
	}
	doctor, err := doctorByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	patient, err := s.store.Patients().FindByID(ctx, patientID)
	if err != nil {
		return nil, nil, lookupErr(err, "patient")
	}
	if hasRelationship(doctor, patient.ID) {
		return doctor, patient, nil
	}
	n, err := s.store.Appointments().Count(ctx, store.AppointmentFilter{Doctor: &doctor.ID, Patient: &patient.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("check care relationship: %w", err)
	}
	if n == 0 {
		return nil, nil, apperrors.Forbidden("patient is not under your care")
	}
	return doctor, patient, nil
}

func (s *ClinicalService) IssuePrescription(ctx context.Context, actor Actor, in PrescriptionInput) (*models.Prescription, error) {
	if err := validMedications(in.Medications); err != nil {
		return nil, err
	}

	var rx *models.Prescription
	var patient *models.Patient
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		doctor, p, err := s.authorFor(ctx, actor, in.PatientID)
		if err != nil {
			return err
		}
		patient = p
		if in.AppointmentID != nil {
			apt, err := s.store.Appointments().FindByID(ctx, *in.AppointmentID)
			if err != nil {
				return lookupErr(err, "appointment")
			}
			if apt.Doctor != doctor.ID || apt.Patient != patient.ID {
				return apperrors.Validation("appointment does not belong to this doctor and patient")
			}
		}

		now := s.now().UTC()
		rx = &models.Prescription{
			Doctor:      doctor.ID,
			Patient:     patient.ID,
			Appointment: in.AppointmentID,
			Medications: in.Medications,
			Diagnosis:   in.Diagnosis,
			Notes:       in.Notes,
			Status:      models.PrescriptionActive,
			IssuedAt:    now,
			ValidUntil:  in.ValidUntil,
			UpdatedAt:   now,
		}
		if err := s.store.Prescriptions().Create(ctx, rx); err != nil {
			return fmt.Errorf("create prescription: %w", err)
		}

		doctor.Prescriptions = append(doctor.Prescriptions, rx.ID)
		doctor.UpdatedAt = now
		patient.Prescriptions = append(patient.Prescriptions, rx.ID)
		patient.UpdatedAt = now
		if err := s.store.Doctors().Update(ctx, doctor); err != nil {
			return fmt.Errorf("update doctor: %w", err)
		}
		if err := s.store.Patients().Update(ctx, patient); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, patient.User, models.NotifyPrescriptionIssued,
		fmt.Sprintf("A new prescription with %d medication(s) was issued.", len(rx.Medications)), nil)
	return rx, nil
}

func (s *ClinicalService) UpdatePrescription(ctx context.Context, actor Actor, id primitive.ObjectID, patch PrescriptionPatch) (*models.Prescription, error) {
	rx, err := s.store.Prescriptions().FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "prescription")
	}
	if err := s.checkAuthor(ctx, actor, rx.Doctor); err != nil {
		return nil, err
	}

	if patch.Medications != nil {
		if err := validMedications(*patch.Medications); err != nil {
			return nil, err
		}
		rx.Medications = *patch.Medications
	}
	if patch.Status != nil {
		if !validPrescriptionStatus(*patch.Status) {
			return nil, apperrors.Validation(fmt.Sprintf("unknown prescription status %q", *patch.Status))
		}
		rx.Status = *patch.Status
	}
	if patch.Diagnosis != nil {
		rx.Diagnosis = *patch.Diagnosis
	}
	if patch.Notes != nil {
		rx.Notes = *patch.Notes
	}
	if patch.ValidUntil != nil {
		rx.ValidUntil = patch.ValidUntil
	}
	rx.UpdatedAt = s.now().UTC()

	if err := s.store.Prescriptions().Update(ctx, rx); err != nil {
		return nil, fmt.Errorf("update prescription: %w", err)
	}
	return rx, nil
}

func (s *ClinicalService) ListPrescriptions(ctx context.Context, actor Actor, q ClinicalQuery) ([]models.Prescription, error) {
	f, err := s.scope(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	f.Status = q.Status
	list, err := s.store.Prescriptions().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	if list == nil {
		list = []models.Prescription{}
	}
	return list, nil
}

type RecordInput struct {
	PatientID   primitive.ObjectID
	RecordType  string
	Title       string
	Description string
	Diagnosis   string
	Treatment   string
	Attachments []models.Attachment
	VisitDate   time.Time
}

type RecordPatch struct {
	RecordType  *string
	Title       *string
	Description *string
	Diagnosis   *string
	Treatment   *string
	Attachments *[]models.Attachment
	VisitDate   *time.Time
}

func (s *ClinicalService) AddRecord(ctx context.Context, actor Actor, in RecordInput) (*models.PatientRecord, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if in.RecordType == "" {
		in.RecordType = defaultRecordType
	}

	var rec *models.PatientRecord
	var patient *models.Patient
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		doctor, p, err := s.authorFor(ctx, actor, in.PatientID)
		if err != nil {
			return err
		}
		patient = p

		now := s.now().UTC()
		visit := in.VisitDate
		if visit.IsZero() {
			visit = now
		}
		rec = &models.PatientRecord{
			Patient:     patient.ID,
			Doctor:      doctor.ID,
			RecordType:  in.RecordType,
			Title:       in.Title,
			Description: in.Description,
			Diagnosis:   in.Diagnosis,
			Treatment:   in.Treatment,
			Attachments: lo.Ternary(in.Attachments == nil, []models.Attachment{}, in.Attachments),
			VisitDate:   visit.UTC(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.Records().Create(ctx, rec); err != nil {
			return fmt.Errorf("create record: %w", err)
		}

		doctor.PatientRecords = append(doctor.PatientRecords, rec.ID)
		doctor.UpdatedAt = now
		patient.Records = append(patient.Records, rec.ID)
		patient.UpdatedAt = now
		if err := s.store.Doctors().Update(ctx, doctor); err != nil {
			return fmt.Errorf("update doctor: %w", err)
		}
		if err := s.store.Patients().Update(ctx, patient); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, patient.User, models.NotifyRecordAdded,
		fmt.Sprintf("A new %s record was added: %s.", rec.RecordType, rec.Title), nil)
	return rec, nil
}

func (s *ClinicalService) UpdateRecord(ctx context.Context, actor Actor, id primitive.ObjectID, patch RecordPatch) (*models.PatientRecord, error) {
	rec, err := s.store.Records().FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "record")
	}
	if err := s.checkAuthor(ctx, actor, rec.Doctor); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.Validation("title cannot be empty")
		}
		rec.Title = title
	}
	if patch.RecordType != nil && *patch.RecordType != "" {
		rec.RecordType = *patch.RecordType
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Diagnosis != nil {
		rec.Diagnosis = *patch.Diagnosis
	}
	if patch.Treatment != nil {
		rec.Treatment = *patch.Treatment
	}
	if patch.Attachments != nil {
		rec.Attachments = *patch.Attachments
	}
	if patch.VisitDate != nil {
		rec.VisitDate = patch.VisitDate.UTC()
	}
	rec.UpdatedAt = s.now().UTC()

	if err := s.store.Records().Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return rec, nil
}

func (s *ClinicalService) ListRecords(ctx context.Context, actor Actor, q ClinicalQuery) ([]models.PatientRecord, error) {
	f, err := s.scope(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	f.RecordType = q.RecordType
	list, err := s.store.Records().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if list == nil {
		list = []models.PatientRecord{}
	}
	return list, nil
}

// checkAuthor allows admins and the doctor who wrote the document.
func (s *ClinicalService) checkAuthor(ctx context.Context, actor Actor, doctorID primitive.ObjectID) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsDoctor() {
		return apperrors.Forbidden("only the issuing doctor can edit this document")
	}
	doctor, err := doctorByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return err
	}
	if doctor.ID != doctorID {
		return apperrors.Forbidden("only the issuing doctor can edit this document")
	}
	return nil
}

// scope narrows a clinical listing to what actor may read.
func (s *ClinicalService) scope(ctx context.Context, actor Actor, q ClinicalQuery) (store.ClinicalFilter, error) {
	f := store.ClinicalFilter{Patient: q.Patient}
	switch {
	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return f, err
		}
		f.Doctor = &d.ID
	case actor.IsPatient():
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return f, err
		}
		f.Patient = &p.ID
	}
	return f, nil
}
