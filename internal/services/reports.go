package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/queue"
	"github.com/careconnect/careconnect-api/internal/reports"
	"github.com/careconnect/careconnect-api/internal/storage"
	"github.com/careconnect/careconnect-api/internal/store"
)

// processingLease is how long a claimed report may stay processing before
// another delivery is allowed to take it over.
const processingLease = 5 * time.Minute

// ReportService records report requests and turns them into stored PDF
// documents. Generation runs on a worker fed by the task queue.
type ReportService struct {
	store    store.Store
	queue    queue.Queue
	blobs    storage.BlobStore
	compiler *reports.Compiler
	notifier *NotificationService
	log      zerolog.Logger
	lease    time.Duration
	now      func() time.Time
}

func NewReportService(st store.Store, q queue.Queue, blobs storage.BlobStore, notifier *NotificationService, log zerolog.Logger) *ReportService {
	return &ReportService{
		store:    st,
		queue:    q,
		blobs:    blobs,
		compiler: reports.NewCompiler(st),
		notifier: notifier,
		log:      log,
		lease:    processingLease,
		now:      time.Now,
	}
}

type ReportRequest struct {
	PatientID *primitive.ObjectID
	DoctorID  *primitive.ObjectID
	Type      string
	Title     string
	From      *time.Time
	To        *time.Time
}

// Request stores a pending report and queues it for generation.
func (s *ReportService) Request(ctx context.Context, actor Actor, in ReportRequest) (*models.MedicalReport, error) {
	if in.Type == "" {
		in.Type = models.ReportSummary
	}
	if !models.ValidReportType(in.Type) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown report type %q", in.Type))
	}
	if in.From != nil && in.To != nil && in.To.Before(*in.From) {
		return nil, apperrors.Validation("date range ends before it starts")
	}

	var report *models.MedicalReport
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		patient, doctor, err := s.subject(ctx, actor, in)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		report = &models.MedicalReport{
			ReportType:  in.Type,
			Title:       strings.TrimSpace(in.Title),
			Range:       models.DateRange{From: in.From, To: in.To},
			Status:      models.ReportPending,
			RequestedBy: actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if report.Title == "" {
			report.Title = defaultReportTitle(in.Type)
		}
		if patient != nil {
			report.Patient = &patient.ID
		}
		if doctor != nil {
			report.Doctor = &doctor.ID
		}
		if err := s.store.Reports().Create(ctx, report); err != nil {
			return fmt.Errorf("create report: %w", err)
		}

		if patient != nil {
			patient.Reports = append(patient.Reports, report.ID)
			patient.UpdatedAt = now
			if err := s.store.Patients().Update(ctx, patient); err != nil {
				return fmt.Errorf("update patient: %w", err)
			}
		}
		if doctor != nil {
			doctor.Reports = append(doctor.Reports, report.ID)
			doctor.UpdatedAt = now
			if err := s.store.Doctors().Update(ctx, doctor); err != nil {
				return fmt.Errorf("update doctor: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A report that fails to enqueue stays pending and is picked up by the
	// worker's recovery sweep.
	if err := s.queue.Enqueue(ctx, queue.Task{ReportID: report.ID.Hex(), EnqueuedAt: s.now().UTC()}); err != nil {
		s.log.Error().Err(err).Str("report", report.ID.Hex()).Msg("report task not enqueued")
	}
	return report, nil
}

// subject resolves who the report is about and checks actor may ask for it.
// Doctor-activity reports have a doctor subject, every other type a patient.
// When a doctor asks about a patient, the doctor is returned too so the
// report shows up in their list.
func (s *ReportService) subject(ctx context.Context, actor Actor, in ReportRequest) (*models.Patient, *models.Doctor, error) {
	doctorReport := in.Type == models.ReportDoctorActivity

	switch {
	case actor.IsPatient():
		if doctorReport {
			return nil, nil, apperrors.Forbidden("patients cannot request doctor activity reports")
		}
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, nil, err
		}
		if in.PatientID != nil && *in.PatientID != p.ID {
			return nil, nil, apperrors.Forbidden("patients can only request their own reports")
		}
		return p, nil, nil

	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, nil, err
		}
		if doctorReport {
			if in.DoctorID != nil && *in.DoctorID != d.ID {
				return nil, nil, apperrors.Forbidden("doctors can only request their own activity report")
			}
			return nil, d, nil
		}
		if in.PatientID == nil {
			return nil, nil, apperrors.Validation("patientId is required")
		}
		p, err := s.store.Patients().FindByID(ctx, *in.PatientID)
		if err != nil {
			return nil, nil, lookupErr(err, "patient")
		}
		if !hasRelationship(d, p.ID) {
			n, err := s.store.Appointments().Count(ctx, store.AppointmentFilter{Doctor: &d.ID, Patient: &p.ID})
			if err != nil {
				return nil, nil, fmt.Errorf("check care relationship: %w", err)
			}
			if n == 0 {
				return nil, nil, apperrors.Forbidden("patient is not under your care")
			}
		}
		return p, d, nil

	case actor.IsAdmin():
		if doctorReport {
			if in.DoctorID == nil {
				return nil, nil, apperrors.Validation("doctorId is required")
			}
			d, err := s.store.Doctors().FindByID(ctx, *in.DoctorID)
			if err != nil {
				return nil, nil, lookupErr(err, "doctor")
			}
			return nil, d, nil
		}
		if in.PatientID == nil {
			return nil, nil, apperrors.Validation("patientId is required")
		}
		p, err := s.store.Patients().FindByID(ctx, *in.PatientID)
		if err != nil {
			return nil, nil, lookupErr(err, "patient")
		}
		return p, nil, nil
	}
	return nil, nil, apperrors.Forbidden("role cannot request reports")
}

func defaultReportTitle(reportType string) string {
	words := strings.Fields(strings.ReplaceAll(reportType, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Report"
}

func (s *ReportService) Get(ctx context.Context, actor Actor, id primitive.ObjectID) (*models.MedicalReport, error) {
	r, err := s.store.Reports().FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "report")
	}
	if actor.IsAdmin() || r.RequestedBy == actor.UserID {
		return r, nil
	}
	switch {
	case actor.IsPatient():
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		if r.Patient != nil && *r.Patient == p.ID {
			return r, nil
		}
	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		if r.Doctor != nil && *r.Doctor == d.ID {
			return r, nil
		}
	}
	return nil, apperrors.Forbidden("not your report")
}

// List returns reports newest first, scoped to the actor's profile.
func (s *ReportService) List(ctx context.Context, actor Actor, status []models.ReportStatus) ([]models.MedicalReport, error) {
	f := store.ReportFilter{Status: status}
	switch {
	case actor.IsPatient():
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		f.Patient = &p.ID
	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		f.Doctor = &d.ID
	}
	list, err := s.store.Reports().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if list == nil {
		list = []models.MedicalReport{}
	}
	return list, nil
}

// Process generates the document for a report. The report is claimed first,
// so concurrent or repeated deliveries of the same task generate it once.
// Reports already completed or failed, or being processed elsewhere, are
// left alone. A generation failure is recorded on the report and not retried.
func (s *ReportService) Process(ctx context.Context, id primitive.ObjectID) error {
	now := s.now().UTC()
	r, err := s.store.Reports().Claim(ctx, id, now.Add(-s.lease), now)
	if errors.Is(err, store.ErrNotClaimed) {
		s.log.Debug().Str("report", id.Hex()).Msg("report already processed or in progress")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim report %s: %w", id.Hex(), err)
	}

	doc, genErr := s.generate(ctx, r)
	now = s.now().UTC()
	r.UpdatedAt = now
	if genErr != nil {
		r.Status = models.ReportFailed
		r.Error = genErr.Error()
	} else {
		r.Status = models.ReportCompleted
		r.Document = doc
		r.Error = ""
		r.CompletedAt = &now
	}
	if err := s.store.Reports().Update(ctx, r); err != nil {
		return fmt.Errorf("save report result: %w", err)
	}

	if genErr != nil {
		s.log.Error().Err(genErr).Str("report", id.Hex()).Msg("report generation failed")
		s.notifier.Notify(ctx, r.RequestedBy, models.NotifyReportFailed,
			fmt.Sprintf("Your report %q could not be generated.", r.Title), nil)
		return nil
	}
	s.log.Info().Str("report", id.Hex()).Int64("bytes", doc.Size).Msg("report generated")
	s.notifier.Notify(ctx, r.RequestedBy, models.NotifyReportReady,
		fmt.Sprintf("Your report %q is ready.", r.Title), nil)
	return nil
}

func (s *ReportService) generate(ctx context.Context, r *models.MedicalReport) (*models.ReportDocument, error) {
	bundle, err := s.compiler.Compile(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("compile report: %w", err)
	}
	pdf, err := reports.Render(bundle)
	if err != nil {
		return nil, err
	}
	filename := reports.Filename(r.ReportType, r.CreatedAt)
	obj, err := s.blobs.Put(ctx, path.Join("reports", r.ID.Hex(), filename), "application/pdf", pdf)
	if err != nil {
		return nil, apperrors.Upstream("upload report", err)
	}
	return &models.ReportDocument{URL: obj.URL, Filename: filename, Size: obj.Size}, nil
}

// Recover re-enqueues reports left pending or processing for longer than
// olderThan. It returns how many were queued.
func (s *ReportService) Recover(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.store.Reports().List(ctx, store.ReportFilter{
		Status: []models.ReportStatus{models.ReportPending, models.ReportProcessing},
	})
	if err != nil {
		return 0, fmt.Errorf("list unfinished reports: %w", err)
	}
	cutoff := s.now().UTC().Add(-olderThan)
	queued := 0
	var errs []error
	for _, r := range stuck {
		if r.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.queue.Enqueue(ctx, queue.Task{ReportID: r.ID.Hex(), EnqueuedAt: s.now().UTC()}); err != nil {
			errs = append(errs, fmt.Errorf("enqueue report %s: %w", r.ID.Hex(), err))
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}
