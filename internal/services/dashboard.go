package services

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

const upcomingLimit = 5

// DashboardService aggregates the per-role overview counts.
type DashboardService struct {
	store store.Store
	now   func() time.Time
}

func NewDashboardService(st store.Store) *DashboardService {
	return &DashboardService{store: st, now: time.Now}
}

type AdminStats struct {
	Users           map[string]int64 `json:"users"`
	Appointments    map[string]int64 `json:"appointments"`
	PendingReports  int64            `json:"pendingReports"`
	Specializations int              `json:"specializations"`
}

func (s *DashboardService) Admin(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{
		Users:        make(map[string]int64),
		Appointments: make(map[string]int64),
	}
	roles := []string{models.RoleAdmin, models.RoleDoctor, models.RolePatient}
	statuses := []models.AppointmentStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusScheduled,
		models.StatusCompleted, models.StatusCancelled, models.StatusNoShow,
	}
	userCounts := make([]int64, len(roles))
	aptCounts := make([]int64, len(statuses))

	g, ctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			n, err := s.store.Users().Count(ctx, store.UserFilter{Role: role})
			if err != nil {
				return fmt.Errorf("count %s users: %w", role, err)
			}
			userCounts[i] = n
			return nil
		})
	}
	for i, status := range statuses {
		g.Go(func() error {
			n, err := s.store.Appointments().Count(ctx, store.AppointmentFilter{Status: []models.AppointmentStatus{status}})
			if err != nil {
				return fmt.Errorf("count %s appointments: %w", status, err)
			}
			aptCounts[i] = n
			return nil
		})
	}
	g.Go(func() error {
		n, err := s.store.Reports().Count(ctx, store.ReportFilter{Status: []models.ReportStatus{models.ReportPending, models.ReportProcessing}})
		if err != nil {
			return fmt.Errorf("count pending reports: %w", err)
		}
		stats.PendingReports = n
		return nil
	})
	g.Go(func() error {
		list, err := s.store.Specializations().List(ctx)
		if err != nil {
			return fmt.Errorf("list specializations: %w", err)
		}
		stats.Specializations = len(list)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, role := range roles {
		stats.Users[role] = userCounts[i]
	}
	for i, status := range statuses {
		stats.Appointments[string(status)] = aptCounts[i]
	}
	return stats, nil
}

type DoctorDashboard struct {
	Upcoming              []models.Appointment `json:"upcomingAppointments"`
	UpcomingCount         int64                `json:"upcomingCount"`
	PendingCount          int64                `json:"pendingCount"`
	CompletedAppointments int64                `json:"completedAppointments"`
	PatientsUnderCare     int                  `json:"patientsUnderCare"`
	PrescriptionsIssued   int64                `json:"prescriptionsIssued"`
	RecordsWritten        int64                `json:"recordsWritten"`
}

func (s *DashboardService) Doctor(ctx context.Context, actor Actor) (*DoctorDashboard, error) {
	doctor, err := doctorByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	dash := &DoctorDashboard{PatientsUnderCare: len(doctor.PatientsUnderCare)}

	upcoming := store.AppointmentFilter{Doctor: &doctor.ID, Status: openStatuses, From: &now}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.Appointments().List(ctx, upcoming)
		if err != nil {
			return fmt.Errorf("list upcoming appointments: %w", err)
		}
		dash.Upcoming = nextFirst(list)
		dash.UpcomingCount = int64(len(list))
		return nil
	})
	g.Go(func() error {
		n, err := s.store.Appointments().Count(ctx, store.AppointmentFilter{Doctor: &doctor.ID, Status: []models.AppointmentStatus{models.StatusPending}})
		dash.PendingCount = n
		return wrapCount(err, "pending appointments")
	})
	g.Go(func() error {
		n, err := s.store.Appointments().Count(ctx, store.AppointmentFilter{Doctor: &doctor.ID, Status: []models.AppointmentStatus{models.StatusCompleted}})
		dash.CompletedAppointments = n
		return wrapCount(err, "completed appointments")
	})
	g.Go(func() error {
		n, err := s.store.Prescriptions().Count(ctx, store.ClinicalFilter{Doctor: &doctor.ID})
		dash.PrescriptionsIssued = n
		return wrapCount(err, "prescriptions")
	})
	g.Go(func() error {
		n, err := s.store.Records().Count(ctx, store.ClinicalFilter{Doctor: &doctor.ID})
		dash.RecordsWritten = n
		return wrapCount(err, "records")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}

type PatientDashboard struct {
	Upcoming            []models.Appointment `json:"upcomingAppointments"`
	UpcomingCount       int64                `json:"upcomingCount"`
	ConsultedDoctors    int                  `json:"consultedDoctors"`
	ActivePrescriptions int64                `json:"activePrescriptions"`
	Records             int64                `json:"records"`
	Reports             int64                `json:"reports"`
}

func (s *DashboardService) Patient(ctx context.Context, actor Actor) (*PatientDashboard, error) {
	patient, err := patientByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	dash := &PatientDashboard{ConsultedDoctors: len(patient.ConsultedDoctors)}

	upcoming := store.AppointmentFilter{Patient: &patient.ID, Status: openStatuses, From: &now}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.Appointments().List(ctx, upcoming)
		if err != nil {
			return fmt.Errorf("list upcoming appointments: %w", err)
		}
		dash.Upcoming = nextFirst(list)
		dash.UpcomingCount = int64(len(list))
		return nil
	})
	g.Go(func() error {
		n, err := s.store.Prescriptions().Count(ctx, store.ClinicalFilter{Patient: &patient.ID, Status: models.PrescriptionActive})
		dash.ActivePrescriptions = n
		return wrapCount(err, "active prescriptions")
	})
	g.Go(func() error {
		n, err := s.store.Records().Count(ctx, store.ClinicalFilter{Patient: &patient.ID})
		dash.Records = n
		return wrapCount(err, "records")
	})
	g.Go(func() error {
		n, err := s.store.Reports().Count(ctx, store.ReportFilter{Patient: &patient.ID})
		dash.Reports = n
		return wrapCount(err, "reports")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}

// nextFirst turns a newest-first listing into the soonest few appointments.
func nextFirst(list []models.Appointment) []models.Appointment {
	if len(list) == 0 {
		return []models.Appointment{}
	}
	soonest := lo.Reverse(list)
	if len(soonest) > upcomingLimit {
		soonest = soonest[:upcomingLimit]
	}
	return soonest
}

func wrapCount(err error, what string) error {
	if err != nil {
		return fmt.Errorf("count %s: %w", what, err)
	}
	return nil
}
