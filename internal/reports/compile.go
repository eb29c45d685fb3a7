// Package reports compiles the data behind a medical report and renders it
// as a PDF document.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

var ErrNoSubject = errors.New("report has neither a patient nor a doctor")

type Person struct {
	Name  string
	Email string
	Phone string
}

type PatientInfo struct {
	Person
	DateOfBirth *time.Time
	Gender      string
	BloodGroup  string
	Allergies   []string
	Emergency   *models.EmergencyContact
}

type DoctorInfo struct {
	Person
	Specializations []string
	Qualifications  []string
	Experience      int
	PatientsInCare  int
}

type Stats struct {
	Appointments        int
	Completed           int
	Cancelled           int
	NoShow              int
	Upcoming            int
	Prescriptions       int
	ActivePrescriptions int
	Records             int
	Counterparts        int // distinct doctors (patient reports) or patients (doctor reports)
}

type Count struct {
	Label string
	N     int
}

type AppointmentRow struct {
	Date         time.Time
	Counterpart  string
	Reason       string
	Status       models.AppointmentStatus
	DurationMins int
}

type PrescriptionRow struct {
	IssuedAt    time.Time
	Counterpart string
	Diagnosis   string
	Medications []models.Medication
	Status      string
}

type RecordRow struct {
	VisitDate   time.Time
	Counterpart string
	RecordType  string
	Title       string
	Diagnosis   string
	Treatment   string
}

// Bundle is everything a rendered report shows. Sections a report type does
// not include are left empty.
type Bundle struct {
	Title       string
	ReportType  string
	GeneratedAt time.Time
	Range       models.DateRange

	Patient *PatientInfo
	Doctor  *DoctorInfo
	Stats   Stats

	StatusBreakdown []Count
	MonthlyVisits   []Count

	Appointments  []AppointmentRow
	Prescriptions []PrescriptionRow
	Records       []RecordRow
}

func (b *Bundle) includes(section string) bool {
	switch b.ReportType {
	case models.ReportComprehensive, models.ReportDoctorActivity:
		return true
	case models.ReportSummary:
		return false
	}
	return b.ReportType == section
}

// Compiler loads the documents a report covers.
type Compiler struct {
	store store.Store
	now   func() time.Time
}

func NewCompiler(st store.Store) *Compiler {
	return &Compiler{store: st, now: time.Now}
}

func (c *Compiler) Compile(ctx context.Context, r *models.MedicalReport) (*Bundle, error) {
	b := &Bundle{
		Title:       r.Title,
		ReportType:  r.ReportType,
		GeneratedAt: c.now().UTC(),
		Range:       r.Range,
	}
	names := newNameCache(c.store)

	var (
		af store.AppointmentFilter
		cf store.ClinicalFilter
	)
	switch {
	case r.ReportType == models.ReportDoctorActivity && r.Doctor != nil:
		d, err := c.store.Doctors().FindByID(ctx, *r.Doctor)
		if err != nil {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		if b.Doctor, err = c.doctorInfo(ctx, d); err != nil {
			return nil, err
		}
		af.Doctor, cf.Doctor = &d.ID, &d.ID
	case r.Patient != nil:
		p, err := c.store.Patients().FindByID(ctx, *r.Patient)
		if err != nil {
			return nil, fmt.Errorf("load patient: %w", err)
		}
		if b.Patient, err = c.patientInfo(ctx, p); err != nil {
			return nil, err
		}
		af.Patient, cf.Patient = &p.ID, &p.ID
	default:
		return nil, ErrNoSubject
	}
	af.From, af.To = r.Range.From, r.Range.To
	byDoctor := b.Doctor != nil

	apts, err := c.store.Appointments().List(ctx, af)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	rxs, err := c.store.Prescriptions().List(ctx, cf)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	rxs = lo.Filter(rxs, func(p models.Prescription, _ int) bool { return r.Range.Contains(p.IssuedAt) })
	recs, err := c.store.Records().List(ctx, cf)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	recs = lo.Filter(recs, func(rec models.PatientRecord, _ int) bool { return r.Range.Contains(rec.VisitDate) })

	counterpart := func(doctor, patient primitive.ObjectID) string {
		if byDoctor {
			return names.patient(ctx, patient)
		}
		return names.doctor(ctx, doctor)
	}

	b.Stats = summarize(apts, rxs, recs, byDoctor, b.GeneratedAt)
	b.StatusBreakdown = statusBreakdown(apts)
	b.MonthlyVisits = monthlyVisits(apts)

	if b.includes(models.ReportAppointments) {
		b.Appointments = lo.Map(apts, func(a models.Appointment, _ int) AppointmentRow {
			return AppointmentRow{
				Date:         a.Date,
				Counterpart:  counterpart(a.Doctor, a.Patient),
				Reason:       a.Reason,
				Status:       a.Status,
				DurationMins: a.Duration,
			}
		})
	}
	if b.includes(models.ReportPrescriptions) {
		b.Prescriptions = lo.Map(rxs, func(p models.Prescription, _ int) PrescriptionRow {
			return PrescriptionRow{
				IssuedAt:    p.IssuedAt,
				Counterpart: counterpart(p.Doctor, p.Patient),
				Diagnosis:   p.Diagnosis,
				Medications: p.Medications,
				Status:      p.Status,
			}
		})
	}
	if b.includes(models.ReportMedicalRecords) {
		b.Records = lo.Map(recs, func(rec models.PatientRecord, _ int) RecordRow {
			return RecordRow{
				VisitDate:   rec.VisitDate,
				Counterpart: counterpart(rec.Doctor, rec.Patient),
				RecordType:  rec.RecordType,
				Title:       rec.Title,
				Diagnosis:   rec.Diagnosis,
				Treatment:   rec.Treatment,
			}
		})
	}
	return b, nil
}

func (c *Compiler) patientInfo(ctx context.Context, p *models.Patient) (*PatientInfo, error) {
	u, err := c.store.Users().FindByID(ctx, p.User)
	if err != nil {
		return nil, fmt.Errorf("load patient user: %w", err)
	}
	return &PatientInfo{
		Person:      Person{Name: displayName(u), Email: u.Email, Phone: u.Phone},
		DateOfBirth: p.DateOfBirth,
		Gender:      p.Gender,
		BloodGroup:  p.BloodGroup,
		Allergies:   p.Allergies,
		Emergency:   p.EmergencyContact,
	}, nil
}

func (c *Compiler) doctorInfo(ctx context.Context, d *models.Doctor) (*DoctorInfo, error) {
	u, err := c.store.Users().FindByID(ctx, d.User)
	if err != nil {
		return nil, fmt.Errorf("load doctor user: %w", err)
	}
	info := &DoctorInfo{
		Person:         Person{Name: displayName(u), Email: u.Email, Phone: u.Phone},
		Qualifications: d.Qualifications,
		Experience:     d.Experience,
		PatientsInCare: len(d.PatientsUnderCare),
	}
	for _, id := range d.Specializations {
		if sp, err := c.store.Specializations().FindByID(ctx, id); err == nil {
			info.Specializations = append(info.Specializations, sp.Name)
		}
	}
	return info, nil
}

func summarize(apts []models.Appointment, rxs []models.Prescription, recs []models.PatientRecord, byDoctor bool, now time.Time) Stats {
	st := Stats{
		Appointments:  len(apts),
		Prescriptions: len(rxs),
		Records:       len(recs),
	}
	counterparts := make(map[primitive.ObjectID]struct{})
	for _, a := range apts {
		switch a.Status {
		case models.StatusCompleted:
			st.Completed++
		case models.StatusCancelled:
			st.Cancelled++
		case models.StatusNoShow:
			st.NoShow++
		default:
			if a.Date.After(now) {
				st.Upcoming++
			}
		}
		counterparts[lo.Ternary(byDoctor, a.Patient, a.Doctor)] = struct{}{}
	}
	st.Counterparts = len(counterparts)
	st.ActivePrescriptions = lo.CountBy(rxs, func(p models.Prescription) bool { return p.Status == models.PrescriptionActive })
	return st
}

var statusOrder = []models.AppointmentStatus{
	models.StatusPending, models.StatusConfirmed, models.StatusScheduled,
	models.StatusCompleted, models.StatusCancelled, models.StatusNoShow,
}

func statusBreakdown(apts []models.Appointment) []Count {
	counts := lo.CountValuesBy(apts, func(a models.Appointment) models.AppointmentStatus { return a.Status })
	out := make([]Count, 0, len(counts))
	for _, s := range statusOrder {
		if n := counts[s]; n > 0 {
			out = append(out, Count{Label: string(s), N: n})
		}
	}
	return out
}

// monthlyVisits counts appointments that were not cancelled per calendar
// month, oldest month first.
func monthlyVisits(apts []models.Appointment) []Count {
	visits := lo.Filter(apts, func(a models.Appointment, _ int) bool { return a.Status != models.StatusCancelled })
	counts := lo.CountValuesBy(visits, func(a models.Appointment) string { return a.Date.UTC().Format("2006-01") })
	months := lo.Keys(counts)
	sort.Strings(months)
	return lo.Map(months, func(m string, _ int) Count { return Count{Label: m, N: counts[m]} })
}

func displayName(u *models.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// nameCache resolves profile ids to display names, one lookup per id.
type nameCache struct {
	store store.Store
	names map[primitive.ObjectID]string
}

func newNameCache(st store.Store) *nameCache {
	return &nameCache{store: st, names: make(map[primitive.ObjectID]string)}
}

func (n *nameCache) doctor(ctx context.Context, id primitive.ObjectID) string {
	if name, ok := n.names[id]; ok {
		return name
	}
	name := "Unknown doctor"
	if d, err := n.store.Doctors().FindByID(ctx, id); err == nil {
		if u, err := n.store.Users().FindByID(ctx, d.User); err == nil {
			name = displayName(u)
		}
	}
	n.names[id] = name
	return name
}

func (n *nameCache) patient(ctx context.Context, id primitive.ObjectID) string {
	if name, ok := n.names[id]; ok {
		return name
	}
	name := "Unknown patient"
	if p, err := n.store.Patients().FindByID(ctx, id); err == nil {
		if u, err := n.store.Users().FindByID(ctx, p.User); err == nil {
			name = displayName(u)
		}
	}
	n.names[id] = name
	return name
}
