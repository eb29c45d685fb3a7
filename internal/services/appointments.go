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
	"github.com/careconnect/careconnect-api/internal/events"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

const maxAppointmentDuration = 8 * 60 // minutes

// openStatuses are the statuses that still occupy a slot in the doctor's day.
var openStatuses = []models.AppointmentStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusScheduled,
}

type AppointmentService struct {
	store    store.Store
	notifier *NotificationService
	events   events.Publisher
	log      zerolog.Logger
	now      func() time.Time
}

func NewAppointmentService(st store.Store, notifier *NotificationService, pub events.Publisher, log zerolog.Logger) *AppointmentService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &AppointmentService{store: st, notifier: notifier, events: pub, log: log, now: time.Now}
}

type CreateAppointmentInput struct {
	DoctorID  primitive.ObjectID
	PatientID primitive.ObjectID
	Date      time.Time
	Duration  int
	Reason    string
	Notes     string
}

// AppointmentPatch holds the fields an update may change. Nil fields are
// left alone.
type AppointmentPatch struct {
	Date       *time.Time
	Duration   *int
	Reason     *string
	Notes      *string
	Status     *models.AppointmentStatus
	StatusNote string
}

func (p AppointmentPatch) onlyNotes() bool {
	return p.Date == nil && p.Duration == nil && p.Reason == nil && p.Status == nil
}

// Create books an appointment and indexes it on both profiles. A patient
// actor always books for themselves and a doctor actor for their own
// calendar; the matching input id is ignored.
func (s *AppointmentService) Create(ctx context.Context, actor Actor, in CreateAppointmentInput) (*models.Appointment, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return nil, apperrors.Validation("reason is required")
	}
	if in.Date.IsZero() {
		return nil, apperrors.Validation("date is required")
	}
	if in.Duration == 0 {
		in.Duration = models.DefaultAppointmentDuration
	}
	if in.Duration < 0 || in.Duration > maxAppointmentDuration {
		return nil, apperrors.Validation(fmt.Sprintf("duration must be between 1 and %d minutes", maxAppointmentDuration))
	}
	now := s.now().UTC()
	if in.Date.Before(now) {
		return nil, apperrors.Validation("appointment date must be in the future")
	}

	initial := models.StatusScheduled
	switch {
	case actor.IsPatient():
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		in.PatientID = p.ID
		initial = models.StatusPending
	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		in.DoctorID = d.ID
	case !actor.IsAdmin():
		return nil, apperrors.Forbidden("role cannot book appointments")
	}

	var (
		apt     *models.Appointment
		doctor  *models.Doctor
		patient *models.Patient
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if doctor, err = s.store.Doctors().FindByID(ctx, in.DoctorID); err != nil {
			return lookupErr(err, "doctor")
		}
		if patient, err = s.store.Patients().FindByID(ctx, in.PatientID); err != nil {
			return lookupErr(err, "patient")
		}
		if err := s.checkSlot(ctx, doctor.ID, primitive.NilObjectID, in.Date, in.Duration); err != nil {
			return err
		}

		apt = &models.Appointment{
			Doctor:    doctor.ID,
			Patient:   patient.ID,
			Date:      in.Date.UTC(),
			Duration:  in.Duration,
			Reason:    in.Reason,
			Notes:     in.Notes,
			CreatedAt: now,
		}
		apt.SetStatus(initial, actor.UserID, "", now)
		if err := s.store.Appointments().Create(ctx, apt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		linkAppointment(doctor, patient, apt.ID)
		return s.saveProfiles(ctx, doctor, patient, now)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, actor, apt, doctor, patient, models.NotifyAppointmentCreated)
	return apt, nil
}

// Update applies patch to an appointment. Status changes follow the
// lifecycle; reaching completed or cancelled releases the appointment from
// the relationship indexes.
func (s *AppointmentService) Update(ctx context.Context, actor Actor, id primitive.ObjectID, patch AppointmentPatch) (*models.Appointment, error) {
	if actor.IsPatient() {
		return nil, apperrors.Forbidden("patients cannot edit appointments")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown status %q", *patch.Status))
	}
	if patch.Reason != nil && strings.TrimSpace(*patch.Reason) == "" {
		return nil, apperrors.Validation("reason cannot be empty")
	}
	if patch.Duration != nil && (*patch.Duration <= 0 || *patch.Duration > maxAppointmentDuration) {
		return nil, apperrors.Validation(fmt.Sprintf("duration must be between 1 and %d minutes", maxAppointmentDuration))
	}

	var (
		apt     *models.Appointment
		doctor  *models.Doctor
		patient *models.Patient
		kind    = models.NotifyAppointmentUpdated
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if apt, doctor, patient, err = s.load(ctx, actor, id); err != nil {
			return err
		}
		if apt.Status.Terminal() && !patch.onlyNotes() {
			return apperrors.Conflict(fmt.Sprintf("appointment is %s; only notes can change", apt.Status))
		}

		now := s.now().UTC()
		rescheduled := false
		if patch.Date != nil && !patch.Date.Equal(apt.Date) {
			if patch.Date.Before(now) {
				return apperrors.Validation("appointment date must be in the future")
			}
			apt.Date = patch.Date.UTC()
			rescheduled = true
		}
		if patch.Duration != nil && *patch.Duration != apt.Duration {
			apt.Duration = *patch.Duration
			rescheduled = true
		}
		if patch.Reason != nil {
			apt.Reason = strings.TrimSpace(*patch.Reason)
		}
		if patch.Notes != nil {
			apt.Notes = *patch.Notes
		}
		apt.UpdatedAt = now

		if rescheduled {
			if err := s.checkSlot(ctx, apt.Doctor, apt.ID, apt.Date, apt.Duration); err != nil {
				return err
			}
		}

		release := false
		if patch.Status != nil && *patch.Status != apt.Status {
			if !models.CanTransition(apt.Status, *patch.Status) {
				return apperrors.Conflict(fmt.Sprintf("cannot move appointment from %s to %s", apt.Status, *patch.Status))
			}
			apt.SetStatus(*patch.Status, actor.UserID, patch.StatusNote, now)
			kind = statusNotification(apt.Status)
			release = apt.Status.Releases()
		}

		if err := s.store.Appointments().Update(ctx, apt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if !release {
			return nil
		}
		releaseAppointment(doctor, patient, apt.ID, true)
		return s.saveProfiles(ctx, doctor, patient, now)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, actor, apt, doctor, patient, kind)
	return apt, nil
}

// Cancel moves a non-terminal appointment to cancelled and releases it.
func (s *AppointmentService) Cancel(ctx context.Context, actor Actor, id primitive.ObjectID, reason string) (*models.Appointment, error) {
	return s.transition(ctx, actor, id, models.StatusCancelled, reason)
}

// Confirm accepts a pending appointment on behalf of its doctor.
func (s *AppointmentService) Confirm(ctx context.Context, actor Actor, id primitive.ObjectID, notes string) (*models.Appointment, error) {
	if actor.IsPatient() {
		return nil, apperrors.Forbidden("only the doctor can confirm an appointment")
	}
	return s.transition(ctx, actor, id, models.StatusConfirmed, notes)
}

func (s *AppointmentService) transition(ctx context.Context, actor Actor, id primitive.ObjectID, to models.AppointmentStatus, note string) (*models.Appointment, error) {
	var (
		apt     *models.Appointment
		doctor  *models.Doctor
		patient *models.Patient
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if apt, doctor, patient, err = s.load(ctx, actor, id); err != nil {
			return err
		}
		if apt.Status.Terminal() {
			return apperrors.Conflict(fmt.Sprintf("appointment is already %s", apt.Status))
		}
		if !models.CanTransition(apt.Status, to) {
			return apperrors.Conflict(fmt.Sprintf("cannot move appointment from %s to %s", apt.Status, to))
		}

		now := s.now().UTC()
		apt.SetStatus(to, actor.UserID, note, now)
		if err := s.store.Appointments().Update(ctx, apt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if !to.Releases() {
			return nil
		}
		releaseAppointment(doctor, patient, apt.ID, true)
		return s.saveProfiles(ctx, doctor, patient, now)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, actor, apt, doctor, patient, statusNotification(to))
	return apt, nil
}

// Delete removes an appointment and every index entry pointing at it.
func (s *AppointmentService) Delete(ctx context.Context, actor Actor, id primitive.ObjectID) error {
	if actor.IsPatient() {
		return apperrors.Forbidden("patients cannot delete appointments")
	}
	var removed *removal
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		removed, err = s.remove(ctx, actor, id)
		return err
	})
	if err != nil {
		return err
	}

	s.announce(ctx, actor, removed.apt, removed.doctor, removed.patient, models.NotifyAppointmentDeleted)
	return nil
}

// removal is an appointment deleted inside a transaction, kept so the caller
// can announce it once the transaction commits.
type removal struct {
	apt     *models.Appointment
	doctor  *models.Doctor
	patient *models.Patient
}

// remove deletes the appointment and releases it from both profiles. It must
// run inside a transaction and announces nothing.
func (s *AppointmentService) remove(ctx context.Context, actor Actor, id primitive.ObjectID) (*removal, error) {
	apt, doctor, patient, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Appointments().Delete(ctx, apt.ID); err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	releaseAppointment(doctor, patient, apt.ID, false)
	if err := s.saveProfiles(ctx, doctor, patient, s.now().UTC()); err != nil {
		return nil, err
	}
	return &removal{apt: apt, doctor: doctor, patient: patient}, nil
}

func (s *AppointmentService) Get(ctx context.Context, actor Actor, id primitive.ObjectID) (*models.Appointment, error) {
	apt, _, _, err := s.load(ctx, actor, id)
	return apt, err
}

type AppointmentQuery struct {
	Doctor  *primitive.ObjectID
	Patient *primitive.ObjectID
	Status  []models.AppointmentStatus
	From    *time.Time
	To      *time.Time
}

// List returns appointments newest first. Doctors and patients only ever see
// their own; the matching filter field is overridden.
func (s *AppointmentService) List(ctx context.Context, actor Actor, q AppointmentQuery) ([]models.Appointment, error) {
	for _, st := range q.Status {
		if !st.Valid() {
			return nil, apperrors.Validation(fmt.Sprintf("unknown status %q", st))
		}
	}
	f := store.AppointmentFilter{Doctor: q.Doctor, Patient: q.Patient, Status: q.Status, From: q.From, To: q.To}
	switch {
	case actor.IsDoctor():
		d, err := doctorByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		f.Doctor = &d.ID
	case actor.IsPatient():
		p, err := patientByUser(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		f.Patient = &p.ID
	}
	list, err := s.store.Appointments().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if list == nil {
		list = []models.Appointment{}
	}
	return list, nil
}

// load fetches an appointment with both parties and checks that actor may
// touch it.
func (s *AppointmentService) load(ctx context.Context, actor Actor, id primitive.ObjectID) (*models.Appointment, *models.Doctor, *models.Patient, error) {
	apt, err := s.store.Appointments().FindByID(ctx, id)
	if err != nil {
		return nil, nil, nil, lookupErr(err, "appointment")
	}
	doctor, err := s.store.Doctors().FindByID(ctx, apt.Doctor)
	if err != nil {
		return nil, nil, nil, lookupErr(err, "doctor")
	}
	patient, err := s.store.Patients().FindByID(ctx, apt.Patient)
	if err != nil {
		return nil, nil, nil, lookupErr(err, "patient")
	}

	switch {
	case actor.IsAdmin():
	case actor.IsDoctor() && doctor.User == actor.UserID:
	case actor.IsPatient() && patient.User == actor.UserID:
	default:
		return nil, nil, nil, apperrors.Forbidden("not your appointment")
	}
	return apt, doctor, patient, nil
}

// checkSlot rejects a booking that overlaps another open appointment of the
// same doctor. skip excludes the appointment being rescheduled.
func (s *AppointmentService) checkSlot(ctx context.Context, doctorID, skip primitive.ObjectID, start time.Time, minutes int) error {
	end := start.Add(time.Duration(minutes) * time.Minute)
	from := start.Add(-maxAppointmentDuration * time.Minute)
	booked, err := s.store.Appointments().List(ctx, store.AppointmentFilter{
		Doctor: &doctorID,
		Status: openStatuses,
		From:   &from,
		To:     &end,
	})
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	for _, other := range booked {
		if other.ID == skip {
			continue
		}
		otherEnd := other.Date.Add(time.Duration(other.Duration) * time.Minute)
		if other.Date.Before(end) && otherEnd.After(start) {
			return apperrors.Conflict("doctor already has an appointment at that time")
		}
	}
	return nil
}

func (s *AppointmentService) saveProfiles(ctx context.Context, d *models.Doctor, p *models.Patient, now time.Time) error {
	d.UpdatedAt = now
	p.UpdatedAt = now
	if err := s.store.Doctors().Update(ctx, d); err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	if err := s.store.Patients().Update(ctx, p); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func statusNotification(status models.AppointmentStatus) string {
	switch status {
	case models.StatusConfirmed:
		return models.NotifyAppointmentConfirmed
	case models.StatusCancelled:
		return models.NotifyAppointmentCancelled
	case models.StatusCompleted:
		return models.NotifyAppointmentCompleted
	}
	return models.NotifyAppointmentUpdated
}

// announce notifies the counter-party (both parties for admin actions) and
// publishes the lifecycle event. Neither can fail the request.
// announce notifies both parties except the actor and any user in skip, then
// publishes the event.
func (s *AppointmentService) announce(ctx context.Context, actor Actor, apt *models.Appointment, d *models.Doctor, p *models.Patient, kind string, skip ...primitive.ObjectID) {
	if s.notifier != nil {
		msg := appointmentMessage(kind, apt)
		aptID := apt.ID
		if kind == models.NotifyAppointmentDeleted {
			msg = fmt.Sprintf("Appointment on %s was removed.", apt.Date.Format("Jan 2 at 3:04 PM"))
		}
		skip = append(skip, actor.UserID)
		if !lo.Contains(skip, d.User) {
			s.notifier.Notify(ctx, d.User, kind, msg, &aptID)
		}
		if !lo.Contains(skip, p.User) {
			s.notifier.Notify(ctx, p.User, kind, msg, &aptID)
		}
	}

	evt := events.AppointmentEvent{
		Type:          kind,
		AppointmentID: apt.ID.Hex(),
		DoctorID:      d.ID.Hex(),
		PatientID:     p.ID.Hex(),
		Status:        string(apt.Status),
		Actor:         actor.UserID.Hex(),
		At:            s.now().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("appointment", evt.AppointmentID).Str("event", kind).Msg("appointment event not published")
	}
}

func appointmentMessage(kind string, apt *models.Appointment) string {
	when := apt.Date.Format("Jan 2 at 3:04 PM")
	switch kind {
	case models.NotifyAppointmentCreated:
		return fmt.Sprintf("New appointment: %s on %s.", apt.Reason, when)
	case models.NotifyAppointmentConfirmed:
		return fmt.Sprintf("Appointment confirmed: %s on %s.", apt.Reason, when)
	case models.NotifyAppointmentCancelled:
		return fmt.Sprintf("Appointment cancelled: %s on %s.", apt.Reason, when)
	case models.NotifyAppointmentCompleted:
		return fmt.Sprintf("Appointment completed: %s on %s.", apt.Reason, when)
	}
	return fmt.Sprintf("Appointment updated: %s on %s (%s).", apt.Reason, when, apt.Status)
}
