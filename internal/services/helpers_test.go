package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/careconnect/careconnect-api/internal/events"
	"github.com/careconnect/careconnect-api/internal/mailer"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/queue"
	"github.com/careconnect/careconnect-api/internal/storage"
	"github.com/careconnect/careconnect-api/internal/store"
	"github.com/careconnect/careconnect-api/internal/store/memstore"
	"github.com/careconnect/careconnect-api/internal/utils"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AppointmentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.AppointmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, string, []byte) (*storage.Object, error) {
	return nil, errors.New("bucket unavailable")
}

type testEnv struct {
	store        *memstore.Store
	mail         *recordingMailer
	events       *recordingPublisher
	queue        *queue.Memory
	blobDir      string
	notify       *NotificationService
	appointments *AppointmentService
	accounts     *AccountService
	clinical     *ClinicalService
	reports      *ReportService
	dashboard    *DashboardService
	admin        Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	env := &testEnv{
		store:   memstore.New(),
		mail:    &recordingMailer{},
		events:  &recordingPublisher{},
		queue:   queue.NewMemory(64),
		blobDir: t.TempDir(),
	}
	env.notify = NewNotificationService(env.store, log)
	env.appointments = NewAppointmentService(env.store, env.notify, env.events, log)
	env.accounts = NewAccountService(env.store, utils.NewJWTManager("test-secret", time.Hour), env.mail, env.appointments,
		AccountOptions{BcryptCost: bcrypt.MinCost, ResetTTL: time.Hour, FrontendURL: "http://app.test"}, log)
	env.clinical = NewClinicalService(env.store, env.notify, log)
	env.reports = NewReportService(env.store, env.queue, storage.NewDiskStore(env.blobDir, "http://files.test"), env.notify, log)
	env.dashboard = NewDashboardService(env.store)

	acc, err := env.accounts.Register(context.Background(), RegisterInput{
		Username: "root", Email: "root@careconnect.test", Password: "password123", Role: models.RoleAdmin, FullName: "Root Admin",
	}, true)
	require.NoError(t, err)
	env.admin = Actor{UserID: acc.User.ID, Role: models.RoleAdmin}
	return env
}

func (e *testEnv) register(t *testing.T, role, name string) (Actor, *Account) {
	t.Helper()
	acc, err := e.accounts.Register(context.Background(), RegisterInput{
		Username: name,
		Email:    name + "@careconnect.test",
		Password: "password123",
		Role:     role,
		FullName: name,
	}, false)
	require.NoError(t, err)
	return Actor{UserID: acc.User.ID, Role: role}, acc
}

func (e *testEnv) doctor(t *testing.T, name string) (Actor, primitive.ObjectID) {
	actor, acc := e.register(t, models.RoleDoctor, name)
	return actor, acc.Doctor.ID
}

func (e *testEnv) patient(t *testing.T, name string) (Actor, primitive.ObjectID) {
	actor, acc := e.register(t, models.RolePatient, name)
	return actor, acc.Patient.ID
}

func (e *testEnv) loadDoctor(t *testing.T, id primitive.ObjectID) *models.Doctor {
	t.Helper()
	d, err := e.store.Doctors().FindByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (e *testEnv) loadPatient(t *testing.T, id primitive.ObjectID) *models.Patient {
	t.Helper()
	p, err := e.store.Patients().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

// slot returns a future appointment time n hours from a fixed point
// tomorrow so bookings never overlap unless a test wants them to.
func slot(n int) time.Time {
	base := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	return base.Add(time.Duration(n) * time.Hour)
}

func (e *testEnv) book(t *testing.T, actor Actor, doctorID, patientID primitive.ObjectID, n int) *models.Appointment {
	t.Helper()
	apt, err := e.appointments.Create(context.Background(), actor, CreateAppointmentInput{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      slot(n),
		Reason:    fmt.Sprintf("visit %d", n),
	})
	require.NoError(t, err)
	return apt
}

// failingPatients rejects every profile write.
type failingPatients struct {
	store.PatientRepository
}

func (failingPatients) Update(context.Context, *models.Patient) error {
	return errors.New("write conflict")
}

type patientWritesFail struct {
	*memstore.Store
}

func (s patientWritesFail) Patients() store.PatientRepository {
	return failingPatients{s.Store.Patients()}
}

// failingUsers refuses to delete accounts.
type failingUsers struct {
	store.UserRepository
}

func (failingUsers) Delete(context.Context, primitive.ObjectID) error {
	return errors.New("write conflict")
}

type userDeletesFail struct {
	*memstore.Store
}

func (s userDeletesFail) Users() store.UserRepository {
	return failingUsers{s.Store.Users()}
}

func notificationTypes(inbox *Inbox) []string {
	types := make([]string, 0, len(inbox.Notifications))
	for _, n := range inbox.Notifications {
		types = append(types, n.Type)
	}
	return types
}
