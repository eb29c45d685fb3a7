package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/mailer"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
	"github.com/careconnect/careconnect-api/internal/utils"
)

const minPasswordLength = 8

type AccountOptions struct {
	BcryptCost  int
	ResetTTL    time.Duration
	FrontendURL string
}

// AccountService owns users, their role profiles, specializations and the
// password reset flow.
type AccountService struct {
	store        store.Store
	jwt          *utils.JWTManager
	mail         mailer.Sender
	appointments *AppointmentService
	opts         AccountOptions
	log          zerolog.Logger
	now          func() time.Time
}

func NewAccountService(st store.Store, jwt *utils.JWTManager, mail mailer.Sender, appointments *AppointmentService, opts AccountOptions, log zerolog.Logger) *AccountService {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &AccountService{
		store:        st,
		jwt:          jwt,
		mail:         mail,
		appointments: appointments,
		opts:         opts,
		log:          log,
		now:          time.Now,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
	FullName string
	Phone    string
	Address  string
}

// Account is a user together with its role profile.
type Account struct {
	User    *models.User    `json:"user"`
	Doctor  *models.Doctor  `json:"doctor,omitempty"`
	Patient *models.Patient `json:"patient,omitempty"`
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a user and its doctor or patient profile. Only admins
// (allowAdmin) may create admin accounts.
func (s *AccountService) Register(ctx context.Context, in RegisterInput, allowAdmin bool) (*Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Role == "" {
		in.Role = models.RolePatient
	}
	switch {
	case in.Username == "":
		return nil, apperrors.Validation("username is required")
	case !strings.Contains(in.Email, "@"):
		return nil, apperrors.Validation("a valid email is required")
	case len(in.Password) < minPasswordLength:
		return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case !models.ValidRole(in.Role):
		return nil, apperrors.Validation(fmt.Sprintf("unknown role %q", in.Role))
	case in.Role == models.RoleAdmin && !allowAdmin:
		return nil, apperrors.Forbidden("admin accounts can only be created by an admin")
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	acc := &Account{User: &models.User{
		Username:  in.Username,
		Email:     in.Email,
		Password:  hash,
		Role:      in.Role,
		FullName:  in.FullName,
		Phone:     in.Phone,
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Users().Create(ctx, acc.User); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperrors.Conflict("an account with this email or username already exists")
			}
			return fmt.Errorf("create user: %w", err)
		}
		switch acc.User.Role {
		case models.RoleDoctor:
			acc.Doctor = newDoctorProfile(acc.User.ID, now)
			if err := s.store.Doctors().Create(ctx, acc.Doctor); err != nil {
				return fmt.Errorf("create doctor profile: %w", err)
			}
		case models.RolePatient:
			acc.Patient = newPatientProfile(acc.User.ID, now)
			if err := s.store.Patients().Create(ctx, acc.Patient); err != nil {
				return fmt.Errorf("create patient profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user", acc.User.ID.Hex()).Str("role", acc.User.Role).Msg("account registered")
	return acc, nil
}

func newDoctorProfile(userID primitive.ObjectID, now time.Time) *models.Doctor {
	return &models.Doctor{
		User:                  userID,
		Specializations:       []primitive.ObjectID{},
		Qualifications:        []string{},
		Appointments:          []primitive.ObjectID{},
		ExhaustedAppointments: []primitive.ObjectID{},
		PatientsUnderCare:     []primitive.ObjectID{},
		Prescriptions:         []primitive.ObjectID{},
		PatientRecords:        []primitive.ObjectID{},
		Reports:               []primitive.ObjectID{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func newPatientProfile(userID primitive.ObjectID, now time.Time) *models.Patient {
	return &models.Patient{
		User:             userID,
		Allergies:        []string{},
		ConsultedDoctors: []models.ConsultedDoctor{},
		Prescriptions:    []primitive.ObjectID{},
		Records:          []primitive.ObjectID{},
		Reports:          []primitive.ObjectID{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Login accepts an email or username and returns a signed token.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}
	user, err := s.store.Users().FindByLogin(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.jwt.GenerateJWT(user.ID.Hex(), user.Role)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *AccountService) Me(ctx context.Context, actor Actor) (*Account, error) {
	return s.GetUser(ctx, actor.UserID)
}

type UserPatch struct {
	FullName        *string
	Phone           *string
	Address         *string
	CurrentPassword string
	NewPassword     string
}

func (s *AccountService) UpdateMe(ctx context.Context, actor Actor, patch UserPatch) (*models.User, error) {
	user, err := s.store.Users().FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	if patch.FullName != nil {
		user.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.Address != nil {
		user.Address = *patch.Address
	}
	if patch.NewPassword != "" {
		if !utils.CheckPasswordHash(patch.CurrentPassword, user.Password) {
			return nil, apperrors.Unauthorized("current password is incorrect")
		}
		if len(patch.NewPassword) < minPasswordLength {
			return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		}
		if user.Password, err = utils.HashPassword(patch.NewPassword, s.opts.BcryptCost); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

type DoctorProfilePatch struct {
	Specializations *[]primitive.ObjectID
	Qualifications  *[]string
	Experience      *int
	ConsultationFee *float64
	Bio             *string
}

func (s *AccountService) DoctorProfile(ctx context.Context, actor Actor) (*models.Doctor, error) {
	return doctorByUser(ctx, s.store, actor.UserID)
}

func (s *AccountService) UpdateDoctorProfile(ctx context.Context, actor Actor, patch DoctorProfilePatch) (*models.Doctor, error) {
	doctor, err := doctorByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	if patch.Specializations != nil {
		ids := lo.Uniq(*patch.Specializations)
		for _, id := range ids {
			if _, err := s.store.Specializations().FindByID(ctx, id); err != nil {
				return nil, lookupErr(err, "specialization")
			}
		}
		doctor.Specializations = ids
	}
	if patch.Qualifications != nil {
		doctor.Qualifications = *patch.Qualifications
	}
	if patch.Experience != nil {
		if *patch.Experience < 0 {
			return nil, apperrors.Validation("experience cannot be negative")
		}
		doctor.Experience = *patch.Experience
	}
	if patch.ConsultationFee != nil {
		if *patch.ConsultationFee < 0 {
			return nil, apperrors.Validation("consultation fee cannot be negative")
		}
		doctor.ConsultationFee = *patch.ConsultationFee
	}
	if patch.Bio != nil {
		doctor.Bio = *patch.Bio
	}
	doctor.UpdatedAt = s.now().UTC()

	if err := s.store.Doctors().Update(ctx, doctor); err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	return doctor, nil
}

type PatientProfilePatch struct {
	DateOfBirth      *time.Time
	Gender           *string
	BloodGroup       *string
	Allergies        *[]string
	EmergencyContact *models.EmergencyContact
}

func (s *AccountService) PatientProfile(ctx context.Context, actor Actor) (*models.Patient, error) {
	return patientByUser(ctx, s.store, actor.UserID)
}

func (s *AccountService) UpdatePatientProfile(ctx context.Context, actor Actor, patch PatientProfilePatch) (*models.Patient, error) {
	patient, err := patientByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	if patch.DateOfBirth != nil {
		if patch.DateOfBirth.After(s.now()) {
			return nil, apperrors.Validation("date of birth cannot be in the future")
		}
		dob := patch.DateOfBirth.UTC()
		patient.DateOfBirth = &dob
	}
	if patch.Gender != nil {
		patient.Gender = *patch.Gender
	}
	if patch.BloodGroup != nil {
		patient.BloodGroup = strings.ToUpper(*patch.BloodGroup)
	}
	if patch.Allergies != nil {
		patient.Allergies = *patch.Allergies
	}
	if patch.EmergencyContact != nil {
		patient.EmergencyContact = patch.EmergencyContact
	}
	patient.UpdatedAt = s.now().UTC()

	if err := s.store.Patients().Update(ctx, patient); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return patient, nil
}

// DoctorListing is a doctor profile with the public parts of its user.
type DoctorListing struct {
	models.Doctor
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// PatientListing is a patient profile with the contact parts of its user.
type PatientListing struct {
	models.Patient
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// ListDoctors returns every doctor, optionally only those with the given
// specialization.
func (s *AccountService) ListDoctors(ctx context.Context, specialization *primitive.ObjectID) ([]DoctorListing, error) {
	doctors, err := s.store.Doctors().List(ctx, store.DoctorFilter{Specialization: specialization})
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return s.doctorListings(ctx, doctors), nil
}

// ConsultedDoctors returns the doctors the patient currently has open
// appointments with.
func (s *AccountService) ConsultedDoctors(ctx context.Context, actor Actor) ([]DoctorListing, error) {
	patient, err := patientByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(patient.ConsultedDoctors) == 0 {
		return []DoctorListing{}, nil
	}
	ids := lo.Map(patient.ConsultedDoctors, func(c models.ConsultedDoctor, _ int) primitive.ObjectID { return c.Doctor })
	doctors, err := s.store.Doctors().List(ctx, store.DoctorFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return s.doctorListings(ctx, doctors), nil
}

// PatientsUnderCare returns the patients the doctor currently treats.
func (s *AccountService) PatientsUnderCare(ctx context.Context, actor Actor) ([]PatientListing, error) {
	doctor, err := doctorByUser(ctx, s.store, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(doctor.PatientsUnderCare) == 0 {
		return []PatientListing{}, nil
	}
	patients, err := s.store.Patients().List(ctx, store.PatientFilter{IDs: doctor.PatientsUnderCare})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	out := make([]PatientListing, 0, len(patients))
	for _, p := range patients {
		item := PatientListing{Patient: p}
		if u, err := s.store.Users().FindByID(ctx, p.User); err == nil {
			item.FullName, item.Email, item.Phone = u.FullName, u.Email, u.Phone
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *AccountService) doctorListings(ctx context.Context, doctors []models.Doctor) []DoctorListing {
	out := make([]DoctorListing, 0, len(doctors))
	for _, d := range doctors {
		item := DoctorListing{Doctor: d}
		if u, err := s.store.Users().FindByID(ctx, d.User); err == nil {
			item.FullName, item.Email, item.Phone = u.FullName, u.Email, u.Phone
		}
		out = append(out, item)
	}
	return out
}

func (s *AccountService) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	if role != "" && !models.ValidRole(role) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown role %q", role))
	}
	users, err := s.store.Users().List(ctx, store.UserFilter{Role: role})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (s *AccountService) GetUser(ctx context.Context, id primitive.ObjectID) (*Account, error) {
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	acc := &Account{User: user}
	switch user.Role {
	case models.RoleDoctor:
		if acc.Doctor, err = s.store.Doctors().FindByUser(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load doctor profile: %w", err)
		}
	case models.RolePatient:
		if acc.Patient, err = s.store.Patients().FindByUser(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load patient profile: %w", err)
		}
	}
	return acc, nil
}

// DeleteUser removes a user, its profile and every appointment of that
// profile. Appointments go through the appointment service so the other
// party's indexes are cleaned up as well. The other parties are told once the
// deletion has committed; the deleted user is not.
func (s *AccountService) DeleteUser(ctx context.Context, actor Actor, id primitive.ObjectID) error {
	if id == actor.UserID {
		return apperrors.Conflict("you cannot delete your own account")
	}
	var removed []*removal
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		removed = nil
		acc, err := s.GetUser(ctx, id)
		if err != nil {
			return err
		}

		var f store.AppointmentFilter
		switch {
		case acc.Doctor != nil:
			f.Doctor = &acc.Doctor.ID
		case acc.Patient != nil:
			f.Patient = &acc.Patient.ID
		}
		if f.Doctor != nil || f.Patient != nil {
			apts, err := s.store.Appointments().List(ctx, f)
			if err != nil {
				return fmt.Errorf("list appointments: %w", err)
			}
			for _, apt := range apts {
				r, err := s.appointments.remove(ctx, actor, apt.ID)
				if err != nil {
					return fmt.Errorf("delete appointment %s: %w", apt.ID.Hex(), err)
				}
				removed = append(removed, r)
			}
		}

		if acc.Doctor != nil {
			if err := s.store.Doctors().Delete(ctx, acc.Doctor.ID); err != nil {
				return fmt.Errorf("delete doctor profile: %w", err)
			}
		}
		if acc.Patient != nil {
			if err := s.store.Patients().Delete(ctx, acc.Patient.ID); err != nil {
				return fmt.Errorf("delete patient profile: %w", err)
			}
		}
		if err := s.store.Users().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("user", id.Hex()).Str("by", actor.UserID.Hex()).Int("appointments", len(removed)).Msg("account deleted")
	for _, r := range removed {
		s.appointments.announce(ctx, actor, r.apt, r.doctor, r.patient, models.NotifyAppointmentDeleted, id)
	}
	return nil
}

func (s *AccountService) ListSpecializations(ctx context.Context) ([]models.Specialization, error) {
	list, err := s.store.Specializations().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specializations: %w", err)
	}
	if list == nil {
		list = []models.Specialization{}
	}
	return list, nil
}

func (s *AccountService) CreateSpecialization(ctx context.Context, name, description string) (*models.Specialization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	sp := &models.Specialization{Name: name, Description: description, CreatedAt: s.now().UTC()}
	if err := s.store.Specializations().Create(ctx, sp); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.Conflict(fmt.Sprintf("specialization %q already exists", name))
		}
		return nil, fmt.Errorf("create specialization: %w", err)
	}
	return sp, nil
}

// DeleteSpecialization removes a specialization and unlinks it from every
// doctor that lists it.
func (s *AccountService) DeleteSpecialization(ctx context.Context, id primitive.ObjectID) error {
	return s.store.WithTransaction(ctx, func(ctx context.Context) error {
		doctors, err := s.store.Doctors().List(ctx, store.DoctorFilter{Specialization: &id})
		if err != nil {
			return fmt.Errorf("list doctors: %w", err)
		}
		for i := range doctors {
			d := &doctors[i]
			d.Specializations = lo.Without(d.Specializations, id)
			if err := s.store.Doctors().Update(ctx, d); err != nil {
				return fmt.Errorf("update doctor: %w", err)
			}
		}
		if err := s.store.Specializations().Delete(ctx, id); err != nil {
			return lookupErr(err, "specialization")
		}
		return nil
	})
}

// RequestReset mails a reset link when email belongs to an account. The
// outcome is never reported to the caller.
func (s *AccountService) RequestReset(ctx context.Context, email string) error {
	user, err := s.store.Users().FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debug().Msg("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	token, hash, err := utils.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expires := s.now().UTC().Add(s.opts.ResetTTL)
	user.ResetPasswordToken = hash
	user.ResetPasswordExpires = &expires
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.opts.FrontendURL, "/"), token)
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Reset your CareConnect password",
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n\nIf you did not ask for this, ignore this email.\n",
			lo.Ternary(user.FullName != "", user.FullName, user.Username), s.opts.ResetTTL, link),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user", user.ID.Hex()).Msg("password reset mail not sent")
	}
	return nil
}

// VerifyResetToken reports whether token is known and unexpired.
func (s *AccountService) VerifyResetToken(ctx context.Context, token string) error {
	_, err := s.userForToken(ctx, token)
	return err
}

// ResetPassword sets a new password and burns the token.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	user, err := s.userForToken(ctx, token)
	if err != nil {
		return err
	}
	if user.Password, err = utils.HashPassword(password, s.opts.BcryptCost); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.ClearResetToken()
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *AccountService) userForToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperrors.Validation("reset token is invalid or has expired")
	}
	user, err := s.store.Users().FindByResetToken(ctx, utils.HashResetToken(token), s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Validation("reset token is invalid or has expired")
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return user, nil
}
