package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Doctor struct {
	ID                    primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	User                  primitive.ObjectID   `bson:"user" json:"user"`
	Specializations       []primitive.ObjectID `bson:"specializations" json:"specializations"`
	Qualifications        []string             `bson:"qualifications" json:"qualifications"`
	Experience            int                  `bson:"experience" json:"experience"` // years
	ConsultationFee       float64              `bson:"consultationFee" json:"consultationFee"`
	Bio                   string               `bson:"bio,omitempty" json:"bio,omitempty"`
	Appointments          []primitive.ObjectID `bson:"appointments" json:"appointments"`
	ExhaustedAppointments []primitive.ObjectID `bson:"exhaustedAppointments" json:"exhaustedAppointments"`
	PatientsUnderCare     []primitive.ObjectID `bson:"patientsUnderCare" json:"patientsUnderCare"`
	Prescriptions         []primitive.ObjectID `bson:"prescriptions" json:"prescriptions"`
	PatientRecords        []primitive.ObjectID `bson:"patientRecords" json:"patientRecords"`
	Reports               []primitive.ObjectID `bson:"reports" json:"reports"`
	CreatedAt             time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// ConsultedDoctor pairs a doctor with the open appointments the patient has
// with them.
type ConsultedDoctor struct {
	Doctor       primitive.ObjectID   `bson:"doctor" json:"doctor"`
	Appointments []primitive.ObjectID `bson:"appointments" json:"appointments"`
}

type EmergencyContact struct {
	Name         string `bson:"name" json:"name"`
	Relationship string `bson:"relationship" json:"relationship"`
	Phone        string `bson:"phone" json:"phone"`
}

type Patient struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	User             primitive.ObjectID   `bson:"user" json:"user"`
	DateOfBirth      *time.Time           `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	Gender           string               `bson:"gender,omitempty" json:"gender,omitempty"`
	BloodGroup       string               `bson:"bloodGroup,omitempty" json:"bloodGroup,omitempty"`
	Allergies        []string             `bson:"allergies" json:"allergies"`
	EmergencyContact *EmergencyContact    `bson:"emergencyContact,omitempty" json:"emergencyContact,omitempty"`
	ConsultedDoctors []ConsultedDoctor    `bson:"consultedDoctors" json:"consultedDoctors"`
	Prescriptions    []primitive.ObjectID `bson:"prescriptions" json:"prescriptions"`
	Records          []primitive.ObjectID `bson:"records" json:"records"`
	Reports          []primitive.ObjectID `bson:"reports" json:"reports"`
	CreatedAt        time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// ConsultedEntry returns the consultedDoctors entry for doctor, or nil.
func (p *Patient) ConsultedEntry(doctor primitive.ObjectID) *ConsultedDoctor {
	for i := range p.ConsultedDoctors {
		if p.ConsultedDoctors[i].Doctor == doctor {
			return &p.ConsultedDoctors[i]
		}
	}
	return nil
}

type Specialization struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
