package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PrescriptionActive    = "active"
	PrescriptionCompleted = "completed"
	PrescriptionCancelled = "cancelled"
)

type Medication struct {
	Name         string `bson:"name" json:"name" binding:"required"`
	Dosage       string `bson:"dosage" json:"dosage" binding:"required"`
	Frequency    string `bson:"frequency" json:"frequency" binding:"required"`
	Duration     string `bson:"duration,omitempty" json:"duration,omitempty"`
	Instructions string `bson:"instructions,omitempty" json:"instructions,omitempty"`
}

type Prescription struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Doctor      primitive.ObjectID  `bson:"doctor" json:"doctor"`
	Patient     primitive.ObjectID  `bson:"patient" json:"patient"`
	Appointment *primitive.ObjectID `bson:"appointment,omitempty" json:"appointment,omitempty"`
	Medications []Medication        `bson:"medications" json:"medications"`
	Diagnosis   string              `bson:"diagnosis,omitempty" json:"diagnosis,omitempty"`
	Notes       string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Status      string              `bson:"status" json:"status"`
	IssuedAt    time.Time           `bson:"issuedAt" json:"issuedAt"`
	ValidUntil  *time.Time          `bson:"validUntil,omitempty" json:"validUntil,omitempty"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Filename string `bson:"filename" json:"filename"`
	Size     int64  `bson:"size" json:"size"`
}

type PatientRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Patient     primitive.ObjectID `bson:"patient" json:"patient"`
	Doctor      primitive.ObjectID `bson:"doctor" json:"doctor"`
	RecordType  string             `bson:"recordType" json:"recordType"` // e.g. "consultation", "lab-result", "imaging"
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Diagnosis   string             `bson:"diagnosis,omitempty" json:"diagnosis,omitempty"`
	Treatment   string             `bson:"treatment,omitempty" json:"treatment,omitempty"`
	Attachments []Attachment       `bson:"attachments" json:"attachments"`
	VisitDate   time.Time          `bson:"visitDate" json:"visitDate"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
