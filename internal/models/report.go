package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Done reports whether the report reached a final state.
func (s ReportStatus) Done() bool {
	return s == ReportCompleted || s == ReportFailed
}

const (
	ReportSummary        = "summary"
	ReportAppointments   = "appointments"
	ReportPrescriptions  = "prescriptions"
	ReportMedicalRecords = "medical-records"
	ReportComprehensive  = "comprehensive"
	ReportDoctorActivity = "doctor-activity"
)

// ValidReportType reports whether t names a known report layout.
func ValidReportType(t string) bool {
	switch t {
	case ReportSummary, ReportAppointments, ReportPrescriptions, ReportMedicalRecords, ReportComprehensive, ReportDoctorActivity:
		return true
	}
	return false
}

type DateRange struct {
	From *time.Time `bson:"from,omitempty" json:"from,omitempty"`
	To   *time.Time `bson:"to,omitempty" json:"to,omitempty"`
}

// Contains reports whether t falls inside the range. Open ends match anything.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

type ReportDocument struct {
	URL      string `bson:"url" json:"url"`
	Filename string `bson:"filename" json:"filename"`
	Size     int64  `bson:"size" json:"size"`
}

type MedicalReport struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Patient     *primitive.ObjectID `bson:"patient,omitempty" json:"patient,omitempty"`
	Doctor      *primitive.ObjectID `bson:"doctor,omitempty" json:"doctor,omitempty"`
	ReportType  string              `bson:"reportType" json:"reportType"`
	Title       string              `bson:"title" json:"title"`
	Range       DateRange           `bson:"range" json:"range"`
	Status      ReportStatus        `bson:"status" json:"status"`
	Document    *ReportDocument     `bson:"document,omitempty" json:"document,omitempty"`
	Error       string              `bson:"error,omitempty" json:"error,omitempty"`
	RequestedBy primitive.ObjectID  `bson:"requestedBy" json:"requestedBy"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
	CompletedAt *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}
