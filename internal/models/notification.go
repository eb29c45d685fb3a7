package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	NotifyAppointmentCreated   = "appointment_created"
	NotifyAppointmentUpdated   = "appointment_updated"
	NotifyAppointmentConfirmed = "appointment_confirmed"
	NotifyAppointmentCancelled = "appointment_cancelled"
	NotifyAppointmentCompleted = "appointment_completed"
	NotifyAppointmentDeleted   = "appointment_deleted"
	NotifyPrescriptionIssued   = "prescription_issued"
	NotifyRecordAdded          = "record_added"
	NotifyReportReady          = "report_ready"
	NotifyReportFailed         = "report_failed"
)

type Notification struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient   primitive.ObjectID  `bson:"recipient" json:"recipient"` // user id
	Type        string              `bson:"type" json:"type"`
	Message     string              `bson:"message" json:"message"`
	Appointment *primitive.ObjectID `bson:"appointment,omitempty" json:"appointment,omitempty"`
	Read        bool                `bson:"read" json:"read"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}
