package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no-show"
)

const DefaultAppointmentDuration = 30 // minutes

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusScheduled, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusScheduled: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Valid reports whether s is a known appointment status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses have no outbound transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Releases reports whether reaching s removes the appointment from the
// doctor/patient relationship indexes.
func (s AppointmentStatus) Releases() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an appointment in status from may move to to.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type StatusChange struct {
	Status    AppointmentStatus  `bson:"status" json:"status"`
	ChangedBy primitive.ObjectID `bson:"changedBy" json:"changedBy"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

type Appointment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Doctor        primitive.ObjectID `bson:"doctor" json:"doctor"`
	Patient       primitive.ObjectID `bson:"patient" json:"patient"`
	Date          time.Time          `bson:"date" json:"date"`
	Duration      int                `bson:"duration" json:"duration"` // minutes
	Reason        string             `bson:"reason" json:"reason"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Status        AppointmentStatus  `bson:"status" json:"status"`
	StatusHistory []StatusChange     `bson:"statusHistory" json:"statusHistory"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// SetStatus moves the appointment to status and appends the change to the
// history log. Callers check CanTransition first.
func (a *Appointment) SetStatus(status AppointmentStatus, actor primitive.ObjectID, notes string, at time.Time) {
	a.Status = status
	a.StatusHistory = append(a.StatusHistory, StatusChange{
		Status:    status,
		ChangedBy: actor,
		Notes:     notes,
		Timestamp: at,
	})
	a.UpdatedAt = at
}
