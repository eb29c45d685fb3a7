package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID primitive.ObjectID
	Role   string
}

func (a Actor) IsAdmin() bool   { return a.Role == models.RoleAdmin }
func (a Actor) IsDoctor() bool  { return a.Role == models.RoleDoctor }
func (a Actor) IsPatient() bool { return a.Role == models.RolePatient }

// lookupErr turns a store miss into a NotFound naming resource and wraps
// anything else with context.
func lookupErr(err error, resource string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(resource)
	}
	return fmt.Errorf("load %s: %w", resource, err)
}

func doctorByUser(ctx context.Context, st store.Store, userID primitive.ObjectID) (*models.Doctor, error) {
	d, err := st.Doctors().FindByUser(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "doctor profile")
	}
	return d, nil
}

func patientByUser(ctx context.Context, st store.Store, userID primitive.ObjectID) (*models.Patient, error) {
	p, err := st.Patients().FindByUser(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "patient profile")
	}
	return p, nil
}
