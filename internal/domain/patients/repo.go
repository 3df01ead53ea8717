package patients

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no patient record exists in the
	// caller's clinic scope.
	ErrNotFound = errors.New("patient not found")

	// ErrClinicNotFound is returned when the clinic record is absent.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrAlreadyExists is returned by the conditional creates when a
	// record already occupies the key.
	ErrAlreadyExists = errors.New("record already exists")
)

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	Get(ctx context.Context, clinicID string) (*Clinic, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, clinicID, patientID string) (*Patient, error)
	ListByClinic(ctx context.Context, clinicID string, opts ListOptions) (*PatientPage, error)
}
