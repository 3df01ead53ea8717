package patients

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	clinics  ClinicRepository
	patients PatientRepository
}

func NewService(clinics ClinicRepository, patients PatientRepository) *Service {
	return &Service{clinics: clinics, patients: patients}
}

func (s *Service) CreateClinic(ctx context.Context, clinicID, name, actorID string) (*Clinic, error) {
	if clinicID == "" {
		return nil, fmt.Errorf("clinic_id is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	c := &Clinic{
		ClinicID:  clinicID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		CreatedBy: actorID,
	}
	if err := s.clinics.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetClinic(ctx context.Context, clinicID string) (*Clinic, error) {
	return s.clinics.Get(ctx, clinicID)
}

// CreatePatient registers a patient in the caller's clinic. The clinic
// record must already exist; patient ids are generated.
func (s *Service) CreatePatient(ctx context.Context, clinicID, actorID string, input CreatePatientInput) (*Patient, error) {
	if input.GivenName == "" && input.FamilyName == "" {
		return nil, fmt.Errorf("a patient name is required")
	}
	if input.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", input.BirthDate); err != nil {
			return nil, fmt.Errorf("birth date must be YYYY-MM-DD: %q", input.BirthDate)
		}
	}
	if _, err := s.clinics.Get(ctx, clinicID); err != nil {
		return nil, err
	}

	p := &Patient{
		PatientID:  uuid.NewString(),
		ClinicID:   clinicID,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
		BirthDate:  input.BirthDate,
		MRN:        input.MRN,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  actorID,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, clinicID, patientID string) (*Patient, error) {
	return s.patients.Get(ctx, clinicID, patientID)
}

func (s *Service) ListPatients(ctx context.Context, clinicID string, opts ListOptions) (*PatientPage, error) {
	return s.patients.ListByClinic(ctx, clinicID, opts)
}
