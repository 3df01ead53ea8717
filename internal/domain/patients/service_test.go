package patients

import (
	"context"
	"testing"
)

type mockClinicRepo struct {
	clinics map[string]*Clinic
	created []*Clinic
}

func newMockClinicRepo(ids ...string) *mockClinicRepo {
	m := &mockClinicRepo{clinics: make(map[string]*Clinic)}
	for _, id := range ids {
		m.clinics[id] = &Clinic{ClinicID: id, Name: "Clinic " + id}
	}
	return m
}

func (m *mockClinicRepo) Create(_ context.Context, c *Clinic) error {
	if _, ok := m.clinics[c.ClinicID]; ok {
		return ErrAlreadyExists
	}
	m.clinics[c.ClinicID] = c
	m.created = append(m.created, c)
	return nil
}

func (m *mockClinicRepo) Get(_ context.Context, clinicID string) (*Clinic, error) {
	c, ok := m.clinics[clinicID]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return c, nil
}

type mockPatientRepo struct {
	created []*Patient
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.created = append(m.created, p)
	return nil
}

func (m *mockPatientRepo) Get(_ context.Context, clinicID, patientID string) (*Patient, error) {
	for _, p := range m.created {
		if p.ClinicID == clinicID && p.PatientID == patientID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) ListByClinic(_ context.Context, clinicID string, _ ListOptions) (*PatientPage, error) {
	page := &PatientPage{}
	for _, p := range m.created {
		if p.ClinicID == clinicID {
			page.Patients = append(page.Patients, p)
		}
	}
	return page, nil
}

func TestService_CreateClinic_Validation(t *testing.T) {
	clinics := newMockClinicRepo()
	svc := NewService(clinics, &mockPatientRepo{})

	tests := []struct {
		name     string
		clinicID string
		title    string
	}{
		{"missing id", "", "Northside Family Practice"},
		{"missing name", "c1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateClinic(context.Background(), tt.clinicID, tt.title, "admin-1")
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if len(clinics.created) != 0 {
		t.Errorf("expected no repo writes for invalid input, got %d", len(clinics.created))
	}
}

func TestService_CreateClinic(t *testing.T) {
	clinics := newMockClinicRepo()
	svc := NewService(clinics, &mockPatientRepo{})

	c, err := svc.CreateClinic(context.Background(), "c1", "Northside Family Practice", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ClinicID != "c1" || c.Name != "Northside Family Practice" {
		t.Errorf("unexpected clinic: %+v", c)
	}
	if c.CreatedBy != "admin-1" {
		t.Errorf("expected creator attribution, got %q", c.CreatedBy)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestService_CreatePatient_RequiresName(t *testing.T) {
	patients := &mockPatientRepo{}
	svc := NewService(newMockClinicRepo("c1"), patients)

	_, err := svc.CreatePatient(context.Background(), "c1", "dr-1", CreatePatientInput{})
	if err == nil {
		t.Fatal("expected error for nameless patient")
	}
	if len(patients.created) != 0 {
		t.Error("expected no repo write for invalid input")
	}
}

func TestService_CreatePatient_RejectsMalformedBirthDate(t *testing.T) {
	svc := NewService(newMockClinicRepo("c1"), &mockPatientRepo{})

	_, err := svc.CreatePatient(context.Background(), "c1", "dr-1", CreatePatientInput{
		GivenName: "Ada",
		BirthDate: "03/01/1990",
	})
	if err == nil {
		t.Fatal("expected error for malformed birth date")
	}
}

func TestService_CreatePatient_RequiresClinic(t *testing.T) {
	svc := NewService(newMockClinicRepo(), &mockPatientRepo{})

	_, err := svc.CreatePatient(context.Background(), "c-unknown", "dr-1", CreatePatientInput{GivenName: "Ada"})
	if err != ErrClinicNotFound {
		t.Fatalf("expected ErrClinicNotFound, got %v", err)
	}
}

func TestService_CreatePatient(t *testing.T) {
	patients := &mockPatientRepo{}
	svc := NewService(newMockClinicRepo("c1"), patients)

	p, err := svc.CreatePatient(context.Background(), "c1", "dr-1", CreatePatientInput{
		GivenName:  "Ada",
		FamilyName: "Lovelace",
		BirthDate:  "1990-03-01",
		MRN:        "MRN-0042",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PatientID == "" {
		t.Error("expected generated patient id")
	}
	if p.ClinicID != "c1" {
		t.Errorf("expected clinic c1, got %q", p.ClinicID)
	}
	if p.CreatedBy != "dr-1" {
		t.Errorf("expected creator attribution, got %q", p.CreatedBy)
	}
	if len(patients.created) != 1 {
		t.Fatalf("expected one repo write, got %d", len(patients.created))
	}
}
