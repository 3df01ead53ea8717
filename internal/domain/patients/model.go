package patients

import "time"

// Clinic is the tenant record. Its identifier is the isolation
// boundary every storage key is namespaced under.
type Clinic struct {
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// Patient belongs to exactly one clinic and is identified by
// (clinicId, patientId).
type Patient struct {
	PatientID  string    `json:"patient_id"`
	ClinicID   string    `json:"clinic_id"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
	BirthDate  string    `json:"birth_date,omitempty"` // YYYY-MM-DD
	MRN        string    `json:"mrn,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
}

// CreatePatientInput carries the caller-supplied fields of a new
// patient record.
type CreatePatientInput struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	BirthDate  string `json:"birth_date,omitempty"`
	MRN        string `json:"mrn,omitempty"`
}

// ListOptions page through a clinic's patients in patient-id order.
// AfterPatientID resumes a listing strictly past that patient.
type ListOptions struct {
	Limit          int
	AfterPatientID string
}

// PatientPage is one page of a clinic's patient listing.
type PatientPage struct {
	Patients []*Patient `json:"patients"`
	HasMore  bool       `json:"has_more"`
}
