package notes

import (
	"encoding/json"
	"time"

	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
)

// Attachment is an opaque descriptor issued by the blob store. The
// note layer stores it verbatim and never opens the referenced object.
type Attachment struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Note is the primary mutable entity. Its storage location is
// (clinicId, patientId, studyDate, noteId); NoteID alone is the
// external identity and must be resolved to a location before any
// mutation. Version starts at 1 and increases by exactly 1 on every
// successful update.
type Note struct {
	NoteID        string       `json:"note_id"`
	ClinicID      string       `json:"clinic_id"`
	PatientID     string       `json:"patient_id"`
	StudyDate     string       `json:"study_date"` // YYYY-MM-DD
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	NoteType      *string      `json:"note_type,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Version       int64        `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CreatedBy     string       `json:"created_by"`
	CreatedByName string       `json:"created_by_name,omitempty"`
	UpdatedBy     string       `json:"updated_by"`
	UpdatedByName string       `json:"updated_by_name,omitempty"`
	DeletedAt     *time.Time   `json:"deleted_at,omitempty"`
	DeletedBy     *string      `json:"deleted_by,omitempty"`
}

// Deleted reports whether the note is tombstoned. Deleted notes are
// invisible to every read and list path and can not be mutated.
func (n *Note) Deleted() bool { return n.DeletedAt != nil }

// CreateInput carries the caller-supplied fields of a new note.
type CreateInput struct {
	StudyDate   string       `json:"study_date"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	NoteType    *string      `json:"note_type,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// UpdateInput is a patch: nil fields are left untouched. ExpectedVersion
// drives the optimistic-concurrency check.
type UpdateInput struct {
	Title           *string       `json:"title,omitempty"`
	Content         *string       `json:"content,omitempty"`
	NoteType        *string       `json:"note_type,omitempty"`
	Tags            *[]string     `json:"tags,omitempty"`
	Attachments     *[]Attachment `json:"attachments,omitempty"`
	ExpectedVersion int64         `json:"expected_version"`
}

// ListOptions select a window of a patient's notes.
type ListOptions struct {
	Limit         int
	Cursor        string
	StudyDateFrom string
	StudyDateTo   string
	Tag           string
}

// Page is one page of a note listing, most recent study date first.
type Page struct {
	Notes      []*Note
	HasMore    bool
	NextCursor string
}

// noteAttributes flattens a note into store attributes via its JSON
// form; noteFromItem inverts it. Numbers round-trip as float64, which
// json.Unmarshal into the typed struct converts back.

func noteAttributes(n *Note) (map[string]interface{}, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func noteFromItem(item kvstore.Item) (*Note, error) {
	raw, err := json.Marshal(item.Attributes)
	if err != nil {
		return nil, err
	}
	var n Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
