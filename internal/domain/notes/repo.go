package notes

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no live note matches: the note does not
// exist, is soft-deleted, or the scan over its partition is exhausted.
var ErrNotFound = errors.New("note not found")

// ConflictError reports an optimistic-concurrency failure on update.
// Current is the authoritative persisted version at the time of the
// re-read; the caller retries with it if it still wants the write.
type ConflictError struct {
	NoteID   string
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on note %s: expected %d, current %d", e.NoteID, e.Expected, e.Current)
}

type Repository interface {
	// Create generates the note identity, sets version to 1 and writes
	// conditionally on key absence.
	Create(ctx context.Context, clinicID, patientID, authorID, authorName string, input CreateInput) (*Note, error)

	// GetByID resolves a note by identity alone. The study date is part
	// of the storage location and may be unknown to the caller, so this
	// scans the patient's note range and filters; the scan never stops
	// before the partition is exhausted.
	GetByID(ctx context.Context, clinicID, patientID, noteID string) (*Note, error)

	// List returns one page of live notes in descending study-date
	// order.
	List(ctx context.Context, clinicID, patientID string, opts ListOptions) (*Page, error)

	// Update applies the patch under the condition that the note exists,
	// is not deleted, and carries exactly ExpectedVersion. On condition
	// failure it re-reads to tell ErrNotFound from ConflictError.
	Update(ctx context.Context, clinicID, patientID, noteID, studyDate, editorID, editorName string, input UpdateInput) (*Note, error)

	// SoftDelete tombstones a live note. Missing or already-deleted
	// notes yield ErrNotFound; nothing is physically removed.
	SoftDelete(ctx context.Context, clinicID, patientID, noteID, studyDate, actorID string) error

	// HardDelete physically removes the record. Administrative escape
	// hatch only, never reachable from normal request flow.
	HardDelete(ctx context.Context, clinicID, patientID, noteID, studyDate string) error
}
