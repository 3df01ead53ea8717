package notes

import (
	"context"
	"fmt"
	"time"
)

const studyDateLayout = "2006-01-02"

// Service validates inputs and resolves note locations before handing
// the work to the repository. Conflict resolution stays with the
// caller: a ConflictError surfaces unchanged, carrying the current
// version to retry with.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, clinicID, patientID, authorID, authorName string, input CreateInput) (*Note, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if err := validStudyDate(input.StudyDate); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, clinicID, patientID, authorID, authorName, input)
}

func (s *Service) Get(ctx context.Context, clinicID, patientID, noteID string) (*Note, error) {
	return s.repo.GetByID(ctx, clinicID, patientID, noteID)
}

func (s *Service) List(ctx context.Context, clinicID, patientID string, opts ListOptions) (*Page, error) {
	if opts.StudyDateFrom != "" {
		if err := validStudyDate(opts.StudyDateFrom); err != nil {
			return nil, err
		}
	}
	if opts.StudyDateTo != "" {
		if err := validStudyDate(opts.StudyDateTo); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, clinicID, patientID, opts)
}

// Update applies a partial update at ExpectedVersion. When the caller
// does not know the note's study date, the identity is resolved to its
// storage location first.
func (s *Service) Update(ctx context.Context, clinicID, patientID, noteID, studyDate, editorID, editorName string, input UpdateInput) (*Note, error) {
	if input.ExpectedVersion < 1 {
		return nil, fmt.Errorf("expected_version must be at least 1")
	}
	if studyDate == "" {
		n, err := s.repo.GetByID(ctx, clinicID, patientID, noteID)
		if err != nil {
			return nil, err
		}
		studyDate = n.StudyDate
	} else if err := validStudyDate(studyDate); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, clinicID, patientID, noteID, studyDate, editorID, editorName, input)
}

func (s *Service) SoftDelete(ctx context.Context, clinicID, patientID, noteID, studyDate, actorID string) error {
	if studyDate == "" {
		n, err := s.repo.GetByID(ctx, clinicID, patientID, noteID)
		if err != nil {
			return err
		}
		studyDate = n.StudyDate
	} else if err := validStudyDate(studyDate); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, clinicID, patientID, noteID, studyDate, actorID)
}

func validStudyDate(d string) error {
	if _, err := time.Parse(studyDateLayout, d); err != nil {
		return fmt.Errorf("study date must be YYYY-MM-DD: %q", d)
	}
	return nil
}
