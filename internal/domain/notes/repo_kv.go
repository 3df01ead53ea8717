package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinnotes/clinnotes/internal/platform/keyspace"
	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
	"github.com/clinnotes/clinnotes/pkg/pagination"
)

// scanBatch is the page size for internal prefix scans. Identity
// lookups filter every scanned item before limiting, so they walk the
// partition in batches until exhaustion rather than trusting a single
// truncated page.
const scanBatch = 100

type kvRepo struct {
	store kvstore.Store
	now   func() time.Time
}

// NewKVRepo builds the Repository on the ordered key-value store.
func NewKVRepo(store kvstore.Store) Repository {
	return &kvRepo{store: store, now: time.Now}
}

func (r *kvRepo) Create(ctx context.Context, clinicID, patientID, authorID, authorName string, input CreateInput) (*Note, error) {
	now := r.now().UTC()
	n := &Note{
		NoteID:        uuid.NewString(),
		ClinicID:      clinicID,
		PatientID:     patientID,
		StudyDate:     input.StudyDate,
		Title:         input.Title,
		Content:       input.Content,
		NoteType:      input.NoteType,
		Tags:          input.Tags,
		Attachments:   input.Attachments,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     authorID,
		CreatedByName: authorName,
		UpdatedBy:     authorID,
		UpdatedByName: authorName,
	}

	attrs, err := noteAttributes(n)
	if err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}
	err = r.store.PutIfAbsent(ctx, kvstore.Item{Key: r.noteKey(clinicID, patientID, n.StudyDate, n.NoteID), Attributes: attrs})
	if errors.Is(err, kvstore.ErrConditionFailed) {
		// Generated ids collide astronomically rarely, but the write is
		// still conditional so a collision can never clobber a record.
		return nil, fmt.Errorf("note id collision on %s: %w", n.NoteID, err)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *kvRepo) GetByID(ctx context.Context, clinicID, patientID, noteID string) (*Note, error) {
	q := kvstore.Query{
		Partition:  keyspace.PatientPartition(clinicID, patientID),
		SortPrefix: keyspace.NotePrefix,
		Descending: true,
		Limit:      scanBatch,
	}
	for {
		res, err := r.store.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, item := range res.Items {
			n, err := noteFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("decode note at %s: %w", item.Key.Sort, err)
			}
			if n.NoteID == noteID && !n.Deleted() {
				return n, nil
			}
		}
		if res.LastKey == nil {
			return nil, ErrNotFound
		}
		q.StartAfter = res.LastKey
	}
}

func (r *kvRepo) List(ctx context.Context, clinicID, patientID string, opts ListOptions) (*Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = pagination.DefaultLimit
	}
	partition := keyspace.PatientPartition(clinicID, patientID)
	q := kvstore.Query{
		Partition:  partition,
		SortPrefix: keyspace.NotePrefix,
		Descending: true,
		Limit:      opts.Limit + 1,
		StartAfter: keyspace.DecodeCursor(opts.Cursor, partition),
	}
	if opts.StudyDateFrom != "" {
		q.SortFrom = keyspace.NoteDateFloor(opts.StudyDateFrom)
	}
	if opts.StudyDateTo != "" {
		q.SortTo = keyspace.NoteDateCeil(opts.StudyDateTo)
	}

	// Keep scanning until limit+1 items survive the filters or the
	// range is exhausted, so tag-filtered pages fill completely and
	// hasMore stays accurate. The extra kept item only proves another
	// page exists; it is dropped before the page is returned.
	var kept []kvstore.Item
	for len(kept) <= opts.Limit {
		res, err := r.store.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, item := range res.Items {
			n, err := noteFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("decode note at %s: %w", item.Key.Sort, err)
			}
			if n.Deleted() || !matchesTag(n, opts.Tag) {
				continue
			}
			kept = append(kept, item)
			if len(kept) > opts.Limit {
				break
			}
		}
		if res.LastKey == nil || len(kept) > opts.Limit {
			break
		}
		q.StartAfter = res.LastKey
	}

	page := &Page{}
	if len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
		page.HasMore = true
		page.NextCursor = keyspace.EncodeCursor(kept[len(kept)-1].Key)
	}
	for _, item := range kept {
		n, err := noteFromItem(item)
		if err != nil {
			return nil, fmt.Errorf("decode note at %s: %w", item.Key.Sort, err)
		}
		page.Notes = append(page.Notes, n)
	}
	return page, nil
}

func (r *kvRepo) Update(ctx context.Context, clinicID, patientID, noteID, studyDate, editorID, editorName string, input UpdateInput) (*Note, error) {
	key := r.noteKey(clinicID, patientID, studyDate, noteID)
	now := r.now().UTC()

	patch := map[string]interface{}{
		"version":         input.ExpectedVersion + 1,
		"updated_at":      now.Format(time.RFC3339Nano),
		"updated_by":      editorID,
		"updated_by_name": editorName,
	}
	if input.Title != nil {
		patch["title"] = *input.Title
	}
	if input.Content != nil {
		patch["content"] = *input.Content
	}
	if input.NoteType != nil {
		patch["note_type"] = *input.NoteType
	}
	if input.Tags != nil {
		patch["tags"] = *input.Tags
	}
	if input.Attachments != nil {
		patch["attachments"] = *input.Attachments
	}

	guard := kvstore.Guard{
		NumberEquals: map[string]int64{"version": input.ExpectedVersion},
		Absent:       []string{"deleted_at"},
	}
	item, err := r.store.Update(ctx, key, patch, guard)
	if errors.Is(err, kvstore.ErrConditionFailed) {
		return nil, r.explainUpdateFailure(ctx, key, noteID, input.ExpectedVersion)
	}
	if err != nil {
		return nil, err
	}
	return noteFromItem(item)
}

// explainUpdateFailure re-reads the record once to tell a vanished or
// tombstoned note apart from a live note at a different version. A
// failing re-read propagates rather than guessing.
func (r *kvRepo) explainUpdateFailure(ctx context.Context, key kvstore.Key, noteID string, expected int64) error {
	item, err := r.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrItemNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	n, err := noteFromItem(item)
	if err != nil {
		return fmt.Errorf("decode note at %s: %w", key.Sort, err)
	}
	if n.Deleted() {
		return ErrNotFound
	}
	return &ConflictError{NoteID: noteID, Expected: expected, Current: n.Version}
}

func (r *kvRepo) SoftDelete(ctx context.Context, clinicID, patientID, noteID, studyDate, actorID string) error {
	key := r.noteKey(clinicID, patientID, studyDate, noteID)
	patch := map[string]interface{}{
		"deleted_at": r.now().UTC().Format(time.RFC3339Nano),
		"deleted_by": actorID,
	}
	_, err := r.store.Update(ctx, key, patch, kvstore.Guard{Absent: []string{"deleted_at"}})
	if errors.Is(err, kvstore.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

func (r *kvRepo) HardDelete(ctx context.Context, clinicID, patientID, noteID, studyDate string) error {
	return r.store.Delete(ctx, r.noteKey(clinicID, patientID, studyDate, noteID))
}

func (r *kvRepo) noteKey(clinicID, patientID, studyDate, noteID string) kvstore.Key {
	return kvstore.Key{
		Partition: keyspace.PatientPartition(clinicID, patientID),
		Sort:      keyspace.NoteSort(studyDate, noteID),
	}
}

func matchesTag(n *Note, tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
