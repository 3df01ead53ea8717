package patients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clinnotes/clinnotes/internal/platform/keyspace"
	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
)

type clinicKVRepo struct {
	store kvstore.Store
}

func NewClinicKVRepo(store kvstore.Store) ClinicRepository {
	return &clinicKVRepo{store: store}
}

func (r *clinicKVRepo) Create(ctx context.Context, c *Clinic) error {
	attrs, err := toAttributes(c)
	if err != nil {
		return err
	}
	key := kvstore.Key{Partition: keyspace.ClinicPartition(c.ClinicID), Sort: keyspace.MetadataSort}
	err = r.store.PutIfAbsent(ctx, kvstore.Item{Key: key, Attributes: attrs})
	if errors.Is(err, kvstore.ErrConditionFailed) {
		return ErrAlreadyExists
	}
	return err
}

func (r *clinicKVRepo) Get(ctx context.Context, clinicID string) (*Clinic, error) {
	key := kvstore.Key{Partition: keyspace.ClinicPartition(clinicID), Sort: keyspace.MetadataSort}
	item, err := r.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrItemNotFound) {
		return nil, ErrClinicNotFound
	}
	if err != nil {
		return nil, err
	}
	var c Clinic
	if err := fromAttributes(item.Attributes, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// patientKVRepo stores each patient twice: the record itself under its
// own partition with the fixed METADATA sort key, and an index copy
// under the clinic partition so one range query lists a clinic's
// patients.
type patientKVRepo struct {
	store kvstore.Store
}

func NewPatientKVRepo(store kvstore.Store) PatientRepository {
	return &patientKVRepo{store: store}
}

func (r *patientKVRepo) Create(ctx context.Context, p *Patient) error {
	attrs, err := toAttributes(p)
	if err != nil {
		return err
	}
	record := kvstore.Key{
		Partition: keyspace.PatientPartition(p.ClinicID, p.PatientID),
		Sort:      keyspace.MetadataSort,
	}
	err = r.store.PutIfAbsent(ctx, kvstore.Item{Key: record, Attributes: attrs})
	if errors.Is(err, kvstore.ErrConditionFailed) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	index := kvstore.Key{
		Partition: keyspace.ClinicPartition(p.ClinicID),
		Sort:      keyspace.PatientSort(p.PatientID),
	}
	return r.store.Put(ctx, kvstore.Item{Key: index, Attributes: attrs})
}

func (r *patientKVRepo) Get(ctx context.Context, clinicID, patientID string) (*Patient, error) {
	key := kvstore.Key{
		Partition: keyspace.PatientPartition(clinicID, patientID),
		Sort:      keyspace.MetadataSort,
	}
	item, err := r.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p Patient
	if err := fromAttributes(item.Attributes, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientKVRepo) ListByClinic(ctx context.Context, clinicID string, opts ListOptions) (*PatientPage, error) {
	q := kvstore.Query{
		Partition:  keyspace.ClinicPartition(clinicID),
		SortPrefix: keyspace.PatientPrefix,
		Limit:      opts.Limit + 1,
	}
	if opts.AfterPatientID != "" {
		q.StartAfter = &kvstore.Key{
			Partition: q.Partition,
			Sort:      keyspace.PatientSort(opts.AfterPatientID),
		}
	}
	res, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	page := &PatientPage{}
	items := res.Items
	if len(items) > opts.Limit {
		items = items[:opts.Limit]
		page.HasMore = true
	}
	for _, item := range items {
		var p Patient
		if err := fromAttributes(item.Attributes, &p); err != nil {
			return nil, fmt.Errorf("decode patient at %s: %w", item.Key.Sort, err)
		}
		page.Patients = append(page.Patients, &p)
	}
	return page, nil
}

func toAttributes(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func fromAttributes(attrs map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
