package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on a single Postgres table:
//
//	CREATE TABLE clinical_kv (
//	    partition_key TEXT NOT NULL,
//	    sort_key      TEXT NOT NULL,
//	    attributes    JSONB NOT NULL,
//	    expires_at    TIMESTAMPTZ,
//	    PRIMARY KEY (partition_key, sort_key)
//	)
//
// Conditional writes are expressed as SQL predicates so the database
// serializes racing writers; the compare-and-swap never happens client
// side. Expiry is a filter on reads; expired rows are reclaimed by the
// migrator's purge or overwritten in place.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const liveFilter = "(expires_at IS NULL OR expires_at > NOW())"

func (s *PGStore) Get(ctx context.Context, key Key) (Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT attributes, expires_at FROM clinical_kv
		WHERE partition_key = $1 AND sort_key = $2 AND `+liveFilter,
		key.Partition, key.Sort)

	item, err := scanItem(key, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, &StoreError{Op: "get", Err: err}
	}
	return item, nil
}

func (s *PGStore) Put(ctx context.Context, item Item) error {
	attrs, err := json.Marshal(item.Attributes)
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO clinical_kv (partition_key, sort_key, attributes, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition_key, sort_key)
		DO UPDATE SET attributes = EXCLUDED.attributes, expires_at = EXCLUDED.expires_at`,
		item.Key.Partition, item.Key.Sort, attrs, nullableTime(item.ExpiresAt))
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	return nil
}

func (s *PGStore) PutIfAbsent(ctx context.Context, item Item) error {
	attrs, err := json.Marshal(item.Attributes)
	if err != nil {
		return &StoreError{Op: "put-if-absent", Err: err}
	}
	// An expired row still occupies the key; the upsert may reclaim it,
	// but a live row must never be overwritten.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO clinical_kv (partition_key, sort_key, attributes, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition_key, sort_key)
		DO UPDATE SET attributes = EXCLUDED.attributes, expires_at = EXCLUDED.expires_at
		WHERE clinical_kv.expires_at IS NOT NULL AND clinical_kv.expires_at <= NOW()`,
		item.Key.Partition, item.Key.Sort, attrs, nullableTime(item.ExpiresAt))
	if err != nil {
		return &StoreError{Op: "put-if-absent", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, key Key, patch map[string]interface{}, guard Guard) (Item, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return Item{}, &StoreError{Op: "update", Err: err}
	}

	where := []string{"partition_key = $1", "sort_key = $2", liveFilter}
	args := []interface{}{key.Partition, key.Sort, patchJSON}
	n := len(args)
	for attr, want := range guard.NumberEquals {
		where = append(where, fmt.Sprintf("(attributes->>$%d)::bigint = $%d", n+1, n+2))
		args = append(args, attr, want)
		n += 2
	}
	for _, attr := range guard.Absent {
		where = append(where, fmt.Sprintf("NOT (attributes ? $%d::text)", n+1))
		args = append(args, attr)
		n++
	}

	// Null patch values clear attributes; attributes never store nulls,
	// so stripping after the merge implements removal.
	row := s.pool.QueryRow(ctx, `
		UPDATE clinical_kv
		SET attributes = jsonb_strip_nulls(attributes || $3::jsonb)
		WHERE `+strings.Join(where, " AND ")+`
		RETURNING attributes, expires_at`, args...)

	item, err := scanItem(key, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrConditionFailed
	}
	if err != nil {
		return Item{}, &StoreError{Op: "update", Err: err}
	}
	return item, nil
}

func (s *PGStore) Delete(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM clinical_kv WHERE partition_key = $1 AND sort_key = $2`,
		key.Partition, key.Sort)
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, q Query) (QueryResult, error) {
	where := []string{"partition_key = $1", liveFilter}
	args := []interface{}{q.Partition}
	n := 1

	add := func(clause string, v interface{}) {
		n++
		where = append(where, fmt.Sprintf(clause, n))
		args = append(args, v)
	}
	if q.SortPrefix != "" {
		add("starts_with(sort_key, $%d)", q.SortPrefix)
	}
	if q.SortFrom != "" {
		add("sort_key >= $%d", q.SortFrom)
	}
	if q.SortTo != "" {
		add("sort_key <= $%d", q.SortTo)
	}
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	if q.StartAfter != nil {
		if q.Descending {
			add("sort_key < $%d", q.StartAfter.Sort)
		} else {
			add("sort_key > $%d", q.StartAfter.Sort)
		}
	}

	sql := `SELECT sort_key, attributes, expires_at FROM clinical_kv WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY sort_key ` + order
	if q.Limit > 0 {
		// One extra row decides whether a continuation key is emitted.
		n++
		sql += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, q.Limit+1)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return QueryResult{}, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var res QueryResult
	for rows.Next() {
		var (
			sortKey   string
			attrsJSON []byte
			expiresAt *time.Time
		)
		if err := rows.Scan(&sortKey, &attrsJSON, &expiresAt); err != nil {
			return QueryResult{}, &StoreError{Op: "query", Err: err}
		}
		item := Item{Key: Key{Partition: q.Partition, Sort: sortKey}}
		if err := json.Unmarshal(attrsJSON, &item.Attributes); err != nil {
			return QueryResult{}, &StoreError{Op: "query", Err: err}
		}
		if expiresAt != nil {
			item.ExpiresAt = *expiresAt
		}
		res.Items = append(res.Items, item)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, &StoreError{Op: "query", Err: err}
	}

	if q.Limit > 0 && len(res.Items) > q.Limit {
		res.Items = res.Items[:q.Limit]
		last := res.Items[q.Limit-1].Key
		res.LastKey = &last
	}
	return res, nil
}

func (s *PGStore) Increment(ctx context.Context, key Key, attr string, ttl time.Duration) (int64, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	// A leftover expired row restarts the counter at 1 instead of
	// resuming a dead window's count.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO clinical_kv (partition_key, sort_key, attributes, expires_at)
		VALUES ($1, $2, jsonb_build_object($3::text, 1), $4)
		ON CONFLICT (partition_key, sort_key) DO UPDATE SET
			attributes = CASE
				WHEN clinical_kv.expires_at IS NOT NULL AND clinical_kv.expires_at <= NOW()
					THEN jsonb_build_object($3::text, 1)
				ELSE jsonb_set(clinical_kv.attributes, ARRAY[$3::text],
					to_jsonb(COALESCE((clinical_kv.attributes->>$3)::bigint, 0) + 1))
			END,
			expires_at = CASE
				WHEN clinical_kv.expires_at IS NOT NULL AND clinical_kv.expires_at <= NOW()
					THEN EXCLUDED.expires_at
				ELSE clinical_kv.expires_at
			END
		RETURNING (attributes->>$3)::bigint`,
		key.Partition, key.Sort, attr, expiresAt)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, &StoreError{Op: "increment", Err: err}
	}
	return count, nil
}

func scanItem(key Key, row pgx.Row) (Item, error) {
	var (
		attrsJSON []byte
		expiresAt *time.Time
	)
	if err := row.Scan(&attrsJSON, &expiresAt); err != nil {
		return Item{}, err
	}
	item := Item{Key: key}
	if err := json.Unmarshal(attrsJSON, &item.Attributes); err != nil {
		return Item{}, err
	}
	if expiresAt != nil {
		item.ExpiresAt = *expiresAt
	}
	return item, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
