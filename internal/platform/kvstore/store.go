// Package kvstore defines the ordered key-value store contract the
// repositories are built on: point reads and writes, conditional
// (compare-and-swap) mutations, ascending/descending range queries with
// a continuation key, and an atomic counter increment. Two
// implementations are provided: a Postgres-backed store for production
// and an in-memory store for tests and development.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItemNotFound is returned by Get when no item exists at the key.
	ErrItemNotFound = errors.New("item not found")

	// ErrConditionFailed is returned by PutIfAbsent and Update when the
	// write condition does not hold against current state. The caller is
	// responsible for re-reading to find out why.
	ErrConditionFailed = errors.New("condition failed")
)

// StoreError wraps any other failure from the underlying store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("kvstore: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Key addresses a single item in the composite key space.
type Key struct {
	Partition string `json:"pk"`
	Sort      string `json:"sk"`
}

// Item is a stored record. Attributes hold the entity payload as loose
// JSON values; numeric attributes round-trip as float64.
type Item struct {
	Key        Key
	Attributes map[string]interface{}
	// ExpiresAt, when non-zero, marks the item for expiry. Expired items
	// are invisible to Get and Query.
	ExpiresAt time.Time
}

// Guard is the predicate for a conditional Update: every listed numeric
// attribute must equal its expected value and every listed attribute in
// Absent must be missing or null. An Update against a nonexistent item
// always fails the guard.
type Guard struct {
	NumberEquals map[string]int64
	Absent       []string
}

// Query describes a range scan within a single partition. SortPrefix,
// SortFrom and SortTo each constrain the sort key independently and
// combine with AND; any of them may be empty.
type Query struct {
	Partition  string
	SortPrefix string
	SortFrom   string // inclusive; empty means unbounded below
	SortTo     string // inclusive; empty means unbounded above
	Descending bool
	Limit      int
	// StartAfter resumes a scan strictly past this key, in scan order.
	StartAfter *Key
}

// QueryResult carries one page of a range scan. LastKey is the
// continuation marker: set to the final returned item's key when the
// page was cut by Limit, nil when the scan is exhausted.
type QueryResult struct {
	Items   []Item
	LastKey *Key
}

// Store is the ordered key-value contract. All mutations are
// linearizable at single-key granularity; races between conditional
// writes are resolved by the store, never by the client.
type Store interface {
	// Get returns the live item at key, ErrItemNotFound if absent or
	// expired, or a *StoreError.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes the item unconditionally.
	Put(ctx context.Context, item Item) error

	// PutIfAbsent writes the item only if no live item exists at its
	// key, returning ErrConditionFailed otherwise.
	PutIfAbsent(ctx context.Context, item Item) error

	// Update merges patch into the item's attributes only if guard
	// holds, returning the post-update item. Attributes present in
	// patch replace existing values; a nil patch value clears the
	// attribute. Returns ErrConditionFailed when the guard does not
	// hold or the item is absent.
	Update(ctx context.Context, key Key, patch map[string]interface{}, guard Guard) (Item, error)

	// Delete removes the item unconditionally. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key Key) error

	// Query scans one partition per q, in sort-key order.
	Query(ctx context.Context, q Query) (QueryResult, error)

	// Increment atomically adds 1 to the named numeric attribute,
	// creating the item with the attribute at 1 if absent, and returns
	// the post-increment value. A non-zero ttl sets the item's expiry
	// on creation.
	Increment(ctx context.Context, key Key, attr string, ttl time.Duration) (int64, error)
}
