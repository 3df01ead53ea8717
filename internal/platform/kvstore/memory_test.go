package kvstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_GetPut(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "METADATA"}

	_, err := s.Get(ctx, key)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	if err := s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"name": "alpha"}}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	it, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if it.Attributes["name"] != "alpha" {
		t.Errorf("expected name alpha, got %v", it.Attributes["name"])
	}

	// Put replaces wholesale.
	if err := s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"other": true}}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	it, _ = s.Get(ctx, key)
	if _, ok := it.Attributes["name"]; ok {
		t.Error("expected name attribute to be gone after replace")
	}
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "METADATA"}

	if err := s.PutIfAbsent(ctx, Item{Key: key, Attributes: map[string]interface{}{"v": float64(1)}}); err != nil {
		t.Fatalf("first put-if-absent failed: %v", err)
	}
	err := s.PutIfAbsent(ctx, Item{Key: key, Attributes: map[string]interface{}{"v": float64(2)}})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}

	it, _ := s.Get(ctx, key)
	if it.Attributes["v"] != float64(1) {
		t.Errorf("losing write must not change the item, got v=%v", it.Attributes["v"])
	}
}

func TestMemoryStore_PutIfAbsent_ExpiredSlot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "COUNTER"}

	if err := s.Put(ctx, Item{
		Key:        key,
		Attributes: map[string]interface{}{"v": float64(1)},
		ExpiresAt:  time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// An expired item does not block a new write.
	if err := s.PutIfAbsent(ctx, Item{Key: key, Attributes: map[string]interface{}{"v": float64(9)}}); err != nil {
		t.Fatalf("expected put-if-absent over expired item to succeed, got %v", err)
	}
}

func TestMemoryStore_Update_Guards(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "METADATA"}

	// Update against an absent item fails the guard.
	_, err := s.Update(ctx, key, map[string]interface{}{"x": float64(1)}, Guard{})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for absent item, got %v", err)
	}

	s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"version": float64(3), "title": "a"}})

	// Wrong expected number.
	_, err = s.Update(ctx, key, map[string]interface{}{"title": "b"}, Guard{NumberEquals: map[string]int64{"version": 2}})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for stale version, got %v", err)
	}
	it, _ := s.Get(ctx, key)
	if it.Attributes["title"] != "a" {
		t.Error("failed update must not mutate the item")
	}

	// Matching guard applies the patch.
	updated, err := s.Update(ctx, key,
		map[string]interface{}{"title": "b", "version": float64(4)},
		Guard{NumberEquals: map[string]int64{"version": 3}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Attributes["title"] != "b" || updated.Attributes["version"] != float64(4) {
		t.Errorf("unexpected post-update attributes: %+v", updated.Attributes)
	}

	// Absent guard fails when the attribute is present.
	s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"deleted_at": "2024-01-01T00:00:00Z"}})
	_, err = s.Update(ctx, key, map[string]interface{}{"x": float64(1)}, Guard{Absent: []string{"deleted_at"}})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for present attribute, got %v", err)
	}
}

func TestMemoryStore_Update_NilClearsAttribute(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "METADATA"}
	s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"a": "x", "b": "y"}})

	updated, err := s.Update(ctx, key, map[string]interface{}{"a": nil}, Guard{})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := updated.Attributes["a"]; ok {
		t.Error("expected attribute a to be cleared")
	}
	if updated.Attributes["b"] != "y" {
		t.Error("expected attribute b to survive")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "P#1", Sort: "METADATA"}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete of absent key failed: %v", err)
	}

	s.Put(ctx, Item{Key: key, Attributes: map[string]interface{}{"v": float64(1)}})
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound after delete, got %v", err)
	}
}

func seedNotes(t *testing.T, s *MemoryStore, partition string, n int) []string {
	t.Helper()
	ctx := context.Background()
	sorts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sk := fmt.Sprintf("NOTE#2024-03-%02d#note-%d", i+1, i)
		sorts = append(sorts, sk)
		if err := s.Put(ctx, Item{
			Key:        Key{Partition: partition, Sort: sk},
			Attributes: map[string]interface{}{"seq": float64(i)},
		}); err != nil {
			t.Fatalf("seed put failed: %v", err)
		}
	}
	return sorts
}

func TestMemoryStore_Query_PrefixAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	partition := "CLINIC#c1#PATIENT#p1"
	sorts := seedNotes(t, s, partition, 5)

	// Another family in the same partition must not match the prefix.
	s.Put(ctx, Item{Key: Key{Partition: partition, Sort: "METADATA"}, Attributes: map[string]interface{}{}})

	res, err := s.Query(ctx, Query{Partition: partition, SortPrefix: "NOTE#"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(res.Items))
	}
	for i, it := range res.Items {
		if it.Key.Sort != sorts[i] {
			t.Errorf("item %d: expected %s, got %s", i, sorts[i], it.Key.Sort)
		}
	}
	if res.LastKey != nil {
		t.Error("expected nil LastKey on exhausted scan")
	}

	desc, _ := s.Query(ctx, Query{Partition: partition, SortPrefix: "NOTE#", Descending: true})
	if desc.Items[0].Key.Sort != sorts[4] {
		t.Errorf("expected descending scan to start at %s, got %s", sorts[4], desc.Items[0].Key.Sort)
	}
}

func TestMemoryStore_Query_RangeBounds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	partition := "CLINIC#c1#PATIENT#p1"
	seedNotes(t, s, partition, 5)

	res, err := s.Query(ctx, Query{
		Partition: partition,
		SortFrom:  "NOTE#2024-03-02",
		SortTo:    "NOTE#2024-03-04#~",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected 3 items in range, got %d", len(res.Items))
	}
}

func TestMemoryStore_Query_ContinuationWalk(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	partition := "CLINIC#c1#PATIENT#p1"
	sorts := seedNotes(t, s, partition, 5)

	var got []string
	var after *Key
	pages := 0
	for {
		res, err := s.Query(ctx, Query{
			Partition:  partition,
			SortPrefix: "NOTE#",
			Limit:      2,
			StartAfter: after,
		})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		for _, it := range res.Items {
			got = append(got, it.Key.Sort)
		}
		pages++
		if res.LastKey == nil {
			break
		}
		after = res.LastKey
	}
	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	if len(got) != len(sorts) {
		t.Fatalf("expected %d items, got %d", len(sorts), len(got))
	}
	for i := range sorts {
		if got[i] != sorts[i] {
			t.Errorf("item %d: expected %s, got %s", i, sorts[i], got[i])
		}
	}
}

func TestMemoryStore_Query_StartAfterDeletedKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	partition := "CLINIC#c1#PATIENT#p1"
	sorts := seedNotes(t, s, partition, 4)

	// The continuation key's item vanishes between pages.
	s.Delete(ctx, Key{Partition: partition, Sort: sorts[1]})

	res, err := s.Query(ctx, Query{
		Partition:  partition,
		SortPrefix: "NOTE#",
		StartAfter: &Key{Partition: partition, Sort: sorts[1]},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0].Key.Sort != sorts[2] {
		t.Errorf("expected resume at %s, got %s", sorts[2], res.Items[0].Key.Sort)
	}
}

func TestMemoryStore_Query_SkipsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	partition := "RATELIMIT#api#u1"

	s.Put(ctx, Item{
		Key:        Key{Partition: partition, Sort: "WINDOW#100"},
		Attributes: map[string]interface{}{"count": float64(3)},
		ExpiresAt:  time.Now().Add(-time.Second),
	})
	s.Put(ctx, Item{
		Key:        Key{Partition: partition, Sort: "WINDOW#200"},
		Attributes: map[string]interface{}{"count": float64(1)},
		ExpiresAt:  time.Now().Add(time.Hour),
	})

	res, err := s.Query(ctx, Query{Partition: partition, SortPrefix: "WINDOW#"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Key.Sort != "WINDOW#200" {
		t.Errorf("expected only the live window, got %+v", res.Items)
	}
}

func TestMemoryStore_Increment(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "RATELIMIT#api#u1", Sort: "WINDOW#100"}

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, key, "count", time.Hour)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != want {
			t.Errorf("expected count %d, got %d", want, got)
		}
	}
}

func TestMemoryStore_Increment_ResetsAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Partition: "RATELIMIT#api#u1", Sort: "WINDOW#100"}

	s.Put(ctx, Item{
		Key:        key,
		Attributes: map[string]interface{}{"count": float64(7)},
		ExpiresAt:  time.Now().Add(-time.Second),
	})

	got, err := s.Increment(ctx, key, "count", time.Hour)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected counter to restart at 1 over expired item, got %d", got)
	}
}
