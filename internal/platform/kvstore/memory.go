package kvstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store backed by per-partition sorted
// slices. It is intended for tests and development; it honors the full
// contract, including guard semantics, expiry and continuation keys.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string][]memItem
}

type memItem struct {
	sort      string
	attrs     map[string]interface{}
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string][]memItem)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.find(key)
	if !ok || expired(it.expiresAt) {
		return Item{}, ErrItemNotFound
	}
	return Item{Key: key, Attributes: copyAttrs(it.attrs), ExpiresAt: it.expiresAt}, nil
}

func (s *MemoryStore) Put(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(item.Key, memItem{sort: item.Key.Sort, attrs: copyAttrs(item.Attributes), expiresAt: item.ExpiresAt})
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.find(item.Key); ok && !expired(it.expiresAt) {
		return ErrConditionFailed
	}
	s.set(item.Key, memItem{sort: item.Key.Sort, attrs: copyAttrs(item.Attributes), expiresAt: item.ExpiresAt})
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key Key, patch map[string]interface{}, guard Guard) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.find(key)
	if !ok || expired(it.expiresAt) {
		return Item{}, ErrConditionFailed
	}
	for attr, want := range guard.NumberEquals {
		got, ok := numberAttr(it.attrs, attr)
		if !ok || got != want {
			return Item{}, ErrConditionFailed
		}
	}
	for _, attr := range guard.Absent {
		if v, ok := it.attrs[attr]; ok && v != nil {
			return Item{}, ErrConditionFailed
		}
	}

	attrs := copyAttrs(it.attrs)
	for k, v := range patch {
		if v == nil {
			delete(attrs, k)
			continue
		}
		attrs[k] = v
	}
	s.set(key, memItem{sort: key.Sort, attrs: attrs, expiresAt: it.expiresAt})
	return Item{Key: key, Attributes: copyAttrs(attrs), ExpiresAt: it.expiresAt}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.partitions[key.Partition]
	i, ok := s.search(items, key.Sort)
	if ok {
		s.partitions[key.Partition] = append(items[:i], items[i+1:]...)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) (QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []memItem
	for _, it := range s.partitions[q.Partition] {
		if expired(it.expiresAt) {
			continue
		}
		if q.SortPrefix != "" && !hasPrefix(it.sort, q.SortPrefix) {
			continue
		}
		if q.SortFrom != "" && it.sort < q.SortFrom {
			continue
		}
		if q.SortTo != "" && it.sort > q.SortTo {
			continue
		}
		matched = append(matched, it)
	}
	if q.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if q.StartAfter != nil {
		start := 0
		for i, it := range matched {
			if it.sort == q.StartAfter.Sort {
				start = i + 1
				break
			}
			// Continuation keys may point at items deleted since the
			// previous page; resume at the first item past them.
			if q.Descending && it.sort < q.StartAfter.Sort {
				start = i
				break
			}
			if !q.Descending && it.sort > q.StartAfter.Sort {
				start = i
				break
			}
			start = i + 1
		}
		matched = matched[start:]
	}

	var res QueryResult
	for _, it := range matched {
		res.Items = append(res.Items, Item{
			Key:        Key{Partition: q.Partition, Sort: it.sort},
			Attributes: copyAttrs(it.attrs),
			ExpiresAt:  it.expiresAt,
		})
		if q.Limit > 0 && len(res.Items) == q.Limit {
			if len(res.Items) < len(matched) {
				last := res.Items[len(res.Items)-1].Key
				res.LastKey = &last
			}
			break
		}
	}
	return res, nil
}

func (s *MemoryStore) Increment(_ context.Context, key Key, attr string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.find(key)
	if !ok || expired(it.expiresAt) {
		expiresAt := time.Time{}
		if ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		s.set(key, memItem{sort: key.Sort, attrs: map[string]interface{}{attr: float64(1)}, expiresAt: expiresAt})
		return 1, nil
	}
	n, _ := numberAttr(it.attrs, attr)
	n++
	attrs := copyAttrs(it.attrs)
	attrs[attr] = float64(n)
	s.set(key, memItem{sort: key.Sort, attrs: attrs, expiresAt: it.expiresAt})
	return n, nil
}

// find and set assume the caller holds the lock.

func (s *MemoryStore) find(key Key) (memItem, bool) {
	items := s.partitions[key.Partition]
	if i, ok := s.search(items, key.Sort); ok {
		return items[i], true
	}
	return memItem{}, false
}

func (s *MemoryStore) set(key Key, it memItem) {
	items := s.partitions[key.Partition]
	i, ok := s.search(items, key.Sort)
	if ok {
		items[i] = it
	} else {
		items = append(items, memItem{})
		copy(items[i+1:], items[i:])
		items[i] = it
	}
	s.partitions[key.Partition] = items
}

func (s *MemoryStore) search(items []memItem, sortKey string) (int, bool) {
	i := sort.Search(len(items), func(i int) bool { return items[i].sort >= sortKey })
	return i, i < len(items) && items[i].sort == sortKey
}

func expired(t time.Time) bool {
	return !t.IsZero() && time.Now().After(t)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func copyAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func numberAttr(attrs map[string]interface{}, name string) (int64, bool) {
	switch v := attrs[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
