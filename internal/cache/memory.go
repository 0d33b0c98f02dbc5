package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // нулевое значение — без срока жизни
}

// MemoryStore — процессная реализация Store с теми же правилами TTL и
// сериализации, что и у Redis. Используется в окружении local и в тестах.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]memEntry
	prefix string
	now    func() time.Time
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]memEntry),
		prefix: prefix,
		now:    time.Now,
	}
}

// SetClock подменяет источник времени (для тестов TTL).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) key(k string) string { return m.prefix + k }

// lookup возвращает живую запись, попутно вычищая просроченную.
// Вызывается под m.mu.
func (m *MemoryStore) lookup(k string) (memEntry, bool) {
	e, ok := m.items[k]
	if !ok {
		return memEntry{}, false
	}

	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.items, k)
		return memEntry{}, false
	}

	return e, true
}

func (m *MemoryStore) put(k, v string, ttl time.Duration) {
	e := memEntry{value: v}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[k] = e
}

func (m *MemoryStore) Get(_ context.Context, kind Kind, key string) (any, bool, error) {
	m.mu.Lock()
	e, ok := m.lookup(m.key(key))
	m.mu.Unlock()

	if !ok {
		return nil, false, nil
	}

	v, err := decode(kind, e.value)
	if err != nil {
		return nil, false, fmt.Errorf("cache.memory.Get: %w", err)
	}

	return v, true, nil
}

func (m *MemoryStore) Set(_ context.Context, kind Kind, key string, value any, ttl time.Duration) error {
	s, err := encode(kind, value)
	if err != nil {
		return fmt.Errorf("cache.memory.Set: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(m.key(key), s, ttl)

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, m.key(key))

	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(m.key(key))

	return ok, nil
}

func (m *MemoryStore) MSet(_ context.Context, entries []Entry, ttl time.Duration) error {
	encoded := make([]string, len(entries))
	for i, e := range entries {
		s, err := encode(e.Kind, e.Value)
		if err != nil {
			return fmt.Errorf("cache.memory.MSet: key %q: %w", e.Key, err)
		}
		encoded[i] = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range entries {
		m.put(m.key(e.Key), encoded[i], ttl)
	}

	return nil
}

func (m *MemoryStore) MGet(_ context.Context, kind Kind, keys []string) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	raw := make([]*string, len(keys))
	for i, k := range keys {
		if e, ok := m.lookup(m.key(k)); ok {
			v := e.value
			raw[i] = &v
		}
	}
	m.mu.Unlock()

	out := make([]any, len(keys))
	for i, r := range raw {
		if r == nil {
			continue
		}

		d, err := decode(kind, *r)
		if err != nil {
			return nil, fmt.Errorf("cache.memory.MGet: key %q: %w", keys[i], err)
		}
		out[i] = d
	}

	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
