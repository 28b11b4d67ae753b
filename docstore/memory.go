package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryDoc struct {
	body      map[string]any
	createdAt time.Time
}

// Memory is an in-process Store used for tests and demo mode.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]memoryDoc
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]memoryDoc)}
}

func (m *Memory) Create(_ context.Context, collection, id string, doc map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string]memoryDoc)
		m.docs[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return ErrConflict
	}
	coll[id] = memoryDoc{body: Merge(doc, nil), createdAt: time.Now()}
	return nil
}

func (m *Memory) Get(_ context.Context, collection, id string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Merge(d.body, nil), nil
}

func (m *Memory) Update(_ context.Context, collection, id string, patch map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	d.body = Merge(d.body, patch)
	m.docs[collection][id] = d
	return Merge(d.body, nil), nil
}

func (m *Memory) List(_ context.Context, collection string, limit, offset int) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		doc memoryDoc
	}
	entries := make([]entry, 0, len(m.docs[collection]))
	for _, d := range m.docs[collection] {
		entries = append(entries, entry{doc: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].doc.createdAt.After(entries[j].doc.createdAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []map[string]any{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, Merge(e.doc.body, nil))
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
