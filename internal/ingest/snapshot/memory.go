package snapshot

import (
	"context"
	"sort"
	"sync"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]types.ScanSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]types.ScanSnapshot)}
}

func (m *MemoryStore) Write(_ context.Context, snap types.ScanSnapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[types.SnapshotKey(snap.CourseID)] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Read(_ context.Context, courseID string) (*types.ScanSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.items[types.SnapshotKey(courseID)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MemoryStore) Remove(_ context.Context, courseID string) error {
	m.mu.Lock()
	delete(m.items, types.SnapshotKey(courseID))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]types.ScanSnapshot, error) {
	m.mu.RLock()
	out := make([]types.ScanSnapshot, 0, len(m.items))
	for _, snap := range m.items {
		out = append(out, snap)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}
