package registry

import (
	"context"
	"fmt"
	"sync"

	"botvac-bridge/internal/robot"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu  sync.RWMutex
	ids map[string]robot.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]robot.Identity)}
}

func (m *MemoryStore) Save(ctx context.Context, id robot.Identity) error {
	if id.Serial == "" {
		return fmt.Errorf("identity has no serial")
	}
	id.Traits = append([]string(nil), id.Traits...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id.Serial] = id
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, serial string) (robot.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.ids[serial]
	if !ok {
		return robot.Identity{}, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	id.Traits = append([]string(nil), id.Traits...)
	return id, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]robot.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]robot.Identity, 0, len(m.ids))
	for _, id := range m.ids {
		id.Traits = append([]string(nil), id.Traits...)
		out = append(out, id)
	}
	sortBySerial(out)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ids[serial]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	delete(m.ids, serial)
	return nil
}

func (m *MemoryStore) SetPersistentMaps(ctx context.Context, serial string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.ids[serial]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	id.HasPersistentMaps = enabled
	m.ids[serial] = id
	return nil
}
