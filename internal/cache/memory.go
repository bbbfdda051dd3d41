package cache

import (
	"context"
	"sync"
)

// MemoryMarkers дневные маркеры в памяти процесса; сбрасываются при рестарте.
type MemoryMarkers struct {
	mu      sync.Mutex
	markers map[string]string
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{markers: make(map[string]string)}
}

func (m *MemoryMarkers) Marker(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[name], nil
}

func (m *MemoryMarkers) SetMarker(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[name] = value
	return nil
}
