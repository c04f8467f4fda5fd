package floor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errWriteRefused = errors.New("write refused")

type memoryKV struct {
	values    map[string][]byte
	failWrite bool
	failRead  bool
	writes    int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.failRead {
		return nil, false, errors.New("read refused")
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	if m.failWrite {
		return errWriteRefused
	}
	m.writes++
	m.values[key] = append([]byte(nil), value...)
	return nil
}

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("capture-%d", s.next), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func baseTime() time.Time {
	return time.UnixMilli(1700000000000)
}

func mustRegistry(t *testing.T, placements ...TablePlacement) *Registry {
	t.Helper()
	registry, err := NewRegistry(placements)
	require.NoError(t, err)
	return registry
}

func mustStore(t *testing.T, registry *Registry, kv KeyValueStore) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Registry: registry, KV: kv})
	require.NoError(t, err)
	return store
}

func placement(id string, column, row int) TablePlacement {
	return TablePlacement{ID: TableID(id), Position: Position{Column: column, Row: row}}
}

// requireInvariants checks the per-state field rules every record must satisfy.
func requireInvariants(t *testing.T, record TableRecord) {
	t.Helper()
	_, known := stateOrder[record.State]
	require.True(t, known, "unknown state %q", record.State)
	switch record.State {
	case StateEating:
		require.True(t, record.Food.Valid(), "eating without food plan")
		require.True(t, record.Drink.Valid(), "eating without drink plan")
		require.True(t, record.HasLastOrder(), "eating without last order")
	case StateEmpty:
		require.Equal(t, NewTableRecord(), record)
	}
	timed := record.State == StateOrderWait || record.State == StateAfterDone
	require.Equal(t, timed, record.HasStateTimer(), "state timer presence in %s", record.State)
}
