package floor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultStorageKey is the key the floor snapshot is persisted under.
const DefaultStorageKey = "yakiniku-tables"

var (
	errMissingRegistry = errors.New("registry is required")
	errMissingKV       = errors.New("key-value store is required")
)

// KeyValueStore persists opaque values under string keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Transition computes the next record for a table.
type Transition func(TableRecord) (TableRecord, error)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Registry *Registry
	KV       KeyValueStore
	Key      string
	Logger   *zap.Logger
}

// Store owns the in-memory record of every registered table and persists it as one
// snapshot. Store is not safe for concurrent use; Service serializes access.
type Store struct {
	registry *Registry
	kv       KeyValueStore
	key      string
	logger   *zap.Logger
	records  map[TableID]TableRecord
	orphans  map[string]json.RawMessage
}

// NewStore returns a store with every registered table empty. Call Load to restore
// persisted state.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Registry == nil {
		return nil, newServiceError(opStoreNew, "missing_registry", errMissingRegistry)
	}
	if cfg.KV == nil {
		return nil, newServiceError(opStoreNew, "missing_kv", errMissingKV)
	}
	key := cfg.Key
	if key == "" {
		key = DefaultStorageKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	store := &Store{
		registry: cfg.Registry,
		kv:       cfg.KV,
		key:      key,
		logger:   logger,
	}
	store.reset()
	return store, nil
}

func (s *Store) reset() {
	s.records = make(map[TableID]TableRecord, s.registry.Len())
	s.orphans = make(map[string]json.RawMessage)
	for _, id := range s.registry.IDs() {
		s.records[id] = NewTableRecord()
	}
}

// Load restores the persisted snapshot. A missing or corrupt snapshot leaves every
// table empty; only a failing read is returned as an error.
func (s *Store) Load(ctx context.Context) error {
	s.reset()

	data, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		logError(s.logger, opLoad, "kv_read_failed", err, zap.String("key", s.key))
		return newServiceError(opLoad, "kv_read_failed", err)
	}
	if !found {
		s.logger.Info("no floor snapshot stored, starting empty", zap.String("key", s.key))
		return nil
	}

	snapshot, err := DecodeSnapshot(data, s.registry)
	if err != nil {
		s.logger.Warn("discarding corrupt floor snapshot", zap.String("key", s.key), zap.Error(err))
		return nil
	}
	for id, record := range snapshot.Records {
		s.records[id] = record
	}
	s.orphans = snapshot.Orphans
	if len(s.orphans) > 0 {
		s.logger.Info("floor snapshot contains unregistered tables", zap.Int("orphans", len(s.orphans)))
	}
	return nil
}

// Save writes every record, orphans included, under the storage key in one write.
func (s *Store) Save(ctx context.Context) error {
	data, err := EncodeSnapshot(s.records, s.orphans)
	if err != nil {
		logError(s.logger, opSave, "encode_failed", err)
		return newServiceError(opSave, "encode_failed", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		logError(s.logger, opSave, "kv_write_failed", err, zap.String("key", s.key))
		return newServiceError(opSave, "kv_write_failed", err)
	}
	return nil
}

// Get returns the record of a registered table.
func (s *Store) Get(id TableID) (TableRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return TableRecord{}, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return record, nil
}

// Records returns a copy of every record keyed by table id.
func (s *Store) Records() map[TableID]TableRecord {
	copied := make(map[TableID]TableRecord, len(s.records))
	for id, record := range s.records {
		copied[id] = record
	}
	return copied
}

// Apply runs transition against one record and saves the floor. A rejected
// transition leaves the store untouched. A failed save keeps the new record in
// memory and returns the save error alongside it.
func (s *Store) Apply(ctx context.Context, id TableID, transition Transition) (TableRecord, error) {
	current, err := s.Get(id)
	if err != nil {
		return TableRecord{}, err
	}
	updated, err := transition(current)
	if err != nil {
		return current, err
	}
	s.records[id] = updated
	if err := s.Save(ctx); err != nil {
		return updated, err
	}
	s.logger.Debug("table updated",
		zap.String("table", id.String()),
		zap.String("from", string(current.State)),
		zap.String("to", string(updated.State)))
	return updated, nil
}
