package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// BadgerStore keeps entries in an embedded Badger directory.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	opts := badger.DefaultOptions(absPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	logger.Info("badger opened", zap.String("path", absPath))
	return &BadgerStore{db: db, logger: logger}, nil
}

// Get returns the value stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return data, true, nil
}

// Set writes value under key in one transaction.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs one value-log garbage collection pass.
func (s *BadgerStore) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}

// StartGC runs value-log garbage collection every interval until ctx is done or the
// returned function is called. The returned function waits for the loop to exit, so
// callers stop it before Close.
func (s *BadgerStore) StartGC(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	gcCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-gcCtx.Done():
				return
			case <-ticker.C:
				if err := s.RunGC(); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Error("badger gc failed", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("badger gc routine started", zap.Duration("interval", interval))
	return func() {
		cancel()
		<-done
	}
}
