package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/edoloughlin/nasc/pkg/engine"
)

// BadgerConfig configures a Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for the database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory disables disk persistence. Useful for tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// KeyPrefix namespaces the store's keys. Default: "nasc/".
	KeyPrefix string

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// BadgerStore persists instance state in an embedded Badger database.
// Each instance is one key, "<prefix><type>/<id>", holding the state JSON.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

// OpenBadger opens or creates a Badger-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger store: path required unless in-memory")
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "nasc/"
	}
	return &BadgerStore{db: db, prefix: prefix}, nil
}

// Load returns the last persisted state for (typ, id), or nil.
func (s *BadgerStore) Load(_ context.Context, typ, id string) (engine.State, error) {
	var state engine.State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(typ, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger load %s:%s: %w", typ, id, err)
	}
	return state, nil
}

// Persist replaces the stored state for (typ, id) with full.
func (s *BadgerStore) Persist(_ context.Context, typ, id string, _, full engine.State) error {
	data, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("badger marshal %s:%s: %w", typ, id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(typ, id), data)
	})
	if err != nil {
		return fmt.Errorf("badger persist %s:%s: %w", typ, id, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) key(typ, id string) []byte {
	return []byte(s.prefix + typ + "/" + id)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
