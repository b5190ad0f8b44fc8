package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edoloughlin/nasc/pkg/engine"
)

// SQLDialect selects the placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectPostgreSQL uses $1, $2 placeholders and ON CONFLICT.
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses ? placeholders and ON DUPLICATE KEY UPDATE.
	DialectMySQL
	// DialectSQLite uses ? placeholders and ON CONFLICT.
	DialectSQLite
)

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName string
	dialect   SQLDialect
}

// WithSQLTableName sets the table name for instance storage.
// Default: "nasc_instances".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// SQLStore is a SQL-backed instance store. It works with any database/sql
// compatible driver (PostgreSQL, MySQL, SQLite). Persist is a single atomic
// upsert, so writes for one (type, id) serialize at the database.
// Requires a table with schema:
//
//	CREATE TABLE nasc_instances (
//	    type VARCHAR(128) NOT NULL,
//	    id VARCHAR(128) NOT NULL,
//	    state TEXT NOT NULL,
//	    updated_at TIMESTAMP NOT NULL,
//	    PRIMARY KEY (type, id)
//	);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
}

// NewSQLStore creates a SQL-backed store over an open database handle. The
// caller owns the handle and imports its driver.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName: "nasc_instances",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &SQLStore{db: db, tableName: cfg.tableName, dialect: cfg.dialect}
}

// Load returns the last persisted state for (typ, id), or nil.
func (s *SQLStore) Load(ctx context.Context, typ, id string) (engine.State, error) {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf("SELECT state FROM %s WHERE type = $1 AND id = $2", s.tableName)
	default:
		query = fmt.Sprintf("SELECT state FROM %s WHERE type = ? AND id = ?", s.tableName)
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, typ, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql load %s:%s: %w", typ, id, err)
	}

	var state engine.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("sql decode %s:%s: %w", typ, id, err)
	}
	return state, nil
}

// Persist replaces the stored state for (typ, id) with full.
func (s *SQLStore) Persist(ctx context.Context, typ, id string, _, full engine.State) error {
	data, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("sql marshal %s:%s: %w", typ, id, err)
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`INSERT INTO %s (type, id, state, updated_at) VALUES ($1, $2, $3, NOW())
			ON CONFLICT (type, id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`INSERT INTO %s (type, id, state, updated_at) VALUES (?, ?, ?, NOW())
			ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = NOW()`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`INSERT INTO %s (type, id, state, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (type, id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query, typ, id, data); err != nil {
		return fmt.Errorf("sql persist %s:%s: %w", typ, id, err)
	}
	return nil
}
