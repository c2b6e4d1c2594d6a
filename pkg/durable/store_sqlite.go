package durable

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3" // Register the sqlite3 driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);`

// SQLite is a durable backend storing all namespaces in one SQLite table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_synchronous=FULL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database, and a single
	// writer is all a node needs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Open returns a handle on namespace.
func (s *SQLite) Open(namespace string) (Store, error) {
	if err := validName(namespace); err != nil {
		return nil, err
	}
	return &sqliteStore{db: s.db, namespace: namespace}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteStore struct {
	db        *sql.DB
	namespace string
	closed    bool
}

func (s *sqliteStore) Exists(key string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM kv WHERE namespace = ? AND key = ?`,
		s.namespace, key).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Get(key string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE namespace = ? AND key = ?`,
		s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *sqliteStore) Put(key string, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := validName(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		s.namespace, key, value)
	return err
}

func (s *sqliteStore) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Opener = (*SQLite)(nil)
	_ Store  = (*sqliteStore)(nil)
)
