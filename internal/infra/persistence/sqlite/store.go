// Package sqlite provides a SQLite-backed persistent store. It reuses the
// in-memory store for transaction semantics and snapshots the full state to a
// single table as JSON after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"archivecore/internal/infra/persistence/memory"
	"archivecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "archivecore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketDataverses   = "dataverses"
	bucketDatasets     = "datasets"
	bucketVersionUsers = "version_users"
	bucketFailureLog   = "failure_log"
)

var buckets = []string{bucketDataverses, bucketDatasets, bucketVersionUsers, bucketFailureLog}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		if err := decodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func decodeBucket(snapshot *memory.Snapshot, bucket string, payload []byte) error {
	var err error
	switch bucket {
	case bucketDataverses:
		err = json.Unmarshal(payload, &snapshot.Dataverses)
	case bucketDatasets:
		err = json.Unmarshal(payload, &snapshot.Datasets)
	case bucketVersionUsers:
		err = json.Unmarshal(payload, &snapshot.VersionUsers)
	case bucketFailureLog:
		err = json.Unmarshal(payload, &snapshot.FailureLog)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func encodeBucket(snapshot memory.Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case bucketDataverses:
		return json.Marshal(snapshot.Dataverses)
	case bucketDatasets:
		return json.Marshal(snapshot.Datasets)
	case bucketVersionUsers:
		return json.Marshal(snapshot.VersionUsers)
	case bucketFailureLog:
		return json.Marshal(snapshot.FailureLog)
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		data, err := encodeBucket(snapshot, bucket)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.Exec(`INSERT INTO state (bucket, payload) VALUES (?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn in memory, then snapshots to SQLite on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
