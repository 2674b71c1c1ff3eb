// Package localstore provides durable key/value storage for identity and
// derived collection snapshots. It is the server-side analogue of browser
// local storage: small string payloads, synchronous reads, best-effort
// durability. When the backing database cannot be opened the store degrades
// to in-memory for the lifetime of the process; callers never see an error
// on the read/write path.
package localstore

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const schema = `CREATE TABLE IF NOT EXISTS local_store (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Store is a write-through key/value store. All reads are served from
// memory; writes go to memory first and to the database best-effort.
type Store struct {
	db     *sql.DB // nil when degraded to memory-only
	mem    map[string]string
	mu     sync.RWMutex
	logger *logging.ChanneledLogger
}

// New opens the store at the given path. A libsql:// URL routes to the
// remote driver, anything else is treated as a sqlite file path. Open
// failures are logged and degrade to memory-only; New never fails.
func New(path string, logger *logging.ChanneledLogger) *Store {
	s := &Store{
		mem:    make(map[string]string),
		logger: logger,
	}

	driver := "sqlite3"
	if strings.HasPrefix(path, "libsql://") || strings.HasPrefix(path, "https://") {
		driver = "libsql"
	}

	db, err := sql.Open(driver, path)
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		if logger != nil {
			logger.Store().Warn("Durable storage unavailable, degrading to in-memory", "path", path, "error", err)
		}
		return s
	}

	if _, err := db.Exec(schema); err != nil {
		if logger != nil {
			logger.Store().Warn("Durable storage schema setup failed, degrading to in-memory", "error", err)
		}
		db.Close()
		return s
	}

	s.db = db
	s.loadAll()
	return s
}

// loadAll hydrates the in-memory map from the database at startup.
func (s *Store) loadAll() {
	start := time.Now()
	rows, err := s.db.Query(`SELECT key, value FROM local_store`)
	if err != nil {
		if s.logger != nil {
			s.logger.Store().Warn("Failed to hydrate local store", "error", err)
		}
		return
	}
	defer rows.Close()

	count := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		s.mem[key] = value
		count++
	}

	if s.logger != nil {
		s.logger.Store().Info("Local store hydrated", "entries", count, "duration", time.Since(start))
	}
}

// Durable reports whether writes survive a restart.
func (s *Store) Durable() bool {
	return s.db != nil
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, found := s.mem[key]
	return value, found
}

// Set stores value under key, write-through to the database when durable.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.mem[key] = value
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	_, err := s.db.Exec(
		`INSERT INTO local_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil && s.logger != nil {
		s.logger.Store().Warn("Durable write failed", "key", key, "error", err)
	}
}

// Delete removes key from the store.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	if _, err := s.db.Exec(`DELETE FROM local_store WHERE key = ?`, key); err != nil && s.logger != nil {
		s.logger.Store().Warn("Durable delete failed", "key", key, "error", err)
	}
}

// DeletePrefix removes every key beginning with prefix.
func (s *Store) DeletePrefix(prefix string) {
	s.mu.Lock()
	for key := range s.mem {
		if strings.HasPrefix(key, prefix) {
			delete(s.mem, key)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	// Keys contain underscores, which LIKE treats as wildcards.
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	if _, err := s.db.Exec(`DELETE FROM local_store WHERE key LIKE ? ESCAPE '\'`, escaped+"%"); err != nil && s.logger != nil {
		s.logger.Store().Warn("Durable prefix delete failed", "prefix", prefix, "error", err)
	}
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
