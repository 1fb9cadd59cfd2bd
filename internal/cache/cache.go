// Package cache provides a SQLite-backed TTL cache for search API
// responses, so re-runs and checkpoint resumes do not re-spend quota on
// queries already answered.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

// DefaultTTL is the default time-to-live for cached entries (30 days).
const DefaultTTL = 720 * time.Hour

// FetchFunc fetches data from an external source on a cache miss.
type FetchFunc[T any] func() (T, error)

// DB manages the SQLite database connection for caching.
type DB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

var (
	globalCache *DB
	globalOnce  sync.Once
)

// Global returns the singleton cache instance, opening the database at
// cache.dbfile on first use and creating all tables.
func Global() (*DB, error) {
	var initErr error
	globalOnce.Do(func() {
		dbPath := viper.GetString("cache.dbfile")
		if dbPath == "" {
			dbPath = "./cache.db"
		}
		globalCache, initErr = Open(dbPath)
		if initErr != nil {
			return
		}
		for _, schema := range allSchemas {
			if err := globalCache.CreateTable(schema); err != nil {
				initErr = fmt.Errorf("failed to create cache table: %w", err)
				return
			}
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return globalCache, nil
}

// ResetGlobal closes and resets the singleton. Primarily for tests.
func ResetGlobal() error {
	if globalCache != nil {
		if err := globalCache.Close(); err != nil {
			return err
		}
	}
	globalCache = nil
	globalOnce = sync.Once{}
	return nil
}

// Open creates a DB instance and opens the database connection.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	return &DB{db: db, path: dbPath}, nil
}

// CreateTable creates a table using the provided schema.
func (c *DB) CreateTable(schema string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get retrieves a cached value. Returns (zero, false, nil) on a miss or an
// expired entry.
func Get[T any](c *DB, table, key string, ttl time.Duration) (T, bool, error) {
	var zero T

	c.mu.RLock()
	defer c.mu.RUnlock()

	var data string
	var cachedAt time.Time
	query := fmt.Sprintf("SELECT data, cached_at FROM %s WHERE cache_key = ?", table)
	err := c.db.QueryRow(query, key).Scan(&data, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	if ttl > 0 && time.Since(cachedAt) > ttl {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return zero, false, fmt.Errorf("corrupt cache entry for %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores a value, replacing any existing entry for the key.
func Put[T any](c *DB, table, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (cache_key, data, cached_at) VALUES (?, ?, ?)", table)
	if _, err := c.db.Exec(query, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// GetOrFetch returns the cached value for key, or calls fetch, stores the
// result and returns it. Cache read/write errors are logged and degraded to
// a plain fetch; the cache is an optimization, never a dependency.
func GetOrFetch[T any](c *DB, table, key string, fetch FetchFunc[T]) (T, error) {
	ttl := TTL()

	cached, hit, err := Get[T](c, table, key, ttl)
	if err != nil {
		slog.Warn("Cache read failed, fetching fresh", "table", table, "error", err)
	} else if hit {
		return cached, nil
	}

	value, err := fetch()
	if err != nil {
		return value, err
	}

	if err := Put(c, table, key, value); err != nil {
		slog.Warn("Cache write failed", "table", table, "error", err)
	}
	return value, nil
}

// TTL returns the configured cache time-to-live.
func TTL() time.Duration {
	ttl := viper.GetDuration("cache.ttl")
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
