// Package sqlite provides an exact-match reply cache backed by SQLite.
package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/misaki-ai/misaki/pkg/models"
)

// Cache stores generated replies keyed by prompt hash.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS reply_entries (
	prompt_hash TEXT PRIMARY KEY,
	engine TEXT NOT NULL,
	reply TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and default TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// HashPrompt computes a SHA-256 hash of the prompt text.
func HashPrompt(prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%x", h)
}

// Get retrieves a cached reply and the engine that produced it. The second
// return is false when the entry is absent or expired.
func (c *Cache) Get(promptHash string) (reply, engine string, ok bool) {
	var createdAt time.Time
	var ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT reply, engine, created_at, ttl_seconds FROM reply_entries WHERE prompt_hash = ?`,
		promptHash,
	).Scan(&reply, &engine, &createdAt, &ttlSeconds)

	if err != nil {
		c.misses.Add(1)
		return "", "", false
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if time.Since(createdAt) > ttl {
		c.misses.Add(1)
		return "", "", false
	}

	c.hits.Add(1)
	return reply, engine, true
}

// Put stores a reply in the cache.
func (c *Cache) Put(promptHash, engine, reply string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO reply_entries (prompt_hash, engine, reply, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		promptHash, engine, reply, time.Now().UTC(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance counters.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM reply_entries`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed.
func (c *Cache) Clear(expiredOnly bool) error {
	var query string
	if expiredOnly {
		query = `DELETE FROM reply_entries WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	} else {
		query = `DELETE FROM reply_entries`
	}
	_, err := c.db.Exec(query)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
