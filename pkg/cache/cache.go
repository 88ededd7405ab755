package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
)

// Store is a directory-backed cache mapping a request fingerprint to a
// previously computed result. Entries are whole JSON files; expiry is checked
// on read and expired files are removed lazily. The store is meant for the
// host process's own sequential use, not for concurrent writers.
type Store struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Fingerprint derives the deterministic cache key for a query: a sha256 hex
// digest of domain, target day and intent.
func Fingerprint(domain string, date time.Time, intent string) string {
	key := fmt.Sprintf("%s|%s|%s", domain, date.Format("2006-01-02"), intent)
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

func (s *Store) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}

// Get returns the unexpired entry for fingerprint, if present. Expired or
// corrupt entries are removed and reported absent.
func (s *Store) Get(fingerprint string) (models.CacheEntry, bool) {
	data, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		return models.CacheEntry{}, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		os.Remove(s.path(fingerprint))
		return models.CacheEntry{}, false
	}

	if s.now().Sub(entry.Timestamp) > s.ttl {
		os.Remove(s.path(fingerprint))
		return models.CacheEntry{}, false
	}

	return entry, true
}

// Put stores result under fingerprint, overwriting any previous entry.
func (s *Store) Put(fingerprint string, result models.Result) error {
	entry := models.CacheEntry{
		Fingerprint: fingerprint,
		Result:      result,
		Timestamp:   s.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := os.WriteFile(s.path(fingerprint), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry file in the cache directory.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
