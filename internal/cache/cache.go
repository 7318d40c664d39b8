// Package cache is a file-backed store of extraction results keyed by a
// digest of (content, instruction). Each entry is one JSON file named
// after its key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/sitesift/internal/clock"
)

const (
	// DefaultFreshness is how long an entry is served by Lookup.
	DefaultFreshness = 24 * time.Hour
	// DefaultSweepAfter is the age at which PurgeOlderThan removes files by default.
	DefaultSweepAfter = 48 * time.Hour

	fileExt = ".json"
)

// ErrInvalidKey is returned when a key is not a hex SHA-256 digest.
var ErrInvalidKey = errors.New("invalid cache key")

// Key identifies a cached result.
type Key string

// KeyFor derives the key for a (content, instruction) pair: the hex SHA-256
// of content + "|" + instruction.
func KeyFor(content, instruction string) Key {
	sum := sha256.Sum256([]byte(content + "|" + instruction))
	return Key(hex.EncodeToString(sum[:]))
}

func (k Key) valid() bool {
	if len(k) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(k))
	return err == nil
}

// entry is the on-disk format.
type entry struct {
	Timestamp time.Time `json:"timestamp"`
	CacheKey  Key       `json:"cache_key"`
	Result    string    `json:"result"`
}

// Stats describes the store's contents and this process's hit rate.
type Stats struct {
	Dir        string `json:"dir"`
	EntryCount int    `json:"entry_count"`
	TotalSize  int64  `json:"total_size"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// Options configures a Store.
type Options struct {
	Freshness time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Store is the file-backed cache. It is safe for concurrent use: writes go
// through a temp file and rename, so readers never observe partial entries.
type Store struct {
	dir       string
	freshness time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates the cache directory if needed and returns a Store rooted there.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		dir:       dir,
		freshness: opts.Freshness,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "cache"),
	}, nil
}

// Dir returns the directory entries are stored in.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, string(key)+fileExt)
}

// Lookup returns the stored result for key if present and younger than the
// freshness duration. Expired, future-dated, unreadable and corrupt entries
// are misses.
func (s *Store) Lookup(key Key) (string, bool) {
	e, ok := s.read(key)
	if !ok || !s.fresh(e) {
		s.misses.Add(1)
		return "", false
	}
	s.hits.Add(1)
	return e.Result, true
}

// Contains reports whether a fresh entry exists without touching hit counters.
func (s *Store) Contains(key Key) bool {
	e, ok := s.read(key)
	return ok && s.fresh(e)
}

// fresh reports whether e is younger than the freshness duration. An entry
// stamped in the future (clock skew, edited file) is a miss until the clock
// reaches its timestamp.
func (s *Store) fresh(e entry) bool {
	age := s.clock.Now().Sub(e.Timestamp)
	return age >= 0 && age < s.freshness
}

func (s *Store) read(key Key) (entry, bool) {
	if !key.valid() {
		return entry{}, false
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("cache read failed", "key", key, "error", err)
		}
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		s.logger.Debug("corrupt cache entry", "key", key, "error", err)
		return entry{}, false
	}
	if e.CacheKey != key {
		s.logger.Debug("cache entry key mismatch", "key", key, "stored", e.CacheKey)
		return entry{}, false
	}
	return e, true
}

// Store persists result under key with the current time, replacing any
// existing entry.
func (s *Store) Store(key Key, result string) error {
	if !key.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := json.MarshalIndent(entry{
		Timestamp: s.clock.Now().UTC(),
		CacheKey:  key,
		Result:    result,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+string(key)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes entries created more than age ago and returns how
// many were removed. Entries that cannot be decoded are aged by file
// modification time.
func (s *Store) PurgeOlderThan(age time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-age)
	return s.remove(func(path string, info fs.FileInfo) bool {
		created := info.ModTime()
		if data, err := os.ReadFile(path); err == nil {
			var e entry
			if json.Unmarshal(data, &e) == nil && !e.Timestamp.IsZero() {
				created = e.Timestamp
			}
		}
		return created.Before(cutoff)
	})
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear() (int, error) {
	return s.remove(func(string, fs.FileInfo) bool { return true })
}

func (s *Store) remove(match func(path string, info fs.FileInfo) bool) (int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list cache dir: %w", err)
	}

	removed := 0
	for _, de := range dirEntries {
		if !isEntryFile(de) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		if !match(path, info) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove cache entry", "file", de.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cache entries removed", "count", removed)
	}
	return removed, nil
}

// Stats counts entries and their total size on disk.
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		Dir:    s.dir,
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return st, fmt.Errorf("list cache dir: %w", err)
	}
	for _, de := range dirEntries {
		if !isEntryFile(de) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		st.EntryCount++
		st.TotalSize += info.Size()
	}
	return st, nil
}

func isEntryFile(de fs.DirEntry) bool {
	name := de.Name()
	return de.Type().IsRegular() && strings.HasSuffix(name, fileExt) && !strings.HasPrefix(name, ".")
}
