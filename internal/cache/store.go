package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"accountflow/logger"
	"accountflow/models"
)

const compressionQuality = 4

// Store persists history arrays to disk so restarts resume pagination from
// the newest cached record instead of refetching years of history. Files are
// brotli compressed and base64 wrapped, and live under a per-credential
// partition directory so switching accounts never mixes histories.
type Store struct {
	baseDir   string
	partition string
	mu        sync.Mutex
	log       *logger.Log
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{
		baseDir: dir,
		log:     logger.GetLogger(),
	}
}

// SetPartition switches the active partition, normally a credential hash.
// Subsequent reads and writes only touch files under that partition.
func (s *Store) SetPartition(partition string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition = partition
}

// Partition returns the active partition name.
func (s *Store) Partition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition
}

func (s *Store) path(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partition == "" {
		return filepath.Join(s.baseDir, name)
	}
	return filepath.Join(s.baseDir, s.partition, name)
}

// Clear removes every cached file in the active partition.
func (s *Store) Clear() error {
	s.mu.Lock()
	dir := s.baseDir
	if s.partition != "" {
		dir = filepath.Join(s.baseDir, s.partition)
	}
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear cache dir %s: %w", dir, err)
	}
	return nil
}

// Write persists the data array together with the current timestamp. Failures
// are returned but callers treat the cache as best effort.
func Write[T any](s *Store, name string, data []T) error {
	payload := models.CachedData[T]{
		LastUpdated: time.Now().UnixMilli(),
		Data:        data,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload %s: %w", name, err)
	}

	var sb strings.Builder
	b64 := base64.NewEncoder(base64.StdEncoding, &sb)
	bw := brotli.NewWriterLevel(b64, compressionQuality)
	if _, err := bw.Write(raw); err != nil {
		return fmt.Errorf("failed to compress cache payload %s: %w", name, err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("failed to flush compressor for %s: %w", name, err)
	}
	if err := b64.Close(); err != nil {
		return fmt.Errorf("failed to flush encoder for %s: %w", name, err)
	}

	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize cache file %s: %w", name, err)
	}
	return nil
}

// Read loads a cached payload. Any failure (missing file, corrupt data) is
// logged at debug level and reported as a cache miss so the caller falls back
// to a full fetch.
func Read[T any](s *Store, name string) *models.CachedData[T] {
	path := s.path(name)
	encoded, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithComponent("cache").WithError(err).WithField("file", name).Debug("cache read failed")
		}
		return nil
	}

	decoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(string(encoded)))
	raw, err := io.ReadAll(brotli.NewReader(decoder))
	if err != nil {
		s.log.WithComponent("cache").WithError(err).WithField("file", name).Debug("cache decompress failed")
		return nil
	}

	var payload models.CachedData[T]
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.WithComponent("cache").WithError(err).WithField("file", name).Debug("cache unmarshal failed")
		return nil
	}
	return &payload
}
