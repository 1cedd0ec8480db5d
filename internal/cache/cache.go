// Package cache implements a content-addressed filesystem cache for
// distribution query results, keyed by a SHA-256 hash of the canonical
// query+modifiers JSON.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Service caches distribution query results on disk, keyed by a
// deterministic hash of the query and its disclosure-control modifiers.
type Service struct {
	dir     string
	enabled bool
	ttl     time.Duration
}

// New builds a Service rooted at dir. ttl of zero means cache entries
// never expire, matching CACHE_TTL_HOURS == 0.
func New(dir string, enabled bool, ttl time.Duration) (*Service, error) {
	s := &Service{dir: dir, enabled: enabled, ttl: ttl}
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// modifiers describes the disclosure-control settings a cached result
// was produced under, so a change in suppression/rounding thresholds
// invalidates previously cached entries.
type modifiers struct {
	SuppressionThreshold int `json:"suppression_threshold"`
	RoundingTarget       int `json:"rounding_target"`
}

// Key returns the deterministic cache key for a query, computed from a
// sorted-key JSON encoding so key order never affects the hash.
func Key(queryParams map[string]string, suppressionThreshold, roundingTarget int) (string, error) {
	keys := make([]string, 0, len(queryParams))
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]string, len(queryParams))
	for _, k := range keys {
		ordered[k] = queryParams[k]
	}

	payload := struct {
		Query     map[string]string `json:"query"`
		Modifiers modifiers         `json:"modifiers"`
	}{
		Query:     ordered,
		Modifiers: modifiers{SuppressionThreshold: suppressionThreshold, RoundingTarget: roundingTarget},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get retrieves a cached result for key if present and not expired.
func (s *Service) Get(key string) (string, bool) {
	if !s.enabled {
		return "", false
	}
	path := s.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if s.ttl > 0 && time.Since(info.ModTime()) >= s.ttl {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Set stores result under key, writing atomically via a temp file and
// rename so a concurrent reader never observes a partial write.
func (s *Service) Set(key, result string) error {
	if !s.enabled {
		return nil
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(result); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(key))
}

// Clear removes all cached entries, best-effort: errors deleting
// individual files are collected but do not stop the sweep.
func (s *Service) Clear() []error {
	if !s.enabled {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
