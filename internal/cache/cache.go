// Package cache stores pricing datasets on disk as timestamped JSON blobs.
//
// Each dataset kind is written to its own file as {"timestamp": <epoch
// millis>, "data": <dataset>}. Loads enforce a fixed TTL and treat any
// structural problem as a miss; blobs that can never become valid again
// are deleted so a poisoned cache is not re-parsed on every run. Saves are
// best-effort and atomic (temp file and rename) so a crash mid-write never
// leaves a truncated blob behind.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TTL is the maximum age of a cached blob before it is treated as stale.
const TTL = time.Hour

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// blob is the on-disk envelope for a cached dataset.
type blob struct {
	// Timestamp is the write time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
	// Data is the dataset payload, decoded by the caller's type.
	Data json.RawMessage `json:"data"`
}

// Store reads and writes cached datasets under a single directory.
type Store struct {
	// Dir is the cache directory. Created on first save.
	Dir string
	// Now reports the current time. Nil means time.Now; tests inject a
	// fixed clock to simulate TTL expiry.
	Now func() time.Time
}

// Options controls per-kind load behavior.
type Options struct {
	// RequireNonEmpty treats a dataset with zero entries as invalid.
	RequireNonEmpty bool
	// PurgeStale deletes the file when the blob is merely expired, not
	// corrupt. Used for datasets that are only rewritten on a successful
	// refetch, where an expired file would otherwise be parsed forever.
	PurgeStale bool
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) path(file string) string {
	return filepath.Join(s.Dir, file)
}

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

// Load reads the named blob and returns its dataset, or ok=false on any
// miss: absent or unreadable file, malformed envelope, missing or
// future-dated timestamp, payload that is null or does not decode into
// M, an empty payload when opts.RequireNonEmpty is set, or age beyond
// TTL. Corrupt and empty blobs are deleted; stale ones are deleted only
// when opts.PurgeStale is set.
func Load[M ~map[string]V, V any](s *Store, file string, opts Options) (M, bool) {
	path := s.path(file)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		s.remove(path)
		return nil, false
	}
	if b.Timestamp <= 0 || len(b.Data) == 0 {
		s.remove(path)
		return nil, false
	}
	if string(bytes.TrimSpace(b.Data)) == "null" {
		// RawMessage keeps the literal null, which would decode into a
		// nil map and masquerade as a hit.
		s.remove(path)
		return nil, false
	}

	now := s.now().UnixMilli()
	if b.Timestamp > now {
		// A write time in the future means a broken clock wrote the file;
		// its age can never be trusted.
		s.remove(path)
		return nil, false
	}
	if now-b.Timestamp > TTL.Milliseconds() {
		if opts.PurgeStale {
			s.remove(path)
		}
		return nil, false
	}

	var data M
	if err := json.Unmarshal(b.Data, &data); err != nil {
		s.remove(path)
		return nil, false
	}
	if opts.RequireNonEmpty && len(data) == 0 {
		s.remove(path)
		return nil, false
	}
	return data, true
}

// ///////////////////////////////////////////////
// Save
// ///////////////////////////////////////////////

// Save writes data to the named blob file with the current timestamp.
// The cache directory is created owner-only if missing. Errors are
// returned for the caller to log; caching is advisory and a failed save
// must never abort the calling flow.
func Save[M ~map[string]V, V any](s *Store, file string, data M) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling dataset: %w", err)
	}
	out, err := json.Marshal(blob{Timestamp: s.now().UnixMilli(), Data: payload})
	if err != nil {
		return fmt.Errorf("marshalling cache blob: %w", err)
	}
	return writeAtomic(s.path(file), out)
}

// remove deletes a cache file, ignoring errors; a file that cannot be
// deleted will simply be rejected again on the next load.
func (s *Store) remove(path string) {
	_ = os.Remove(path)
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so concurrent readers never observe a partial
// write.
func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	var committed bool
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
