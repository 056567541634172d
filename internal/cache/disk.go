package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// entryHeader is the expiry time in unix nanoseconds, big endian
const entryHeader = 8

// DiskCache persists entries under dir/<namespace>/<shard>/<hash>. Each file
// holds the expiry time followed by the raw value. Writes go through a temp
// file and rename so concurrent readers never see a partial entry.
type DiskCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskCache creates a new disk cache
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl, now: time.Now}
}

// Usage describes what one namespace holds on disk
type Usage struct {
	Namespace string
	Entries   int
	Bytes     int64
	Expired   int
}

// Get returns the value for key. Corrupt and expired files are removed.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	value, expires, ok := decodeEntry(data)
	if !ok || c.now().After(expires) {
		_ = os.Remove(path)
		return nil, false
	}
	return value, true
}

// Set stores value. A zero ttl uses the cache default.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(encodeEntry(value, c.now().Add(ttl))); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *DiskCache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every namespace
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

// Purge removes one namespace, e.g. "text" after the extractors change
func (c *DiskCache) Purge(namespace string) error {
	if namespace == "" || strings.ContainsAny(namespace, `/\.`) {
		return fmt.Errorf("invalid cache namespace %q", namespace)
	}
	return os.RemoveAll(filepath.Join(c.dir, namespace))
}

// Usage walks the cache directory and reports entries per namespace, sorted
// by name. A cache that was never written reports nothing.
func (c *DiskCache) Usage() ([]Usage, error) {
	byNS := make(map[string]*Usage)
	now := c.now()

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == c.dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		ns := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
		u, ok := byNS[ns]
		if !ok {
			u = &Usage{Namespace: ns}
			byNS[ns] = u
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		u.Entries++
		u.Bytes += int64(len(data))
		if _, expires, ok := decodeEntry(data); !ok || now.After(expires) {
			u.Expired++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}

	out := make([]Usage, 0, len(byNS))
	for _, u := range byNS {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out, nil
}

// path maps "ns/hash" to dir/ns/ha/hash. Keys not built by Key land in "misc".
func (c *DiskCache) path(key string) string {
	ns, name, ok := strings.Cut(key, "/")
	if !ok {
		ns, name = "misc", key
	}
	shard := name
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(c.dir, ns, shard, name)
}

func encodeEntry(value []byte, expires time.Time) []byte {
	buf := make([]byte, entryHeader+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expires.UnixNano()))
	copy(buf[entryHeader:], value)
	return buf
}

func decodeEntry(data []byte) ([]byte, time.Time, bool) {
	if len(data) < entryHeader {
		return nil, time.Time{}, false
	}
	expires := time.Unix(0, int64(binary.BigEndian.Uint64(data)))
	return data[entryHeader:], expires, true
}
