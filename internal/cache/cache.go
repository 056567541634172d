package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ppiankov/inspecta/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Namespaces used by the pipeline
const (
	NamespaceText  = "text"  // extracted document text
	NamespaceEmbed = "embed" // embedding vectors
)

// Key builds a "namespace/hash" cache key from arbitrary parts. Parts are
// hashed so the key is safe to use as a file name.
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + "/" + hex.EncodeToString(hash[:])
}

// GetJSON decodes a cached JSON value into dst. A decode failure counts as a miss.
func GetJSON(c Cache, key string, dst interface{}) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// SetJSON encodes v as JSON and stores it
func SetJSON(c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(key, data, ttl)
}

// Maintainer is implemented by caches with persistent, inspectable storage
type Maintainer interface {
	Usage() ([]Usage, error)
	Purge(namespace string) error
}

// New builds the cache described by cfg: a memory+disk layered cache,
// or a no-op cache when caching is disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewLayeredCache(
		model.Seconds(cfg.MemoryTTL, time.Hour),
		cfg.Dir,
		model.Seconds(cfg.DiskTTL, 30*24*time.Hour),
	)
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }
func (Nop) Set(string, []byte, time.Duration) error { return nil }
func (Nop) Delete(string) error { return nil }
func (Nop) Clear() error { return nil }
