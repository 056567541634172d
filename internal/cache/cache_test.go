package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/inspecta/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("embed", "model", "text")
	b := Key("embed", "model", "text")
	c := Key("embed", "modeltext")

	if a != b {
		t.Errorf("expected stable key, got %s and %s", a, b)
	}
	if a == c {
		t.Error("expected part boundaries to change the key")
	}
	if !strings.HasPrefix(a, NamespaceEmbed+"/") {
		t.Errorf("unexpected key prefix: %s", a)
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	value := []byte("abc")
	_ = c.Set("k", value, 0)
	value[0] = 'x'

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key(NamespaceText, "nom-001.pdf")
	if err := c.Set(key, []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "v" {
		t.Fatalf("expected v, got %q (hit=%v)", got, ok)
	}

	name := strings.TrimPrefix(key, NamespaceText+"/")
	path := filepath.Join(dir, NamespaceText, name[:2], name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sharded entry at %s: %v", path, err)
	}

	old := Key(NamespaceText, "old")
	if err := c.Set(old, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(old); ok {
		t.Error("expected expired entry to miss")
	}
	if _, ok := c.Get(key); !ok {
		t.Error("entry with the default ttl should still hit")
	}

	if err := c.Delete("missing"); err != nil {
		t.Errorf("Delete of missing key should not fail: %v", err)
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	path := c.path("misc-key")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("misc-key"); ok {
		t.Error("expected truncated entry to miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected corrupt entry to be removed")
	}
}

func TestDiskCache_UsageAndPurge(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(filepath.Join(dir, "cache"), time.Hour)

	usage, err := c.Usage()
	if err != nil || len(usage) != 0 {
		t.Fatalf("expected empty usage for a fresh cache, got %v (%v)", usage, err)
	}

	_ = c.Set(Key(NamespaceText, "a"), []byte("aaaa"), 0)
	_ = c.Set(Key(NamespaceEmbed, "a"), []byte("vv"), 0)
	_ = c.Set(Key(NamespaceEmbed, "b"), []byte("vv"), 0)

	usage, err = c.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if len(usage) != 2 || usage[0].Namespace != NamespaceEmbed || usage[0].Entries != 2 || usage[1].Entries != 1 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if usage[1].Bytes != entryHeader+4 {
		t.Errorf("expected %d bytes for the text entry, got %d", entryHeader+4, usage[1].Bytes)
	}

	if err := c.Purge(NamespaceEmbed); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, ok := c.Get(Key(NamespaceEmbed, "a")); ok {
		t.Error("purged namespace should miss")
	}
	if _, ok := c.Get(Key(NamespaceText, "a")); !ok {
		t.Error("other namespaces should survive a purge")
	}
	if err := c.Purge("../etc"); err == nil {
		t.Error("expected an invalid namespace to be rejected")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	key := Key(NamespaceEmbed, "model", "text")
	_ = disk.Set(key, []byte("from-disk"), 0)

	c := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := c.Get(key)
	if !ok || string(got) != "from-disk" {
		t.Fatalf("expected disk hit, got %q (hit=%v)", got, ok)
	}
	if _, ok := c.memory.Get(key); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}
	_, _ = c.Get(key)
	_, _ = c.Get(Key(NamespaceEmbed, "absent"))

	if st := c.Stats(); st.DiskHits != 1 || st.MemoryHits != 1 || st.Misses != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	in := []float32{0.5, -1, 2}
	if err := SetJSON(c, "vec", in, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out []float32
	if !GetJSON(c, "vec", &out) {
		t.Fatal("expected hit")
	}
	if len(out) != 3 || out[1] != -1 {
		t.Errorf("unexpected value: %v", out)
	}

	_ = c.Set("bad", []byte("{"), 0)
	if GetJSON(c, "bad", &out) {
		t.Error("expected undecodable entry to count as a miss")
	}
}

func TestNew_Disabled(t *testing.T) {
	c := New(model.CacheConfig{Enabled: false})
	_ = c.Set("k", []byte("v"), 0)
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache should never hit")
	}
}
