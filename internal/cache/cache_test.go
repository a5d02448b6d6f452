package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"simple path", "24-1/Show/OP Song"},
		{"unicode path", "24-2/夜に駆ける"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hashKey(tt.key)

			if len(result) != 32 {
				t.Errorf("hashKey(%q) length = %d, want 32", tt.key, len(result))
			}

			for _, c := range result {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					t.Errorf("hashKey(%q) contains non-hex character: %c", tt.key, c)
				}
			}
		})
	}
}

func TestHashKeyUniqueness(t *testing.T) {
	if hashKey("a/one") == hashKey("a/two") {
		t.Error("Different keys produced the same hash")
	}
	if hashKey("a/one") != hashKey("a/one") {
		t.Error("hashKey is not consistent")
	}
}

func testAudio(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestSaveAndGet(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  DefaultExpiry,
	}

	key := "24-1/Show/OP Song"
	data := testAudio(4096)

	if err := cache.Save(key, data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get() reported a miss, expected cached audio")
	}

	if !bytes.Equal(got, data) {
		t.Error("Get() returned different bytes than were saved")
	}
}

func TestGetNonExistent(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  DefaultExpiry,
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get() for a missing key should report false")
	}
}

func TestGetExpired(t *testing.T) {
	tmpDir := t.TempDir()

	cache := &Cache{
		baseDir: tmpDir,
		expiry:  1 * time.Millisecond,
	}

	key := "expired"
	if err := cache.Save(key, testAudio(16)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, ok := cache.Get(key); ok {
		t.Error("Get() for expired audio should report false")
	}

	if _, err := os.Stat(cache.filePath(key)); !os.IsNotExist(err) {
		t.Error("Expired cache file should have been deleted")
	}
}

func TestSaveOverwrites(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  DefaultExpiry,
	}

	if err := cache.Save("k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := cache.Save("k", []byte("new")); err != nil {
		t.Fatal(err)
	}

	got, _ := cache.Get("k")
	if string(got) != "new" {
		t.Errorf("Get() = %q, want %q", got, "new")
	}

	entries, err := os.ReadDir(filepath.Join(cache.baseDir, AudioSubdir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache directory has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestRemove(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  DefaultExpiry,
	}

	if err := cache.Save("k", []byte("x")); err != nil {
		t.Fatal(err)
	}

	cache.Remove("k")
	cache.Remove("never-saved")

	if _, ok := cache.Get("k"); ok {
		t.Error("Get() after Remove() should report false")
	}
}

func TestCleanExpired(t *testing.T) {
	tmpDir := t.TempDir()

	cache := &Cache{
		baseDir: tmpDir,
		expiry:  1 * time.Millisecond,
	}

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("track-%d", i)
		if err := cache.Save(key, testAudio(8)); err != nil {
			t.Fatalf("Save(%q) error = %v", key, err)
		}
	}

	time.Sleep(10 * time.Millisecond)

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, AudioSubdir))
	if err != nil {
		t.Fatalf("Failed to read audio directory: %v", err)
	}

	if len(entries) != 0 {
		t.Errorf("CleanExpired() left %d files, want 0", len(entries))
	}
}

func TestCleanExpiredKeepsValidFiles(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  24 * time.Hour,
	}

	if err := cache.Save("valid", testAudio(8)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	if _, ok := cache.Get("valid"); !ok {
		t.Error("CleanExpired() should not remove valid (non-expired) audio")
	}
}

func TestCleanExpiredNonExistentDirectory(t *testing.T) {
	cache := &Cache{
		baseDir: t.TempDir(),
		expiry:  DefaultExpiry,
	}

	if err := cache.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() should not error on non-existent directory, got %v", err)
	}
}

func TestGetCacheDir(t *testing.T) {
	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("GetCacheDir() = %q, want absolute path", dir)
	}

	if filepath.Base(dir) != AppName {
		t.Errorf("GetCacheDir() directory name = %q, want %q", filepath.Base(dir), AppName)
	}
}

func TestNewCache(t *testing.T) {
	cache, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	if cache.baseDir == "" {
		t.Error("NewCache() cache.baseDir is empty")
	}
	if cache.expiry != DefaultExpiry {
		t.Errorf("NewCache() cache.expiry = %v, want %v", cache.expiry, DefaultExpiry)
	}
}
