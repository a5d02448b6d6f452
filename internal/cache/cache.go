// Package cache keeps downloaded audio on disk so replaying a track does not
// hit the network again.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached audio is valid (7 days). Signed URLs
	// change on every request, so entries are keyed by track path instead.
	DefaultExpiry = 7 * 24 * time.Hour
	// AudioSubdir is the subdirectory for cached audio.
	AudioSubdir = "audio"
	// AppName is used for the cache directory name.
	AppName = "seasons"
)

// Cache manages disk-based caching of downloaded tracks.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func (c *Cache) ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func hashKey(key string) string {
	hash := md5.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) filePath(key string) string {
	return filepath.Join(c.baseDir, AudioSubdir, hashKey(key)+".bin")
}

// Get returns the cached bytes for key. Expired entries are removed and
// reported as missing.
func (c *Cache) Get(key string) ([]byte, bool) {
	audioPath := c.filePath(key)

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(audioPath); err != nil {
			log.Debug().Err(err).Str("file", audioPath).Msg("Failed to remove expired cache file")
		}
		return nil, false
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Debug().Err(err).Str("file", audioPath).Msg("Failed to read cached audio")
		return nil, false
	}

	return data, true
}

// Save stores data under key. The write goes through a temporary file so a
// crash never leaves a truncated entry behind.
func (c *Cache) Save(key string, data []byte) error {
	audioDir := filepath.Join(c.baseDir, AudioSubdir)

	if err := c.ensureDir(audioDir); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	audioPath := c.filePath(key)

	tmpFile, err := os.CreateTemp(audioDir, ".audio-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpPath, audioPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save cache file: %w", err)
	}

	return nil
}

// Remove drops the entry for key, if any.
func (c *Cache) Remove(key string) {
	if err := os.Remove(c.filePath(key)); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("key", key).Msg("Failed to remove cache entry")
	}
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	audioDir := filepath.Join(c.baseDir, AudioSubdir)

	entries, err := os.ReadDir(audioDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(audioDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
