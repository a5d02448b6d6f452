// Package service resolves tracks and owns the persisted listening state:
// the recent list, the last playing position and signed URL refresh.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebovdev/seasons-cli/internal/api"
	"github.com/glebovdev/seasons-cli/internal/cache"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/rs/zerolog/log"
)

const resolveTimeout = 15 * time.Second

// ErrNotFound means a path is neither a local file nor known to a server.
var ErrNotFound = errors.New("track not found")

var audioExtensions = []string{".mp3", ".flac", ".ogg", ".wav"}

// TrackService resolves track paths and keeps the config in step with what
// is being played. It is safe for concurrent use.
type TrackService struct {
	apiClient  *api.Client
	audioCache *cache.Cache

	mu            sync.RWMutex
	cfg           *config.Config
	current       track.Track
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func(track.Track)
}

// NewTrackService creates a TrackService. apiClient may be nil when no
// server is configured; only local files resolve then.
func NewTrackService(apiClient *api.Client, cfg *config.Config) *TrackService {
	audioCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize audio cache, downloads will not be cached")
	}

	if audioCache != nil {
		go func() {
			if err := audioCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &TrackService{
		apiClient:  apiClient,
		audioCache: audioCache,
		cfg:        cfg,
	}
}

// AudioCache is the on-disk cache for downloaded audio, or nil when the
// cache directory is unavailable.
func (s *TrackService) AudioCache() *cache.Cache {
	return s.audioCache
}

// Resolve turns a command-line argument or recent-list path into a track.
// Local files win over server paths.
func (s *TrackService) Resolve(ctx context.Context, p string) (track.Track, error) {
	if file, ok := findLocal(p); ok {
		return track.FromFile(file)
	}

	if s.apiClient == nil {
		return track.Track{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	t, err := s.apiClient.GetTrack(ctx, track.StripExt(filepath.ToSlash(p)))
	if err != nil {
		return track.Track{}, err
	}
	return *t, nil
}

// findLocal looks for p as given, then with each known audio extension,
// since recent paths are recorded without one.
func findLocal(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	candidates := []string{p}
	for _, ext := range audioExtensions {
		candidates = append(candidates, p+ext)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Touch records t as the most recently played track and makes it the
// target of URL refresh.
func (s *TrackService) Touch(t track.Track) {
	s.mu.Lock()
	s.current = t
	s.cfg.TouchRecent(t.Path, t.Title())
	s.mu.Unlock()

	s.save()
}

// Recent returns a copy of the recent list, most recent first.
func (s *TrackService) Recent() []config.RecentTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]config.RecentTrack, len(s.cfg.Recent))
	copy(result, s.cfg.Recent)
	return result
}

func (s *TrackService) RemoveRecent(path string) {
	s.mu.Lock()
	s.cfg.RemoveRecent(path)
	s.mu.Unlock()

	s.save()
}

func (s *TrackService) ResumeOffset(path string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ResumeOffset(path)
}

func (s *TrackService) SetLastPlaying(path string, position time.Duration) {
	s.mu.Lock()
	s.cfg.SetLastPlaying(path, position)
	s.mu.Unlock()
}

// SetVolume stores the volume for the next run.
func (s *TrackService) SetVolume(volume int) {
	s.mu.Lock()
	s.cfg.Volume = config.ClampVolume(volume)
	s.mu.Unlock()
}

func (s *TrackService) SetLoop(on bool) {
	s.mu.Lock()
	s.cfg.Loop = on
	s.mu.Unlock()
}

// Save writes the config to disk.
func (s *TrackService) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Save()
}

func (s *TrackService) save() {
	if err := s.Save(); err != nil {
		log.Debug().Err(err).Msg("Failed to save config")
	}
}

// StartPeriodicRefresh re-fetches the current remote track every interval,
// before its signed URL expires, and hands the fresh copy to callback.
func (s *TrackService) StartPeriodicRefresh(interval time.Duration, callback func(track.Track)) {
	s.StopPeriodicRefresh()

	if s.apiClient == nil || interval <= 0 {
		return
	}

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic URL refresh")
}

func (s *TrackService) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
		log.Debug().Msg("Stopped periodic URL refresh")
	}
}

func (s *TrackService) refreshInBackground() {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current.Path == "" || !current.IsRemote() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	fresh, err := s.apiClient.GetTrack(ctx, current.Path)
	if err != nil {
		log.Warn().Err(err).Str("track", current.Path).Msg("Background URL refresh failed, keeping the old URL")
		return
	}

	s.mu.Lock()
	if s.current.Path != fresh.Path {
		s.mu.Unlock()
		return
	}
	s.current = *fresh
	callback := s.onRefresh
	s.mu.Unlock()

	if callback != nil {
		callback(*fresh)
	}

	log.Debug().Str("track", fresh.Path).Msg("Track URL refreshed in background")
}
