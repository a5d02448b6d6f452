package player

import (
	"context"
	"io"
	"time"

	"github.com/glebovdev/seasons-cli/internal/audio"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/track"
)

// Source is the sound-producing resource of one loaded track.
type Source interface {
	// Start begins producing sound at offset. Starting an active source is
	// a no-op.
	Start(ctx context.Context, offset time.Duration) error
	// Stop returns once the source is confirmed silent. Stopping an idle
	// source is a no-op.
	Stop(ctx context.Context) error
	IsActive() bool
	// OnEnded registers the callback for a natural end of media, replacing
	// any earlier one. An ending goes to the callback registered before its
	// Start. It is never called for an ending caused by Stop or Close.
	OnEnded(fn func())
	Position() time.Duration
	Duration() time.Duration
	Close() error
}

// Backend turns a track descriptor into a ready Source.
type Backend interface {
	Acquire(ctx context.Context, t track.Track) (Source, error)
}

// Fetcher downloads remote audio. *api.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Cache stores downloaded audio by track path. *cache.Cache implements it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Save(key string, data []byte) error
}

// NewBackend picks the variant named in the config.
func NewBackend(kind string, out audio.Output, fetcher Fetcher, cache Cache) Backend {
	switch kind {
	case config.BackendStream:
		return NewStreamBackend(out, fetcher, cache)
	default:
		return NewBufferBackend(out, fetcher, cache)
	}
}
