package player

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/seasons-cli/internal/audio"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

// DefaultReadAhead is how much decoded audio the stream variant keeps ready.
const DefaultReadAhead = 2 * time.Second

// StreamBackend plays a track while it downloads, through one persistent
// pausable node per track.
type StreamBackend struct {
	out       audio.Output
	fetcher   Fetcher
	cache     Cache
	ReadAhead time.Duration
}

func NewStreamBackend(out audio.Output, fetcher Fetcher, cache Cache) *StreamBackend {
	return &StreamBackend{
		out:       out,
		fetcher:   fetcher,
		cache:     cache,
		ReadAhead: DefaultReadAhead,
	}
}

func (b *StreamBackend) Acquire(ctx context.Context, t track.Track) (Source, error) {
	// The download outlives the acquisition context; ctx only aborts it
	// until the source is handed over.
	dlCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	detach := context.AfterFunc(ctx, cancel)

	rc, progressive, err := b.open(dlCtx, t)
	if err != nil {
		detach()
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	decoder, format, err := audio.Decode(rc, t.URL)
	aborted := !detach()
	if err != nil {
		cancel()
		if aborted {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if aborted {
		decoder.Close()
		cancel()
		return nil, ctx.Err()
	}

	pre := audio.NewPrefetcher(decoder, format, b.ReadAhead)
	src := &streamSource{
		out:    b.out,
		format: format,
		pre:    pre,
		body:   rc,
		cancel: cancel,
		ctrl:   &beep.Ctrl{Streamer: audio.Fit(b.out, format, pre), Paused: true},
	}

	if progressive != nil && b.cache != nil {
		go persist(dlCtx, progressive, b.cache, t.Path)
	}

	log.Debug().
		Str("track", t.Path).
		Int("sample_rate", int(format.SampleRate)).
		Dur("duration", src.Duration()).
		Msg("Track stream ready")

	return src, nil
}

func (b *StreamBackend) open(ctx context.Context, t track.Track) (io.ReadSeekCloser, *audio.Progressive, error) {
	if !t.IsRemote() {
		f, err := os.Open(t.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", t.URL, err)
		}
		return f, nil, nil
	}

	if b.cache != nil {
		if data, ok := b.cache.Get(t.Path); ok {
			log.Debug().Str("track", t.Path).Msg("Audio served from cache")
			return audio.NewMemReader(data), nil, nil
		}
	}

	if b.fetcher == nil {
		return nil, nil, ErrMissingElement
	}

	body, size, err := b.fetcher.Open(ctx, t.URL)
	if err != nil {
		return nil, nil, err
	}
	p := audio.NewProgressive(body, size)
	return p, p, nil
}

func persist(ctx context.Context, p *audio.Progressive, cache Cache, key string) {
	data, err := p.Wait(ctx)
	if err != nil {
		log.Debug().Err(err).Str("track", key).Msg("Download incomplete, not caching")
		return
	}
	if err := cache.Save(key, data); err != nil {
		log.Debug().Err(err).Str("track", key).Msg("Failed to cache audio")
	}
}

type streamSource struct {
	out    audio.Output
	format beep.Format
	pre    *audio.Prefetcher
	ctrl   *beep.Ctrl
	body   io.Closer
	cancel context.CancelFunc

	onEnded atomic.Pointer[func()]

	mu     sync.Mutex
	closed bool

	// Guarded by the output lock.
	attached bool
	closing  bool
}

func (s *streamSource) Start(ctx context.Context, offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNoResource
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.out.Lock()
	active := s.attached && !s.ctrl.Paused
	s.out.Unlock()
	if active {
		return nil
	}

	// Nothing pulls from the prefetcher while the node is paused or detached.
	pos := min(max(s.format.SampleRate.N(offset), 0), s.pre.Len())
	if err := s.pre.Seek(pos); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	s.out.Lock()
	s.ctrl.Paused = false
	attach := !s.attached
	s.attached = true
	s.out.Unlock()

	if attach {
		if err := s.out.Play(beep.Seq(s.ctrl, beep.Callback(s.ended))); err != nil {
			s.out.Lock()
			s.attached = false
			s.ctrl.Paused = true
			s.out.Unlock()
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}
	return nil
}

// ended runs on the audio goroutine with the output lock held.
func (s *streamSource) ended() {
	s.attached = false
	if s.closing {
		return
	}
	if fn := s.onEnded.Load(); fn != nil {
		go (*fn)()
	}
}

// Stop pauses the node. A paused node streams silence and can never reach
// its end, so the pause itself is the confirmation.
func (s *streamSource) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.out.Lock()
	s.ctrl.Paused = true
	s.out.Unlock()
	return nil
}

func (s *streamSource) IsActive() bool {
	s.out.Lock()
	defer s.out.Unlock()
	return s.attached && !s.ctrl.Paused
}

func (s *streamSource) OnEnded(fn func()) {
	s.onEnded.Store(&fn)
}

func (s *streamSource) Position() time.Duration {
	return s.format.SampleRate.D(s.pre.Position())
}

func (s *streamSource) Duration() time.Duration {
	return s.format.SampleRate.D(s.pre.Len())
}

func (s *streamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.out.Lock()
	s.closing = true
	s.ctrl.Paused = true
	s.ctrl.Streamer = nil
	s.out.Unlock()

	s.cancel()
	s.body.Close()
	return s.pre.Close()
}
