package player

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/glebovdev/seasons-cli/internal/audio"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

const closeTimeout = time.Second

// BufferBackend downloads a whole track, decodes it into memory and plays
// it through a fresh one-shot node on every start.
type BufferBackend struct {
	out     audio.Output
	fetcher Fetcher
	cache   Cache
}

func NewBufferBackend(out audio.Output, fetcher Fetcher, cache Cache) *BufferBackend {
	return &BufferBackend{out: out, fetcher: fetcher, cache: cache}
}

func (b *BufferBackend) Acquire(ctx context.Context, t track.Track) (Source, error) {
	data, err := b.load(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	buffer, err := audio.Load(data, t.URL, b.out.SampleRate())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("track", t.Path).
		Int("bytes", len(data)).
		Dur("decode", time.Since(start)).
		Msg("Track decoded into memory")

	return &bufferSource{out: b.out, buffer: buffer}, nil
}

func (b *BufferBackend) load(ctx context.Context, t track.Track) ([]byte, error) {
	if !t.IsRemote() {
		data, err := os.ReadFile(t.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.URL, err)
		}
		return data, nil
	}

	if b.cache != nil {
		if data, ok := b.cache.Get(t.Path); ok {
			log.Debug().Str("track", t.Path).Msg("Audio served from cache")
			return data, nil
		}
	}

	if b.fetcher == nil {
		return nil, ErrMissingElement
	}

	data, err := b.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Save(t.Path, data); err != nil {
			log.Debug().Err(err).Str("track", t.Path).Msg("Failed to cache audio")
		}
	}
	return data, nil
}

// bufferNode is one playthrough of the buffer. It cannot be restarted.
type bufferNode struct {
	from     int
	streamer beep.StreamSeeker
	done     chan struct{}

	// Guarded by the output lock, which the end callback also runs under.
	stopped bool
	settled bool
}

func (n *bufferNode) Stream(samples [][2]float64) (int, bool) {
	if n.stopped {
		return 0, false
	}
	return n.streamer.Stream(samples)
}

func (n *bufferNode) Err() error {
	return n.streamer.Err()
}

// settle resolves the node exactly once and reports whether this call did it.
func (n *bufferNode) settle() bool {
	if n.settled {
		return false
	}
	n.settled = true
	close(n.done)
	return true
}

type bufferSource struct {
	out audio.Output

	mu      sync.Mutex
	buffer  *beep.Buffer
	node    *bufferNode
	onEnded func()
	lastPos int
}

func (s *bufferSource) Start(ctx context.Context, offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer == nil {
		return ErrNoResource
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.node != nil {
		s.out.Lock()
		active := !s.node.settled
		s.out.Unlock()
		if active {
			return nil
		}
	}

	rate := s.buffer.Format().SampleRate
	from := min(max(rate.N(offset), 0), s.buffer.Len())

	node := &bufferNode{
		from:     from,
		streamer: s.buffer.Streamer(from, s.buffer.Len()),
		done:     make(chan struct{}),
	}
	onEnded := s.onEnded

	ended := beep.Callback(func() {
		if node.settle() && !node.stopped && onEnded != nil {
			go onEnded()
		}
	})

	if err := s.out.Play(beep.Seq(node, ended)); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	s.node = node
	return nil
}

// Stop flags the node and waits for its end callback, which runs on the
// audio goroutine once the flagged node stops yielding samples. A node on a
// suspended output never reaches its callback, so it is settled directly.
func (s *bufferSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	node := s.node
	s.node = nil
	s.mu.Unlock()

	if node == nil {
		return nil
	}

	suspended := s.out.Suspended()

	s.out.Lock()
	node.stopped = true
	if suspended {
		node.settle()
	}
	pos := node.from + node.streamer.Position()
	s.out.Unlock()

	s.mu.Lock()
	s.lastPos = pos
	s.mu.Unlock()

	select {
	case <-node.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *bufferSource) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.node == nil {
		return false
	}
	s.out.Lock()
	defer s.out.Unlock()
	return !s.node.settled
}

func (s *bufferSource) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *bufferSource) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer == nil {
		return 0
	}
	pos := s.lastPos
	if s.node != nil {
		s.out.Lock()
		pos = s.node.from + s.node.streamer.Position()
		s.out.Unlock()
	}
	return s.buffer.Format().SampleRate.D(pos)
}

func (s *bufferSource) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer == nil {
		return 0
	}
	return s.buffer.Format().SampleRate.D(s.buffer.Len())
}

func (s *bufferSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := s.Stop(ctx)

	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
	return err
}
