package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

const prefetchChunk = 4096

// Prefetcher decodes ahead of playback on its own goroutine so a slow
// source never blocks the audio callback. When the read-ahead runs dry the
// callback gets silence instead of waiting.
type Prefetcher struct {
	mu     sync.Mutex
	src    beep.StreamSeekCloser
	chunks chan [][2]float64
	quit   chan struct{}
	worker chan struct{}

	current  [][2]float64
	drained  bool
	closed   bool
	position atomic.Int64
}

func NewPrefetcher(src beep.StreamSeekCloser, format beep.Format, ahead time.Duration) *Prefetcher {
	depth := format.SampleRate.N(ahead) / prefetchChunk
	if depth < 1 {
		depth = 1
	}

	p := &Prefetcher{
		src:    src,
		chunks: make(chan [][2]float64, depth),
	}
	p.startWorker()
	return p
}

func (p *Prefetcher) startWorker() {
	chunks := make(chan [][2]float64, cap(p.chunks))
	quit := make(chan struct{})
	worker := make(chan struct{})
	p.chunks, p.quit, p.worker = chunks, quit, worker
	p.current = nil
	p.drained = false

	go func() {
		defer close(worker)
		defer close(chunks)

		for {
			select {
			case <-quit:
				return
			default:
			}

			data := make([][2]float64, prefetchChunk)
			n, ok := p.src.Stream(data)

			if n > 0 {
				select {
				case chunks <- data[:n]:
				case <-quit:
					return
				}
			}

			if !ok {
				return
			}
		}
	}()
}

func (p *Prefetcher) stopWorker() {
	close(p.quit)
	<-p.worker
}

// Stream never blocks. It reports false only once the source is exhausted
// and everything decoded has been played.
func (p *Prefetcher) Stream(samples [][2]float64) (n int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drained {
		return 0, false
	}

	filled := 0
fill:
	for filled < len(samples) {
		if len(p.current) == 0 {
			select {
			case chunk, open := <-p.chunks:
				if !open {
					p.drained = true
					p.position.Add(int64(filled))
					return filled, filled > 0
				}
				p.current = chunk
				continue
			default:
				break fill
			}
		}

		c := copy(samples[filled:], p.current)
		p.current = p.current[c:]
		filled += c
	}
	p.position.Add(int64(filled))

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (p *Prefetcher) Err() error {
	return p.src.Err()
}

func (p *Prefetcher) Len() int {
	return p.src.Len()
}

// Position counts samples actually handed to the output, not silence.
func (p *Prefetcher) Position() int {
	return int(p.position.Load())
}

// Seek restarts the read-ahead at sample pos. It must not run concurrently
// with Stream.
func (p *Prefetcher) Seek(pos int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrReaderClosed
	}
	p.stopWorker()
	err := p.src.Seek(pos)
	if err == nil {
		p.position.Store(int64(pos))
	}
	p.startWorker()
	return err
}

func (p *Prefetcher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.stopWorker()
	return p.src.Close()
}
