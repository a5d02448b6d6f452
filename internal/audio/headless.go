package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

// Headless is an Output that never touches a sound device. Samples are pulled
// only when Advance is called, either by Run in real time or directly by
// tests that need exact control over the clock.
type Headless struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	mixer      *beep.Mixer
	buf        [][2]float64

	now       atomic.Int64
	suspended atomic.Bool
	volume    atomic.Int64
	plays     atomic.Int64
}

func NewHeadless(sampleRate beep.SampleRate) *Headless {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Headless{
		sampleRate: sampleRate,
		mixer:      &beep.Mixer{},
		buf:        make([][2]float64, 512),
	}
}

func (h *Headless) Play(s beep.Streamer) error {
	h.mu.Lock()
	h.mixer.Add(s)
	h.mu.Unlock()
	h.plays.Add(1)
	return nil
}

func (h *Headless) Lock()   { h.mu.Lock() }
func (h *Headless) Unlock() { h.mu.Unlock() }

func (h *Headless) SampleRate() beep.SampleRate {
	return h.sampleRate
}

func (h *Headless) Now() time.Duration {
	return time.Duration(h.now.Load())
}

func (h *Headless) Suspended() bool {
	return h.suspended.Load()
}

func (h *Headless) Suspend() error {
	h.suspended.Store(true)
	return nil
}

func (h *Headless) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.suspended.Store(false)
	return nil
}

func (h *Headless) SetVolume(percent int) {
	h.volume.Store(int64(percent))
}

func (h *Headless) Volume() int {
	return int(h.volume.Load())
}

// Plays counts the streamers handed to Play.
func (h *Headless) Plays() int {
	return int(h.plays.Load())
}

// Active is the number of streamers still being mixed.
func (h *Headless) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mixer.Len()
}

func (h *Headless) Close() error {
	h.mu.Lock()
	h.mixer.Clear()
	h.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d and streams the matching number of
// samples through every playing streamer. Nothing moves while suspended.
func (h *Headless) Advance(d time.Duration) {
	if d <= 0 || h.suspended.Load() {
		return
	}

	h.mu.Lock()
	remaining := h.sampleRate.N(d)
	for remaining > 0 {
		n := min(remaining, len(h.buf))
		h.mixer.Stream(h.buf[:n])
		remaining -= n
	}
	h.mu.Unlock()

	h.now.Add(int64(d))
}

// Run advances in real time until ctx is done.
func (h *Headless) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Advance(now.Sub(last))
			last = now
		}
	}
}
