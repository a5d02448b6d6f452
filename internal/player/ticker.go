package player

import (
	"sync"
	"time"
)

// Ticker runs one per-frame loop at a time.
type Ticker struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second / 30
	}
	return &Ticker{interval: interval}
}

// Start cancels any running loop and then calls fn every frame until fn
// returns false or Cancel is called.
func (t *Ticker) Start(fn func() bool) {
	t.Cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done

	go func() {
		defer close(done)

		frames := time.NewTicker(t.interval)
		defer frames.Stop()

		for {
			select {
			case <-stop:
				return
			case <-frames.C:
				if !fn() {
					return
				}
			}
		}
	}()
}

// Cancel stops the loop and waits for it to exit. It is safe to call any
// number of times, but never from inside fn.
func (t *Ticker) Cancel() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether a loop is still scheduled.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
