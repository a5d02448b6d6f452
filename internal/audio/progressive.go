package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

const progressiveChunk = 32 * 1024

var ErrReaderClosed = errors.New("reader closed")

// Progressive is a seekable view over a body that is still downloading.
// Reads past the downloaded part block until more bytes arrive, the body
// ends or the reader is closed.
type Progressive struct {
	mu     sync.Mutex
	cond   *sync.Cond
	body   io.ReadCloser
	buf    []byte
	size   int64
	pos    int64
	err    error
	done   bool
	eof    bool
	closed bool

	complete chan struct{}
}

// NewProgressive starts downloading body in the background. size is the
// declared length, or -1 when unknown.
func NewProgressive(body io.ReadCloser, size int64) *Progressive {
	p := &Progressive{
		body:     body,
		size:     size,
		complete: make(chan struct{}),
	}
	if size > 0 {
		p.buf = make([]byte, 0, size)
	}
	p.cond = sync.NewCond(&p.mu)
	go p.fill()
	return p
}

func (p *Progressive) fill() {
	defer close(p.complete)
	defer p.body.Close()

	chunk := make([]byte, progressiveChunk)
	for {
		n, err := p.body.Read(chunk)

		p.mu.Lock()
		if n > 0 {
			p.buf = append(p.buf, chunk[:n]...)
		}
		if err != nil {
			p.eof = errors.Is(err, io.EOF)
			if !p.eof && !p.closed {
				p.err = err
				log.Debug().Err(err).Int("received", len(p.buf)).Msg("Audio download failed")
			}
			p.done = true
			p.size = int64(len(p.buf))
		}
		stop := p.done || p.closed
		p.cond.Broadcast()
		p.mu.Unlock()

		if stop {
			return
		}
	}
}

func (p *Progressive) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && !p.done && p.pos >= int64(len(p.buf)) {
		p.cond.Wait()
	}

	if p.closed {
		return 0, ErrReaderClosed
	}
	if p.pos >= int64(len(p.buf)) {
		if p.err != nil {
			return 0, p.err
		}
		return 0, io.EOF
	}

	n := copy(b, p.buf[p.pos:])
	p.pos += int64(n)
	return n, nil
}

// Seek never blocks except for io.SeekEnd on a body of unknown length,
// which waits for the download to finish.
func (p *Progressive) Seek(offset int64, whence int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = p.pos + offset
	case io.SeekEnd:
		for p.size < 0 && !p.done && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			return 0, ErrReaderClosed
		}
		abs = p.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	p.pos = abs
	return abs, nil
}

// Close stops the download and wakes any blocked reader.
func (p *Progressive) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	return p.body.Close()
}

// Progress reports how many bytes have arrived and the expected total
// (-1 when unknown).
func (p *Progressive) Progress() (received, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.buf)), p.size
}

// Wait blocks until the download finishes and returns the full payload.
func (p *Progressive) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.complete:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	if !p.eof {
		return nil, ErrReaderClosed
	}
	return p.buf, nil
}
