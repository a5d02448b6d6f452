package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/wav"
)

// Tone is a sine wave of the given length.
func Tone(freq float64, d time.Duration, rate beep.SampleRate) (beep.Streamer, error) {
	sine, err := generators.SineTone(rate, freq)
	if err != nil {
		return nil, fmt.Errorf("failed to create tone: %w", err)
	}
	return beep.Take(rate.N(d), sine), nil
}

// ToneWAV encodes a Tone as a 16-bit stereo WAV file.
func ToneWAV(freq float64, d time.Duration, rate beep.SampleRate) ([]byte, error) {
	tone, err := Tone(freq, d, rate)
	if err != nil {
		return nil, err
	}

	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	var w memWriteSeeker
	if err := wav.Encode(&w, tone, format); err != nil {
		return nil, fmt.Errorf("failed to encode tone: %w", err)
	}
	return w.buf, nil
}

type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
