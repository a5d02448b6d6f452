// Package audio owns the sound device, the audio clock and the decoders.
package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	SpeakerBufferSize   = time.Millisecond * 100
	ResampleQuality     = 4
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

// Output is the audio context every source plays into. Lock and Unlock
// guard streamers that are already playing; callbacks placed in a played
// streamer run with that lock held. Now is a monotonic clock that only
// advances while the output is not suspended.
type Output interface {
	Play(s beep.Streamer) error
	Lock()
	Unlock()
	SampleRate() beep.SampleRate
	Now() time.Duration
	Suspended() bool
	Suspend() error
	Resume(ctx context.Context) error
	SetVolume(percent int)
	Close() error
}

// suspendClock measures elapsed time excluding suspended periods.
type suspendClock struct {
	origin         time.Time
	suspendedAt    time.Time
	suspendedTotal time.Duration
}

func (c *suspendClock) start() {
	if c.origin.IsZero() {
		c.origin = time.Now()
	}
}

func (c *suspendClock) now() time.Duration {
	if c.origin.IsZero() {
		return 0
	}
	elapsed := time.Since(c.origin) - c.suspendedTotal
	if !c.suspendedAt.IsZero() {
		elapsed -= time.Since(c.suspendedAt)
	}
	return elapsed
}

func (c *suspendClock) suspend() {
	if c.suspendedAt.IsZero() {
		c.suspendedAt = time.Now()
	}
}

func (c *suspendClock) resume() {
	if !c.suspendedAt.IsZero() {
		c.suspendedTotal += time.Since(c.suspendedAt)
		c.suspendedAt = time.Time{}
	}
}

// Speaker plays through the system sound device. The device is opened on
// first use and every source is mixed into one volume-controlled stream.
type Speaker struct {
	mu            sync.Mutex
	initialized   bool
	sampleRate    beep.SampleRate
	mixer         *beep.Mixer
	volume        *effects.Volume
	volumePercent int
	suspended     bool
	clock         suspendClock
}

func NewSpeaker(volumePercent int) *Speaker {
	return &Speaker{
		sampleRate:    DefaultSampleRate,
		volumePercent: config.ClampVolume(volumePercent),
	}
}

func (s *Speaker) ensureInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	if err := speaker.Init(s.sampleRate, s.sampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	s.mixer = &beep.Mixer{}
	s.volume = &effects.Volume{
		Streamer: s.mixer,
		Base:     2,
		Volume:   percentToExponent(float64(s.volumePercent)),
		Silent:   s.volumePercent == 0,
	}
	speaker.Play(s.volume)

	s.initialized = true
	s.clock.start()
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", s.sampleRate, SpeakerBufferSize)
	return nil
}

func (s *Speaker) Play(st beep.Streamer) error {
	if err := s.ensureInit(); err != nil {
		return err
	}
	speaker.Lock()
	s.mixer.Add(st)
	speaker.Unlock()
	return nil
}

func (s *Speaker) Lock()   { speaker.Lock() }
func (s *Speaker) Unlock() { speaker.Unlock() }

func (s *Speaker) SampleRate() beep.SampleRate {
	return s.sampleRate
}

func (s *Speaker) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.now()
}

func (s *Speaker) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *Speaker) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.suspended {
		return nil
	}
	if err := speaker.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend speaker: %w", err)
	}
	s.suspended = true
	s.clock.suspend()
	log.Debug().Msg("Audio output suspended")
	return nil
}

// Resume reopens a suspended device, initializing it on first use.
func (s *Speaker) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureInit(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.suspended {
		return nil
	}
	if err := speaker.Resume(); err != nil {
		return fmt.Errorf("failed to resume speaker: %w", err)
	}
	s.suspended = false
	s.clock.resume()
	log.Debug().Msg("Audio output resumed")
	return nil
}

func (s *Speaker) SetVolume(volumePercent int) {
	volumePercent = config.ClampVolume(volumePercent)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumePercent = volumePercent

	if s.volume == nil {
		log.Debug().Msgf("Volume stored as %d%% (will be applied when playback starts)", volumePercent)
		return
	}

	volumeLevel := percentToExponent(float64(volumePercent))

	speaker.Lock()
	s.volume.Volume = volumeLevel
	s.volume.Silent = volumePercent == 0
	speaker.Unlock()

	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, volumeLevel)
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	s.initialized = false
	return nil
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

// Fit resamples st to the output rate when the formats differ.
func Fit(out Output, format beep.Format, st beep.Streamer) beep.Streamer {
	if format.SampleRate == out.SampleRate() {
		return st
	}
	return beep.Resample(ResampleQuality, format.SampleRate, out.SampleRate(), st)
}
