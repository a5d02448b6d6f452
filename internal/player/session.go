// Package player drives playback of one track at a time: acquisition, the
// transport state machine, and keeping the screen and lyrics in step.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/seasons-cli/internal/lyrics"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/rs/zerolog/log"
)

// Clock is the audio context the transport is timed against.
// audio.Output implements it.
type Clock interface {
	Now() time.Duration
	Suspended() bool
	Resume(ctx context.Context) error
}

// Store persists the last playing position between runs.
type Store interface {
	ResumeOffset(path string) (time.Duration, bool)
	SetLastPlaying(path string, position time.Duration)
}

type Options struct {
	Backend Backend
	Clock   Clock
	Surface Surface
	Bridge  Bridge
	Store   Store

	FrameInterval time.Duration
	Looping       bool
}

// Snapshot is a consistent copy of the transport state.
type Snapshot struct {
	State    State
	Track    track.Track
	Position time.Duration
	Duration time.Duration
	Looping  bool
	Pending  bool
}

// Session owns the transport for one run of the program. Every operation
// logs and absorbs its own failures; the returned error is informational.
type Session struct {
	backend Backend
	clock   Clock
	surface Surface
	bridge  Bridge
	store   Store
	ticker  *Ticker

	mu         sync.Mutex
	loaded     bool
	loading    bool
	pending    bool
	playing    bool
	ended      bool
	looping    bool
	offset     time.Duration
	clockStart time.Duration
	duration   time.Duration
	current    track.Track
	source     Source
	engine     *lyrics.Engine
	gen        uint64
	run        uint64
	cancelLoad context.CancelFunc
}

func NewSession(opts Options) *Session {
	s := &Session{
		backend: opts.Backend,
		clock:   opts.Clock,
		surface: opts.Surface,
		bridge:  opts.Bridge,
		store:   opts.Store,
		ticker:  NewTicker(opts.FrameInterval),
		looping: opts.Looping,
	}
	if s.surface == nil {
		s.surface = NopSurface{}
	}
	if s.bridge == nil {
		s.bridge = NopBridge{}
	}
	return s
}

func (s *Session) ready() error {
	if s.backend == nil || s.clock == nil {
		log.Error().Msg("Session has no audio backend attached")
		return ErrMissingElement
	}
	return nil
}

// Load tears down the current track and plays t once it is acquired. A
// newer Load or a Reset supersedes one still acquiring.
func (s *Session) Load(ctx context.Context, t track.Track) error {
	if err := s.ready(); err != nil {
		return err
	}
	if t.URL == "" {
		log.Error().Str("track", t.Path).Msg("Track has no playable URL")
		return ErrNoResource
	}

	if err := s.Reset(ctx); err != nil {
		log.Warn().Err(err).Msg("Teardown before load did not complete cleanly")
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.cancelLoad = cancel
	s.current = t
	s.loading = true
	s.pending = true
	s.ended = false
	s.mu.Unlock()

	s.surface.ClearError()
	s.surface.SetTrackName(t.Title())
	s.surface.SetControlsEnabled(false)
	s.surface.SetPlayGlyph(GlyphPending)
	s.bridge.SetMetadata(t, 0)

	log.Info().Str("track", t.Path).Str("name", t.Name).Msg("Loading track")
	start := time.Now()

	src, err := s.backend.Acquire(loadCtx, t)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if src != nil {
			src.Close()
		}
		log.Debug().Str("track", t.Path).Msg("Load superseded")
		return ErrAborted
	}
	s.cancelLoad = nil
	s.loading = false
	s.pending = false

	if err != nil {
		s.mu.Unlock()
		s.surface.SetControlsEnabled(true)
		s.surface.SetPlayGlyph(GlyphPlay)

		if ctx.Err() != nil {
			log.Debug().Str("track", t.Path).Msg("Load canceled")
			return ErrAborted
		}

		acqErr := &AcquisitionError{Track: t.Title(), Err: err}
		log.Error().Err(err).Str("track", t.Path).Msg("Failed to load track")
		s.surface.ShowError(acqErr)
		return acqErr
	}

	s.source = src
	s.loaded = true
	s.duration = src.Duration()
	s.offset = 0
	if s.store != nil {
		if resume, ok := s.store.ResumeOffset(t.Path); ok {
			s.offset = clampDuration(resume, 0, s.duration)
		}
	}
	s.engine = lyrics.NewEngine(lyrics.NewDocument(t.Lyrics), t.Timing, s.surface.LyricsMarkup(), s.surface)
	engine := s.engine
	offset, duration := s.offset, s.duration
	s.mu.Unlock()

	engine.Clear()
	s.bridge.SetMetadata(t, duration)
	s.refresh(engine, offset, duration)
	s.surface.SetControlsEnabled(true)
	s.surface.SetPlayGlyph(GlyphPlay)

	log.Info().
		Str("track", t.Path).
		Dur("duration", duration).
		Dur("resume", offset).
		Dur("elapsed", time.Since(start)).
		Msg("Track ready")

	return s.Play(ctx)
}

// Play starts or resumes the loaded track at the stored offset.
func (s *Session) Play(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		log.Warn().Msg("Play requested with nothing loaded")
		return ErrNoResource
	}
	if s.pending {
		s.mu.Unlock()
		log.Warn().Msg("Play dropped, another transport operation is running")
		return ErrPending
	}
	src := s.source
	if s.playing && src.IsActive() {
		s.mu.Unlock()
		return nil
	}
	s.pending = true
	s.mu.Unlock()

	defer s.release(src)
	return s.start(ctx, src)
}

// start plays src from the stored offset. The caller holds pending. Each
// start is a new playthrough; an end reported for an earlier one is stale.
func (s *Session) start(ctx context.Context, src Source) error {
	s.mu.Lock()
	s.run++
	run := s.run
	offset := s.offset
	s.mu.Unlock()

	s.surface.SetPlayGlyph(GlyphPending)
	src.OnEnded(func() { s.onNaturalEnd(src, run) })

	fail := func(err error) error {
		log.Error().Err(err).Msg("Failed to start playback")
		s.surface.SetPlayGlyph(GlyphPlay)
		return err
	}

	if s.clock.Suspended() {
		if err := s.clock.Resume(ctx); err != nil {
			return fail(fmt.Errorf("failed to resume audio output: %w", err))
		}
	}

	if err := src.Start(ctx, offset); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	if s.source != src {
		s.mu.Unlock()
		src.Stop(ctx)
		log.Debug().Msg("Source replaced while starting")
		return ErrAborted
	}
	s.clockStart = s.clock.Now() - offset
	s.playing = true
	s.ended = false
	s.mu.Unlock()

	s.surface.SetPlayGlyph(GlyphPause)
	s.ticker.Start(s.tick)
	s.bridge.SetPlaybackState(MediaPlaying)

	log.Debug().Dur("offset", offset).Msg("Playback started")
	return nil
}

// release ends the transport operation holding pending on src.
func (s *Session) release(src Source) {
	s.mu.Lock()
	if s.source == src {
		s.pending = false
	}
	s.mu.Unlock()
}

// Pause stops the source and freezes the offset. The play glyph is left
// alone until the source has confirmed the stop.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		log.Warn().Msg("Pause requested with nothing loaded")
		return ErrNoResource
	}
	if s.pending {
		s.mu.Unlock()
		log.Warn().Msg("Pause dropped, another transport operation is running")
		return ErrPending
	}
	if !s.playing {
		s.mu.Unlock()
		return nil
	}
	s.pending = true
	s.playing = false
	src := s.source
	s.mu.Unlock()

	defer s.release(src)
	return s.halt(ctx, src)
}

// halt stops src and stores the position it reached. The caller holds
// pending and has already cleared playing.
func (s *Session) halt(ctx context.Context, src Source) error {
	s.ticker.Cancel()
	err := src.Stop(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Source did not confirm stop")
	}

	s.mu.Lock()
	if s.source == src {
		s.offset = clampDuration(s.clock.Now()-s.clockStart, 0, s.duration)
	}
	offset, duration, engine := s.offset, s.duration, s.engine
	s.mu.Unlock()

	s.refresh(engine, offset, duration)
	s.surface.SetPlayGlyph(GlyphPlay)
	s.bridge.SetPlaybackState(MediaPaused)

	log.Debug().Dur("offset", offset).Msg("Playback paused")
	return err
}

// TogglePlay pauses, plays, or reloads the current track after a reset.
func (s *Session) TogglePlay(ctx context.Context) error {
	s.mu.Lock()
	playing, loaded, loading := s.playing, s.loaded, s.loading
	current := s.current
	s.mu.Unlock()

	switch {
	case playing:
		return s.Pause(ctx)
	case loaded:
		return s.Play(ctx)
	case loading:
		log.Warn().Msg("Toggle dropped, track is still loading")
		return ErrPending
	case current.URL != "":
		return s.Load(ctx, current)
	default:
		log.Warn().Msg("Toggle requested with nothing loaded")
		return ErrNoResource
	}
}

// Seek moves the offset to target, clamped to the track. Playback resumes
// when it was running before. Other transport operations are dropped until
// the seek has finished.
func (s *Session) Seek(ctx context.Context, target time.Duration) error {
	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		log.Warn().Msg("Seek requested with nothing loaded")
		return ErrNoResource
	}
	if s.pending {
		s.mu.Unlock()
		log.Warn().Msg("Seek dropped, another transport operation is running")
		return ErrPending
	}
	wasPlaying := s.playing
	src := s.source
	s.pending = true
	s.playing = false
	s.mu.Unlock()

	defer s.release(src)

	if wasPlaying {
		if err := s.halt(ctx, src); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.source != src {
		s.mu.Unlock()
		return ErrAborted
	}
	s.offset = clampDuration(target, 0, s.duration)
	offset, duration, engine := s.offset, s.duration, s.engine
	s.mu.Unlock()

	if engine != nil {
		engine.Clear()
	}

	log.Debug().Dur("target", target).Dur("offset", offset).Msg("Seek")

	if wasPlaying {
		return s.start(ctx, src)
	}
	s.refresh(engine, offset, duration)
	return nil
}

// SeekBy seeks relative to the current position.
func (s *Session) SeekBy(ctx context.Context, delta time.Duration) error {
	return s.Seek(ctx, s.Position()+delta)
}

// SeekFraction seeks to f of the track length, f in [0, 1].
func (s *Session) SeekFraction(ctx context.Context, f float64) error {
	f = min(max(f, 0), 1)
	return s.Seek(ctx, time.Duration(f*float64(s.Duration())))
}

// Reset releases the source and returns the transport to its empty state.
// The current track is kept so it can be loaded again.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	cancelLoad := s.cancelLoad
	s.cancelLoad = nil
	src := s.source
	s.source = nil
	engine := s.engine
	s.loaded = false
	s.loading = false
	s.playing = false
	s.pending = false
	s.ended = false
	s.offset = 0
	s.clockStart = 0
	s.duration = 0
	s.mu.Unlock()

	if cancelLoad != nil {
		cancelLoad()
	}
	s.ticker.Cancel()

	var err error
	if src != nil {
		if stopErr := src.Stop(ctx); stopErr != nil {
			log.Error().Err(stopErr).Msg("Source did not confirm stop before teardown")
			err = stopErr
		}
		if closeErr := src.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close source")
			err = errors.Join(err, closeErr)
		}
	}

	if engine != nil {
		engine.Clear()
	}
	s.refresh(nil, 0, 0)
	s.surface.SetPlayGlyph(GlyphPlay)
	if src != nil {
		s.bridge.SetPlaybackState(MediaNone)
		log.Debug().Msg("Session reset")
	}
	return err
}

// onNaturalEnd handles the end of playthrough run of src. Ends of an earlier
// playthrough or of a replaced source are ignored.
func (s *Session) onNaturalEnd(src Source, run uint64) {
	s.mu.Lock()
	if s.source != src || !s.playing || s.run != run {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.offset = s.duration
	duration, looping, engine := s.duration, s.looping, s.engine
	path := s.current.Path
	s.mu.Unlock()

	s.ticker.Cancel()
	s.refresh(engine, duration, duration)
	s.bridge.SetPlaybackState(MediaNone)

	log.Info().Str("track", path).Bool("loop", looping).Msg("Track ended")

	ctx := context.Background()
	if looping {
		s.mu.Lock()
		if s.source == src {
			s.offset = 0
		}
		s.mu.Unlock()
		s.Play(ctx)
		return
	}

	s.Reset(ctx)

	s.mu.Lock()
	if s.source == nil && !s.loading {
		s.ended = true
	}
	s.mu.Unlock()
}

func (s *Session) tick() bool {
	s.mu.Lock()
	if !s.playing || s.source == nil {
		s.mu.Unlock()
		return false
	}
	src := s.source
	pos := s.positionLocked()
	s.offset = pos
	duration, engine := s.duration, s.engine
	s.mu.Unlock()

	if !src.IsActive() {
		return false
	}

	s.refresh(engine, pos, duration)
	return true
}

// refresh redraws the time, progress and lyrics for pos.
func (s *Session) refresh(engine *lyrics.Engine, pos, duration time.Duration) {
	if engine != nil {
		engine.Mark(pos)
	}
	s.surface.SetTime(pos, duration)

	fraction := 0.0
	if duration > 0 {
		fraction = float64(pos) / float64(duration)
	}
	s.surface.SetProgress(fraction)
}

func (s *Session) SetLooping(on bool) {
	s.mu.Lock()
	s.looping = on
	s.mu.Unlock()
	s.surface.SetLoop(on)
}

func (s *Session) ToggleLoop() bool {
	s.mu.Lock()
	s.looping = !s.looping
	on := s.looping
	s.mu.Unlock()

	s.surface.SetLoop(on)
	log.Debug().Bool("loop", on).Msg("Loop toggled")
	return on
}

func (s *Session) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping
}

// Position is the clock-derived position while playing and the stored
// offset otherwise.
func (s *Session) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Session) positionLocked() time.Duration {
	pos := s.offset
	if s.playing && s.clock != nil {
		pos = s.clock.Now() - s.clockStart
	}
	return clampDuration(pos, 0, s.duration)
}

func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.loading:
		return StateLoading
	case !s.loaded && s.ended:
		return StateEnded
	case !s.loaded:
		return StateEmpty
	case s.playing:
		return StatePlaying
	case s.offset > 0:
		return StatePaused
	default:
		return StateReady
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:    s.stateLocked(),
		Track:    s.current,
		Position: s.positionLocked(),
		Duration: s.duration,
		Looping:  s.looping,
		Pending:  s.pending,
	}
}

// Current is the last track handed to Load, even after a reset.
func (s *Session) Current() track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RefreshCurrent swaps in a fresh descriptor for the current track, such
// as one with a renewed signed URL. A loaded source keeps playing; the new
// URL is used the next time the track is loaded.
func (s *Session) RefreshCurrent(t track.Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Path == "" || t.Path != s.current.Path || t.URL == "" {
		return false
	}
	s.current = t
	return true
}

// SaveLastPlaying records the position of a playing track in the store.
func (s *Session) SaveLastPlaying() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	playing := s.playing
	path := s.current.Path
	pos := s.positionLocked()
	s.mu.Unlock()

	if !playing || path == "" {
		return
	}
	s.store.SetLastPlaying(path, pos)
	log.Debug().Str("track", path).Dur("position", pos).Msg("Saved last playing position")
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if hi > 0 && d > hi {
		d = hi
	}
	if d < lo {
		d = lo
	}
	return d
}
