package player

import (
	"time"

	"github.com/glebovdev/seasons-cli/internal/lyrics"
)

// PlayGlyph is what the play button shows.
type PlayGlyph int

const (
	GlyphPlay PlayGlyph = iota
	GlyphPause
	GlyphPending
)

// Surface is everything the session draws on. Implementations must not
// call back into the session synchronously.
type Surface interface {
	SetTrackName(name string)
	SetPlayGlyph(g PlayGlyph)
	SetTime(position, duration time.Duration)
	SetProgress(fraction float64)
	SetLoop(on bool)
	SetControlsEnabled(enabled bool)
	ShowError(err error)
	ClearError()

	// SetLyrics receives text rendered with LyricsMarkup.
	SetLyrics(text string)
	LyricsMarkup() lyrics.Markup
}

// NopSurface draws nothing.
type NopSurface struct{}

func (NopSurface) SetTrackName(string) {}
func (NopSurface) SetPlayGlyph(PlayGlyph) {}
func (NopSurface) SetTime(_, _ time.Duration) {}
func (NopSurface) SetProgress(float64) {}
func (NopSurface) SetLoop(bool) {}
func (NopSurface) SetControlsEnabled(bool) {}
func (NopSurface) ShowError(error) {}
func (NopSurface) ClearError() {}
func (NopSurface) SetLyrics(string) {}
func (NopSurface) LyricsMarkup() lyrics.Markup { return lyrics.Markup{} }
