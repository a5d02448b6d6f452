package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/seasons-cli/internal/lyrics"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const lyricsRegion = "mark"

var _ player.Surface = (*UI)(nil)

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) SetTrackName(name string) {
	ui.queue(func() {
		ui.trackView.SetText(tview.Escape(name))
	})
}

func (ui *UI) SetPlayGlyph(g player.PlayGlyph) {
	if g == player.GlyphPending {
		ui.startSpinner()
	} else {
		ui.stopSpinner()
	}

	ui.queue(func() {
		ui.glyph = g
		switch g {
		case player.GlyphPause:
			ui.playView.SetText(" " + PauseIcon)
		case player.GlyphPending:
			ui.playView.SetText(" " + ui.playingSpinner.Frames[0])
		default:
			ui.playView.SetText(" ▶")
		}
	})
}

func (ui *UI) startSpinner() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.spinnerStop != nil {
		return
	}
	stop := make(chan struct{})
	ui.spinnerStop = stop

	go func() {
		ticker := time.NewTicker(ui.playingSpinner.FPS)
		defer ticker.Stop()

		frame := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				frame = (frame + 1) % len(ui.playingSpinner.Frames)
				text := " " + ui.playingSpinner.Frames[frame]
				ui.queue(func() {
					if ui.glyph == player.GlyphPending {
						ui.playView.SetText(text)
					}
				})
			}
		}
	}()
}

func (ui *UI) stopSpinner() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.spinnerStop != nil {
		close(ui.spinnerStop)
		ui.spinnerStop = nil
	}
}

func (ui *UI) SetTime(position, duration time.Duration) {
	text := formatTime(position, duration)
	ui.queue(func() {
		ui.statusRenderer.AdvanceAnimation()
		ui.timeView.SetText(text)
	})
}

func (ui *UI) SetProgress(fraction float64) {
	ui.queue(func() {
		if !ui.scrub.active {
			ui.progress = fraction
		}
	})
}

func (ui *UI) SetLoop(on bool) {
	text := ui.loopText(on)
	ui.queue(func() {
		ui.loopView.SetText(text)
	})
}

func (ui *UI) loopText(on bool) string {
	if on {
		return fmt.Sprintf("[%s]⟳ loop[-] ", ui.colors.highlight.String())
	}
	return fmt.Sprintf("[%s]⟳ loop[-] ", ui.colors.borders.String())
}

func (ui *UI) SetControlsEnabled(enabled bool) {
	ui.queue(func() {
		ui.controlsEnabled = enabled
	})
}

func (ui *UI) ShowError(err error) {
	if err == nil {
		return
	}
	message := strings.ReplaceAll(friendlyErrorMessage(err.Error()), "\n", " ")
	ui.queue(func() {
		ui.errorView.SetText(tview.Escape(message))
	})
}

func (ui *UI) ClearError() {
	ui.queue(func() {
		ui.errorView.SetText("")
	})
}

// SetLyrics shows text rendered with LyricsMarkup and scrolls the marked
// phrase into view.
func (ui *UI) SetLyrics(text string) {
	marked := strings.Contains(text, `["`+lyricsRegion+`"]`)
	ui.queue(func() {
		ui.lyricsView.SetText(text)
		if marked {
			ui.lyricsView.Highlight(lyricsRegion).ScrollToHighlight()
			return
		}
		ui.lyricsView.Highlight()
		ui.lyricsView.ScrollToBeginning()
	})
}

// LyricsMarkup renders stanzas as blank-line separated blocks and the active
// phrase as a colored tview region.
func (ui *UI) LyricsMarkup() lyrics.Markup {
	return lyrics.Markup{
		ParagraphClose: "\n\n",
		LineBreak:      "\n",
		MarkOpen:       fmt.Sprintf(`["%s"][%s::b]`, lyricsRegion, ui.colors.lyricsMark.String()),
		MarkClose:      `[-::-][""]`,
		Escape:         tview.Escape,
	}
}

func (ui *UI) createTimeline() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		fill := tcell.StyleDefault.Foreground(ui.colors.timelineFill).Background(ui.colors.background)
		empty := tcell.StyleDefault.Foreground(ui.colors.timelineEmpty).Background(ui.colors.background)

		for i, r := range []rune(renderTimeline(ui.progress, width)) {
			style := empty
			if r != '░' {
				style = fill
			}
			screen.SetContent(x+i, y, r, nil, style)
		}
		return x, y, width, height
	})

	return box
}

// scrub is a drag of the timeline handle in progress.
type scrub struct {
	active     bool
	wasPlaying bool
	// paused is closed once playback has stopped for the drag.
	paused chan struct{}
}

// timelineMouse handles presses, drags and releases on the timeline and
// reports whether the event was consumed. Playback pauses while the handle
// is dragged and resumes at the release point if it was running.
func (ui *UI) timelineMouse(action tview.MouseAction, event *tcell.EventMouse) bool {
	if ui.timeline == nil {
		return false
	}
	mx, my := event.Position()
	bx, _, bw, _ := ui.timeline.GetInnerRect()
	f := timelineFraction(mx-bx, bw)

	switch action {
	case tview.MouseLeftDown:
		if !ui.timeline.InRect(mx, my) {
			return false
		}
		if !ui.controlsEnabled || ui.transport == nil {
			return true
		}
		wasPlaying := ui.transport.Snapshot().State == player.StatePlaying
		paused := make(chan struct{})
		ui.scrub = scrub{active: true, wasPlaying: wasPlaying, paused: paused}
		ui.progress = f
		ui.dispatch(func(ctx context.Context) {
			defer close(paused)
			if wasPlaying {
				ui.transport.Pause(ctx)
			}
		})
		return true

	case tview.MouseMove:
		if !ui.scrub.active {
			return false
		}
		ui.progress = f
		return true

	case tview.MouseLeftUp:
		if !ui.scrub.active {
			return false
		}
		drag := ui.scrub
		ui.scrub = scrub{}
		ui.progress = f
		log.Debug().Float64("fraction", f).Bool("resume", drag.wasPlaying).Msg("Timeline released")
		ui.dispatch(func(ctx context.Context) {
			select {
			case <-drag.paused:
			case <-ctx.Done():
				return
			}
			ui.transport.SeekFraction(ctx, f)
			if drag.wasPlaying {
				ui.transport.Play(ctx)
			}
		})
		return true

	case tview.MouseLeftClick:
		// The release already seeked.
		return ui.timeline.InRect(mx, my)
	}
	return false
}

// renderTimeline draws a width-cell bar: filled cells up to fraction, the
// handle, then empty cells.
func renderTimeline(fraction float64, width int) string {
	if width <= 0 {
		return ""
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	handle := int(fraction * float64(width))
	if handle >= width {
		handle = width - 1
	}
	return strings.Repeat("█", handle) + "●" + strings.Repeat("░", width-handle-1)
}

// timelineFraction maps a cell column to a seek fraction.
func timelineFraction(col, width int) float64 {
	if width <= 1 || col <= 0 {
		return 0
	}
	if col >= width-1 {
		return 1
	}
	return float64(col) / float64(width-1)
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatTime(position, duration time.Duration) string {
	return formatClock(position) + " / " + formatClock(duration) + " "
}
