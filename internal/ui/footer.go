package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/rivo/tview"
)

// Snapshotter reads the transport state for the status line.
type Snapshotter interface {
	Snapshot() player.Snapshot
}

type StatusRenderer struct {
	transport     Snapshotter
	backend       string
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer(t Snapshotter) *StatusRenderer {
	return &StatusRenderer{
		transport:     t,
		maxAnimFrame:  4,
		ticksPerFrame: 8, // Slow down animation (8 ticks per frame)
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) SetBackend(backend string) {
	s.backend = backend
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	if s.transport == nil {
		return s.renderIdle()
	}
	return s.renderSnapshot(s.transport.Snapshot())
}

func (s *StatusRenderer) renderSnapshot(snap player.Snapshot) string {
	var parts []string

	switch snap.State {
	case player.StateEmpty:
		return s.renderIdle()
	case player.StateLoading:
		circles := []string{"◐", "◓", "◑", "◒"}
		parts = append(parts, fmt.Sprintf("%s LOADING", circles[s.animFrame]))
	case player.StatePlaying:
		dots := []string{"●", "◉", "○", "◉"}
		dot := dots[s.animFrame]
		if s.primaryColor != "" {
			dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
		}
		parts = append(parts, dot+" PLAYING")
	case player.StatePaused:
		parts = append(parts, PauseIcon+" PAUSED")
	case player.StateEnded:
		parts = append(parts, "■ ENDED")
	default:
		parts = append(parts, "○ READY")
	}

	if snap.Looping {
		parts = append(parts, "LOOP")
	}
	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if s.backend != "" {
		parts = append(parts, strings.ToUpper(s.backend))
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Open a track"
	}
	return "○ IDLE │ Open a track"
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	if ui.transport == nil {
		return fmt.Sprintf("[%s]Enter[-] open", keyColor)
	}

	switch ui.transport.Snapshot().State {
	case player.StatePlaying:
		return fmt.Sprintf("[%s]Space[-] pause  [%s]←/→[-] seek", keyColor, keyColor)
	case player.StateEmpty:
		return fmt.Sprintf("[%s]Enter[-] open", keyColor)
	default:
		return fmt.Sprintf("[%s]Space[-] play  [%s]←/→[-] seek", keyColor, keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	ui.mu.Lock()
	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}
	ui.mu.Unlock()

	return fmt.Sprintf(" %s  [%s]l[-] loop  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillRect(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width * 3 / 5
	statusWidth := width - helpWidth

	ui.fillRect(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillRect(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fillRect(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillRect(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
