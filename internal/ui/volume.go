package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeLevels returns the empty and filled cell counts of the bar.
func volumeLevels(volume int) (empty, filled int) {
	filled = (config.ClampVolume(volume) * volumeBarHeight) / 100
	return volumeBarHeight - filled, filled
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	ui.mu.Lock()
	displayVolume := ui.currentVolume
	isMuted := ui.isMuted
	if isMuted {
		displayVolume = ui.savedVolume
	}
	ui.mu.Unlock()

	emptyLines, filledLines := volumeLevels(displayVolume)

	barColor := ui.colors.highlight
	if isMuted {
		barColor = config.GetColor(ui.config.Theme.MutedVolume)
	}

	createText := func(text string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	createBarLine := func(barText string, color tcell.Color, label string) *tview.Flex {
		line := tview.NewFlex().SetDirection(tview.FlexColumn)
		line.SetBackgroundColor(ui.colors.background)

		labelView := createText(label, barColor)
		if isMuted && label != "" {
			labelView.SetTextStyle(tcell.StyleDefault.
				Foreground(barColor).
				Background(ui.colors.background).
				Attributes(tcell.AttrStrikeThrough))
		}
		line.AddItem(labelView, 4, 0, false)
		line.AddItem(createText(barText, color), 0, 1, false)
		return line
	}

	container.AddItem(createText("   max", ui.colors.foreground), 1, 0, false)

	percent := fmt.Sprintf("%d%%", displayVolume)
	for i := 0; i < emptyLines; i++ {
		label := ""
		if filledLines == 0 && i == emptyLines-1 {
			label = percent
		}
		container.AddItem(createBarLine(" ░░", ui.colors.foreground, label), 1, 0, false)
	}
	for i := 0; i < filledLines; i++ {
		label := ""
		if i == 0 {
			label = percent
		}
		container.AddItem(createBarLine(" ██", barColor, label), 1, 0, false)
	}

	container.AddItem(createText("   min", ui.colors.foreground), 1, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) applyVolume(volume int) {
	if ui.volume != nil {
		ui.volume.SetVolume(volume)
	}
	ui.updateVolumeDisplay()
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()

	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
		volume := ui.currentVolume
		ui.mu.Unlock()

		ui.applyVolume(volume)
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", volume)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.applyVolume(volume)
	if ui.library != nil {
		ui.library.SetVolume(volume)
	}
	log.Debug().Msgf("Volume adjusted to %d%%", volume)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.isMuted = false
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		if ui.currentVolume == 0 {
			ui.savedVolume = config.DefaultVolume
		} else {
			ui.savedVolume = ui.currentVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		log.Debug().Msgf("Muted, saved volume %d%%", ui.savedVolume)
	}
	ui.statusRenderer.SetMuted(ui.isMuted)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.applyVolume(volume)
}
