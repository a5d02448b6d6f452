package ui

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep         = 5
	SeekStep           = 5 * time.Second
	FineSeekStep       = time.Second
	HeaderHeight       = 3
	FooterHeightWide   = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow = 6 // Narrow: 2 rows × 3 lines each
	FooterBreakpoint   = 110
	RecentWidth        = 36
	VolumeWidth        = 7
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Transport is the part of the player session the screen drives.
// *player.Session implements it.
type Transport interface {
	Load(ctx context.Context, t track.Track) error
	TogglePlay(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Reset(ctx context.Context) error
	SeekBy(ctx context.Context, delta time.Duration) error
	SeekFraction(ctx context.Context, f float64) error
	ToggleLoop() bool
	Snapshot() player.Snapshot
}

// Library resolves tracks and keeps the recent list.
// *service.TrackService implements it.
type Library interface {
	Resolve(ctx context.Context, p string) (track.Track, error)
	Touch(t track.Track)
	Recent() []config.RecentTrack
	RemoveRecent(path string)
	SetVolume(volume int)
	SetLoop(on bool)
	StopPeriodicRefresh()
}

// Volume is the output level control. audio.Output implements it.
type Volume interface {
	SetVolume(percent int)
}

// UI is the terminal screen. It implements player.Surface; every surface
// call is queued onto the tview event loop.
type UI struct {
	app       *tview.Application
	transport Transport
	library   Library
	volume    Volume
	config    *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	// queue runs fn on the event loop and redraws.
	queue func(fn func())
	// dispatch runs a transport call off the event loop.
	dispatch func(fn func(ctx context.Context))

	pages         *tview.Pages
	mainLayout    *tview.Flex
	contentLayout *tview.Flex
	trackView     *tview.TextView
	playView      *tview.TextView
	loopView      *tview.TextView
	timeline      *tview.Box
	timeView      *tview.TextView
	errorView     *tview.TextView
	lyricsView    *tview.TextView
	recentList    *tview.List
	volumeView    *tview.Flex
	helpPanel     *tview.Box

	// Owned by the event loop.
	glyph           player.PlayGlyph
	progress        float64
	scrub           scrub
	controlsEnabled bool
	lastFooterWidth int

	mu             sync.Mutex
	currentVolume  int
	savedVolume    int
	isMuted        bool
	spinnerStop    chan struct{}
	playingSpinner *PlayingSpinner
	statusRenderer *StatusRenderer

	stopped atomic.Bool

	colors struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		lyricsMark       tcell.Color
		timelineFill     tcell.Color
		timelineEmpty    tcell.Color
		errorForeground  tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		modalBackground  tcell.Color
	}
}

func NewUI(library Library, volume Volume, cfg *config.Config) *UI {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ui := &UI{
		app:             tview.NewApplication(),
		library:         library,
		volume:          volume,
		config:          cfg,
		ctx:             ctx,
		cancel:          cancel,
		currentVolume:   cfg.Volume,
		savedVolume:     cfg.Volume,
		controlsEnabled: true,
		playingSpinner:  NewPlayingSpinner(),
	}
	ui.queue = func(fn func()) {
		if ui.stopped.Load() {
			return
		}
		ui.app.QueueUpdateDraw(fn)
	}
	ui.dispatch = func(fn func(ctx context.Context)) {
		go fn(ui.ctx)
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.lyricsMark = config.GetColor(cfg.Theme.LyricsMark)
	ui.colors.timelineFill = config.GetColor(cfg.Theme.TimelineFill)
	ui.colors.timelineEmpty = config.GetColor(cfg.Theme.TimelineEmpty)
	ui.colors.errorForeground = config.GetColor(cfg.Theme.ErrorForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.statusRenderer = NewStatusRenderer(nil)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.statusRenderer.SetBackend(cfg.Backend)

	ui.setupUI()
	return ui
}

// Bind attaches the session the screen controls. It must be called before
// Run.
func (ui *UI) Bind(t Transport) {
	ui.transport = t
	ui.statusRenderer.transport = t
}

func (ui *UI) stop() {
	if ui.stopped.Swap(true) {
		return
	}
	if ui.library != nil {
		ui.library.StopPeriodicRefresh()
	}
	ui.stopSpinner()
	ui.cancel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

// Run shows the screen and, when initial is set, opens that track. It
// blocks until the user quits.
func (ui *UI) Run(initial string) error {
	ui.app.SetRoot(ui.pages, true).EnableMouse(true)
	ui.app.SetMouseCapture(func(event *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
		if ui.timelineMouse(action, event) {
			return nil, action
		}
		return event, action
	})
	ui.app.SetFocus(ui.recentList)
	ui.configureScreen()

	if initial != "" {
		ui.dispatch(func(ctx context.Context) {
			ui.open(ctx, initial)
		})
	}

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

// open resolves p, records it as recent and loads it into the session.
// Runs off the event loop.
func (ui *UI) open(ctx context.Context, p string) {
	if ui.transport == nil || ui.library == nil {
		log.Error().Msg("UI has no session or library attached")
		return
	}

	t, err := ui.library.Resolve(ctx, p)
	if err != nil {
		log.Error().Err(err).Str("track", p).Msg("Failed to resolve track")
		ui.ShowError(err)
		return
	}

	ui.library.Touch(t)
	ui.queue(ui.refreshRecent)

	if err := ui.transport.Load(ctx, t); err != nil {
		log.Debug().Err(err).Str("track", t.Path).Msg("Load finished with error")
	}
}

func (ui *UI) setupUI() {
	header := ui.createHeader()
	nowPlaying := ui.createNowPlaying()

	ui.lyricsView = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true).
		SetScrollable(true).
		SetTextAlign(tview.AlignCenter)
	ui.lyricsView.SetTextColor(ui.colors.foreground)
	ui.lyricsView.SetBackgroundColor(ui.colors.background)

	ui.recentList = ui.createRecentList()
	ui.volumeView = ui.createGraphicalVolumeBar()

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ui.lyricsView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(ui.recentList, RecentWidth, 0, true).
		AddItem(ui.volumeView, VolumeWidth, 0, false)
	body.SetBackgroundColor(ui.colors.background)

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(nowPlaying, 4, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.refreshRecent()

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) createNowPlaying() *tview.Flex {
	newLine := func() *tview.TextView {
		tv := tview.NewTextView()
		tv.SetDynamicColors(true)
		tv.SetWrap(false)
		tv.SetTextColor(ui.colors.foreground)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	ui.playView = newLine()
	ui.playView.SetTextColor(ui.colors.highlight)
	ui.playView.SetText(" ▶")

	ui.trackView = newLine()
	ui.trackView.SetTextColor(ui.colors.highlight)
	ui.trackView.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
	ui.trackView.SetText("No track loaded")

	ui.loopView = newLine()
	ui.loopView.SetTextAlign(tview.AlignRight)
	ui.loopView.SetText(ui.loopText(ui.config.Loop))

	ui.timeView = newLine()
	ui.timeView.SetTextAlign(tview.AlignRight)
	ui.timeView.SetText(formatTime(0, 0))

	ui.timeline = ui.createTimeline()

	ui.errorView = newLine()
	ui.errorView.SetTextColor(ui.colors.errorForeground)

	titleRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ui.playView, 4, 0, false).
		AddItem(ui.trackView, 0, 1, false).
		AddItem(ui.loopView, 8, 0, false)
	titleRow.SetBackgroundColor(ui.colors.background)

	timeRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(ui.timeline, 0, 1, false).
		AddItem(ui.timeView, 18, 0, false)
	timeRow.SetBackgroundColor(ui.colors.background)

	errorRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(ui.errorView, 0, 1, false)
	errorRow.SetBackgroundColor(ui.colors.background)

	panel := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(titleRow, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(timeRow, 1, 0, false).
		AddItem(errorRow, 1, 0, false)
	panel.SetBackgroundColor(ui.colors.background)
	return panel
}

func (ui *UI) createRecentList() *tview.List {
	list := tview.NewList().
		ShowSecondaryText(true).
		SetHighlightFullLine(true).
		SetWrapAround(false)
	list.SetMainTextColor(ui.colors.foreground)
	list.SetSecondaryTextColor(ui.colors.borders)
	list.SetSelectedTextColor(ui.colors.background)
	list.SetSelectedBackgroundColor(ui.colors.highlight)
	list.SetBackgroundColor(ui.colors.background)
	list.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitle(" Recent ").
		SetTitleColor(ui.colors.foreground)
	return list
}

// refreshRecent rebuilds the recent list. Runs on the event loop.
func (ui *UI) refreshRecent() {
	if ui.library == nil {
		return
	}

	selected := ui.recentList.GetCurrentItem()
	ui.recentList.Clear()

	for _, rt := range ui.library.Recent() {
		path := rt.Path
		secondary := "  " + path
		if season, ok := track.SeasonTitle(path); ok {
			secondary = "  " + season
		}
		ui.recentList.AddItem(rt.Name, secondary, 0, func() {
			ui.dispatch(func(ctx context.Context) {
				ui.open(ctx, path)
			})
		})
	}

	if selected >= 0 && selected < ui.recentList.GetItemCount() {
		ui.recentList.SetCurrentItem(selected)
	}
}

func (ui *UI) removeSelectedRecent() {
	recent := ui.library.Recent()
	index := ui.recentList.GetCurrentItem()
	if index < 0 || index >= len(recent) {
		return
	}
	ui.library.RemoveRecent(recent[index].Path)
	ui.refreshRecent()
}

func (ui *UI) toggleLoop() {
	on := ui.transport.ToggleLoop()
	if ui.library != nil {
		ui.library.SetLoop(on)
	}
}

// transportKey reports whether the key drives playback and so is ignored
// while controls are disabled.
func transportKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyLeft, tcell.KeyRight:
		return true
	case tcell.KeyRune:
		r := event.Rune()
		return r == ' ' || r == 's' || r == 'S' || (r >= '0' && r <= '9')
	}
	return false
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	if transportKey(event) && (!ui.controlsEnabled || ui.transport == nil) {
		return nil
	}

	switch event.Key() {
	case tcell.KeyRune:
		r := event.Rune()
		switch {
		case r == 'q' || r == 'Q':
			ui.stop()
			return nil
		case r == ' ':
			ui.dispatch(func(ctx context.Context) { ui.transport.TogglePlay(ctx) })
			return nil
		case r == 's' || r == 'S':
			ui.dispatch(func(ctx context.Context) { ui.transport.Reset(ctx) })
			return nil
		case r >= '0' && r <= '9':
			f := float64(r-'0') / 10
			ui.dispatch(func(ctx context.Context) { ui.transport.SeekFraction(ctx, f) })
			return nil
		case r == 'l' || r == 'L':
			if ui.transport != nil {
				ui.toggleLoop()
			}
			return nil
		case r == 'x' || r == 'X':
			if ui.library != nil {
				ui.removeSelectedRecent()
			}
			return nil
		case r == '+' || r == '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case r == '-' || r == '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case r == 'm' || r == 'M':
			ui.toggleMute()
			return nil
		case r == '?':
			ui.showHelpModal()
			return nil
		case r == 'a' || r == 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight, tcell.KeyLeft:
		step := SeekStep
		if event.Modifiers()&tcell.ModShift != 0 {
			step = FineSeekStep
		}
		if event.Key() == tcell.KeyLeft {
			step = -step
		}
		ui.dispatch(func(ctx context.Context) { ui.transport.SeekBy(ctx, step) })
		return nil
	}
	return event
}
