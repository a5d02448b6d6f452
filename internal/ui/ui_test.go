package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/lyrics"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/rivo/tview"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	loaded  []track.Track
	looping bool
	snap    player.Snapshot
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Load(_ context.Context, t track.Track) error {
	f.mu.Lock()
	f.loaded = append(f.loaded, t)
	f.mu.Unlock()
	f.record("load")
	return nil
}

func (f *fakeTransport) TogglePlay(context.Context) error {
	f.record("toggle")
	return nil
}

func (f *fakeTransport) Play(context.Context) error {
	f.record("play")
	return nil
}

func (f *fakeTransport) Pause(context.Context) error {
	f.record("pause")
	return nil
}

func (f *fakeTransport) Reset(context.Context) error {
	f.record("reset")
	return nil
}

func (f *fakeTransport) SeekBy(_ context.Context, delta time.Duration) error {
	f.record("seekby " + delta.String())
	return nil
}

func (f *fakeTransport) SeekFraction(_ context.Context, fraction float64) error {
	f.record(fmt.Sprintf("fraction %.1f", fraction))
	return nil
}

func (f *fakeTransport) ToggleLoop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.looping = !f.looping
	return f.looping
}

func (f *fakeTransport) Snapshot() player.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeTransport) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeLibrary struct {
	tracks  map[string]track.Track
	recent  []config.RecentTrack
	volume  int
	loop    bool
	stopped bool
}

func (f *fakeLibrary) Resolve(_ context.Context, p string) (track.Track, error) {
	t, ok := f.tracks[p]
	if !ok {
		return track.Track{}, errors.New("track not found")
	}
	return t, nil
}

func (f *fakeLibrary) Touch(t track.Track) {
	f.recent = append([]config.RecentTrack{{Path: t.Path, Name: t.Title()}}, f.recent...)
}

func (f *fakeLibrary) Recent() []config.RecentTrack {
	return append([]config.RecentTrack(nil), f.recent...)
}

func (f *fakeLibrary) RemoveRecent(path string) {
	var kept []config.RecentTrack
	for _, rt := range f.recent {
		if rt.Path != path {
			kept = append(kept, rt)
		}
	}
	f.recent = kept
}

func (f *fakeLibrary) SetVolume(volume int) { f.volume = volume }
func (f *fakeLibrary) SetLoop(on bool)      { f.loop = on }
func (f *fakeLibrary) StopPeriodicRefresh() { f.stopped = true }

type fakeVolume struct {
	levels []int
}

func (f *fakeVolume) SetVolume(percent int) {
	f.levels = append(f.levels, percent)
}

// newTestUI builds a screen whose queue and dispatch run inline.
func newTestUI(t *testing.T) (*UI, *fakeTransport, *fakeLibrary, *fakeVolume) {
	t.Helper()

	lib := &fakeLibrary{tracks: map[string]track.Track{
		"24-2/Show/OP Song": {Name: "Song", URL: "https://example.com/song.mp3", Path: "24-2/Show/OP Song"},
	}}
	vol := &fakeVolume{}
	tr := &fakeTransport{}

	ui := NewUI(lib, vol, config.DefaultConfig())
	ui.queue = func(fn func()) { fn() }
	ui.dispatch = func(fn func(ctx context.Context)) { fn(context.Background()) }
	ui.Bind(tr)
	return ui, tr, lib, vol
}

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestNewPlayingSpinner(t *testing.T) {
	spinner := NewPlayingSpinner()

	if len(spinner.Frames) < 2 {
		t.Errorf("Expected at least 2 frames, got %d", len(spinner.Frames))
	}
	for i, frame := range spinner.Frames {
		if frame == "" {
			t.Errorf("Frame[%d] is empty", i)
		}
	}
	if spinner.FPS <= 0 {
		t.Error("PlayingSpinner.FPS should be positive")
	}
}

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"nil slice", nil, ""},
		{"single part", []string{"PLAYING"}, "PLAYING"},
		{"three parts", []string{"● PLAYING", "LOOP", "BUFFER"}, "● PLAYING │ LOOP │ BUFFER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := joinParts(tt.parts); result != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, result, tt.expected)
			}
		})
	}
}

func TestFriendlyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      string
		contains string
	}{
		{"no such host", "dial tcp: lookup example.com: no such host", "Unable to connect"},
		{"connection refused", "dial tcp 127.0.0.1:80: connection refused", "Connection refused"},
		{"timeout", "context deadline exceeded (Client.Timeout exceeded)", "timed out"},
		{"network unreachable", "dial tcp: network is unreachable", "Network is unreachable"},
		{"expired link", "failed to load Song: server returned status 403: 403 Forbidden", "expired"},
		{"missing track", "server returned status 404: 404 Not Found", "Track not found"},
		{"missing local file", "some/path: track not found", "Track not found"},
		{"format", "failed to load Song: unsupported audio format", "Unsupported audio format"},
		{"generic error", "some error", "some error"},
		{"dial error truncation", "failed to connect: dial tcp something", "failed to connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := friendlyErrorMessage(tt.err)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("friendlyErrorMessage(%q) = %q, expected to contain %q", tt.err, result, tt.contains)
			}
		})
	}
}

func TestFriendlyErrorMessageTruncates(t *testing.T) {
	result := friendlyErrorMessage(strings.Repeat("x", 200))
	if len(result) > 110 {
		t.Errorf("Long error not truncated properly, got length %d", len(result))
	}
}

func TestRenderTimeline(t *testing.T) {
	tests := []struct {
		fraction float64
		width    int
		expected string
	}{
		{0, 10, "●░░░░░░░░░"},
		{0.5, 10, "█████●░░░░"},
		{1, 10, "█████████●"},
		{1.5, 4, "███●"},
		{-1, 3, "●░░"},
		{0.5, 1, "●"},
		{0.5, 0, ""},
	}

	for _, tt := range tests {
		result := renderTimeline(tt.fraction, tt.width)
		if result != tt.expected {
			t.Errorf("renderTimeline(%v, %d) = %q, want %q", tt.fraction, tt.width, result, tt.expected)
		}
	}
}

func TestTimelineFraction(t *testing.T) {
	tests := []struct {
		col, width int
		expected   float64
	}{
		{0, 11, 0},
		{5, 11, 0.5},
		{10, 11, 1},
		{20, 11, 1},
		{-3, 11, 0},
		{0, 1, 0},
	}

	for _, tt := range tests {
		if result := timelineFraction(tt.col, tt.width); result != tt.expected {
			t.Errorf("timelineFraction(%d, %d) = %v, want %v", tt.col, tt.width, result, tt.expected)
		}
	}
}

func mouse(x, y int, buttons tcell.ButtonMask) *tcell.EventMouse {
	return tcell.NewEventMouse(x, y, buttons, tcell.ModNone)
}

func TestTimelineDrag(t *testing.T) {
	tests := []struct {
		name    string
		state   player.State
		want    []string
		release int
	}{
		{"playing resumes", player.StatePlaying, []string{"pause", "fraction 0.7", "play"}, 7},
		{"paused stays paused", player.StatePaused, []string{"fraction 0.3"}, 3},
		{"released past the end", player.StatePlaying, []string{"pause", "fraction 1.0", "play"}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, tr, _, _ := newTestUI(t)
			ui.SetControlsEnabled(true)
			ui.timeline.SetRect(0, 5, 11, 1)
			tr.snap = player.Snapshot{State: tt.state}

			if !ui.timelineMouse(tview.MouseLeftDown, mouse(2, 5, tcell.Button1)) {
				t.Fatal("press on the timeline should be consumed")
			}
			ui.timelineMouse(tview.MouseMove, mouse(5, 5, tcell.Button1))
			if ui.progress != 0.5 {
				t.Errorf("progress while dragging = %v, want 0.5", ui.progress)
			}

			ui.SetProgress(0.1)
			if ui.progress != 0.5 {
				t.Errorf("playback progress overrode the drag: %v", ui.progress)
			}

			ui.timelineMouse(tview.MouseMove, mouse(tt.release, 9, tcell.Button1))
			ui.timelineMouse(tview.MouseLeftUp, mouse(tt.release, 9, tcell.ButtonNone))

			got := tr.history()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("transport calls = %v, want %v", got, tt.want)
			}
			if ui.scrub.active {
				t.Error("drag should be over after release")
			}
		})
	}
}

func TestTimelineIgnoresOtherRows(t *testing.T) {
	ui, tr, _, _ := newTestUI(t)
	ui.SetControlsEnabled(true)
	ui.timeline.SetRect(0, 5, 11, 1)

	if ui.timelineMouse(tview.MouseLeftDown, mouse(3, 2, tcell.Button1)) {
		t.Error("press outside the timeline should pass through")
	}
	if ui.timelineMouse(tview.MouseLeftUp, mouse(3, 5, tcell.ButtonNone)) {
		t.Error("release without a drag should pass through")
	}
	if len(tr.history()) != 0 {
		t.Errorf("transport calls = %v, want none", tr.history())
	}
}

func TestTimelineDisabledControls(t *testing.T) {
	ui, tr, _, _ := newTestUI(t)
	ui.SetControlsEnabled(false)
	ui.timeline.SetRect(0, 5, 11, 1)

	if !ui.timelineMouse(tview.MouseLeftDown, mouse(3, 5, tcell.Button1)) {
		t.Error("press on a disabled timeline should still be consumed")
	}
	ui.timelineMouse(tview.MouseLeftUp, mouse(3, 5, tcell.ButtonNone))
	if len(tr.history()) != 0 {
		t.Errorf("transport calls = %v, want none", tr.history())
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{5 * time.Second, "0:05"},
		{65*time.Second + 900*time.Millisecond, "1:05"},
		{59 * time.Minute, "59:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		if result := formatClock(tt.d); result != tt.expected {
			t.Errorf("formatClock(%v) = %q, want %q", tt.d, result, tt.expected)
		}
	}

	if got := formatTime(5*time.Second, 3*time.Minute); got != "0:05 / 3:00 " {
		t.Errorf("formatTime() = %q", got)
	}
}

func TestStatusRendererRender(t *testing.T) {
	renderer := NewStatusRenderer(nil)
	if !strings.Contains(renderer.Render(), "IDLE") {
		t.Errorf("Render() without a transport = %q", renderer.Render())
	}

	renderer.SetBackend(config.BackendStream)
	renderer.SetMuted(true)

	tests := []struct {
		snap     player.Snapshot
		contains []string
	}{
		{player.Snapshot{State: player.StateEmpty}, []string{"IDLE", "MUTED"}},
		{player.Snapshot{State: player.StateLoading}, []string{"LOADING", "STREAM"}},
		{player.Snapshot{State: player.StatePlaying, Looping: true}, []string{"PLAYING", "LOOP", "MUTED"}},
		{player.Snapshot{State: player.StatePaused}, []string{"PAUSED"}},
		{player.Snapshot{State: player.StateReady}, []string{"READY"}},
		{player.Snapshot{State: player.StateEnded}, []string{"ENDED"}},
	}

	for _, tt := range tests {
		t.Run(tt.snap.State.String(), func(t *testing.T) {
			result := renderer.renderSnapshot(tt.snap)
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("renderSnapshot(%v) = %q, expected to contain %q", tt.snap.State, result, want)
				}
			}
		})
	}
}

func TestStatusRendererAdvanceAnimation(t *testing.T) {
	renderer := NewStatusRenderer(nil)

	initialFrame := renderer.animFrame

	for i := 0; i < renderer.ticksPerFrame-1; i++ {
		renderer.AdvanceAnimation()
	}

	if renderer.animFrame != initialFrame {
		t.Error("Animation frame changed before ticksPerFrame ticks")
	}

	renderer.AdvanceAnimation()

	if renderer.animFrame != (initialFrame+1)%renderer.maxAnimFrame {
		t.Errorf("Animation frame = %d, want %d",
			renderer.animFrame, (initialFrame+1)%renderer.maxAnimFrame)
	}
}

func TestSurfaceUpdates(t *testing.T) {
	ui, _, _, _ := newTestUI(t)

	ui.SetTrackName("Song")
	if got := ui.trackView.GetText(true); !strings.Contains(got, "Song") {
		t.Errorf("track name = %q", got)
	}

	ui.SetTime(65*time.Second, 3*time.Minute)
	if got := strings.TrimSpace(ui.timeView.GetText(true)); got != "1:05 / 3:00" {
		t.Errorf("time text = %q", got)
	}

	ui.SetProgress(0.25)
	if ui.progress != 0.25 {
		t.Errorf("progress = %v, want 0.25", ui.progress)
	}

	ui.SetPlayGlyph(player.GlyphPause)
	if got := strings.TrimSpace(ui.playView.GetText(true)); got != PauseIcon {
		t.Errorf("play glyph = %q, want %q", got, PauseIcon)
	}
	ui.SetPlayGlyph(player.GlyphPlay)
	if got := strings.TrimSpace(ui.playView.GetText(true)); got != "▶" {
		t.Errorf("play glyph = %q, want ▶", got)
	}

	ui.ShowError(errors.New("server returned status 404: 404 Not Found"))
	if got := ui.errorView.GetText(true); !strings.Contains(got, "Track not found") {
		t.Errorf("error slot = %q", got)
	}
	ui.ClearError()
	if got := ui.errorView.GetText(true); strings.TrimSpace(got) != "" {
		t.Errorf("error slot after ClearError = %q", got)
	}

	ui.SetControlsEnabled(false)
	if ui.controlsEnabled {
		t.Error("controls should be disabled")
	}
}

func TestPendingGlyphSpinner(t *testing.T) {
	ui, _, _, _ := newTestUI(t)

	ui.SetPlayGlyph(player.GlyphPending)
	ui.mu.Lock()
	running := ui.spinnerStop != nil
	ui.mu.Unlock()
	if !running {
		t.Fatal("pending glyph should start the spinner")
	}

	ui.SetPlayGlyph(player.GlyphPlay)
	ui.mu.Lock()
	running = ui.spinnerStop != nil
	ui.mu.Unlock()
	if running {
		t.Error("a settled glyph should stop the spinner")
	}
}

func TestSetLyricsHighlightsMark(t *testing.T) {
	ui, _, _, _ := newTestUI(t)
	doc := lyrics.NewDocument("ab\ncd\n\nef")
	markup := ui.LyricsMarkup()

	ui.SetLyrics(doc.Render(markup, 1, 5))
	highlights := ui.lyricsView.GetHighlights()
	if len(highlights) != 1 || highlights[0] != lyricsRegion {
		t.Errorf("GetHighlights() = %v, want [%s]", highlights, lyricsRegion)
	}
	if got := ui.lyricsView.GetText(true); !strings.Contains(got, "cd") {
		t.Errorf("lyrics text = %q", got)
	}

	ui.SetLyrics(doc.Render(markup, 0, 0))
	if highlights := ui.lyricsView.GetHighlights(); len(highlights) != 0 {
		t.Errorf("GetHighlights() after clear = %v", highlights)
	}
}

func TestSetLoop(t *testing.T) {
	ui, _, _, _ := newTestUI(t)

	ui.SetLoop(true)
	on := ui.loopView.GetText(false)
	ui.SetLoop(false)
	off := ui.loopView.GetText(false)

	if on == off {
		t.Error("loop indicator should differ between on and off")
	}
	if !strings.Contains(ui.loopView.GetText(true), "loop") {
		t.Errorf("loop indicator = %q", ui.loopView.GetText(true))
	}
}

func TestKeyBindings(t *testing.T) {
	tests := []struct {
		name  string
		event *tcell.EventKey
		call  string
	}{
		{"space toggles", runeKey(' '), "toggle"},
		{"s stops", runeKey('s'), "reset"},
		{"right seeks forward", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), "seekby 5s"},
		{"left seeks back", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), "seekby -5s"},
		{"shift right fine seek", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModShift), "seekby 1s"},
		{"shift left fine seek", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModShift), "seekby -1s"},
		{"digit jumps", runeKey('5'), "fraction 0.5"},
		{"zero jumps to start", runeKey('0'), "fraction 0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, tr, _, _ := newTestUI(t)

			if ui.globalInputHandler(tt.event) != nil {
				t.Error("key should be consumed")
			}
			calls := tr.history()
			if len(calls) != 1 || calls[0] != tt.call {
				t.Errorf("calls = %v, want [%s]", calls, tt.call)
			}
		})
	}
}

func TestKeysIgnoredWhileControlsDisabled(t *testing.T) {
	ui, tr, _, _ := newTestUI(t)
	ui.SetControlsEnabled(false)

	ui.globalInputHandler(runeKey(' '))
	ui.globalInputHandler(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	ui.globalInputHandler(runeKey('3'))

	if calls := tr.history(); len(calls) != 0 {
		t.Errorf("disabled controls still issued %v", calls)
	}

	ui.SetControlsEnabled(true)
	ui.globalInputHandler(runeKey(' '))
	if calls := tr.history(); len(calls) != 1 {
		t.Errorf("re-enabled controls issued %v", calls)
	}
}

func TestLoopKeyPersists(t *testing.T) {
	ui, _, lib, _ := newTestUI(t)

	ui.globalInputHandler(runeKey('l'))
	if !lib.loop {
		t.Error("loop key should persist loop=true")
	}
	ui.globalInputHandler(runeKey('l'))
	if lib.loop {
		t.Error("second loop key should persist loop=false")
	}
}

func TestUnhandledKeysPassThrough(t *testing.T) {
	ui, _, _, _ := newTestUI(t)

	down := tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
	if ui.globalInputHandler(down) != down {
		t.Error("navigation keys should reach the recent list")
	}
	enter := tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)
	if ui.globalInputHandler(enter) != enter {
		t.Error("Enter should reach the recent list")
	}
}

func TestVolumeKeys(t *testing.T) {
	ui, _, lib, vol := newTestUI(t)

	ui.globalInputHandler(runeKey('+'))
	if ui.currentVolume != config.DefaultVolume+VolumeStep {
		t.Errorf("currentVolume = %d", ui.currentVolume)
	}
	if lib.volume != config.DefaultVolume+VolumeStep {
		t.Errorf("persisted volume = %d", lib.volume)
	}

	ui.globalInputHandler(runeKey('m'))
	if !ui.isMuted || vol.levels[len(vol.levels)-1] != 0 {
		t.Errorf("mute: isMuted=%v levels=%v", ui.isMuted, vol.levels)
	}

	ui.globalInputHandler(runeKey('-'))
	if ui.isMuted || ui.currentVolume != config.DefaultVolume+VolumeStep {
		t.Errorf("volume key should unmute to the saved level, got %d muted=%v", ui.currentVolume, ui.isMuted)
	}

	for i := 0; i < 30; i++ {
		ui.globalInputHandler(runeKey('+'))
	}
	if ui.currentVolume != config.MaxVolume {
		t.Errorf("volume should clamp at %d, got %d", config.MaxVolume, ui.currentVolume)
	}
}

func TestVolumeLevels(t *testing.T) {
	tests := []struct {
		volume        int
		empty, filled int
	}{
		{0, 10, 0},
		{55, 5, 5},
		{100, 0, 10},
		{150, 0, 10},
	}

	for _, tt := range tests {
		empty, filled := volumeLevels(tt.volume)
		if empty != tt.empty || filled != tt.filled {
			t.Errorf("volumeLevels(%d) = (%d, %d), want (%d, %d)", tt.volume, empty, filled, tt.empty, tt.filled)
		}
	}
}

func TestOpenTouchesRecentAndLoads(t *testing.T) {
	ui, tr, lib, _ := newTestUI(t)

	ui.open(context.Background(), "24-2/Show/OP Song")

	if len(tr.loaded) != 1 || tr.loaded[0].Name != "Song" {
		t.Fatalf("loaded = %+v", tr.loaded)
	}
	if len(lib.recent) != 1 || ui.recentList.GetItemCount() != 1 {
		t.Errorf("recent = %+v, list items = %d", lib.recent, ui.recentList.GetItemCount())
	}

	main, secondary := ui.recentList.GetItemText(0)
	if main != "Song" || !strings.Contains(secondary, "2024 Spring") {
		t.Errorf("recent entry = %q / %q", main, secondary)
	}
}

func TestOpenUnknownShowsError(t *testing.T) {
	ui, tr, _, _ := newTestUI(t)

	ui.open(context.Background(), "nowhere")

	if len(tr.loaded) != 0 {
		t.Error("unresolved path should not load")
	}
	if got := ui.errorView.GetText(true); !strings.Contains(got, "Track not found") {
		t.Errorf("error slot = %q", got)
	}
}

func TestRemoveRecent(t *testing.T) {
	ui, _, lib, _ := newTestUI(t)
	lib.recent = []config.RecentTrack{{Path: "a", Name: "A"}, {Path: "b", Name: "B"}}
	ui.refreshRecent()

	ui.recentList.SetCurrentItem(1)
	ui.globalInputHandler(runeKey('x'))

	if len(lib.recent) != 1 || lib.recent[0].Path != "a" {
		t.Errorf("recent after remove = %+v", lib.recent)
	}
	if ui.recentList.GetItemCount() != 1 {
		t.Errorf("list items = %d, want 1", ui.recentList.GetItemCount())
	}
}

func TestLyricsMarkupEscapes(t *testing.T) {
	ui, _, _, _ := newTestUI(t)
	markup := ui.LyricsMarkup()

	if markup.Escape == nil {
		t.Fatal("LyricsMarkup() should escape text")
	}
	if !strings.Contains(markup.MarkOpen, `["`+lyricsRegion+`"]`) || !strings.HasSuffix(markup.MarkClose, `[""]`) {
		t.Errorf("markup = %+v", markup)
	}
}
