package lyrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink receives rendered lyric text.
type Sink interface {
	SetLyrics(text string)
}

type discardSink struct{}

func (discardSink) SetLyrics(string) {}

const (
	markUnrendered = -2
	markCleared    = -1
)

// Engine keeps the rendered lyrics in step with playback time.
type Engine struct {
	mu       sync.Mutex
	doc      *Document
	timing   Timing
	markup   Markup
	sink     Sink
	lastMark int
}

func NewEngine(doc *Document, timing Timing, markup Markup, sink Sink) *Engine {
	if sink == nil {
		sink = discardSink{}
	}
	if doc == nil {
		doc = NewDocument("")
	}
	return &Engine{
		doc:      doc,
		timing:   timing,
		markup:   markup,
		sink:     sink,
		lastMark: markUnrendered,
	}
}

func (e *Engine) Document() *Document {
	return e.doc
}

func (e *Engine) HasTiming() bool {
	return len(e.timing) > 0
}

// Lookup resolves the active rune range for playback time t.
func (e *Engine) Lookup(t time.Duration) (start, end int, ok bool) {
	return e.timing.Lookup(t, e.doc.Len())
}

// Mark highlights the phrase active at t. It reports whether the sink was
// updated; repeated calls resolving to the same phrase are skipped.
func (e *Engine) Mark(t time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.timing) == 0 {
		return false
	}

	start, end, ok := e.timing.Lookup(t, e.doc.Len())
	if !ok {
		if e.lastMark == markCleared {
			return false
		}
		e.clearLocked()
		return true
	}

	if e.lastMark == start {
		return false
	}
	e.lastMark = start

	e.sink.SetLyrics(e.doc.Render(e.markup, start, end))
	log.Debug().Int("start", start).Int("end", end).Dur("at", t).Msg("Lyrics marked")
	return true
}

// Clear renders the text without any highlight and forgets the last mark,
// so the next Mark always renders.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
}

func (e *Engine) clearLocked() {
	e.lastMark = markCleared
	e.sink.SetLyrics(e.doc.Render(e.markup, 0, 0))
}
