// Package lyrics maps playback time onto a highlighted span of lyric text.
package lyrics

import (
	"html"
	"strings"
)

// Markup describes how a rendered document is decorated. Escape, when set,
// is applied to every run of lyric text but never to the markers.
type Markup struct {
	ParagraphOpen  string
	ParagraphClose string
	LineBreak      string
	MarkOpen       string
	MarkClose      string
	Escape         func(string) string
}

// HTMLMarkup renders stanzas as paragraphs and the active phrase as <mark>.
var HTMLMarkup = Markup{
	ParagraphOpen:  "<p>",
	ParagraphClose: "</p>",
	LineBreak:      "<br>",
	MarkOpen:       "<mark>",
	MarkClose:      "</mark>",
	Escape:         html.EscapeString,
}

// Document is lyric text split into stanzas (blank-line separated) and lines.
// Character offsets count runes across all lines, with no separators counted.
type Document struct {
	stanzas [][][]rune
	length  int
}

func NewDocument(text string) *Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	doc := &Document{}
	for _, stanza := range strings.Split(text, "\n\n") {
		lines := strings.Split(stanza, "\n")
		runeLines := make([][]rune, 0, len(lines))
		for _, line := range lines {
			r := []rune(line)
			doc.length += len(r)
			runeLines = append(runeLines, r)
		}
		doc.stanzas = append(doc.stanzas, runeLines)
	}
	return doc
}

// Len is the number of runes in the flat offset space.
func (d *Document) Len() int {
	return d.length
}

func (d *Document) Stanzas() [][]string {
	out := make([][]string, len(d.stanzas))
	for i, stanza := range d.stanzas {
		lines := make([]string, len(stanza))
		for j, line := range stanza {
			lines[j] = string(line)
		}
		out[i] = lines
	}
	return out
}

// Render returns the whole document with [start, end) wrapped in mark
// markers. An empty or inverted range renders the plain text. A mark that
// crosses a stanza boundary is closed at the end of the paragraph and
// reopened at the start of the next one.
func (d *Document) Render(m Markup, start, end int) string {
	marked := start < end
	escape := m.Escape
	if escape == nil {
		escape = func(s string) string { return s }
	}

	var b strings.Builder
	n := 0
	for _, stanza := range d.stanzas {
		b.WriteString(m.ParagraphOpen)
		open := false

		for li, line := range stanza {
			lineStart := n
			n += len(line)

			s := clamp(start-lineStart, 0, len(line))
			e := clamp(end-lineStart, 0, len(line))

			if !marked || s >= e {
				b.WriteString(escape(string(line)))
			} else {
				b.WriteString(escape(string(line[:s])))
				if !open {
					b.WriteString(m.MarkOpen)
					open = true
				}
				b.WriteString(escape(string(line[s:e])))
				if lineStart+e >= end {
					b.WriteString(m.MarkClose)
					open = false
				}
				b.WriteString(escape(string(line[e:])))
			}

			if li < len(stanza)-1 {
				b.WriteString(m.LineBreak)
			}
		}

		if open {
			b.WriteString(m.MarkClose)
		}
		b.WriteString(m.ParagraphClose)
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
