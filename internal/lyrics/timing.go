package lyrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Span is a timed cue: from Time onwards the rune range [Start, End) of the
// document is the active phrase. When HasEnd is false the range runs to the
// next span's start, or to the end of the document for the last span.
type Span struct {
	Time   time.Duration
	Start  int
	End    int
	HasEnd bool
}

// Timing is the ordered list of cues for one track.
type Timing []Span

// ParseTiming decodes a payload of [seconds, start, end?] triples. The payload
// may also arrive as a JSON string wrapping that array, which is how page
// templates usually embed it.
func ParseTiming(data []byte) (Timing, error) {
	var t Timing
	if err := t.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Timing) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("failed to decode timing string: %w", err)
		}
		if inner == "" {
			*t = nil
			return nil
		}
		return t.UnmarshalJSON([]byte(inner))
	}

	var raw [][]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode timing: %w", err)
	}

	spans := make(Timing, 0, len(raw))
	for i, entry := range raw {
		span, err := spanFromEntry(entry)
		if err != nil {
			return fmt.Errorf("timing entry %d: %w", i, err)
		}
		spans = append(spans, span)
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Time < spans[j].Time })
	*t = spans
	return nil
}

func spanFromEntry(entry []*float64) (Span, error) {
	if len(entry) < 2 || len(entry) > 3 {
		return Span{}, fmt.Errorf("expected 2 or 3 values, got %d", len(entry))
	}
	if entry[0] == nil || entry[1] == nil {
		return Span{}, fmt.Errorf("time and start index are required")
	}

	seconds := *entry[0]
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Span{}, fmt.Errorf("invalid time %v", seconds)
	}

	start, err := index(*entry[1])
	if err != nil {
		return Span{}, fmt.Errorf("start: %w", err)
	}

	span := Span{
		Time:  time.Duration(seconds * float64(time.Second)),
		Start: start,
	}

	if len(entry) == 3 && entry[2] != nil {
		end, err := index(*entry[2])
		if err != nil {
			return Span{}, fmt.Errorf("end: %w", err)
		}
		span.End = end
		span.HasEnd = true
	}

	return span, nil
}

func index(v float64) (int, error) {
	if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("invalid character index %v", v)
	}
	return int(v), nil
}

func (t Timing) MarshalJSON() ([]byte, error) {
	out := make([][]float64, 0, len(t))
	for _, s := range t {
		entry := []float64{s.Time.Seconds(), float64(s.Start)}
		if s.HasEnd {
			entry = append(entry, float64(s.End))
		}
		out = append(out, entry)
	}
	return json.Marshal(out)
}

// Lookup finds the last span whose time is at or before t and resolves its
// end. It scans from the latest cue backwards; lyric sheets are small enough
// that a linear scan per frame is fine.
func (t Timing) Lookup(at time.Duration, docLen int) (start, end int, ok bool) {
	for i := len(t) - 1; i >= 0; i-- {
		span := t[i]
		if span.Time > at {
			continue
		}

		end := span.End
		if !span.HasEnd {
			if i+1 < len(t) {
				end = t[i+1].Start
			} else {
				end = docLen
			}
		}
		return span.Start, end, true
	}
	return 0, 0, false
}
