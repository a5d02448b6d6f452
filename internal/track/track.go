// Package track defines the descriptor of a playable track and how one is
// resolved from a local audio file.
package track

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/glebovdev/seasons-cli/internal/lyrics"
	"github.com/rs/zerolog/log"
)

const (
	LyricsSuffix = ".lyrics.txt"
	TimingSuffix = ".timing.json"
)

// namePrefixes are tags the library uses to group songs by their role in a show.
var namePrefixes = []string{"OP ", "ED ", "FULL "}

var seasonNames = map[string]string{"1": "Winter", "2": "Spring", "3": "Summer", "4": "Fall"}

var reSeason = regexp.MustCompile(`^(\d{2})-([1-4])`)

// Track is everything needed to play one song and follow its lyrics.
type Track struct {
	Name   string        `json:"name"`
	URL    string        `json:"url"`
	Path   string        `json:"path"`
	Lyrics string        `json:"lyrics,omitempty"`
	Timing lyrics.Timing `json:"lyricsTiming,omitempty"`
}

// HasLyrics reports whether the track carries any lyric text.
func (t *Track) HasLyrics() bool {
	return strings.TrimSpace(t.Lyrics) != ""
}

// IsRemote reports whether the URL points at an HTTP resource.
func (t *Track) IsRemote() bool {
	return strings.HasPrefix(t.URL, "http://") || strings.HasPrefix(t.URL, "https://")
}

// Title returns the display name, falling back to one derived from the path.
func (t *Track) Title() string {
	if t.Name != "" {
		return t.Name
	}
	return DisplayName(t.Path)
}

// DisplayName turns a library path into the name shown to the user: the file
// name without extension and without role tags.
func DisplayName(p string) string {
	base := path.Base(filepath.ToSlash(p))
	if base == "." || base == "/" {
		return ""
	}
	name := strings.TrimSuffix(base, path.Ext(base))
	for _, prefix := range namePrefixes {
		name = strings.ReplaceAll(name, prefix, "")
	}
	return strings.TrimSpace(name)
}

// SeasonTitle returns e.g. "2024 Spring" for paths under a "24-2" folder.
func SeasonTitle(p string) (string, bool) {
	m := reSeason.FindStringSubmatch(strings.TrimLeft(filepath.ToSlash(p), "/"))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("20%s %s", m[1], seasonNames[m[2]]), true
}

// StripExt drops the audio extension, matching how paths are recorded in the
// recent list and the last-playing record.
func StripExt(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// FromFile builds a Track for a local audio file. Lyrics and timing are read
// from sidecar files next to it when present; a malformed timing file is
// logged and ignored so the song still plays.
func FromFile(file string) (Track, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return Track{}, fmt.Errorf("failed to resolve %s: %w", file, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Track{}, fmt.Errorf("failed to open track: %w", err)
	}
	if info.IsDir() {
		return Track{}, fmt.Errorf("%s is a directory", file)
	}

	t := Track{
		Name: DisplayName(abs),
		URL:  abs,
		Path: StripExt(abs),
	}

	base := StripExt(abs)

	if data, err := os.ReadFile(base + LyricsSuffix); err == nil {
		t.Lyrics = string(data)
	} else if !os.IsNotExist(err) {
		log.Debug().Err(err).Str("file", base+LyricsSuffix).Msg("Failed to read lyrics")
	}

	if data, err := os.ReadFile(base + TimingSuffix); err == nil {
		timing, err := lyrics.ParseTiming(data)
		if err != nil {
			log.Warn().Err(err).Str("file", base+TimingSuffix).Msg("Ignoring malformed lyrics timing")
		} else {
			t.Timing = timing
		}
	} else if !os.IsNotExist(err) {
		log.Debug().Err(err).Str("file", base+TimingSuffix).Msg("Failed to read lyrics timing")
	}

	return t, nil
}
