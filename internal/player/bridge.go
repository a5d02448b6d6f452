package player

import (
	"time"

	"github.com/glebovdev/seasons-cli/internal/track"
)

// MediaState is the playback state reported to the operating system.
type MediaState int

const (
	MediaNone MediaState = iota
	MediaPlaying
	MediaPaused
)

func (m MediaState) String() string {
	switch m {
	case MediaPlaying:
		return "playing"
	case MediaPaused:
		return "paused"
	default:
		return "none"
	}
}

// Bridge mirrors the session into OS media integrations.
type Bridge interface {
	SetMetadata(t track.Track, duration time.Duration)
	SetPlaybackState(state MediaState)
}

type NopBridge struct{}

func (NopBridge) SetMetadata(track.Track, time.Duration) {}
func (NopBridge) SetPlaybackState(MediaState) {}

// MultiBridge fans every update out to each bridge in order.
type MultiBridge []Bridge

func (m MultiBridge) SetMetadata(t track.Track, d time.Duration) {
	for _, b := range m {
		b.SetMetadata(t, d)
	}
}

func (m MultiBridge) SetPlaybackState(state MediaState) {
	for _, b := range m {
		b.SetPlaybackState(state)
	}
}
