// Package notify shows a desktop notification when a track starts playing.
package notify

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/rs/zerolog/log"
)

const nowPlayingTitle = "Now playing"

// Notifier is a player.Bridge. It notifies once per loaded track, on the
// first transition to playing; pausing, resuming and looping stay quiet.
type Notifier struct {
	send func(title, message string) error

	mu      sync.Mutex
	current track.Track
	armed   bool
}

func New() *Notifier {
	beeep.AppName = config.AppName
	return &Notifier{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (n *Notifier) SetMetadata(t track.Track, duration time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.current = t
	n.armed = duration > 0
}

func (n *Notifier) SetPlaybackState(state player.MediaState) {
	if state != player.MediaPlaying {
		return
	}

	n.mu.Lock()
	if !n.armed {
		n.mu.Unlock()
		return
	}
	n.armed = false
	t := n.current
	n.mu.Unlock()

	message := Message(t)
	go func() {
		if err := n.send(nowPlayingTitle, message); err != nil {
			log.Debug().Err(err).Msg("Failed to send notification")
		}
	}()
}

// Message is the notification body: the track title and its season.
func Message(t track.Track) string {
	title := t.Title()
	if season, ok := track.SeasonTitle(t.Path); ok {
		return title + "\n" + season
	}
	return title
}
