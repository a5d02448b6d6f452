// Package mpris publishes the player on the session bus as an MPRIS2 media
// player, so desktop media keys and widgets can drive it.
package mpris

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog/log"
)

const (
	BusName          = "org.mpris.MediaPlayer2.seasons"
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	noTrack = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

	positionInterval = time.Second
)

// Controller is the transport the bus drives. *player.Session implements it.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	Reset(ctx context.Context) error
	Seek(ctx context.Context, target time.Duration) error
	SeekBy(ctx context.Context, delta time.Duration) error
	SetLooping(on bool)
	Looping() bool
	Position() time.Duration
}

// LoopStore persists the loop setting. *service.TrackService implements it.
type LoopStore interface {
	SetLoop(on bool)
}

// Server is a player.Bridge that mirrors the session onto D-Bus and routes
// incoming MPRIS calls back into it.
type Server struct {
	conn  *dbus.Conn
	props *prop.Properties
	ctrl  Controller
	loops LoopStore
	ctx   context.Context

	// dispatch runs a transport call off the D-Bus goroutine.
	dispatch func(fn func(ctx context.Context))
	// publish sets a player property once the server is on the bus.
	publish func(name string, value any)

	positions *player.Ticker

	mu      sync.Mutex
	trackID dbus.ObjectPath
}

func newServer(ctx context.Context, ctrl Controller) *Server {
	s := &Server{
		ctrl:      ctrl,
		ctx:       ctx,
		trackID:   noTrack,
		positions: player.NewTicker(positionInterval),
	}
	s.dispatch = func(fn func(ctx context.Context)) {
		go fn(s.ctx)
	}
	s.publish = func(name string, value any) {
		if s.props != nil {
			s.props.SetMust(mprisPlayerIface, name, value)
		}
	}
	return s
}

// New creates a Server that is not yet on the bus. Until Connect succeeds
// its bridge methods are no-ops.
func New(ctx context.Context) *Server {
	return newServer(ctx, nil)
}

// Bind sets the transport incoming calls drive. It must be called before
// Connect.
func (s *Server) Bind(ctrl Controller) {
	s.ctrl = ctrl
}

// SetLoopStore makes loop changes from the bus persistent.
func (s *Server) SetLoopStore(store LoopStore) {
	s.loops = store
}

// Connect connects to the session bus and claims BusName.
func (s *Server) Connect() error {
	if s.ctrl == nil {
		return fmt.Errorf("mpris server has no controller bound")
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := s.export(conn); err != nil {
		conn.Close()
		return err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("bus name %s is already taken", BusName)
	}

	log.Debug().Str("name", BusName).Msg("MPRIS server registered")
	return nil
}

func (s *Server) export(conn *dbus.Conn) error {
	root := &rootObject{}
	pl := &playerObject{s: s}

	if err := conn.Export(root, mprisPath, mprisRootIface); err != nil {
		return fmt.Errorf("failed to export root interface: %w", err)
	}
	if err := conn.Export(pl, mprisPath, mprisPlayerIface); err != nil {
		return fmt.Errorf("failed to export player interface: %w", err)
	}

	props, err := prop.Export(conn, mprisPath, s.propertyMap())
	if err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRootIface),
			},
			{
				Name:       mprisPlayerIface,
				Methods:    introspect.Methods(pl),
				Properties: props.Introspection(mprisPlayerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x"}},
				}},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	s.conn = conn
	s.props = props
	return nil
}

func (s *Server) propertyMap() prop.Map {
	return prop.Map{
		mprisRootIface: {
			"CanQuit":             {Value: false, Emit: prop.EmitConst},
			"CanRaise":            {Value: false, Emit: prop.EmitConst},
			"HasTrackList":        {Value: false, Emit: prop.EmitConst},
			"Identity":            {Value: config.AppName, Emit: prop.EmitConst},
			"SupportedUriSchemes": {Value: []string{"file", "https"}, Emit: prop.EmitConst},
			"SupportedMimeTypes":  {Value: []string{"audio/mpeg", "audio/wav", "audio/flac", "audio/ogg"}, Emit: prop.EmitConst},
		},
		mprisPlayerIface: {
			"PlaybackStatus": {Value: playbackStatus(player.MediaNone), Emit: prop.EmitTrue},
			"LoopStatus": {
				Value:    loopStatus(s.ctrl.Looping()),
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: s.setLoopStatus,
			},
			"Rate":          {Value: 1.0, Emit: prop.EmitConst},
			"MinimumRate":   {Value: 1.0, Emit: prop.EmitConst},
			"MaximumRate":   {Value: 1.0, Emit: prop.EmitConst},
			"Shuffle":       {Value: false, Emit: prop.EmitConst},
			"Volume":        {Value: 1.0, Emit: prop.EmitConst},
			"Metadata":      {Value: metadata(noTrack, track.Track{}, 0), Emit: prop.EmitTrue},
			"Position":      {Value: int64(0), Emit: prop.EmitFalse},
			"CanGoNext":     {Value: false, Emit: prop.EmitConst},
			"CanGoPrevious": {Value: false, Emit: prop.EmitConst},
			"CanPlay":       {Value: true, Emit: prop.EmitConst},
			"CanPause":      {Value: true, Emit: prop.EmitConst},
			"CanSeek":       {Value: true, Emit: prop.EmitConst},
			"CanControl":    {Value: true, Emit: prop.EmitConst},
		},
	}
}

func (s *Server) setLoopStatus(c *prop.Change) *dbus.Error {
	status, ok := c.Value.(string)
	if !ok {
		return prop.ErrInvalidArg
	}
	on := status != "None"
	s.ctrl.SetLooping(on)
	if s.loops != nil {
		s.loops.SetLoop(on)
	}
	log.Debug().Bool("loop", on).Msg("Loop set over MPRIS")
	return nil
}

func (s *Server) SetMetadata(t track.Track, duration time.Duration) {
	id := TrackObjectPath(t.Path)

	s.mu.Lock()
	s.trackID = id
	s.mu.Unlock()

	s.publish("Metadata", metadata(id, t, duration))
}

// SetPlaybackState publishes the new status. While playing, Position is
// republished every second for clients that read it.
func (s *Server) SetPlaybackState(state player.MediaState) {
	if s.ctrl == nil {
		return
	}
	if state == player.MediaPlaying {
		s.positions.Start(s.publishPosition)
	} else {
		s.positions.Cancel()
	}

	s.publish("PlaybackStatus", playbackStatus(state))
	s.publish("LoopStatus", loopStatus(s.ctrl.Looping()))
	s.publishPosition()
}

func (s *Server) publishPosition() bool {
	s.publish("Position", microseconds(s.ctrl.Position()))
	return true
}

func (s *Server) currentTrack() dbus.ObjectPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackID
}

// seeked reports a jump in position, as MPRIS clients do not poll Position.
func (s *Server) seeked() {
	pos := microseconds(s.ctrl.Position())
	s.publish("Position", pos)
	if s.conn == nil {
		return
	}
	if err := s.conn.Emit(mprisPath, mprisPlayerIface+".Seeked", pos); err != nil {
		log.Debug().Err(err).Msg("Failed to emit Seeked")
	}
}

func (s *Server) Close() error {
	s.positions.Cancel()
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		log.Debug().Err(err).Msg("Failed to release bus name")
	}
	return s.conn.Close()
}

type rootObject struct{}

func (rootObject) Raise() *dbus.Error { return nil }
func (rootObject) Quit() *dbus.Error  { return nil }

type playerObject struct {
	s *Server
}

func (p *playerObject) Play() *dbus.Error {
	p.s.dispatch(func(ctx context.Context) { p.s.ctrl.Play(ctx) })
	return nil
}

func (p *playerObject) Pause() *dbus.Error {
	p.s.dispatch(func(ctx context.Context) { p.s.ctrl.Pause(ctx) })
	return nil
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.s.dispatch(func(ctx context.Context) { p.s.ctrl.TogglePlay(ctx) })
	return nil
}

func (p *playerObject) Stop() *dbus.Error {
	p.s.dispatch(func(ctx context.Context) { p.s.ctrl.Reset(ctx) })
	return nil
}

func (p *playerObject) Next() *dbus.Error     { return nil }
func (p *playerObject) Previous() *dbus.Error { return nil }

func (p *playerObject) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("opening URIs is not supported"))
}

// Seek moves relative to the current position, offset in microseconds.
func (p *playerObject) Seek(offset int64) *dbus.Error {
	p.s.dispatch(func(ctx context.Context) {
		if err := p.s.ctrl.SeekBy(ctx, fromMicroseconds(offset)); err == nil {
			p.s.seeked()
		}
	})
	return nil
}

// SetPosition is ignored when trackID is not the current track.
func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if trackID != p.s.currentTrack() {
		log.Debug().Str("track_id", string(trackID)).Msg("SetPosition for a stale track ignored")
		return nil
	}
	if position < 0 {
		return nil
	}
	p.s.dispatch(func(ctx context.Context) {
		if err := p.s.ctrl.Seek(ctx, fromMicroseconds(position)); err == nil {
			p.s.seeked()
		}
	})
	return nil
}

func playbackStatus(state player.MediaState) string {
	switch state {
	case player.MediaPlaying:
		return "Playing"
	case player.MediaPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func loopStatus(on bool) string {
	if on {
		return "Track"
	}
	return "None"
}

// TrackObjectPath derives a stable D-Bus object path for a track path.
func TrackObjectPath(p string) dbus.ObjectPath {
	if p == "" {
		return noTrack
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/seasons/track/t%x", md5.Sum([]byte(p))))
}

func metadata(id dbus.ObjectPath, t track.Track, duration time.Duration) map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(id),
	}
	if id == noTrack {
		return m
	}

	m["xesam:title"] = dbus.MakeVariant(t.Title())
	m["xesam:url"] = dbus.MakeVariant(t.URL)
	if duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(microseconds(duration))
	}
	if season, ok := track.SeasonTitle(t.Path); ok {
		m["xesam:album"] = dbus.MakeVariant(season)
	}
	return m
}

func microseconds(d time.Duration) int64 {
	return d.Microseconds()
}

func fromMicroseconds(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
