package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/glebovdev/seasons-cli/internal/api"
	"github.com/glebovdev/seasons-cli/internal/audio"
	"github.com/glebovdev/seasons-cli/internal/cache"
	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/mpris"
	"github.com/glebovdev/seasons-cli/internal/notify"
	"github.com/glebovdev/seasons-cli/internal/player"
	"github.com/glebovdev/seasons-cli/internal/service"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/glebovdev/seasons-cli/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout  = 3 * time.Second
	headlessInterval = 20 * time.Millisecond
	testToneLength   = 10 * time.Second
)

var (
	versionFlag  = flag.Bool("version", false, "Show version information")
	debugFlag    = flag.Bool("debug", false, "Enable debug logging")
	backendFlag  = flag.String("backend", "", "Playback backend: buffer or stream (overrides config)")
	headlessFlag = flag.Bool("headless", false, "Play without the interface or a sound device and exit at the end")
	toneFlag     = flag.Bool("test-tone", false, "Play a generated test tone instead of a track")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [track]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "A track is a local audio file or a server path such as 24-2/Show/OP Song.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

// bridgeSet collects the OS integrations. Its list is filled before the
// session runs any operation.
type bridgeSet struct {
	player.MultiBridge
}

// endBridge closes done once playback stops after having played.
type endBridge struct {
	once    sync.Once
	mu      sync.Mutex
	played  bool
	done    chan struct{}
	onStart func(t track.Track)
	current track.Track
}

func (b *endBridge) SetMetadata(t track.Track, _ time.Duration) {
	b.mu.Lock()
	b.current = t
	b.mu.Unlock()
}

func (b *endBridge) SetPlaybackState(state player.MediaState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch state {
	case player.MediaPlaying:
		if !b.played && b.onStart != nil {
			b.onStart(b.current)
		}
		b.played = true
	case player.MediaNone:
		if b.played {
			b.once.Do(func() { close(b.done) })
		}
	}
}

func setupLogging() {
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)

		cacheDir, err := cache.GetCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
			cacheDir = os.TempDir()
		}
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
		}
		logPath := filepath.Join(cacheDir, "debug.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
			logFile = os.Stderr
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
		fmt.Printf("Debug log: %s\n", logPath)
		log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
		return
	}

	if *headlessFlag {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}

	// Avoid TUI corruption by only logging errors to /dev/null
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
	if err == nil {
		log.Logger = log.Output(logFile)
	}
}

// writeTestTone renders a sine tone into a temporary WAV file and returns
// its path.
func writeTestTone() (string, error) {
	data, err := audio.ToneWAV(440, testToneLength, audio.DefaultSampleRate)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp("", "seasons-tone")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	p := filepath.Join(dir, "Test Tone.wav")
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write test tone: %w", err)
	}
	return p, nil
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}

	if *backendFlag != "" {
		if *backendFlag != config.BackendBuffer && *backendFlag != config.BackendStream {
			fmt.Fprintf(os.Stderr, "Unknown backend %q (want %s or %s)\n", *backendFlag, config.BackendBuffer, config.BackendStream)
			os.Exit(2)
		}
		cfg.Backend = *backendFlag
	}

	if *debugFlag {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
		if cacheDir, err := cache.GetCacheDir(); err == nil {
			log.Debug().Msgf("Cache: %s", cacheDir)
		}
	}

	initial := flag.Arg(0)
	if *toneFlag {
		initial, err = writeTestTone()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(filepath.Dir(initial))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Downloads work without a server; lookups need one.
	downloader := api.NewClient(cfg.ServerURL)
	var lookup *api.Client
	if cfg.ServerURL != "" {
		lookup = downloader
	}
	trackService := service.NewTrackService(lookup, cfg)

	var out audio.Output
	if *headlessFlag {
		h := audio.NewHeadless(audio.DefaultSampleRate)
		h.SetVolume(cfg.Volume)
		go h.Run(ctx, headlessInterval)
		out = h
	} else {
		out = audio.NewSpeaker(cfg.Volume)
	}

	var audioCache player.Cache
	if c := trackService.AudioCache(); c != nil {
		audioCache = c
	}
	backend := player.NewBackend(cfg.Backend, out, downloader, audioCache)
	log.Debug().Str("backend", cfg.Backend).Msg("Playback backend selected")

	var screen *ui.UI
	var surface player.Surface
	if !*headlessFlag {
		screen = ui.NewUI(trackService, out, cfg)
		surface = screen
	}

	bridges := &bridgeSet{}
	session := player.NewSession(player.Options{
		Backend:       backend,
		Clock:         out,
		Surface:       surface,
		Bridge:        bridges,
		Store:         trackService,
		FrameInterval: time.Second / time.Duration(config.ClampFrameRate(cfg.FrameRate)),
		Looping:       cfg.Loop,
	})

	if cfg.MPRIS {
		srv := mpris.New(ctx)
		srv.Bind(session)
		srv.SetLoopStore(trackService)
		if err := srv.Connect(); err != nil {
			log.Debug().Err(err).Msg("MPRIS unavailable")
		} else {
			bridges.MultiBridge = append(bridges.MultiBridge, srv)
			defer srv.Close()
		}
	}
	if cfg.Notifications {
		bridges.MultiBridge = append(bridges.MultiBridge, notify.New())
	}

	ended := &endBridge{done: make(chan struct{})}
	if *headlessFlag {
		ended.onStart = func(t track.Track) {
			fmt.Printf("Playing: %s\n", t.Title())
		}
		bridges.MultiBridge = append(bridges.MultiBridge, ended)
	}

	trackService.StartPeriodicRefresh(cfg.URLRefresh, func(t track.Track) {
		if session.RefreshCurrent(t) {
			log.Debug().Str("track", t.Path).Msg("Current track URL refreshed")
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	if *headlessFlag {
		runErr = runHeadless(ctx, session, trackService, initial, ended.done, sigChan)
	} else {
		screen.Bind(session)

		go func() {
			<-sigChan
			log.Info().Msg("Received shutdown signal, cleaning up...")
			screen.Shutdown()
		}()

		log.Info().Msg("Starting UI...")
		runErr = screen.Run(initial)
	}

	shutdown(session, trackService, out)

	if runErr != nil {
		log.Error().Err(runErr).Msg("Exited with error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
	log.Info().Msgf("%s stopped", config.AppName)
}

func runHeadless(ctx context.Context, session *player.Session, tracks *service.TrackService, initial string, done <-chan struct{}, sigChan <-chan os.Signal) error {
	if initial == "" {
		return fmt.Errorf("a track is required in headless mode")
	}

	t, err := tracks.Resolve(ctx, initial)
	if err != nil {
		return err
	}
	tracks.Touch(t)

	if err := session.Load(ctx, t); err != nil {
		return err
	}

	select {
	case <-done:
	case <-sigChan:
		log.Info().Msg("Received shutdown signal, cleaning up...")
	}
	return nil
}

// shutdown records where playback stopped, silences the output and writes
// the config.
func shutdown(session *player.Session, tracks *service.TrackService, out audio.Output) {
	tracks.StopPeriodicRefresh()
	session.SaveLastPlaying()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Reset(ctx); err != nil {
		log.Debug().Err(err).Msg("Reset on exit did not complete cleanly")
	}

	if err := tracks.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
	if err := out.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close audio output")
	}
}
