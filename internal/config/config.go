package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName           = "Seasons"
	AppTagline        = "Terminal music player"
	AppDescription    = "A terminal-based music player with synchronized lyrics"
	AppAuthor         = "Ilya Glebov"
	AppAuthorURL      = "https://ilyaglebov.dev"
	AppAuthorURLShort = "ilyaglebov.dev"
	AppProjectURL     = "https://github.com/glebovdev/seasons-cli"
	AppProjectShort   = "github.com/glebovdev/seasons-cli"

	ConfigDir      = ".config/seasons"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100

	BackendStream = "stream"
	BackendBuffer = "buffer"

	DefaultFrameRate  = 30
	MinFrameRate      = 1
	MaxFrameRate      = 120
	DefaultURLRefresh = 25 * time.Minute
	MaxRecentTracks   = 10
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// ClampFrameRate keeps the UI sync loop between 1 and 120 ticks per second.
func ClampFrameRate(fps int) int {
	if fps < MinFrameRate {
		return DefaultFrameRate
	}
	if fps > MaxFrameRate {
		return MaxFrameRate
	}
	return fps
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/seasons-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	MutedVolume      string `yaml:"muted_volume"`
	HeaderBackground string `yaml:"header_background"`
	LyricsMark       string `yaml:"lyrics_mark"`
	TimelineFill     string `yaml:"timeline_fill"`
	TimelineEmpty    string `yaml:"timeline_empty"`
	ErrorForeground  string `yaml:"error_foreground"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
	ModalBackground  string `yaml:"modal_background"`
}

// RecentTrack is an entry of the recently played list.
type RecentTrack struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// LastPlaying records where playback was when the app last exited mid-track.
type LastPlaying struct {
	Path string  `yaml:"path"`
	Time float64 `yaml:"time"` // seconds
}

type Config struct {
	Volume        int           `yaml:"volume"`
	Backend       string        `yaml:"backend"`
	Loop          bool          `yaml:"loop"`
	FrameRate     int           `yaml:"frame_rate"`
	ServerURL     string        `yaml:"server_url"`
	URLRefresh    time.Duration `yaml:"url_refresh"`
	MPRIS         bool          `yaml:"mpris"`
	Notifications bool          `yaml:"notifications"`
	Recent        []RecentTrack `yaml:"recent"`
	LastPlaying   *LastPlaying  `yaml:"last_playing,omitempty"`
	Theme         Theme         `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.FrameRate = ClampFrameRate(c.FrameRate)

	switch strings.ToLower(c.Backend) {
	case BackendStream, BackendBuffer:
		c.Backend = strings.ToLower(c.Backend)
	default:
		c.Backend = BackendBuffer
	}

	if c.URLRefresh <= 0 {
		c.URLRefresh = DefaultURLRefresh
	}

	if len(c.Recent) > MaxRecentTracks {
		c.Recent = c.Recent[:MaxRecentTracks]
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:        DefaultVolume,
		Backend:       BackendBuffer,
		Loop:          false,
		FrameRate:     DefaultFrameRate,
		ServerURL:     "",
		URLRefresh:    DefaultURLRefresh,
		MPRIS:         true,
		Notifications: false,
		Recent:        []RecentTrack{},
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			MutedVolume:      "#fe0702",
			HeaderBackground: "#473533",
			LyricsMark:       "#ff9d65",
			TimelineFill:     "#ff9d65",
			TimelineEmpty:    "#40445b",
			ErrorForeground:  "#fe0702",
			HelpBackground:   "#322f45",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
			ModalBackground:  "#282a36",
		},
	}
}

// TouchRecent moves path to the front of the recent list, inserting it when
// missing, and keeps at most MaxRecentTracks entries.
func (c *Config) TouchRecent(path, name string) {
	for i, rt := range c.Recent {
		if rt.Path == path {
			c.Recent = append(c.Recent[:i], c.Recent[i+1:]...)
			break
		}
	}

	c.Recent = append([]RecentTrack{{Path: path, Name: name}}, c.Recent...)
	if len(c.Recent) > MaxRecentTracks {
		c.Recent = c.Recent[:MaxRecentTracks]
	}
}

func (c *Config) RemoveRecent(path string) {
	cleaned := []RecentTrack{}
	for _, rt := range c.Recent {
		if rt.Path != path {
			cleaned = append(cleaned, rt)
		}
	}
	c.Recent = cleaned
}

// ResumeOffset returns the stored position for path, if the last session
// exited while that track was playing.
func (c *Config) ResumeOffset(path string) (time.Duration, bool) {
	if c.LastPlaying == nil || c.LastPlaying.Path != path || c.LastPlaying.Time <= 0 {
		return 0, false
	}
	return time.Duration(c.LastPlaying.Time * float64(time.Second)), true
}

func (c *Config) SetLastPlaying(path string, position time.Duration) {
	if path == "" {
		c.LastPlaying = nil
		return
	}
	c.LastPlaying = &LastPlaying{Path: path, Time: position.Seconds()}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
