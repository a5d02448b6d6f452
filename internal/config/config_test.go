package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.Backend != BackendBuffer {
		t.Errorf("DefaultConfig().Backend = %q, want %q", cfg.Backend, BackendBuffer)
	}

	if cfg.FrameRate != DefaultFrameRate {
		t.Errorf("DefaultConfig().FrameRate = %d, want %d", cfg.FrameRate, DefaultFrameRate)
	}

	if cfg.LastPlaying != nil {
		t.Errorf("DefaultConfig().LastPlaying = %+v, want nil", cfg.LastPlaying)
	}

	if cfg.Loop {
		t.Error("DefaultConfig().Loop should be false")
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Volume = 85
	testCfg.Backend = BackendStream
	testCfg.URLRefresh = 10 * time.Minute
	testCfg.TouchRecent("music/24-1/opening", "Opening")
	testCfg.SetLastPlaying("music/24-1/opening", 42*time.Second)

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}

	if loadedCfg.Backend != BackendStream {
		t.Errorf("Load().Backend = %q, want %q", loadedCfg.Backend, BackendStream)
	}

	if loadedCfg.URLRefresh != 10*time.Minute {
		t.Errorf("Load().URLRefresh = %v, want 10m", loadedCfg.URLRefresh)
	}

	if len(loadedCfg.Recent) != 1 || loadedCfg.Recent[0].Name != "Opening" {
		t.Errorf("Load().Recent = %+v, want one entry named Opening", loadedCfg.Recent)
	}

	offset, ok := loadedCfg.ResumeOffset("music/24-1/opening")
	if !ok || offset != 42*time.Second {
		t.Errorf("ResumeOffset() = %v, %v; want 42s, true", offset, ok)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with non-existent file returned Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if len(cfg.Recent) != 0 {
		t.Errorf("Load() with non-existent file returned Recent = %v, want empty", cfg.Recent)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte("volume: [not an int"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err == nil {
		t.Error("Load() with invalid YAML should return an error")
	}
	if cfg == nil || cfg.Volume != DefaultVolume {
		t.Error("Load() with invalid YAML should fall back to defaults")
	}
}

func TestLoadNormalizesValues(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatal(err)
	}
	content := "volume: 250\nbackend: STREAM\nframe_rate: 1000\nurl_refresh: -5s\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Volume != MaxVolume {
		t.Errorf("Volume = %d, want %d", cfg.Volume, MaxVolume)
	}
	if cfg.Backend != BackendStream {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendStream)
	}
	if cfg.FrameRate != MaxFrameRate {
		t.Errorf("FrameRate = %d, want %d", cfg.FrameRate, MaxFrameRate)
	}
	if cfg.URLRefresh != DefaultURLRefresh {
		t.Errorf("URLRefresh = %v, want %v", cfg.URLRefresh, DefaultURLRefresh)
	}
}

func TestUnknownBackendFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "webaudio"
	cfg.normalize()

	if cfg.Backend != BackendBuffer {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendBuffer)
	}
}

func TestVolumeValidation(t *testing.T) {
	tests := []struct {
		name           string
		inputVolume    int
		expectedVolume int
	}{
		{"negative", -10, MinVolume},
		{"zero", 0, 0},
		{"middle", 50, 50},
		{"max", 100, 100},
		{"over max", 150, MaxVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampVolume(tt.inputVolume); got != tt.expectedVolume {
				t.Errorf("ClampVolume(%d) = %d, want %d", tt.inputVolume, got, tt.expectedVolume)
			}
		})
	}
}

func TestClampFrameRate(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultFrameRate},
		{-5, DefaultFrameRate},
		{1, 1},
		{60, 60},
		{500, MaxFrameRate},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("fps_%d", tt.input), func(t *testing.T) {
			if got := ClampFrameRate(tt.input); got != tt.expected {
				t.Errorf("ClampFrameRate(%d) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTouchRecentOrdering(t *testing.T) {
	cfg := DefaultConfig()

	cfg.TouchRecent("a", "A")
	cfg.TouchRecent("b", "B")
	cfg.TouchRecent("c", "C")
	cfg.TouchRecent("a", "A again")

	want := []string{"a", "c", "b"}
	if len(cfg.Recent) != len(want) {
		t.Fatalf("len(Recent) = %d, want %d", len(cfg.Recent), len(want))
	}
	for i, path := range want {
		if cfg.Recent[i].Path != path {
			t.Errorf("Recent[%d].Path = %q, want %q", i, cfg.Recent[i].Path, path)
		}
	}
	if cfg.Recent[0].Name != "A again" {
		t.Errorf("Recent[0].Name = %q, want the refreshed name", cfg.Recent[0].Name)
	}
}

func TestTouchRecentCap(t *testing.T) {
	cfg := DefaultConfig()

	for i := 0; i < MaxRecentTracks+5; i++ {
		cfg.TouchRecent(fmt.Sprintf("track-%d", i), fmt.Sprintf("Track %d", i))
	}

	if len(cfg.Recent) != MaxRecentTracks {
		t.Fatalf("len(Recent) = %d, want %d", len(cfg.Recent), MaxRecentTracks)
	}

	last := fmt.Sprintf("track-%d", MaxRecentTracks+4)
	if cfg.Recent[0].Path != last {
		t.Errorf("Recent[0].Path = %q, want %q", cfg.Recent[0].Path, last)
	}
}

func TestRemoveRecent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TouchRecent("a", "A")
	cfg.TouchRecent("b", "B")

	cfg.RemoveRecent("a")

	if len(cfg.Recent) != 1 || cfg.Recent[0].Path != "b" {
		t.Errorf("Recent after RemoveRecent = %+v", cfg.Recent)
	}

	cfg.RemoveRecent("missing")
	if len(cfg.Recent) != 1 {
		t.Errorf("RemoveRecent of a missing path changed the list: %+v", cfg.Recent)
	}
}

func TestResumeOffset(t *testing.T) {
	cfg := DefaultConfig()

	if _, ok := cfg.ResumeOffset("x"); ok {
		t.Error("ResumeOffset() without a record should report false")
	}

	cfg.SetLastPlaying("x", 1500*time.Millisecond)

	if d, ok := cfg.ResumeOffset("x"); !ok || d != 1500*time.Millisecond {
		t.Errorf("ResumeOffset(x) = %v, %v", d, ok)
	}
	if _, ok := cfg.ResumeOffset("y"); ok {
		t.Error("ResumeOffset() for another path should report false")
	}

	cfg.SetLastPlaying("", 0)
	if cfg.LastPlaying != nil {
		t.Error("SetLastPlaying with empty path should clear the record")
	}
}

func TestGetColor(t *testing.T) {
	if GetColor("") != tcell.ColorDefault {
		t.Error(`GetColor("") should be the default color`)
	}
	if GetColor("default") != tcell.ColorDefault {
		t.Error(`GetColor("default") should be the default color`)
	}
	if GetColor("#ff0000") == tcell.ColorDefault {
		t.Error(`GetColor("#ff0000") should resolve to a color`)
	}
}
