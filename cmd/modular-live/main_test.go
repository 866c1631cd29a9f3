package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-modular/config"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.json")
	if err := os.WriteFile(path, []byte(`{"backend": "oto", "log_level": "warn", "sample_rate": 44100}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path, "loopback", "speakers", "debug")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != config.BackendLoopback || cfg.LogLevel != slog.LevelDebug || cfg.SampleRate != 44100 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Device == nil || *cfg.Device != "speakers" {
		t.Fatalf("expected device override, got %v", cfg.Device)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", "", "", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != config.BackendPortAudio || cfg.Device != nil {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := loadConfig("", "alsa", "", ""); err == nil {
		t.Fatalf("expected backend error")
	}
}

func TestNewHostLoopbackAndWAV(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Backend = config.BackendLoopback
	h, release, err := newHost(cfg)
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	release()
	if h.Name() != "loopback" {
		t.Fatalf("expected loopback host, got %s", h.Name())
	}

	cfg.Backend = config.BackendWAVFile
	cfg.WAVPath = filepath.Join(t.TempDir(), "take.wav")
	h, _, err = newHost(cfg)
	if err != nil {
		t.Fatalf("wavfile: %v", err)
	}
	devs, err := h.Devices()
	if err != nil || len(devs) != 1 || devs[0].Name != cfg.WAVPath {
		t.Fatalf("unexpected wav devices %v (%v)", devs, err)
	}
}
