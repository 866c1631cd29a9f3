package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "modular.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSONAppliesOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"sample_rate": 44100,
		"block_size": 256,
		"backend": "WAVFile",
		"device": " speakers ",
		"log_level": "debug",
		"patches": ["patches/fm.json", "/abs/sine.json"],
		"wav_path": "out/take.wav"
	}`)
	c, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.SampleRate != 44100 || c.BlockSize != 256 || c.Channels != 2 {
		t.Fatalf("unexpected format %+v", c.Format())
	}
	if c.Backend != BackendWAVFile {
		t.Fatalf("expected wavfile backend, got %s", c.Backend)
	}
	if c.Device == nil || *c.Device != "speakers" {
		t.Fatalf("expected trimmed device, got %v", c.Device)
	}
	if c.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", c.LogLevel)
	}
	dir := filepath.Dir(path)
	if c.Patches[0] != filepath.Join(dir, "patches", "fm.json") || c.Patches[1] != "/abs/sine.json" {
		t.Fatalf("unexpected patch paths %v", c.Patches)
	}
	if c.WAVPath != filepath.Join(dir, "out", "take.wav") {
		t.Fatalf("unexpected wav path %s", c.WAVPath)
	}
}

func TestApplyFileValidates(t *testing.T) {
	bad := []string{
		`{"sample_rate": 10}`,
		`{"block_size": 0}`,
		`{"channels": 9}`,
		`{"backend": "alsa"}`,
		`{"log_level": "loud"}`,
		`{"patches": [" "]}`,
	}
	for _, body := range bad {
		if _, err := LoadJSON(writeConfig(t, body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestDefaultsWithoutFile(t *testing.T) {
	c := NewDefault()
	if c.Backend != BackendPortAudio || c.Device != nil || c.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if err := ApplyFile(c, nil); err != nil {
		t.Fatalf("nil file: %v", err)
	}
	if err := ApplyFile(nil, &File{}); err == nil {
		t.Fatalf("expected nil destination error")
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
