package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/cwbudde/algo-modular/sink"
)

// Output backends.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendWAVFile   = "wavfile"
	BackendLoopback  = "loopback"
)

// Config is the resolved runtime configuration.
type Config struct {
	SampleRate int
	BlockSize  int
	Channels   int
	Backend    string
	Device     *string
	LogLevel   slog.Level
	Patches    []string
	WAVPath    string
}

// File is the JSON schema for configuration files. Absent fields keep defaults.
type File struct {
	SampleRate *int     `json:"sample_rate"`
	BlockSize  *int     `json:"block_size"`
	Channels   *int     `json:"channels"`
	Backend    string   `json:"backend"`
	Device     *string  `json:"device"`
	LogLevel   string   `json:"log_level"`
	Patches    []string `json:"patches"`
	WAVPath    string   `json:"wav_path"`
}

// NewDefault returns the built-in configuration.
func NewDefault() *Config {
	return &Config{
		SampleRate: 48000,
		BlockSize:  128,
		Channels:   2,
		Backend:    BackendPortAudio,
		LogLevel:   slog.LevelInfo,
		WAVPath:    "live.wav",
	}
}

// LoadJSON loads a config file and applies it on top of the defaults.
// Relative paths are resolved against the file's directory.
func LoadJSON(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	c := NewDefault()
	if err := ApplyFile(c, &f); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range c.Patches {
		c.Patches[i] = resolve(base, p)
	}
	if f.WAVPath != "" {
		c.WAVPath = resolve(base, c.WAVPath)
	}
	return c, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// ApplyFile applies a parsed config file onto dst.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		if *f.SampleRate < 8000 || *f.SampleRate > 192000 {
			return fmt.Errorf("sample_rate must be in [8000,192000]")
		}
		dst.SampleRate = *f.SampleRate
	}
	if f.BlockSize != nil {
		if *f.BlockSize <= 0 || *f.BlockSize > 8192 {
			return fmt.Errorf("block_size must be in [1,8192]")
		}
		dst.BlockSize = *f.BlockSize
	}
	if f.Channels != nil {
		if *f.Channels < 1 || *f.Channels > 8 {
			return fmt.Errorf("channels must be in [1,8]")
		}
		dst.Channels = *f.Channels
	}
	if f.Backend != "" {
		b := strings.ToLower(strings.TrimSpace(f.Backend))
		switch b {
		case BackendPortAudio, BackendOto, BackendWAVFile, BackendLoopback:
		default:
			return fmt.Errorf("backend must be one of portaudio, oto, wavfile, loopback")
		}
		dst.Backend = b
	}
	if f.Device != nil {
		d := strings.TrimSpace(*f.Device)
		dst.Device = &d
	}
	if f.LogLevel != "" {
		lvl, err := ParseLevel(f.LogLevel)
		if err != nil {
			return err
		}
		dst.LogLevel = lvl
	}
	for _, p := range f.Patches {
		p, err := homedir.Expand(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		if p == "" {
			return fmt.Errorf("patches must not contain empty paths")
		}
		dst.Patches = append(dst.Patches, p)
	}
	if f.WAVPath != "" {
		p, err := homedir.Expand(strings.TrimSpace(f.WAVPath))
		if err != nil {
			return err
		}
		dst.WAVPath = p
	}
	return nil
}

// Format returns the stream format the runtime should request.
func (c *Config) Format() sink.Format {
	return sink.Format{SampleRate: c.SampleRate, Channels: c.Channels, BlockSize: c.BlockSize}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// NewLogger returns a text logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
