package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cwbudde/algo-modular/bridge"
	"github.com/cwbudde/algo-modular/config"
	"github.com/cwbudde/algo-modular/live"
	"github.com/cwbudde/algo-modular/sink"
	"github.com/cwbudde/algo-modular/sink/oto"
	"github.com/cwbudde/algo-modular/sink/portaudio"
	"github.com/cwbudde/algo-modular/sink/wavfile"
)

func main() {
	configPath := flag.String("config", "", "Config JSON file path (optional)")
	backend := flag.String("backend", "", "Output backend: portaudio, oto, wavfile or loopback")
	device := flag.String("device", "", "Output device name (default device if empty)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *backend, *device, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol, so logs go to stderr.
	log := config.NewLogger(os.Stderr, cfg.LogLevel)

	host, release, err := newHost(cfg)
	if err != nil {
		log.Error("output host unavailable", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer release()

	rt := live.New(
		live.WithLogger(log),
		live.WithHost(host),
		live.WithFormat(cfg.Format()),
	)
	rt.Start()
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("close runtime", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := bridge.NewServer(rt, log)
	for _, path := range cfg.Patches {
		resp := srv.Handle(ctx, bridge.Request{Op: "load_patch", Path: path})
		if !resp.OK {
			log.Error("load patch", "path", path, "err", resp.Error)
			continue
		}
		log.Info("patch registered", "path", path, "uid", resp.Data)
	}
	if err := rt.Do(ctx, live.ChangeOutput{Device: cfg.Device}); err != nil {
		log.Error("open output", "backend", cfg.Backend, "err", err)
	}

	log.Info("serving commands on stdin", "backend", host.Name(), "sample_rate", cfg.SampleRate)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Error("serve", "err", err)
	}
}

func loadConfig(path, backend, device, logLevel string) (*config.Config, error) {
	cfg := config.NewDefault()
	if path != "" {
		var err error
		if cfg, err = config.LoadJSON(path); err != nil {
			return nil, err
		}
	}
	f := &config.File{Backend: backend, LogLevel: logLevel}
	if device != "" {
		f.Device = &device
	}
	if err := config.ApplyFile(cfg, f); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newHost opens the configured backend. release frees backend resources.
func newHost(cfg *config.Config) (sink.Host, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendPortAudio:
		h, err := portaudio.Init()
		if err != nil {
			return nil, nil, err
		}
		return h, func() {
			if err := h.Terminate(); err != nil {
				slog.Warn("terminate portaudio", "err", err)
			}
		}, nil
	case config.BackendOto:
		return oto.NewHost(), func() {}, nil
	case config.BackendWAVFile:
		return wavfile.NewHost(cfg.WAVPath), func() {}, nil
	case config.BackendLoopback:
		return sink.NewLoopback("loopback"), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
