package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/config"
	"agrisaarthi/internal/memory"
	"agrisaarthi/internal/provider"
)

// app bundles what every front end shares.
type app struct {
	mock  *provider.Mock
	store *memory.SQLiteStore
	hub   *chat.Hub
}

func newApp(cfg *config.Config) (*app, error) {
	mock, err := newMock(cfg.Mock)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	hub := chat.NewHub(chat.HubConfig{
		Services: mock,
		Store:    store,
		Events:   bus.NewEventBus(logger),
		Weather:  mock,
		Logger:   logger,
	})
	return &app{mock: mock, store: store, hub: hub}, nil
}

func (a *app) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("close store", "err", err)
	}
}

func newMock(mc config.MockConfig) (*provider.Mock, error) {
	var catalog *provider.Catalog
	if mc.CatalogPath != "" {
		c, err := provider.LoadCatalog(mc.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	return provider.NewMock(provider.MockConfig{
		Catalog: catalog,
		Delays: provider.Delays{
			STT:    mc.STTDelay(),
			Advice: mc.AdviceDelay(),
			Vision: mc.VisionDelay(),
			TTS:    mc.TTSDelay(),
		},
		Logger: logger,
	})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger replaces the global logger according to the config. With
// interactive set and no log file, only warnings reach the terminal.
func setupLogger(gc config.GeneralConfig, interactive bool) (func(), error) {
	level := parseLevel(gc.LogLevel)
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if gc.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(gc.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(gc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	} else if interactive && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closeFn, nil
}
