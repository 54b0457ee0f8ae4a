package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrisaarthi/internal/browser"
	"agrisaarthi/internal/channel"
	"agrisaarthi/internal/config"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/metrics"
	"agrisaarthi/internal/render"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "agrisaarthi",
		Short: "AgriSaarthi: chat assistant for farmers and gardeners",
		Long:  "AgriSaarthi answers crop and garden questions from a simulated backend over CLI, Web and Telegram.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.agrisaarthi/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(tipCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig falls back to defaults when the file is missing, but not when
// it exists and is broken.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		logger.Debug("config not found, using defaults", "path", cfgPath)
		return config.Defaults(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func chatCmd() *cobra.Command {
	var spinner bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg.General, true)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cli := channel.NewCLI(channel.CLIConfig{
				Hub:     a.hub,
				Logger:  logger,
				Player:  render.NewPlayer(cfg.Mock.Playback()),
				Spinner: spinner,
			})
			defer cli.Stop()
			return cli.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&spinner, "spinner", true, "show a spinner while waiting for replies")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web chat (and Telegram when enabled)",
		Long:  "Starts every enabled network channel: the web page with its JSON API, the WebSocket push endpoint, metrics and the Telegram bot. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.General, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var limiter *channel.RateLimiter
	if rl := cfg.Channels.RateLimit; rl.Burst > 0 {
		limiter = channel.NewRateLimiter(rl.Burst, rl.PerMinute)
	}

	var channels []domain.Channel

	if cfg.Channels.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Hub:       a.hub,
			Limiter:   limiter,
			Logger:    logger,
		}))
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	if cfg.Channels.Web.Enabled {
		webCfg := channel.WebConfig{
			Host:    cfg.Channels.Web.Host,
			Port:    cfg.Channels.Web.Port,
			Hub:     a.hub,
			Logger:  logger,
			Version: version,
			Limiter: limiter,
		}
		if cfg.Channels.Web.WebSocket {
			webCfg.WebSocket = channel.NewWebSocketChannel(channel.WSConfig{Hub: a.hub, Limiter: limiter, Logger: logger})
		}
		if cfg.Metrics.Enabled {
			webCfg.Metrics = metrics.Collector.Handler()
			webCfg.MetricsPath = cfg.Metrics.Endpoint
		}
		channels = append(channels, channel.NewWeb(webCfg))
	}

	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled: set channels.web.enabled or channels.telegram.enabled")
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
				stop()
			}
		}(ch)
	}

	logger.Info("agrisaarthi started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop", "channel", ch.Name(), "err", err)
			}
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func tipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tip <farmer|gardener>",
		Short: "Print an offline tip for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseRole(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mock, err := newMock(cfg.Mock)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mock.LocalFallbackTip(role))
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	var (
		url       string
		out       string
		role      string
		questions []string
		visible   bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Screenshot a scripted conversation in the web chat",
		Long:  "Opens the running web chat in Chrome, picks a role, asks the given questions and saves a PNG of the page.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = fmt.Sprintf("http://%s:%d/", cfg.Channels.Web.Host, cfg.Channels.Web.Port)
			}
			if role != "" {
				if _, err := domain.ParseRole(role); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Snapshot.ProfileDir,
				Headless:   !visible,
				Width:      cfg.Snapshot.Width,
				Height:     cfg.Snapshot.Height,
				Timeout:    time.Duration(cfg.Snapshot.TimeoutSeconds) * time.Second,
				Logger:     logger,
			})
			res, err := bridge.Snapshot(ctx, browser.ChatPageSelectors(), browser.Script{
				URL:       url,
				Role:      role,
				Questions: questions,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
				return fmt.Errorf("write screenshot: %w", err)
			}
			for i, r := range res.Replies {
				fmt.Fprintf(cmd.OutOrStdout(), "Q: %s\nA: %s\n\n", questions[i], r)
			}
			logger.Info("snapshot saved", "file", out, "bytes", len(res.PNG))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "chat page URL (default: configured web address)")
	cmd.Flags().StringVarP(&out, "out", "o", "agrisaarthi.png", "output PNG file")
	cmd.Flags().StringVar(&role, "role", "farmer", "role to select; empty captures the role picker")
	cmd.Flags().StringArrayVarP(&questions, "ask", "q", nil, "question to ask (repeatable)")
	cmd.Flags().BoolVar(&visible, "visible", false, "show the browser window")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. mock.adviceDelayMs)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. channels.web.port 9090)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			keys, values, err := config.Paths(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			for _, k := range keys {
				data, _ := json.Marshal(values[k])
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
