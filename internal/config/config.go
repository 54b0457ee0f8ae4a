package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for AgriSaarthi.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Mock     MockConfig     `json:"mock"`
	Channels ChannelsConfig `json:"channels"`
	Memory   MemoryConfig   `json:"memory"`
	Metrics  MetricsConfig  `json:"metrics"`
	Snapshot SnapshotConfig `json:"snapshot"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`          // "debug" | "info" | "warn" | "error"
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// MockConfig tunes the simulated backend. Delays are in milliseconds.
type MockConfig struct {
	CatalogPath   string `json:"catalogPath,omitempty"` // optional YAML override of the embedded catalog
	STTDelayMs    int    `json:"sttDelayMs"`
	AdviceDelayMs int    `json:"adviceDelayMs"`
	VisionDelayMs int    `json:"visionDelayMs"`
	TTSDelayMs    int    `json:"ttsDelayMs"`
	PlaybackMs    int    `json:"playbackMs"`
}

func (m MockConfig) STTDelay() time.Duration    { return ms(m.STTDelayMs) }
func (m MockConfig) AdviceDelay() time.Duration { return ms(m.AdviceDelayMs) }
func (m MockConfig) VisionDelay() time.Duration { return ms(m.VisionDelayMs) }
func (m MockConfig) TTSDelay() time.Duration    { return ms(m.TTSDelayMs) }
func (m MockConfig) Playback() time.Duration    { return ms(m.PlaybackMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Web       WebConfig       `json:"web"`
	CLI       CLIConfig       `json:"cli"`
	RateLimit RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfig throttles messages per chat on the network channels.
// A zero burst disables throttling.
type RateLimitConfig struct {
	Burst     int     `json:"burst"`
	PerMinute float64 `json:"perMinute"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type WebConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	WebSocket bool   `json:"websocket"` // serve /ws push endpoint
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// MemoryConfig configures the conversation store. The default ":memory:"
// keeps transcripts inside the process only.
type MemoryConfig struct {
	DBPath string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// SnapshotConfig configures the headless Chrome screenshot command.
type SnapshotConfig struct {
	ProfileDir     string `json:"profileDir,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// DefaultConfigDir returns the default config directory (~/.agrisaarthi).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agrisaarthi"
	}
	return filepath.Join(home, ".agrisaarthi")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Mock.CatalogPath = ExpandPath(cfg.Mock.CatalogPath)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Snapshot.ProfileDir = ExpandPath(cfg.Snapshot.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

const maxDelayMs = 60_000

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	delays := []struct {
		path string
		v    int
	}{
		{"mock.sttDelayMs", cfg.Mock.STTDelayMs},
		{"mock.adviceDelayMs", cfg.Mock.AdviceDelayMs},
		{"mock.visionDelayMs", cfg.Mock.VisionDelayMs},
		{"mock.ttsDelayMs", cfg.Mock.TTSDelayMs},
		{"mock.playbackMs", cfg.Mock.PlaybackMs},
	}
	for _, d := range delays {
		if d.v < 0 || d.v > maxDelayMs {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and %d", d.path, maxDelayMs))
		}
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.Channels.RateLimit.Burst < 0 || cfg.Channels.RateLimit.PerMinute < 0 {
		errs = append(errs, "channels.rateLimit.burst and channels.rateLimit.perMinute must be >= 0")
	}

	if cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.dbPath must not be empty (use \":memory:\" for in-process)")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if cfg.Snapshot.Width < 0 || cfg.Snapshot.Height < 0 {
		errs = append(errs, "snapshot.width and snapshot.height must be >= 0")
	}
	if cfg.Snapshot.TimeoutSeconds < 1 {
		errs = append(errs, "snapshot.timeoutSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
