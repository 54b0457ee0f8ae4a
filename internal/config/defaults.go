package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Mock: MockConfig{
			STTDelayMs:    1500,
			AdviceDelayMs: 2000,
			VisionDelayMs: 2500,
			TTSDelayMs:    1000,
			PlaybackMs:    3000,
		},
		Channels: ChannelsConfig{
			Web: WebConfig{
				Enabled:   true,
				Host:      "127.0.0.1",
				Port:      8080,
				WebSocket: true,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
			RateLimit: RateLimitConfig{
				Burst:     5,
				PerMinute: 20,
			},
		},
		Memory: MemoryConfig{
			DBPath: ":memory:",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Snapshot: SnapshotConfig{
			Width:          420,
			Height:         860,
			TimeoutSeconds: 30,
		},
	}
}
