package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the telemetry daemon. It is built
// once at startup (file, then environment, then CLI flags) and handed
// to components by value; see Store for the runtime rewrite path.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Sensors  []SensorConfig `yaml:"sensors"`
	Notify   NotifyConfig   `yaml:"notify"`
	Export   ExportConfig   `yaml:"export"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DaemonConfig drives the worker sampling state machine.
type DaemonConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`    // base tick of the worker loop
	TicksPerSample int           `yaml:"ticks_per_sample"` // ticks between physical reads
	ReportEvery    int           `yaml:"report_every"`     // samples between notifications
	HistorySize    int           `yaml:"history_size"`     // ring capacity per worker
	DumpInterval   time.Duration `yaml:"dump_interval"`    // supervisory dump/relay cycle
	ChannelBuffer  int           `yaml:"channel_buffer"`   // command/data channel depth
}

// SensorConfig describes one of the up-to-three barometers.
type SensorConfig struct {
	ID         int    `yaml:"id"`
	Disabled   bool   `yaml:"disabled"`
	Source     string `yaml:"source"`      // "synthetic" or "iio"
	DevicePath string `yaml:"device_path"` // iio sysfs directory
}

// NotifyConfig configures the Slack alert client.
type NotifyConfig struct {
	URL      string        `yaml:"url"`
	Channel  string        `yaml:"channel"`
	TokenEnv string        `yaml:"token_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ExportConfig configures the TCP bulk-export sink.
type ExportConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// FeedConfig configures the live feed / admin HTTP server.
type FeedConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig configures the sqlite reporting store.
type DatabaseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"` // trace|debug|info|warn|error
	FilePath string `yaml:"file_path"`
	Debug    bool   `yaml:"debug"`
}

// Load reads configuration from a YAML file. An empty path yields a
// default configuration. The pipeline is read, defaults, environment
// overrides, validate.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	cfg.OverrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for any unset fields.
func (c *Config) ApplyDefaults() {
	if c.Daemon.TickInterval == 0 {
		c.Daemon.TickInterval = 5 * time.Second
	}
	if c.Daemon.TicksPerSample == 0 {
		c.Daemon.TicksPerSample = 60 // one sample every 5 minutes
	}
	if c.Daemon.ReportEvery == 0 {
		c.Daemon.ReportEvery = 12 // one report per hour
	}
	if c.Daemon.HistorySize == 0 {
		c.Daemon.HistorySize = 100
	}
	if c.Daemon.DumpInterval == 0 {
		c.Daemon.DumpInterval = 15 * time.Minute
	}
	if c.Daemon.ChannelBuffer == 0 {
		c.Daemon.ChannelBuffer = 256
	}
	if len(c.Sensors) == 0 {
		c.Sensors = []SensorConfig{
			{ID: 1, Source: "synthetic"},
			{ID: 2, Source: "synthetic"},
			{ID: 3, Source: "synthetic"},
		}
	}
	for i := range c.Sensors {
		if c.Sensors[i].Source == "" {
			c.Sensors[i].Source = "synthetic"
		}
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Export.Addr == "" {
		c.Export.Addr = "localhost:9900"
	}
	if c.Export.Timeout == 0 {
		c.Export.Timeout = 10 * time.Second
	}
	if c.Feed.Host == "" {
		c.Feed.Host = "localhost"
	}
	if c.Feed.Port == 0 {
		c.Feed.Port = 8082
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/baro-monitor.db"
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = 100
	}
	if c.Database.FlushPeriod == 0 {
		c.Database.FlushPeriod = 5 * time.Second
	}
	if c.Database.ChannelSize == 0 {
		c.Database.ChannelSize = 1000
	}
	if c.Database.RetentionDays == 0 {
		c.Database.RetentionDays = 30
	}
	if c.Database.CleanupPeriod == 0 {
		c.Database.CleanupPeriod = 1 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// OverrideFromEnv overrides config values from environment variables.
// Only set (non-empty) variables take effect.
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXPORT_ADDR"); v != "" {
		c.Export.Addr = v
	}
	if v := os.Getenv("FEED_AUTH_TOKEN"); v != "" {
		c.Feed.AuthToken = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
}

// Validate checks the configuration and returns a descriptive error
// for the first problem found. Startup is the only fatal error path.
func (c *Config) Validate() error {
	if c.Daemon.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("tick interval must be at least 100ms")
	}
	if c.Daemon.TicksPerSample < 1 {
		return fmt.Errorf("ticks per sample must be at least 1")
	}
	if c.Daemon.ReportEvery < 1 {
		return fmt.Errorf("report window must be at least 1 sample")
	}
	if c.Daemon.HistorySize < 10 || c.Daemon.HistorySize > 100000 {
		return fmt.Errorf("history size must be between 10 and 100000")
	}
	if len(c.Sensors) > 3 {
		return fmt.Errorf("at most 3 sensors are supported")
	}
	seen := make(map[int]bool)
	for _, s := range c.Sensors {
		if s.ID < 1 || s.ID > 3 {
			return fmt.Errorf("sensor id %d out of range 1-3", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate sensor id %d", s.ID)
		}
		seen[s.ID] = true
		if s.Source != "synthetic" && s.Source != "iio" {
			return fmt.Errorf("sensor %d: unknown source %q", s.ID, s.Source)
		}
		if s.Source == "iio" && s.DevicePath == "" {
			return fmt.Errorf("sensor %d: iio source requires device_path", s.ID)
		}
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Feed.Enabled {
		if c.Feed.Port < 1 || c.Feed.Port > 65535 {
			return fmt.Errorf("feed port must be between 1 and 65535")
		}
		if c.Feed.AuthToken == "" {
			return fmt.Errorf("feed auth token is required when the feed is enabled")
		}
	}
	if c.Export.Enabled && c.Export.Addr == "" {
		return fmt.Errorf("export address is required when export is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path is required when the database is enabled")
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// EnabledSensors returns the sensors that should get a worker.
func (c *Config) EnabledSensors() []SensorConfig {
	out := make([]SensorConfig, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// String returns a safe representation (hides the feed auth token).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Daemon: %+v, Sensors: %+v, Notify: %+v, Export: %+v, Feed: [%s:%d token=%s], Database: %+v, Logging: %+v}",
		c.Daemon,
		c.Sensors,
		c.Notify,
		c.Export,
		c.Feed.Host, c.Feed.Port, maskToken(c.Feed.AuthToken),
		c.Database,
		c.Logging,
	)
}

// maskToken masks all but the first 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
