package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Engine    EngineConfig    `yaml:"engine"`
	Pose      PoseConfig      `yaml:"pose"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	StaticDir       string        `yaml:"static_dir"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
}

// Database drivers. An empty driver disables set history.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type EngineConfig struct {
	RepCooldown       time.Duration `yaml:"rep_cooldown"`
	EmphasisFrames    int           `yaml:"emphasis_frames"`
	CalibrationTarget int           `yaml:"calibration_target"`
}

type PoseConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ModelPath   string  `yaml:"model_path"`
	Confidence  float32 `yaml:"confidence"`
	IoU         float32 `yaml:"iou"`
	InputSize   int     `yaml:"input_size"`
	MaxWidth    int     `yaml:"max_width"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// HistoryEnabled reports whether completed sets are persisted.
func (d DatabaseConfig) HistoryEnabled() bool {
	return d.Driver != ""
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Default returns the configuration used for any field the file leaves out.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			IdleTimeout:     60 * time.Second,
			MaxMessageBytes: 4 << 20,
		},
		Tailscale: TailscaleConfig{
			Hostname: "repcoach",
			StateDir: "tsnet-state",
		},
		Engine: EngineConfig{
			RepCooldown:       600 * time.Millisecond,
			EmphasisFrames:    15,
			CalibrationTarget: 10,
		},
		Pose: PoseConfig{
			Confidence:  0.25,
			IoU:         0.45,
			InputSize:   640,
			MaxWidth:    480,
			JPEGQuality: 35,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPCOACH_ and underscore-separated paths:
//
//	REPCOACH_SERVER_HOST, REPCOACH_SERVER_PORT,
//	REPCOACH_DB_DRIVER, REPCOACH_DB_HOST, REPCOACH_DB_PORT, REPCOACH_DB_NAME,
//	REPCOACH_DB_USER, REPCOACH_DB_PASSWORD, REPCOACH_DB_SSLMODE, REPCOACH_DB_PATH,
//	REPCOACH_AUTH_API_KEY, REPCOACH_POSE_MODEL, REPCOACH_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPCOACH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPCOACH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPCOACH_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REPCOACH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPCOACH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPCOACH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPCOACH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPCOACH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPCOACH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPCOACH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REPCOACH_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPCOACH_POSE_MODEL"); v != "" {
		cfg.Pose.ModelPath = v
		cfg.Pose.Enabled = true
	}
	if v := os.Getenv("REPCOACH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server.idle_timeout must be positive")
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.max_message_bytes must be positive")
	}

	switch c.Database.Driver {
	case "":
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.HistoryEnabled() && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when history is enabled")
	}

	if c.Engine.RepCooldown < 0 {
		return fmt.Errorf("engine.rep_cooldown must not be negative")
	}
	if c.Engine.EmphasisFrames < 0 {
		return fmt.Errorf("engine.emphasis_frames must not be negative")
	}
	if c.Engine.CalibrationTarget <= 0 {
		return fmt.Errorf("engine.calibration_target must be positive")
	}

	if c.Pose.Enabled {
		if c.Pose.ModelPath == "" {
			return fmt.Errorf("pose.model_path is required when pose is enabled")
		}
		if c.Pose.JPEGQuality < 1 || c.Pose.JPEGQuality > 100 {
			return fmt.Errorf("pose.jpeg_quality must be in 1..100")
		}
		if c.Pose.InputSize <= 0 || c.Pose.MaxWidth <= 0 {
			return fmt.Errorf("pose.input_size and pose.max_width must be positive")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// SlogLevel maps the configured level onto slog. Load has already validated it.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
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
