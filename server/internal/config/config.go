package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over the prediction or one of the
	// reading fields: "predicted_rul < 100", "cycle_index > 1000".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHost            = "0.0.0.0"
	DefaultHTTPPort        = 3000
	DefaultGRPCPort        = 50051
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultModelPath       = "model/rul-model.json"
	DefaultScalerPath      = "model/scaler.json"
)

// Config is the full rulstack-server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	Alerts AlertsConfig `yaml:"alerts"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// Host is the bind address for both listeners (default 0.0.0.0).
	Host string `yaml:"host"`

	// HTTPPort is the port of the REST API, metrics and WebSocket stream (default 3000).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port of the gRPC predictor (default 50051). 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// MaxBodyBytes caps the size of a prediction request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	CORS CORSConfig `yaml:"cors"`

	// Stream toggles the WebSocket prediction stream on /ws/predict.
	Stream bool `yaml:"stream"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	// AllowedOrigins defaults to ["*"].
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ModelConfig locates the model and scaler artifacts.
type ModelConfig struct {
	// Path of the network artifact, relative to the working directory unless absolute.
	Path string `yaml:"path"`

	// ScalerPath of the fitted scaler artifact.
	ScalerPath string `yaml:"scaler_path"`

	// Watch logs a restart hint when either artifact changes on disk.
	// Loaded artifacts are never replaced in a running process.
	Watch bool `yaml:"watch"`
}

// Resolve returns a copy with both paths made absolute against the working directory.
func (m ModelConfig) Resolve() (ModelConfig, error) {
	var err error
	if m.Path, err = filepath.Abs(m.Path); err != nil {
		return m, fmt.Errorf("resolve model.path: %w", err)
	}
	if m.ScalerPath, err = filepath.Abs(m.ScalerPath); err != nil {
		return m, fmt.Errorf("resolve model.scaler_path: %w", err)
	}
	return m, nil
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
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

// Load reads and parses the config file at path. An empty path yields the
// defaults, which match the layout of a plain checkout: artifacts under
// ./model and the API on port 3000.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			HTTPPort:        DefaultHTTPPort,
			GRPCPort:        DefaultGRPCPort,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			ShutdownTimeout: DefaultShutdownTimeout,
			CORS:            CORSConfig{AllowedOrigins: []string{"*"}},
			Stream:          true,
		},
		Model: ModelConfig{
			Path:       DefaultModelPath,
			ScalerPath: DefaultScalerPath,
			Watch:      true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks structural constraints on the configuration. Load calls it;
// callers that override fields afterwards call it again.
func (cfg *Config) Validate() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (cfg *Config) validate() error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.GRPCPort != 0 && cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port are both %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if cfg.Model.Path == "" || cfg.Model.ScalerPath == "" {
		return fmt.Errorf("model.path and model.scaler_path are required")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d].name is required", i)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d].severity %q unknown: want critical|warning|info", i, r.Severity)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules[%d].cooldown must not be negative", i)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
