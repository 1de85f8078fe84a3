package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds buzzer server settings. Environment variables override the YAML file.
type Config struct {
	Port      string `yaml:"port"`
	HostCode  string `yaml:"host_code"`
	LogLevel  string `yaml:"log_level"`
	StaticDir string `yaml:"static_dir"`

	WebSocket struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	NATS struct {
		URL        string `yaml:"url"`
		StreamName string `yaml:"stream_name"`
	} `yaml:"nats"`
}

// Default returns the settings used when neither file nor environment set a value
func Default() *Config {
	cfg := &Config{
		Port:     "3000",
		LogLevel: "info",
	}
	cfg.WebSocket.WriteTimeout = 10 * time.Second
	cfg.WebSocket.ReadTimeout = 60 * time.Second
	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.MaxMessageSize = 1024
	cfg.NATS.StreamName = "BUZZER_EVENTS"
	return cfg
}

// Load reads the YAML file at path, if present, then applies BUZZER_* and NATS_URL overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnv("BUZZER_PORT", cfg.Port)
	cfg.HostCode = getEnv("BUZZER_HOST_CODE", cfg.HostCode)
	cfg.LogLevel = getEnv("BUZZER_LOG_LEVEL", cfg.LogLevel)
	cfg.StaticDir = getEnv("BUZZER_STATIC_DIR", cfg.StaticDir)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)

	cfg.WebSocket.WriteTimeout = getEnvAsDuration("BUZZER_WRITE_TIMEOUT", cfg.WebSocket.WriteTimeout)
	cfg.WebSocket.ReadTimeout = getEnvAsDuration("BUZZER_READ_TIMEOUT", cfg.WebSocket.ReadTimeout)
	cfg.WebSocket.PingInterval = getEnvAsDuration("BUZZER_PING_INTERVAL", cfg.WebSocket.PingInterval)
	cfg.WebSocket.MaxMessageSize = int64(getEnvAsInt("BUZZER_MAX_MESSAGE_SIZE", int(cfg.WebSocket.MaxMessageSize)))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	// Keepalive pings must arrive before the read deadline expires
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("ping_interval %s must be shorter than read_timeout %s",
			c.WebSocket.PingInterval, c.WebSocket.ReadTimeout)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
