// Package config loads the configuration of the orderrt binaries.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type OpenAIConfig struct {
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Voice            string `yaml:"voice"`
	ClientSecretsURL string `yaml:"client_secrets_url"`
	RealtimeURL      string `yaml:"realtime_url"`
	CallsURL         string `yaml:"calls_url"`
}

type CartStoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLMinutes    int    `yaml:"ttl_minutes"`
}

type ClientConfig struct {
	BackendURL string `yaml:"backend_url"`
	Transport  string `yaml:"transport"`
	SampleRate int    `yaml:"sample_rate"`
	LatencyMS  int    `yaml:"latency_ms"`
}

type TelemetryConfig struct {
	LogLevel string `yaml:"log_level"`
	Metrics  bool   `yaml:"metrics"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	CartStore CartStoreConfig `yaml:"cart_store"`
	Client    ClientConfig    `yaml:"client"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		OpenAI: OpenAIConfig{
			Model:            "gpt-4o-realtime-preview-2024-10-01",
			Voice:            "alloy",
			ClientSecretsURL: "https://api.openai.com/v1/realtime/client_secrets",
			RealtimeURL:      "wss://api.openai.com/v1/realtime",
			CallsURL:         "https://api.openai.com/v1/realtime/calls",
		},
		CartStore: CartStoreConfig{
			Driver:     "memory",
			Path:       "./data/carts.db",
			RedisAddr:  "localhost:6379",
			TTLMinutes: 24 * 60,
		},
		Client: ClientConfig{
			BackendURL: "http://localhost:8000/api/v1",
			Transport:  "socket",
			SampleRate: 24000,
			LatencyMS:  100,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
			Metrics:  true,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the optional env file and the environment, in that order.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if envFile != "" {
		// variables already set in the environment win
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.Bind, "ORDERRT_SERVER_BIND")
	overrideInt(&cfg.Server.Port, "ORDERRT_SERVER_PORT")
	overrideStringSlice(&cfg.Server.CORSOrigins, "ORDERRT_CORS_ORIGINS")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_KEY")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.Model, "ORDERRT_OPENAI_MODEL")
	overrideString(&cfg.OpenAI.Voice, "ORDERRT_OPENAI_VOICE")
	overrideString(&cfg.OpenAI.ClientSecretsURL, "ORDERRT_OPENAI_CLIENT_SECRETS_URL")
	overrideString(&cfg.OpenAI.RealtimeURL, "ORDERRT_OPENAI_REALTIME_URL")
	overrideString(&cfg.OpenAI.CallsURL, "ORDERRT_OPENAI_CALLS_URL")
	overrideString(&cfg.CartStore.Driver, "ORDERRT_CART_STORE_DRIVER")
	overrideString(&cfg.CartStore.Path, "ORDERRT_CART_STORE_PATH")
	overrideString(&cfg.CartStore.RedisAddr, "ORDERRT_REDIS_ADDR")
	overrideString(&cfg.CartStore.RedisPassword, "ORDERRT_REDIS_PASSWORD")
	overrideInt(&cfg.CartStore.RedisDB, "ORDERRT_REDIS_DB")
	overrideInt(&cfg.CartStore.TTLMinutes, "ORDERRT_CART_TTL_MINUTES")
	overrideString(&cfg.Client.BackendURL, "ORDERRT_BACKEND_URL")
	overrideString(&cfg.Client.Transport, "ORDERRT_CLIENT_TRANSPORT")
	overrideInt(&cfg.Client.SampleRate, "ORDERRT_CLIENT_SAMPLE_RATE")
	overrideInt(&cfg.Client.LatencyMS, "ORDERRT_CLIENT_LATENCY_MS")
	overrideString(&cfg.Telemetry.LogLevel, "ORDERRT_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.Metrics, "ORDERRT_METRICS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	for _, origin := range cfg.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("server.cors_origins: invalid origin %q", origin)
		}
	}
	switch cfg.CartStore.Driver {
	case "memory":
	case "sqlite":
		if cfg.CartStore.Path == "" {
			return errors.New("cart_store.path must not be empty for the sqlite driver")
		}
	case "redis":
		if cfg.CartStore.RedisAddr == "" {
			return errors.New("cart_store.redis_addr must not be empty for the redis driver")
		}
	default:
		return errors.New("cart_store.driver must be one of memory|sqlite|redis")
	}
	if cfg.CartStore.TTLMinutes < 0 {
		return errors.New("cart_store.ttl_minutes must not be negative")
	}
	if _, err := url.ParseRequestURI(cfg.Client.BackendURL); err != nil {
		return fmt.Errorf("client.backend_url: %w", err)
	}
	switch cfg.Client.Transport {
	case "peer", "socket":
	default:
		return errors.New("client.transport must be one of peer|socket")
	}
	if cfg.Client.SampleRate <= 0 {
		return errors.New("client.sample_rate must be positive")
	}
	if cfg.Client.LatencyMS <= 0 {
		return errors.New("client.latency_ms must be positive")
	}
	if _, err := ParseLevel(cfg.Telemetry.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("telemetry.log_level: %w", err)
	}
	return level, nil
}

// Addr is the server listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
