package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	ChannelBase     string
	JWTSecret       string
	RunnerBaseURL   string
	RunnerAPIToken  string
	RunnerTimeout   time.Duration
	EvalConcurrency int
	TimeLimitSec    int
	MemoryLimitMB   int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODELAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CodeLab API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "codelab")
	v.SetDefault("runner.timeout_ms", 60000)
	v.SetDefault("eval.concurrency", 4)
	v.SetDefault("eval.time_limit_sec", 5)
	v.SetDefault("eval.memory_limit_mb", 256)

	timeoutMs := v.GetInt("runner.timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 60000
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		NATSURL:         v.GetString("nats.url"),
		ChannelBase:     v.GetString("channel.base"),
		JWTSecret:       v.GetString("jwt.secret"),
		RunnerBaseURL:   v.GetString("runner.base_url"),
		RunnerAPIToken:  v.GetString("runner.api_token"),
		RunnerTimeout:   time.Duration(timeoutMs) * time.Millisecond,
		EvalConcurrency: v.GetInt("eval.concurrency"),
		TimeLimitSec:    v.GetInt("eval.time_limit_sec"),
		MemoryLimitMB:   v.GetInt("eval.memory_limit_mb"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RunnerBaseURL == "" {
		return Config{}, fmt.Errorf("runner base url must be provided")
	}

	if cfg.EvalConcurrency <= 0 {
		cfg.EvalConcurrency = 4
	}

	if cfg.TimeLimitSec <= 0 {
		cfg.TimeLimitSec = 5
	}

	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = 256
	}

	return cfg, nil
}
