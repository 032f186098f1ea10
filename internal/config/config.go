package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is read from the environment. An empty NatsURL or DatabaseURL turns
// the render feed or the transcript archive off.
type Config struct {
	Port           int    `validate:"min=1,max=65535"`
	NatsURL        string `validate:"omitempty,url"`
	NatsToken      string
	DatabaseURL    string
	LogLevel       string        `validate:"oneof=debug info warn error"`
	ReplyDelay     time.Duration `validate:"min=0"`
	SessionIdleTTL time.Duration `validate:"gt=0"`
	SweepInterval  time.Duration `validate:"gt=0"`
	ArchiveBuffer  int           `validate:"min=1"`
	CORSOrigins    []string      `validate:"min=1,dive,required"`
}

var validate = validator.New()

// LoadDotEnv merges variables from the given .env files (default ".env") into
// the environment. Variables already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		Port:           envInt("GUARDIAN_PORT", 8760),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		ReplyDelay:     envDuration("GUARDIAN_REPLY_DELAY", time.Second),
		SessionIdleTTL: envDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SweepInterval:  envDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		ArchiveBuffer:  envInt("ARCHIVE_BUFFER", 1024),
		CORSOrigins:    envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go durations ("1500ms") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
