// Package config provides configuration for the backend, gateway and CLI.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	BackendPort int
	GatewayPort int

	// Database
	DatabaseURL string

	// Generation backend, as seen by the engine
	BackendURL      string
	BackendAPIToken string

	// Question generator
	LLMMode       string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	MockDelay     time.Duration

	// Generation policy (rego); empty uses the built-in policy
	PolicyFile string

	// Engine
	StreamTimeout       time.Duration
	RequestTimeout      time.Duration
	ApproveAllWorkers   int
	MaxQuestionsPerCall int

	// Gateway websocket settings
	GatewayAPIKey  string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogMode  string
	LogLevel string
}

// Load loads configuration from environment variables, after seeding the
// environment from the .env file named by QGEN_ENV_FILE (or ./.env) when present.
func Load() (*Config, error) {
	envFile := os.Getenv("QGEN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", envFile, err)
	}

	return FromViper(newViper()), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("QGEN")
	v.AutomaticEnv()

	v.SetDefault("BACKEND_PORT", 8080)
	v.SetDefault("GATEWAY_PORT", 8090)
	v.SetDefault("DATABASE_URL", "file:qgen.db?cache=shared&mode=rwc")
	v.SetDefault("BACKEND_URL", "http://localhost:8080/api/v1/question-generator")
	v.SetDefault("BACKEND_API_TOKEN", "")
	v.SetDefault("LLM_MODE", "MOCK")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("MOCK_DELAY_MS", 50)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("STREAM_TIMEOUT_MS", 600000)
	v.SetDefault("REQUEST_TIMEOUT_MS", 30000)
	v.SetDefault("APPROVE_ALL_WORKERS", 4)
	v.SetDefault("MAX_QUESTIONS_PER_CALL", 50)
	v.SetDefault("API_KEY", "")
	v.SetDefault("WS_PING_INTERVAL_MS", 30000)
	v.SetDefault("WS_WRITE_TIMEOUT_MS", 10000)
	v.SetDefault("WS_READ_TIMEOUT_MS", 60000)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 65536)
	v.SetDefault("LOG_MODE", "dev")
	v.SetDefault("LOG_LEVEL", "info")

	// Unprefixed variables are honoured when the prefixed one is unset.
	for _, key := range v.AllKeys() {
		upper := strings.ToUpper(key)
		if os.Getenv("QGEN_"+upper) == "" {
			if val, ok := os.LookupEnv(upper); ok && val != "" {
				v.Set(key, val)
			}
		}
	}
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		BackendPort:         v.GetInt("BACKEND_PORT"),
		GatewayPort:         v.GetInt("GATEWAY_PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		BackendURL:          v.GetString("BACKEND_URL"),
		BackendAPIToken:     v.GetString("BACKEND_API_TOKEN"),
		LLMMode:             v.GetString("LLM_MODE"),
		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:       v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:         v.GetString("OPENAI_MODEL"),
		MockDelay:           millis(v, "MOCK_DELAY_MS"),
		PolicyFile:          v.GetString("POLICY_FILE"),
		StreamTimeout:       millis(v, "STREAM_TIMEOUT_MS"),
		RequestTimeout:      millis(v, "REQUEST_TIMEOUT_MS"),
		ApproveAllWorkers:   v.GetInt("APPROVE_ALL_WORKERS"),
		MaxQuestionsPerCall: v.GetInt("MAX_QUESTIONS_PER_CALL"),
		GatewayAPIKey:       v.GetString("API_KEY"),
		PingInterval:        millis(v, "WS_PING_INTERVAL_MS"),
		WriteTimeout:        millis(v, "WS_WRITE_TIMEOUT_MS"),
		ReadTimeout:         millis(v, "WS_READ_TIMEOUT_MS"),
		MaxMessageSize:      v.GetInt64("WS_MAX_MESSAGE_SIZE"),
		LogMode:             v.GetString("LOG_MODE"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}
