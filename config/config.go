package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// S3Config holds settings for the S3-compatible file store.
type S3Config struct {
	Endpoint        string `mapstructure:"S3_ENDPOINT"`
	Region          string `mapstructure:"S3_REGION"`
	Bucket          string `mapstructure:"S3_BUCKET"`
	AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	PresignTTLSec   int    `mapstructure:"S3_PRESIGN_TTL_SEC"`
}

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env for environment variable binding.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Session configuration
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTLMin     int    `mapstructure:"SESSION_TTL_MIN"`

	// Redis session cache; when RedisAddr is empty the in-memory store is used.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Dashboard aggregate refresh debounce, per owner.
	StatsRefreshMin int `mapstructure:"STATS_REFRESH_MIN"`

	S3 S3Config `mapstructure:",squash"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	// Set configuration file name and type
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")

	// Set search paths for the configuration file
	v.AddConfigPath("/etc/praxis/")
	v.AddConfigPath("$HOME/.praxis")
	v.AddConfigPath(".")

	// Read environment variables
	v.AutomaticEnv()
	// For nested env vars like PARENT.CHILD -> PARENT_CHILD
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/praxis_dev")
	v.SetDefault("MONGO_DB_NAME", "praxis_dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "praxis-server")
	v.SetDefault("SESSION_SIGNING_KEY", "a_very_secret_session_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("SESSION_TTL_MIN", 720) // 12 hours
	v.SetDefault("STATS_REFRESH_MIN", 5)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PRESIGN_TTL_SEC", 300)

	// Attempt to read the config file
	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		// Other errors (e.g., permission issues, malformed config) should be returned.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal the configuration into the ServerConfig struct
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
