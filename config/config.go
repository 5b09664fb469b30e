// Package config loads the application settings from the environment,
// an optional .env file and an optional config.yaml.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CINEAI_TMDB_API_KEY
const EnvPrefix = "CINEAI"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	TMDB     TMDBConfig     `mapstructure:"tmdb"`
	Import   ImportConfig   `mapstructure:"import"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// DatabaseConfig points at the SQLite catalog database
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AccountsConfig points at the account store
type AccountsConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TMDBConfig holds metadata provider settings
type TMDBConfig struct {
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	Language          string  `mapstructure:"language"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
}

// ImportConfig tunes the ingestion engine
type ImportConfig struct {
	BatchSize  int           `mapstructure:"batch_size" validate:"gte=1,lte=100"`
	BatchPause time.Duration `mapstructure:"batch_pause" validate:"gte=0"`
	// Dir is the only directory server-side file imports may read from.
	// Empty disables them.
	Dir string `mapstructure:"dir"`
}

// AuthConfig holds account and session settings
type AuthConfig struct {
	AdminEmail    string `mapstructure:"admin_email" validate:"omitempty,email"`
	SessionSecret string `mapstructure:"session_secret"`
}

// LogConfig holds log file settings. Logs only go to stdout when File is empty.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.path", "cineai.db")
	v.SetDefault("accounts.path", "accounts.db")
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.language", "es-ES")
	v.SetDefault("tmdb.requests_per_second", 35)
	v.SetDefault("import.batch_size", 15)
	v.SetDefault("import.batch_pause", 50*time.Millisecond)
	v.SetDefault("import.dir", "")
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// Load reads the configuration. A .env file in the working directory is
// loaded first. configFile may name a YAML file; when empty, config.yaml is
// looked up in the working directory and skipped if missing.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Auth.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		log.Println("Warning: auth.session_secret not set - sessions will not survive a restart")
		cfg.Auth.SessionSecret = secret
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
