package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const productionBackendEnvPath = `D:\agrinova\backend\config\.env`

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// ServerConfig holds the cache proxy's HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	GinMode         string        `mapstructure:"gin_mode"`
	GraphQLEndpoint string        `mapstructure:"graphql_endpoint"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig holds outbound rate limiting configuration.
type SecurityConfig struct {
	RateLimitEnabled        bool `mapstructure:"rate_limit_enabled"`
	RateLimitRequestsPerMin int  `mapstructure:"rate_limit_requests_per_minute"`
	RateLimitBurst          int  `mapstructure:"rate_limit_burst"`
}

// Load loads configuration using Viper from environment variables and config files.
func Load() (*Config, error) {
	// Environment loading policy:
	// - development: default .env lookup
	// - production: mandatory fixed env path on Windows production server
	if err := loadRuntimeEnv(); err != nil {
		return nil, err
	}

	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.agrinova")

	// Read environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// Bind database environment variables
	viper.BindEnv("database.host", "AGRINOVA_DATABASE_HOST")
	viper.BindEnv("database.port", "AGRINOVA_DATABASE_PORT")
	viper.BindEnv("database.user", "AGRINOVA_DATABASE_USER")
	viper.BindEnv("database.password", "AGRINOVA_DATABASE_PASSWORD")
	viper.BindEnv("database.name", "AGRINOVA_DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "AGRINOVA_DATABASE_SSL_MODE")

	// Read in config file if available
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; ignore error if desired
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func loadRuntimeEnv() error {
	customEnvPath := strings.TrimSpace(os.Getenv("AGRINOVA_ENV_FILE"))
	if customEnvPath != "" {
		if err := godotenv.Load(customEnvPath); err != nil {
			return fmt.Errorf("failed to load AGRINOVA_ENV_FILE '%s': %w", customEnvPath, err)
		}
		return nil
	}

	if isProductionRuntime() {
		if err := godotenv.Load(productionBackendEnvPath); err != nil {
			return fmt.Errorf("production env file is required at '%s': %w", productionBackendEnvPath, err)
		}
		return nil
	}

	_ = godotenv.Load()
	return nil
}

func isProductionRuntime() bool {
	productionEnvKeys := []string{
		"APP_ENV",
		"ENVIRONMENT",
		"ENV",
		"GO_ENV",
		"NODE_ENV",
	}

	for _, key := range productionEnvKeys {
		if strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "production") {
			return true
		}
	}

	return strings.EqualFold(strings.TrimSpace(os.Getenv("GIN_MODE")), "release")
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "agrinova_go")
	viper.SetDefault("database.ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.gin_mode", "release")
	viper.SetDefault("server.graphql_endpoint", "/graphql")
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)

	// Security defaults
	viper.SetDefault("security.rate_limit_enabled", true)
	viper.SetDefault("security.rate_limit_requests_per_minute", 100)
	viper.SetDefault("security.rate_limit_burst", 10)
}

// validateConfig validates the loaded configuration.
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Port <= 0 || config.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if config.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	return nil
}

// GetConfigString returns a string configuration value.
func GetConfigString(key string) string {
	return viper.GetString(key)
}

// GetConfigInt returns an integer configuration value.
func GetConfigInt(key string) int {
	return viper.GetInt(key)
}
