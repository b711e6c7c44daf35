package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Security    SecurityConfig    `json:"security"`
	Marketplace MarketplaceConfig `json:"marketplace"`
	Storage     StorageConfig     `json:"storage"`
	Elastic     ElasticConfig     `json:"elastic"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// SecurityConfig holds the JWT secret and the bootstrap administrator.
type SecurityConfig struct {
	JWTSecret      string `json:"jwt_secret"`
	AdminPrincipal string `json:"admin_principal"`
}

// MarketplaceConfig tunes the ledger core.
type MarketplaceConfig struct {
	MaxBatchSize  int           `json:"max_batch_size"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// StorageConfig configures certificate object storage.
type StorageConfig struct {
	Enabled bool   `json:"enabled"`
	Bucket  string `json:"bucket"`
	Region  string `json:"region"`
}

// ElasticConfig configures the optional event search mirror.
type ElasticConfig struct {
	Enabled   bool     `json:"enabled"`
	Addresses []string `json:"addresses"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "krishimitra_registry",
			SSLMode: "disable",
		},
		Security: SecurityConfig{
			AdminPrincipal: "registry-admin",
		},
		Marketplace: MarketplaceConfig{
			MaxBatchSize:  100,
			SweepInterval: 10 * time.Minute,
		},
		Storage: StorageConfig{
			Bucket: "krishimitra-certificates",
			Region: "ap-south-1",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if admin := os.Getenv("ADMIN_PRINCIPAL"); admin != "" {
		config.Security.AdminPrincipal = admin
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
		config.Storage.Enabled = true
	}
	if region := os.Getenv("STORAGE_REGION"); region != "" {
		config.Storage.Region = region
	}
	if addrs := os.Getenv("ELASTIC_ADDRESSES"); addrs != "" {
		config.Elastic.Addresses = strings.Split(addrs, ",")
		config.Elastic.Enabled = true
	}
	if size := os.Getenv("MAX_BATCH_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.Marketplace.MaxBatchSize = n
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
