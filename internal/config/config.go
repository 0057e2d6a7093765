package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crestwave/acs/internal/cwmp"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Storage   StorageConfig
	CORS      CORSConfig
	CWMP      CWMPConfig
	Migration MigrationConfig
	SSH       SSHConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	AdminUsername string
	AdminPassword string
}

type StorageConfig struct {
	Path string
}

type CORSConfig struct {
	AllowedOrigins string
}

type CWMPConfig struct {
	// NamespaceRulesPath optionally points at a YAML file overriding the
	// built-in device-family namespace table.
	NamespaceRulesPath string
	// FirmwareBaseURL is the public prefix devices fetch firmware from.
	FirmwareBaseURL string
	// SchedulerSpec is the cron cadence for the periodic workflow sweep.
	SchedulerSpec string
}

type MigrationConfig struct {
	RequiredFirmware string
	PreconfigURL     string
	BackupMaxAge     time.Duration
}

type SSHConfig struct {
	Username string
	Password string
}

func Load() (*Config, error) {
	jwtExpiry, err := time.ParseDuration(envOrDefault("ACS_JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACS_JWT_EXPIRY: %w", err)
	}
	sessionTTL, err := time.ParseDuration(envOrDefault("ACS_SESSION_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACS_SESSION_TTL: %w", err)
	}
	backupMaxAge, err := time.ParseDuration(envOrDefault("ACS_MIGRATION_BACKUP_MAX_AGE", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACS_MIGRATION_BACKUP_MAX_AGE: %w", err)
	}
	redisDB, err := strconv.Atoi(envOrDefault("ACS_REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACS_REDIS_DB: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: envOrDefault("ACS_HOST", "0.0.0.0"),
			Port: envOrDefault("ACS_PORT", "7547"),
		},
		DB: DBConfig{
			Host:     envOrDefault("ACS_DB_HOST", "localhost"),
			Port:     envOrDefault("ACS_DB_PORT", "5432"),
			Name:     envOrDefault("ACS_DB_NAME", "acs"),
			User:     envOrDefault("ACS_DB_USER", "acs"),
			Password: envOrDefault("ACS_DB_PASSWORD", "acs"),
			SSLMode:  envOrDefault("ACS_DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:       envOrDefault("ACS_REDIS_ADDR", "localhost:6379"),
			Password:   envOrDefault("ACS_REDIS_PASSWORD", ""),
			DB:         redisDB,
			SessionTTL: sessionTTL,
		},
		Auth: AuthConfig{
			JWTSecret:     envOrDefault("ACS_JWT_SECRET", "change-me-in-production"),
			JWTExpiry:     jwtExpiry,
			AdminUsername: envOrDefault("ACS_ADMIN_USERNAME", "admin"),
			AdminPassword: envOrDefault("ACS_ADMIN_PASSWORD", ""),
		},
		Storage: StorageConfig{
			Path: envOrDefault("ACS_STORAGE_PATH", "/data/firmware"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envOrDefault("ACS_CORS_ORIGINS", "http://localhost:3000"),
		},
		CWMP: CWMPConfig{
			NamespaceRulesPath: envOrDefault("ACS_NAMESPACE_RULES", ""),
			FirmwareBaseURL:    envOrDefault("ACS_FIRMWARE_BASE_URL", "http://localhost:7547/files/firmware"),
			SchedulerSpec:      envOrDefault("ACS_SCHEDULER_SPEC", "@every 15m"),
		},
		Migration: MigrationConfig{
			RequiredFirmware: envOrDefault("ACS_MIGRATION_FIRMWARE", ""),
			PreconfigURL:     envOrDefault("ACS_MIGRATION_PRECONFIG_URL", ""),
			BackupMaxAge:     backupMaxAge,
		},
		SSH: SSHConfig{
			Username: envOrDefault("ACS_SSH_USER", "support"),
			Password: envOrDefault("ACS_SSH_PASSWORD", ""),
		},
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// NamespaceRules loads the device-family namespace table, falling back to
// the built-in defaults when no override file is configured.
func (c *Config) NamespaceRules() ([]cwmp.NamespaceRule, error) {
	if c.CWMP.NamespaceRulesPath == "" {
		return cwmp.DefaultNamespaceRules(), nil
	}
	data, err := os.ReadFile(c.CWMP.NamespaceRulesPath)
	if err != nil {
		return nil, fmt.Errorf("read namespace rules: %w", err)
	}
	var rules []cwmp.NamespaceRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse namespace rules: %w", err)
	}
	return rules, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
