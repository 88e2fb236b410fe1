package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds settings for the bookkeeping core.
type Config struct {
	Port string

	// Store
	DBPath string

	// Backups
	BackupDir        string
	BackupMaxAgeDays int

	// Staleness detection: the connection manager stats the store file
	// every Nth handle access and reconnects when the mtime diverged.
	StalenessCheckEvery int

	// Local API auth
	AppKey    string
	JWTSecret string
}

// fileConfig mirrors the optional sitebooks.yaml overlay. Environment
// variables win over file values.
type fileConfig struct {
	Port                string `yaml:"port"`
	DBPath              string `yaml:"db_path"`
	BackupDir           string `yaml:"backup_dir"`
	BackupMaxAgeDays    int    `yaml:"backup_max_age_days"`
	StalenessCheckEvery int    `yaml:"staleness_check_every"`
}

// Load reads settings from sitebooks.yaml (if present) and the
// environment (optionally via .env).
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8723"),
		DBPath:              getEnv("DB_PATH", "./data/sitebooks.db"),
		BackupDir:           getEnv("BACKUP_DIR", "./data/backups"),
		BackupMaxAgeDays:    getEnvInt("BACKUP_MAX_AGE_DAYS", 90),
		StalenessCheckEvery: getEnvInt("STALENESS_CHECK_EVERY", 16),
		AppKey:              getEnv("APP_KEY", "dev-app-key"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
	}

	path := getEnv("CONFIG_FILE", "./sitebooks.yaml")
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}

	if cfg.StalenessCheckEvery < 1 {
		cfg.StalenessCheckEvery = 1
	}
	return cfg, nil
}

// applyFile overlays values from a YAML file for settings that were not
// set through the environment. A missing file is not an error.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if os.Getenv("PORT") == "" && fc.Port != "" {
		c.Port = fc.Port
	}
	if os.Getenv("DB_PATH") == "" && fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if os.Getenv("BACKUP_DIR") == "" && fc.BackupDir != "" {
		c.BackupDir = fc.BackupDir
	}
	if os.Getenv("BACKUP_MAX_AGE_DAYS") == "" && fc.BackupMaxAgeDays > 0 {
		c.BackupMaxAgeDays = fc.BackupMaxAgeDays
	}
	if os.Getenv("STALENESS_CHECK_EVERY") == "" && fc.StalenessCheckEvery > 0 {
		c.StalenessCheckEvery = fc.StalenessCheckEvery
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
