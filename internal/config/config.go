package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Prefix          string `yaml:"prefix"`
}

type Config struct {
	Port           string        `yaml:"port"`
	DBDriver       string        `yaml:"db_driver"`
	DBDSN          string        `yaml:"db_dsn"`
	Secret         string        `yaml:"secret"`
	ImageDir       string        `yaml:"image_dir"`
	PageSize       int           `yaml:"page_size"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	BcryptCost     int           `yaml:"bcrypt_cost"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	LoginRateLimit int           `yaml:"login_rate_limit"`
	Storage        StorageConfig `yaml:"storage"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:           "8080",
		DBDriver:       "sqlite3",
		DBDSN:          "tagbox.sqlite3",
		ImageDir:       "images",
		PageSize:       12,
		SessionTTL:     24 * time.Hour,
		BcryptCost:     12,
		SweepInterval:  5 * time.Minute,
		LoginRateLimit: 20,
		Storage: StorageConfig{
			Backend: "fs",
			Region:  "auto",
		},
	}
}

// Load reads filename on top of Default, then applies .env and
// environment overrides.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv loads an optional .env file and overrides fields from TAGBOX_*
// variables. PORT wins over TAGBOX_PORT.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	setString(&c.Port, "TAGBOX_PORT")
	setString(&c.Port, "PORT")
	setString(&c.DBDriver, "TAGBOX_DB_DRIVER")
	setString(&c.DBDSN, "TAGBOX_DB_DSN")
	setString(&c.Secret, "TAGBOX_SECRET")
	setString(&c.ImageDir, "TAGBOX_IMAGE_DIR")
	setString(&c.Storage.Backend, "TAGBOX_STORAGE_BACKEND")
	setString(&c.Storage.Bucket, "TAGBOX_S3_BUCKET")
	setString(&c.Storage.Endpoint, "TAGBOX_S3_ENDPOINT")
	setString(&c.Storage.Region, "TAGBOX_S3_REGION")
	setString(&c.Storage.AccessKeyID, "TAGBOX_S3_ACCESS_KEY_ID")
	setString(&c.Storage.AccessKeySecret, "TAGBOX_S3_ACCESS_KEY_SECRET")
	setString(&c.Storage.Prefix, "TAGBOX_S3_PREFIX")

	if err := setInt(&c.PageSize, "TAGBOX_PAGE_SIZE"); err != nil {
		return err
	}
	if err := setInt(&c.BcryptCost, "TAGBOX_BCRYPT_COST"); err != nil {
		return err
	}
	if err := setInt(&c.LoginRateLimit, "TAGBOX_LOGIN_RATE_LIMIT"); err != nil {
		return err
	}
	if err := setDuration(&c.SessionTTL, "TAGBOX_SESSION_TTL"); err != nil {
		return err
	}
	return setDuration(&c.SweepInterval, "TAGBOX_SWEEP_INTERVAL")
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("db_dsn is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative, got %s", c.SweepInterval)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	switch c.Storage.Backend {
	case "fs":
		if c.ImageDir == "" {
			return errors.New("image_dir is required for the fs storage backend")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
