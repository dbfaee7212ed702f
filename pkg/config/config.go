package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers understood by storage.New.
const (
	DriverLocal = "local"
	DriverMinio = "minio"
	DriverS3    = "s3"
)

// Config holds the application configuration.
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	DataDir    string `env:"DATA_DIR" envDefault:"data"`
	DBFile     string `env:"DB_FILE" envDefault:"filedrop.db"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`
	LogCompress   bool   `env:"LOG_COMPRESS" envDefault:"true"`

	StorageDriver    string `env:"STORAGE_DRIVER" envDefault:"local"`
	StorageBucket    string `env:"STORAGE_BUCKET" envDefault:"uploads"`
	StoragePublicURL string `env:"STORAGE_PUBLIC_URL"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3UseSSL         bool   `env:"S3_USE_SSL" envDefault:"true"`

	HostedAPIURL    string        `env:"HOSTED_API_URL" envDefault:"https://api.gofile.io"`
	HostedUploadURL string        `env:"HOSTED_UPLOAD_URL" envDefault:"https://upload.gofile.io/uploadfile"`
	HostedAPIToken  string        `env:"HOSTED_API_TOKEN"`
	HostedTimeout   time.Duration `env:"HOSTED_TIMEOUT" envDefault:"60s"`

	MaxObjectStoreSize int64         `env:"MAX_OBJECT_STORE_SIZE" envDefault:"52428800"`
	MaxHostedSize      int64         `env:"MAX_HOSTED_SIZE" envDefault:"5368709120"`
	TemporaryTTL       time.Duration `env:"TEMPORARY_TTL" envDefault:"24h"`

	CleanupSchedule      string        `env:"CLEANUP_SCHEDULE" envDefault:"0 * * * *"`
	CleanupTimezone      string        `env:"CLEANUP_TIMEZONE" envDefault:"UTC"`
	CleanupRunOnStart    bool          `env:"CLEANUP_RUN_ON_START" envDefault:"false"`
	CleanupStartupDelay  time.Duration `env:"CLEANUP_STARTUP_DELAY" envDefault:"5s"`
	CleanupRetentionDays int           `env:"CLEANUP_RETENTION_DAYS" envDefault:"30"`
	CleanupCallTimeout   time.Duration `env:"CLEANUP_CALL_TIMEOUT" envDefault:"30s"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	CleanupLockTTL time.Duration `env:"CLEANUP_LOCK_TTL" envDefault:"10m"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// AppConfig is the global application configuration.
var AppConfig Config

// LoadConfig loads the configuration from an optional .env file and the environment.
func LoadConfig() error {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Validate checks the settings that cannot be caught by parsing alone.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageDriver) {
	case DriverLocal:
	case DriverMinio, DriverS3:
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET must be set for the %s driver", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	c.StorageDriver = strings.ToLower(c.StorageDriver)

	if c.MaxObjectStoreSize <= 0 || c.MaxHostedSize <= 0 {
		return fmt.Errorf("upload size ceilings must be positive")
	}
	if c.CleanupRetentionDays < 1 {
		return fmt.Errorf("CLEANUP_RETENTION_DAYS must be at least 1, got %d", c.CleanupRetentionDays)
	}
	if _, err := time.LoadLocation(c.CleanupTimezone); err != nil {
		return fmt.Errorf("invalid CLEANUP_TIMEZONE %q: %w", c.CleanupTimezone, err)
	}
	return nil
}

// DBPath returns the location of the sqlite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// BlobDir returns the root directory used by the local storage driver.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}
