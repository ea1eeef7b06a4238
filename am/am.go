// Package am holds DMS configuration ("I am"): the settings a DMS process
// runs with, loaded by viper from TOML files and DMS_* environment variables.
package am

import "time"

// Config represents the DMS configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Port                int      `mapstructure:"port"`
	AllowedOrigins      []string `mapstructure:"allowed_origins"`       // CORS origins, credentials allowed
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds"`  // 0 = no timeout
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"` // 0 = no timeout
}

// AuthConfig configures token issuance and login throttling
type AuthConfig struct {
	SecretKey          string        `mapstructure:"secret_key"`            // HS256 key; empty = random per process
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`   // e.g. "168h"
	LoginRatePerMinute int           `mapstructure:"login_rate_per_minute"` // per client IP; 0 = unlimited
}

// StorageConfig configures where uploaded document files live
type StorageConfig struct {
	UploadDir   string `mapstructure:"upload_dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
}

// IngestionConfig configures the ingestion sweep
type IngestionConfig struct {
	ProcessDelay time.Duration `mapstructure:"process_delay"` // simulated per-document work
}

// Server port constants
const (
	DefaultServerPort = 8000
	MaxServerPort     = 65535
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) << 20
}
