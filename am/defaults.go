package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "dms.db")

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 60)

	// Auth defaults
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.access_token_expiry", "168h") // 7 days
	v.SetDefault("auth.login_rate_per_minute", 30)

	// Storage defaults
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.max_upload_mb", 32)

	// Ingestion defaults
	v.SetDefault("ingestion.process_delay", "1s")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("auth.secret_key", "DMS_AUTH_SECRET_KEY", "DMS_SECRET_KEY")
	v.BindEnv("database.path", "DMS_DATABASE_PATH", "DMS_DATABASE_URL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "dms.db"
	}
	return c.Database.Path
}

// GetServerPort returns server.port, falling back to DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Storage: {UploadDir: %s}, Ingestion: {ProcessDelay: %s}}",
		c.Database.Path, c.Server.Port, c.Storage.UploadDir, c.Ingestion.ProcessDelay)
}
