package am

import "github.com/teranos/DMS/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 means "use default" only before defaults are applied
	if c.Server.Port <= 0 || c.Server.Port > MaxServerPort {
		return errors.Newf("server.port must be between 1 and %d, got %d", MaxServerPort, c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		return errors.Newf("server.read_timeout_seconds must be >= 0, got %d", c.Server.ReadTimeoutSeconds)
	}
	if c.Server.WriteTimeoutSeconds < 0 {
		return errors.Newf("server.write_timeout_seconds must be >= 0, got %d", c.Server.WriteTimeoutSeconds)
	}

	if c.Auth.AccessTokenExpiry <= 0 {
		return errors.Newf("auth.access_token_expiry must be > 0, got %s", c.Auth.AccessTokenExpiry)
	}
	if c.Auth.LoginRatePerMinute < 0 {
		return errors.Newf("auth.login_rate_per_minute must be >= 0, got %d", c.Auth.LoginRatePerMinute)
	}

	if c.Storage.UploadDir == "" {
		return errors.New("storage.upload_dir cannot be empty")
	}
	if c.Storage.MaxUploadMB <= 0 {
		return errors.Newf("storage.max_upload_mb must be > 0, got %d", c.Storage.MaxUploadMB)
	}

	// Zero delay is valid (no simulated work)
	if c.Ingestion.ProcessDelay < 0 {
		return errors.Newf("ingestion.process_delay must be >= 0, got %s", c.Ingestion.ProcessDelay)
	}

	return nil
}
