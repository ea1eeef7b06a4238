package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and cwd at fresh temp dirs so user/project config cannot leak in
func isolate(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "dms.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 168*time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 30, cfg.Auth.LoginRatePerMinute)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
	assert.Equal(t, time.Second, cfg.Ingestion.ProcessDelay)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolate(t)
	writeFile(t, "am.toml", `
[ingestion]
process_delay = "250ms"

[server]
port = 9001
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Ingestion.ProcessDelay)
	assert.Equal(t, 9001, cfg.Server.Port)
	// Siblings of a partially specified section keep their defaults
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "dms.db", cfg.Database.Path)
}

func TestLoad_FoundInParentDirectory(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "am.toml"), "[database]\npath = \"parent.db\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "parent.db", cfg.Database.Path)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".dms", "am.toml"), `
[database]
path = "user.db"

[storage]
upload_dir = "user-uploads"
`)
	writeFile(t, "am.toml", "[database]\npath = \"project.db\"\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "project.db", cfg.Database.Path, "project config wins over user config")
	assert.Equal(t, "user-uploads", cfg.Storage.UploadDir)

	t.Setenv("DMS_DATABASE_PATH", "env.db")
	Reset()
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path, "env vars win over every file")
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	isolate(t)
	writeFile(t, "am.toml", "[database]\npath = \"project.db\"\n")
	explicit := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, explicit, "[database]\npath = \"explicit.db\"\n")

	SetConfigFile(explicit)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit.db", cfg.Database.Path)
	assert.Equal(t, explicit, ActiveConfigFile())
}

func TestLoad_SecretKeyEnvAlias(t *testing.T) {
	isolate(t)
	t.Setenv("DMS_SECRET_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.SecretKey)
}

func TestLoad_Cached(t *testing.T) {
	isolate(t)
	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dms.toml")
	writeFile(t, path, "[auth]\naccess_token_expiry = \"30m\"\nlogin_rate_per_minute = 0\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 0, cfg.Auth.LoginRatePerMinute)
	assert.Equal(t, "dms.db", cfg.Database.Path)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Database:  DatabaseConfig{Path: "dms.db"},
		Server:    ServerConfig{Port: 8000},
		Auth:      AuthConfig{AccessTokenExpiry: time.Hour, LoginRatePerMinute: 30},
		Storage:   StorageConfig{UploadDir: "uploads", MaxUploadMB: 32},
		Ingestion: IngestionConfig{ProcessDelay: time.Second},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero delay is valid", mutate: func(c *Config) { c.Ingestion.ProcessDelay = 0 }},
		{name: "zero rate is valid (unlimited)", mutate: func(c *Config) { c.Auth.LoginRatePerMinute = 0 }},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "negative read timeout", mutate: func(c *Config) { c.Server.ReadTimeoutSeconds = -1 }, wantErr: "read_timeout"},
		{name: "zero token expiry", mutate: func(c *Config) { c.Auth.AccessTokenExpiry = 0 }, wantErr: "access_token_expiry"},
		{name: "negative rate", mutate: func(c *Config) { c.Auth.LoginRatePerMinute = -1 }, wantErr: "login_rate_per_minute"},
		{name: "empty upload dir", mutate: func(c *Config) { c.Storage.UploadDir = "" }, wantErr: "upload_dir"},
		{name: "zero upload size", mutate: func(c *Config) { c.Storage.MaxUploadMB = 0 }, wantErr: "max_upload_mb"},
		{name: "negative delay", mutate: func(c *Config) { c.Ingestion.ProcessDelay = -time.Second }, wantErr: "process_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigAccessorsFallBack(t *testing.T) {
	var cfg Config
	assert.Equal(t, "dms.db", cfg.GetDatabasePath())
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.GetServerAllowedOrigins())
}
