package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"PORT", "GIN_MODE", "SESSION_SECRET", "AUTH_CREDENTIALS", "BCRYPT_COST",
		"SECRETS_VISIBILITY", "STORE_DRIVER", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"FACEBOOK_APP_ID", "FACEBOOK_APP_SECRET", "PUBLIC_BASE_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, CredentialsBcrypt, cfg.Credentials)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, VisibilityMembers, cfg.SecretsVisibility)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "userDB", cfg.MongoDatabase)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.FacebookEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_CREDENTIALS", "PLAINTEXT")
	t.Setenv("BCRYPT_COST", "not-a-number")
	t.Setenv("PUBLIC_BASE_URL", "https://secrets.example.com/")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("GIN_MODE", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CredentialsPlaintext, cfg.Credentials)
	assert.Equal(t, 10, cfg.BcryptCost, "invalid ints fall back to the default")
	assert.Equal(t, "https://secrets.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.GoogleEnabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GinMode:           "debug",
			Credentials:       CredentialsBcrypt,
			BcryptCost:        10,
			SecretsVisibility: VisibilityMembers,
			StoreDriver:       StoreMemory,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown credentials", mutate: func(c *Config) { c.Credentials = "md5" }, wantErr: true},
		{name: "unknown visibility", mutate: func(c *Config) { c.SecretsVisibility = "everyone" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "cassandra" }, wantErr: true},
		{name: "cost too low", mutate: func(c *Config) { c.BcryptCost = 2 }, wantErr: true},
		{name: "google half configured", mutate: func(c *Config) { c.GoogleClientID = "id" }, wantErr: true},
		{name: "facebook half configured", mutate: func(c *Config) { c.FacebookAppSecret = "s" }, wantErr: true},
		{name: "release without secret", mutate: func(c *Config) {
			c.GinMode = "release"
			c.StoreDriver = StoreMongo
		}, wantErr: true},
		{name: "release with plaintext", mutate: func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "s"
			c.StoreDriver = StoreMongo
			c.Credentials = CredentialsPlaintext
		}, wantErr: true},
		{name: "release with memory store", mutate: func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "s"
		}, wantErr: true},
		{name: "release ok", mutate: func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "s"
			c.StoreDriver = StorePostgres
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: "http://a.test, http://b.test,,"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())
}
