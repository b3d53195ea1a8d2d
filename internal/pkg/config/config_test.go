package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"AUTH_ISSUER_URL": "https://project.supabase.co/",
		"POSTGRES_URL":    "postgres://localhost/identity",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://project.supabase.co", cfg.Auth.IssuerURL)
	assert.Equal(t, "https://project.supabase.co/auth/v1/jwks", cfg.Auth.JWKSURL)
	assert.Equal(t, "authenticated", cfg.Auth.Audience)
	assert.Equal(t, []string{"RS256", "ES256"}, cfg.Auth.Algorithms)
	assert.Equal(t, 30*time.Second, cfg.Auth.Leeway)
	assert.Equal(t, time.Hour, cfg.Auth.KeyTTL)
	assert.Equal(t, "access_token", cfg.Auth.CookieName)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Redis.AuthzTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DedupTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 4, cfg.Security.Workers)
	assert.Equal(t, 3, cfg.RetryPolicy().Attempts)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFrom_ExplicitJWKSURLWins(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"AUTH_ISSUER_URL": "https://issuer.example",
		"AUTH_JWKS_URL":   "https://keys.example/jwks.json",
		"POSTGRES_URL":    "postgres://localhost/identity",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://keys.example/jwks.json", cfg.Auth.JWKSURL)
}

func TestLoadFrom_SharedSecretSelectsHS256(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"AUTH_JWT_SECRET": "s3cret",
		"STORE_DRIVER":    "mongo",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"HS256"}, cfg.Auth.Algorithms)
	assert.Equal(t, "identity", cfg.Store.MongoDatabase)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing postgres url",
			env:  map[string]string{"AUTH_ISSUER_URL": "https://issuer.example"},
			want: "POSTGRES_URL",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"AUTH_ISSUER_URL": "https://issuer.example", "STORE_DRIVER": "sqlite"},
			want: "STORE_DRIVER",
		},
		{
			name: "no key source",
			env:  map[string]string{"POSTGRES_URL": "postgres://localhost/identity"},
			want: "AUTH_ISSUER_URL",
		},
		{
			name: "bad duration",
			env:  map[string]string{"POSTGRES_URL": "postgres://x", "AUTH_ISSUER_URL": "https://i", "AUTH_LEEWAY": "soon"},
			want: "AUTH_LEEWAY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
