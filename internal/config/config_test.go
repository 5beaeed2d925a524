package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
Env: dev
Server:
  Port: "8080"
  AllowedOrigins:
    - https://app.eegility.org
Database:
  Host: db.internal
  User: eeg
  Password: secret
  Name: eeg
Auth:
  Mode: jwt
  JWTSecret: file-secret
Redis:
  Addr: redis:6379
  TTL: 1m
Sharing:
  SweepInterval: 30s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewConfigFromFile(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Env != "dev" || cfg.Server.Port != "8080" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.eegility.org" {
		t.Errorf("allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Errorf("database defaults not applied: %+v", cfg.Database)
	}
	if cfg.Redis.TTL != time.Minute || cfg.Sharing.SweepInterval != 30*time.Second {
		t.Errorf("durations not parsed: redis %v, sweep %v", cfg.Redis.TTL, cfg.Sharing.SweepInterval)
	}
	if cfg.Sharing.DownloadURLTTL != 15*time.Minute {
		t.Errorf("download ttl default %v", cfg.Sharing.DownloadURLTTL)
	}
	if cfg.RabbitMQ.URI != "" || cfg.RabbitMQ.Exchange != "eegility.events" {
		t.Errorf("rabbitmq defaults %+v", cfg.RabbitMQ)
	}
	if cfg.S3.Region != "ru-central1" {
		t.Errorf("s3 region default %q", cfg.S3.Region)
	}
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("EEG_DATABASE_HOST", "override.internal")
	t.Setenv("EEG_AUTH_JWTSECRET", "env-secret")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := NewConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Host != "override.internal" {
		t.Errorf("host %q", cfg.Database.Host)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt secret %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port %q", cfg.Server.Port)
	}
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{"missing database host", [2]string{"Host: db.internal", ""}, "database configuration is incomplete"},
		{"missing jwt secret", [2]string{"JWTSecret: file-secret", ""}, "JWTSecret"},
		{"grpc without address", [2]string{"Mode: jwt", "Mode: grpc"}, "GRPCAddr"},
		{"unknown auth mode", [2]string{"Mode: jwt", "Mode: saml"}, "unknown auth mode"},
		{"non-positive sweep", [2]string{"SweepInterval: 30s", "SweepInterval: 0s"}, "SweepInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(sampleConfig, tt.replace[0], tt.replace[1], 1)
			_, err := NewConfig(writeConfig(t, content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	if got := db.GetDSN(); got != "host=h port=5432 user=u password=p dbname=n sslmode=disable" {
		t.Errorf("dsn %q", got)
	}
	if got := db.GetURL(); got != "postgres://u:p@h:5432/n?sslmode=disable" {
		t.Errorf("url %q", got)
	}
}
