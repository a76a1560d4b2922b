package util

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigConstants(t *testing.T) {
	if Name != "fedinbox" {
		t.Errorf("Expected Name 'fedinbox', got '%s'", Name)
	}
	if ConfigFileName != "config.yaml" {
		t.Errorf("Expected ConfigFileName 'config.yaml', got '%s'", ConfigFileName)
	}
}

func TestReadConfWithYaml(t *testing.T) {
	yamlContent := `
conf:
  host: 127.0.0.1
  httpPort: 8080
  localDomain: example.com
  markerBackend: redis
  redisUrl: redis://localhost:6379/0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	config, err := ReadConfFrom(path)
	if err != nil {
		t.Fatalf("ReadConfFrom failed: %v", err)
	}

	if config.Conf.Host != "127.0.0.1" {
		t.Errorf("Expected Host '127.0.0.1', got '%s'", config.Conf.Host)
	}
	if config.Conf.HttpPort != 8080 {
		t.Errorf("Expected HttpPort 8080, got %d", config.Conf.HttpPort)
	}
	if config.Conf.LocalDomain != "example.com" {
		t.Errorf("Expected LocalDomain 'example.com', got '%s'", config.Conf.LocalDomain)
	}
	if config.Conf.MarkerBackend != "redis" {
		t.Errorf("Expected MarkerBackend 'redis', got '%s'", config.Conf.MarkerBackend)
	}
	// not in the file, so the embedded default applies
	if config.Conf.MaxBodyBytes != 1048576 {
		t.Errorf("Expected default MaxBodyBytes 1048576, got %d", config.Conf.MaxBodyBytes)
	}
}

func TestReadConfMissingFileUsesDefaults(t *testing.T) {
	config, err := ReadConfFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("ReadConfFrom failed: %v", err)
	}
	if config.Conf.LocalDomain != "localhost" {
		t.Errorf("Expected LocalDomain 'localhost', got '%s'", config.Conf.LocalDomain)
	}
	if config.Conf.MarkerBackend != "sqlite" {
		t.Errorf("Expected MarkerBackend 'sqlite', got '%s'", config.Conf.MarkerBackend)
	}
}

func TestReadConfWithEnvOverrides(t *testing.T) {
	t.Setenv("FEDINBOX_LOCAL_DOMAIN", "env.example")
	t.Setenv("FEDINBOX_HTTPPORT", "7777")
	t.Setenv("FEDINBOX_ALTERNATE_DOMAINS", "a.example,b.example")
	t.Setenv("FEDINBOX_AUTHORIZED_FETCH", "true")

	config, err := ReadConfFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("ReadConfFrom failed: %v", err)
	}
	if config.Conf.LocalDomain != "env.example" {
		t.Errorf("Expected LocalDomain 'env.example', got '%s'", config.Conf.LocalDomain)
	}
	if config.Conf.HttpPort != 7777 {
		t.Errorf("Expected HttpPort 7777, got %d", config.Conf.HttpPort)
	}
	if len(config.Conf.AlternateDomains) != 2 {
		t.Errorf("Expected 2 alternate domains, got %v", config.Conf.AlternateDomains)
	}
	if !config.Conf.AuthorizedFetch {
		t.Error("Expected AuthorizedFetch to be true")
	}
}

func TestReadConfInvalidEnvPort(t *testing.T) {
	t.Setenv("FEDINBOX_HTTPPORT", "not-a-port")
	if _, err := ReadConfFrom(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for invalid FEDINBOX_HTTPPORT")
	}
}

func TestWebHost(t *testing.T) {
	c := &AppConfig{}
	c.Conf.LocalDomain = "example.com"
	if c.WebHost() != "example.com" {
		t.Errorf("Expected WebHost 'example.com', got '%s'", c.WebHost())
	}
	c.Conf.WebDomain = "social.example.com"
	if c.WebHost() != "social.example.com" {
		t.Errorf("Expected WebHost 'social.example.com', got '%s'", c.WebHost())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}
