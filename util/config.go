package util

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const Name = "fedinbox"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host                string
		HttpPort            int      `yaml:"httpPort"`
		LocalDomain         string   `yaml:"localDomain"`
		WebDomain           string   `yaml:"webDomain"`
		AlternateDomains    []string `yaml:"alternateDomains"`
		DatabasePath        string   `yaml:"databasePath"`
		MarkerBackend       string   `yaml:"markerBackend"`
		RedisURL            string   `yaml:"redisUrl"`
		FetchTimeoutSeconds int      `yaml:"fetchTimeoutSeconds"`
		MaxBodyBytes        int64    `yaml:"maxBodyBytes"`
		DeliveryWorkers     int      `yaml:"deliveryWorkers"`
		AuthorizedFetch     bool     `yaml:"authorizedFetch"`
		WithJournald        bool     `yaml:"withJournald"`
		WithPprof           bool     `yaml:"withPprof"`
		LogLevel            string   `yaml:"logLevel"`
	}
}

// FetchTimeout is the per-request ceiling for outbound fetches
func (c *AppConfig) FetchTimeout() time.Duration {
	if c.Conf.FetchTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Conf.FetchTimeoutSeconds) * time.Second
}

// WebHost is the host used in generated URLs
func (c *AppConfig) WebHost() string {
	if c.Conf.WebDomain != "" {
		return c.Conf.WebDomain
	}
	return c.Conf.LocalDomain
}

func ReadConf() (*AppConfig, error) {
	return ReadConfFrom(ResolveFilePath(ConfigFileName))
}

// ReadConfFrom reads the config file at path, falling back to the embedded
// defaults when it does not exist, and applies FEDINBOX_* overrides
func ReadConfFrom(configPath string) (*AppConfig, error) {
	c := &AppConfig{}

	buf, err := os.ReadFile(configPath)
	if err != nil {
		slog.Info("config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig
	}

	// defaults first so a partial file keeps sane values
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if err := applyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *AppConfig) error {
	if v := os.Getenv("FEDINBOX_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("FEDINBOX_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEDINBOX_HTTPPORT: %w", err)
		}
		c.Conf.HttpPort = port
	}
	if v := os.Getenv("FEDINBOX_LOCAL_DOMAIN"); v != "" {
		c.Conf.LocalDomain = v
	}
	if v := os.Getenv("FEDINBOX_WEB_DOMAIN"); v != "" {
		c.Conf.WebDomain = v
	}
	if v := os.Getenv("FEDINBOX_ALTERNATE_DOMAINS"); v != "" {
		c.Conf.AlternateDomains = strings.Split(v, ",")
	}
	if v := os.Getenv("FEDINBOX_DATABASE_PATH"); v != "" {
		c.Conf.DatabasePath = v
	}
	if v := os.Getenv("FEDINBOX_MARKER_BACKEND"); v != "" {
		c.Conf.MarkerBackend = v
	}
	if v := os.Getenv("FEDINBOX_REDIS_URL"); v != "" {
		c.Conf.RedisURL = v
	}
	if v := os.Getenv("FEDINBOX_FETCH_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEDINBOX_FETCH_TIMEOUT: %w", err)
		}
		c.Conf.FetchTimeoutSeconds = secs
	}
	if v := os.Getenv("FEDINBOX_LOG_LEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if os.Getenv("FEDINBOX_AUTHORIZED_FETCH") == "true" {
		c.Conf.AuthorizedFetch = true
	}
	if os.Getenv("FEDINBOX_WITH_JOURNALD") == "true" {
		c.Conf.WithJournald = true
	}
	if os.Getenv("FEDINBOX_WITH_PPROF") == "true" {
		c.Conf.WithPprof = true
	}
	return nil
}
