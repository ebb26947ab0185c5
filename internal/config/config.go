package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeSSH   = "ssh"
	ModeLocal = "local"
)

// Environment variables holding secrets that never go into the yaml file.
const (
	EnvSSHPassword   = "SAMPLER_SSH_PASSWORD"
	EnvSSHPassphrase = "SAMPLER_SSH_PASSPHRASE"
	EnvNATSURL       = "SAMPLER_NATS_URL"
)

type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	KeyFile    string `yaml:"key_file"`
	KnownHosts string `yaml:"known_hosts"`
	Mode       string `yaml:"mode"`
	// Root is the filesystem prefix read in local mode.
	Root string `yaml:"root"`

	SampleIntervalSec int    `yaml:"sample_interval_sec"`
	ReadTimeoutSec    int    `yaml:"read_timeout_sec"`
	StaleAfterCycles  uint64 `yaml:"stale_after_cycles"`

	LogDir        string `yaml:"log_dir"`
	RetentionDays int    `yaml:"retention_days"`
	EnvFile       string `yaml:"env_file"`

	History History `yaml:"history"`
	NATS    NATS    `yaml:"nats"`
	Health  Health  `yaml:"health"`

	Secrets Secrets `yaml:"-"`
}

type History struct {
	DBPath string `yaml:"db_path"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Health struct {
	Addr string `yaml:"addr"`
}

type Secrets struct {
	SSHPassword   string
	SSHPassphrase string
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Secrets may supply nats.url, which decides the subject default.
	if err := cfg.LoadSecrets(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadSecrets reads the env file, if any, then picks secrets from the
// environment. Variables already set in the environment win over the file.
func (c *Config) LoadSecrets() error {
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			log.Printf("env file %s not found, using environment variables", c.EnvFile)
		}
	}

	c.Secrets.SSHPassword = os.Getenv(EnvSSHPassword)
	c.Secrets.SSHPassphrase = os.Getenv(EnvSSHPassphrase)
	if url := os.Getenv(EnvNATSURL); url != "" {
		c.NATS.URL = url
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeSSH
	}
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.Root == "" {
		c.Root = "/"
	}
	if c.SampleIntervalSec <= 0 {
		c.SampleIntervalSec = 60
	}
	if c.ReadTimeoutSec <= 0 {
		c.ReadTimeoutSec = 10
	}
	if c.LogDir == "" {
		c.LogDir = "/var/log/kstat-sampler"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		c.NATS.Subject = "kstat.snapshots"
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeSSH:
		if c.Host == "" {
			return fmt.Errorf("host is required in ssh mode")
		}
		if c.User == "" {
			return fmt.Errorf("user is required in ssh mode")
		}
		if c.KeyFile == "" && c.Secrets.SSHPassword == "" {
			return fmt.Errorf("key_file or %s is required in ssh mode", EnvSSHPassword)
		}
	case ModeLocal:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeSSH, ModeLocal, c.Mode)
	}
	if c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.SampleIntervalSec <= 0 {
		return fmt.Errorf("sample_interval_sec must be positive")
	}
	if c.ReadTimeoutSec <= 0 {
		return fmt.Errorf("read_timeout_sec must be positive")
	}
	if c.ReadTimeoutSec >= c.SampleIntervalSec {
		return fmt.Errorf("read_timeout_sec must be shorter than sample_interval_sec")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive")
	}
	return nil
}

// HostName is the label snapshots carry for the monitored host.
func (c *Config) HostName() string {
	if c.Mode == ModeLocal && c.Host == "" {
		if h, err := os.Hostname(); err == nil {
			return h
		}
		return "localhost"
	}
	return c.Host
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSec) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

func (c *Config) DialTimeout() time.Duration {
	return c.ReadTimeout()
}
