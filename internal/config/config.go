package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"aim-chat/securecore/internal/crypto"

	"gopkg.in/yaml.v3"
)

const (
	EnvSuite         = "SECURECORE_SUITE"
	EnvLogLevel      = "SECURECORE_LOG_LEVEL"
	EnvLogFormat     = "SECURECORE_LOG_FORMAT"
	EnvMaxExpiration = "SECURECORE_MAX_EXPIRATION"
)

var ErrInvalidConfig = errors.New("invalid securecore config")

// Config is the resolved runtime configuration.
type Config struct {
	Suite               crypto.Suite
	MaxExpiration       time.Duration
	ResumeCheckInterval time.Duration
	FailureRPS          float64
	FailureBurst        int
	FailureIdleTTL      time.Duration
	LogLevel            string
	LogFormat           string
}

// FileConfig mirrors the YAML layout. Zero values leave defaults untouched.
type FileConfig struct {
	Crypto struct {
		Suite string `yaml:"suite"`
	} `yaml:"crypto"`
	Expiry struct {
		MaxExpiration       time.Duration `yaml:"maxExpiration"`
		ResumeCheckInterval time.Duration `yaml:"resumeCheckInterval"`
	} `yaml:"expiry"`
	Decrypt struct {
		FailureRPS     float64       `yaml:"failureRPS"`
		FailureBurst   int           `yaml:"failureBurst"`
		FailureIdleTTL time.Duration `yaml:"failureIdleTTL"`
	} `yaml:"decrypt"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func Default() Config {
	return Config{
		Suite:               crypto.DefaultSuite,
		MaxExpiration:       7 * 24 * time.Hour,
		ResumeCheckInterval: time.Second,
		FailureRPS:          0.2,
		FailureBurst:        5,
		FailureIdleTTL:      10 * time.Minute,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadFromPath reads configPath, or the first default location that exists
// when configPath is empty, then applies environment overrides. A missing
// default file is not an error; a missing explicit file is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/securecore.yaml", "securecore.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
		if err := Merge(&cfg, parsed); err != nil {
			return Config{}, err
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func Merge(dst *Config, src FileConfig) error {
	if src.Crypto.Suite != "" {
		suite, err := crypto.ParseSuite(src.Crypto.Suite)
		if err != nil {
			return fmt.Errorf("%w: crypto.suite: %v", ErrInvalidConfig, err)
		}
		dst.Suite = suite
	}
	if src.Expiry.MaxExpiration != 0 {
		dst.MaxExpiration = src.Expiry.MaxExpiration
	}
	if src.Expiry.ResumeCheckInterval != 0 {
		dst.ResumeCheckInterval = src.Expiry.ResumeCheckInterval
	}
	if src.Decrypt.FailureRPS != 0 {
		dst.FailureRPS = src.Decrypt.FailureRPS
	}
	if src.Decrypt.FailureBurst != 0 {
		dst.FailureBurst = src.Decrypt.FailureBurst
	}
	if src.Decrypt.FailureIdleTTL != 0 {
		dst.FailureIdleTTL = src.Decrypt.FailureIdleTTL
	}
	if src.Logging.Level != "" {
		dst.LogLevel = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.LogFormat = src.Logging.Format
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv(EnvSuite)); raw != "" {
		suite, err := crypto.ParseSuite(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvSuite, err)
		}
		cfg.Suite = suite
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogFormat)); raw != "" {
		cfg.LogFormat = raw
	}
	if raw := strings.TrimSpace(os.Getenv(EnvMaxExpiration)); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvMaxExpiration, err)
		}
		cfg.MaxExpiration = d
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case !c.Suite.Valid():
		return fmt.Errorf("%w: unknown suite %d", ErrInvalidConfig, c.Suite)
	case c.MaxExpiration < time.Minute:
		return fmt.Errorf("%w: maxExpiration must be at least 1m", ErrInvalidConfig)
	case c.ResumeCheckInterval <= 0:
		return fmt.Errorf("%w: resumeCheckInterval must be positive", ErrInvalidConfig)
	case c.FailureRPS < 0 || c.FailureBurst < 0 || c.FailureIdleTTL < 0:
		return fmt.Errorf("%w: decrypt limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// MaxExpirationMinutes is the largest ExpirationMinutes a sender may request.
func (c Config) MaxExpirationMinutes() int {
	return int(c.MaxExpiration / time.Minute)
}

// parseDuration accepts Go durations and bare minute counts.
func parseDuration(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	return time.ParseDuration(raw)
}
