package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/mirror/pkg/types"
	"gopkg.in/yaml.v3"
)

// Credentials holds one side's service-account fields, loaded from
// PRIMARY_* or STANDBY_* environment variables. The JSON tags reproduce
// the service-account key file shape the backend SDK expects.
type Credentials struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
}

// JSON renders the credentials as a service-account key document.
func (c *Credentials) JSON() ([]byte, error) {
	if c.ProjectID == "" {
		return nil, fmt.Errorf("credentials missing project_id")
	}
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("credentials missing private_key")
	}
	return json.Marshal(c)
}

// HashConfig carries the password-hash parameters of the primary auth
// directory. Key and salt separator are base64 in the environment.
type HashConfig struct {
	Algorithm     string `yaml:"algorithm"`
	Key           string `yaml:"key"`
	SaltSeparator string `yaml:"saltSeparator"`
	Rounds        int    `yaml:"rounds"`
	MemoryCost    int    `yaml:"memoryCost"`
}

// Params decodes the hash configuration into gateway-usable parameters.
func (h HashConfig) Params() (types.HashParams, error) {
	key, err := base64.StdEncoding.DecodeString(h.Key)
	if err != nil {
		return types.HashParams{}, fmt.Errorf("invalid base64 hash key: %w", err)
	}
	sep, err := base64.StdEncoding.DecodeString(h.SaltSeparator)
	if err != nil {
		return types.HashParams{}, fmt.Errorf("invalid base64 salt separator: %w", err)
	}
	return types.HashParams{
		Algorithm:     h.Algorithm,
		Key:           key,
		SaltSeparator: sep,
		Rounds:        h.Rounds,
		MemoryCost:    h.MemoryCost,
	}, nil
}

// Config is the full engine configuration.
type Config struct {
	Port                       int    `yaml:"port"`
	RunIntervalMinutes         int    `yaml:"runIntervalMinutes"`
	HealthProbeIntervalSeconds int    `yaml:"healthProbeIntervalSeconds"`
	BatchSize                  int    `yaml:"batchSize"`
	MaxRetryAttempts           int    `yaml:"maxRetryAttempts"`
	DataDir                    string `yaml:"dataDir"`
	LogLevel                   string `yaml:"logLevel"`
	LogJSON                    bool   `yaml:"logJson"`

	Primary Credentials `yaml:"-"`
	Standby Credentials `yaml:"-"`

	Hash HashConfig `yaml:"hash"`
}

// Defaults returns a Config with every tunable at its default value.
func Defaults() *Config {
	return &Config{
		Port:                       3001,
		RunIntervalMinutes:         10,
		HealthProbeIntervalSeconds: 10,
		BatchSize:                  100,
		MaxRetryAttempts:           3,
		DataDir:                    "./data",
		LogLevel:                   "info",
		LogJSON:                    true,
		Hash: HashConfig{
			Algorithm:  "SCRYPT",
			Rounds:     8,
			MemoryCost: 14,
		},
	}
}

// Load builds the configuration from the environment on top of defaults.
// Credentials are loaded once at process start; there is no hot reload.
func Load() (*Config, error) {
	cfg := Defaults()

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.RunIntervalMinutes = envInt("RUN_INTERVAL_MINUTES", cfg.RunIntervalMinutes)
	cfg.HealthProbeIntervalSeconds = envInt("HEALTH_PROBE_INTERVAL_SECONDS", cfg.HealthProbeIntervalSeconds)
	cfg.BatchSize = envInt("BATCH_SIZE", cfg.BatchSize)
	cfg.MaxRetryAttempts = envInt("MAX_RETRY_ATTEMPTS", cfg.MaxRetryAttempts)
	cfg.DataDir = envStr("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = envBool("LOG_JSON", cfg.LogJSON)

	cfg.Primary = loadCredentials("PRIMARY")
	cfg.Standby = loadCredentials("STANDBY")

	cfg.Hash.Algorithm = envStr("AUTH_HASH_ALGORITHM", cfg.Hash.Algorithm)
	cfg.Hash.Key = envStr("AUTH_HASH_KEY", cfg.Hash.Key)
	cfg.Hash.SaltSeparator = envStr("AUTH_HASH_SALT_SEPARATOR", cfg.Hash.SaltSeparator)
	cfg.Hash.Rounds = envInt("AUTH_HASH_ROUNDS", cfg.Hash.Rounds)
	cfg.Hash.MemoryCost = envInt("AUTH_HASH_MEMORY_COST", cfg.Hash.MemoryCost)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFile loads from the environment, then overlays values from a
// YAML file. File values win over environment values for tunables;
// credentials always come from the environment.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max retry attempts must not be negative, got %d", c.MaxRetryAttempts)
	}
	if c.HealthProbeIntervalSeconds < 1 {
		return fmt.Errorf("health probe interval must be positive, got %d", c.HealthProbeIntervalSeconds)
	}
	return nil
}

func loadCredentials(prefix string) Credentials {
	return Credentials{
		Type:                    envStr(prefix+"_TYPE", "service_account"),
		ProjectID:               os.Getenv(prefix + "_PROJECT_ID"),
		PrivateKeyID:            os.Getenv(prefix + "_PRIVATE_KEY_ID"),
		PrivateKey:              restoreNewlines(os.Getenv(prefix + "_PRIVATE_KEY")),
		ClientEmail:             os.Getenv(prefix + "_CLIENT_EMAIL"),
		ClientID:                os.Getenv(prefix + "_CLIENT_ID"),
		AuthURI:                 envStr(prefix+"_AUTH_URI", "https://accounts.google.com/o/oauth2/auth"),
		TokenURI:                envStr(prefix+"_TOKEN_URI", "https://oauth2.googleapis.com/token"),
		AuthProviderX509CertURL: envStr(prefix+"_AUTH_PROVIDER_CERT_URL", "https://www.googleapis.com/oauth2/v1/certs"),
		ClientX509CertURL:       os.Getenv(prefix + "_CLIENT_CERT_URL"),
		UniverseDomain:          os.Getenv(prefix + "_UNIVERSE_DOMAIN"),
	}
}

// Private keys arrive through the environment with literal \n escapes.
func restoreNewlines(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
