package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rentendash/pkg/logging"
)

// Commerzbank Securities Sandbox defaults, mapped from the sandbox swagger
// (host api-sandbox.commerzbank.com, basePath /securities-api/v4).
const (
	DefaultAPIBaseURL  = "https://api-sandbox.commerzbank.com/securities-api/v4"
	DefaultAuthURL     = "https://api-sandbox.commerzbank.com/auth/realms/sandbox/protocol/openid-connect/auth"
	DefaultTokenURL    = "https://api-sandbox.commerzbank.com/auth/realms/sandbox/protocol/openid-connect/token"
	DefaultRedirectURI = "https://localhost:8443/callback"
)

// OAuthConfig holds timeout and retry settings for token endpoint calls.
type OAuthConfig struct {
	// TimeoutSeconds is the client-side timeout for token endpoint requests.
	TimeoutSeconds int `yaml:"timeout" env:"OAUTH_TIMEOUT"`

	// RetryAttempts is reserved for callers that layer a retry policy on
	// top of the OAuth manager. The manager itself never retries.
	RetryAttempts int `yaml:"retryAttempts" env:"OAUTH_RETRY_ATTEMPTS"`

	// CallbackTimeoutSeconds bounds the wait for the authorization redirect.
	CallbackTimeoutSeconds int `yaml:"callbackTimeout" env:"OAUTH_CALLBACK_TIMEOUT"`
}

// BankConfig describes one bank integration. Name is the token identity:
// the key the OAuth token store is indexed by. It must stay stable between
// the authorization attempt and later refresh/validity checks.
type BankConfig struct {
	Name             string `yaml:"name" env:"BANK_NAME"`
	ClientID         string `yaml:"clientId" env:"BANK_CLIENT_ID"`
	ClientSecret     string `yaml:"clientSecret" env:"BANK_CLIENT_SECRET"`
	RedirectURI      string `yaml:"redirectUri" env:"BANK_REDIRECT_URI"`
	APIBaseURL       string `yaml:"apiBaseUrl" env:"BANK_API_BASE_URL"`
	AuthorizationURL string `yaml:"authorizationUrl" env:"BANK_AUTH_URL"`
	TokenURL         string `yaml:"tokenUrl" env:"BANK_TOKEN_URL"`

	// Scope is optional; when empty the scope parameter is omitted from the
	// authorization request entirely.
	Scope string `yaml:"scope" env:"BANK_SCOPE"`

	// Username and Password enable the password grant, a sandbox
	// convenience only.
	Username string `yaml:"username" env:"BANK_USERNAME"`
	Password string `yaml:"password" env:"BANK_PASSWORD"`
}

// SecurityConfig holds secret material.
type SecurityConfig struct {
	// TokenEncryptionKey keys the token cipher. Accepts a base64-encoded
	// 32-byte key or an arbitrary string (derived via SHA-256). When empty
	// a fresh random key is generated per process run.
	TokenEncryptionKey string `yaml:"tokenEncryptionKey" env:"TOKEN_ENCRYPTION_KEY"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Debug    bool   `yaml:"debug" env:"DEBUG"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`

	// OutputFormat selects the console rendering style ("table").
	OutputFormat string `yaml:"consoleOutputFormat" env:"CONSOLE_OUTPUT_FORMAT"`

	// RefreshIntervalSeconds is how long dashboard data is considered fresh.
	RefreshIntervalSeconds int `yaml:"dataRefreshInterval" env:"DATA_REFRESH_INTERVAL"`

	// TLSCertPath and TLSKeyPath are the certificate material for the local
	// HTTPS callback listener. Both must be set for the authorization-code
	// flow to be selectable.
	TLSCertPath string `yaml:"tlsCertPath" env:"TLS_CERT_PATH"`
	TLSKeyPath  string `yaml:"tlsKeyPath" env:"TLS_KEY_PATH"`
}

// Config is the root configuration.
type Config struct {
	OAuth    OAuthConfig    `yaml:"oauth"`
	Bank     BankConfig     `yaml:"bank"`
	Security SecurityConfig `yaml:"security"`
	App      AppConfig      `yaml:"app"`
}

// Banks returns the configured banks keyed by their config key. The config
// key ("primary") is a lookup concern and distinct from BankConfig.Name,
// which keys token storage.
func (c *Config) Banks() map[string]BankConfig {
	return map[string]BankConfig{"primary": c.Bank}
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		OAuth: OAuthConfig{
			TimeoutSeconds:         30,
			RetryAttempts:          3,
			CallbackTimeoutSeconds: 120,
		},
		Bank: BankConfig{
			Name:             "commerzbank_sandbox",
			RedirectURI:      DefaultRedirectURI,
			APIBaseURL:       DefaultAPIBaseURL,
			AuthorizationURL: DefaultAuthURL,
			TokenURL:         DefaultTokenURL,
		},
		App: AppConfig{
			LogLevel:               "INFO",
			OutputFormat:           "table",
			RefreshIntervalSeconds: 300,
		},
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, an optional YAML config file, and environment variables.
// A .env file next to the working directory is loaded into the environment
// first when present.
//
// configPath may be empty, in which case ~/.config/rentendash/config.yaml
// is used when it exists.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		logging.Info("Config", "Loaded environment from .env file")
	} else if !os.IsNotExist(err) {
		logging.Warn("Config", "Could not read .env file: %v", err)
	}

	cfg := Default()

	path, explicit := configPath, configPath != ""
	if !explicit {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "rentendash", "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			logging.Info("Config", "Loaded configuration file %s", path)
		case explicit:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg.OAuth); err != nil {
		return Config{}, fmt.Errorf("failed to parse oauth environment: %w", err)
	}
	if err := env.Parse(&cfg.Bank); err != nil {
		return Config{}, fmt.Errorf("failed to parse bank environment: %w", err)
	}
	if err := env.Parse(&cfg.Security); err != nil {
		return Config{}, fmt.Errorf("failed to parse security environment: %w", err)
	}
	if err := env.Parse(&cfg.App); err != nil {
		return Config{}, fmt.Errorf("failed to parse app environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks required values and warns about optional ones whose
// absence changes behavior.
func (c *Config) Validate() error {
	if c.Bank.APIBaseURL == "" {
		return fmt.Errorf("BANK_API_BASE_URL missing; cannot proceed")
	}
	if c.Bank.ClientID == "" || c.Bank.ClientSecret == "" {
		logging.Warn("Config", "BANK_CLIENT_ID/SECRET not set. Will use simulated OAuth unless sandbox username/password are provided.")
	}
	logging.Debug("Config", "Configuration validation completed")
	return nil
}
