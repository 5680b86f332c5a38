package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CHATSYNC"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "chatsync.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "app_session"
	defaultIssuer            = "chatsync"
	defaultRatePerSecond     = 5.0
	defaultRateBurst         = 20
	defaultHeartbeatSeconds  = 25
	defaultClientBaseURL     = "http://localhost:8080"
	defaultClientTimeoutSecs = 10
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	RatePerSecond      float64
	RateBurst          int
	HeartbeatInterval  time.Duration
	CORSAllowedOrigins []string
}

// ClientConfig captures configuration for the push client.
type ClientConfig struct {
	BaseURL      string
	SessionToken string
	Timeout      time.Duration
	LogLevel     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("ratelimit.per_second", defaultRatePerSecond)
	configViper.SetDefault("ratelimit.burst", defaultRateBurst)
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatSeconds)
	configViper.SetDefault("client.base_url", defaultClientBaseURL)
	configViper.SetDefault("client.timeout_seconds", defaultClientTimeoutSecs)
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		TAuthSigningKey:    configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:    configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:        configViper.GetString("tauth.issuer"),
		RatePerSecond:      configViper.GetFloat64("ratelimit.per_second"),
		RateBurst:          configViper.GetInt("ratelimit.burst"),
		HeartbeatInterval:  time.Duration(configViper.GetInt("realtime.heartbeat_seconds")) * time.Second,
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("http.cors_allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadClient parses push client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:      strings.TrimSpace(configViper.GetString("client.base_url")),
		SessionToken: strings.TrimSpace(configViper.GetString("client.session_token")),
		Timeout:      time.Duration(configViper.GetInt("client.timeout_seconds")) * time.Second,
		LogLevel:     configViper.GetString("log.level"),
	}
	if cfg.BaseURL == "" {
		return ClientConfig{}, fmt.Errorf("client.base_url is required")
	}
	if cfg.SessionToken == "" {
		return ClientConfig{}, fmt.Errorf("client.session_token is required")
	}
	if cfg.Timeout <= 0 {
		return ClientConfig{}, fmt.Errorf("client.timeout_seconds must be positive")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.RatePerSecond <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("ratelimit.per_second and ratelimit.burst must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
