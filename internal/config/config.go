package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "VEGA"
	defaultHTTPAddress     = "0.0.0.0:9000"
	defaultCookieName      = "vega_session"
	defaultHomepageURL     = "https://vega.github.io/editor"
	defaultDatabasePath    = "editor-backend.db"
	defaultLogLevel        = "info"
	defaultPageSize        = 5
	defaultUpstreamTimeout = 10 * time.Second
)

// AppConfig captures runtime configuration for the backend. It is built once
// at startup and read-only afterwards.
type AppConfig struct {
	HTTPAddress        string
	SigningSecret      string
	CookieName         string
	GitHubClientID     string
	GitHubClientSecret string
	CallbackURL        string
	HomepageURL        string
	AllowedOrigins     []string
	PageSize           int
	UpstreamTimeout    time.Duration
	DatabasePath       string
	LogLevel           string
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
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("homepage.url", defaultHomepageURL)
	configViper.SetDefault("cors.allowed_origins", []string{defaultHomepageURL})
	configViper.SetDefault("gists.page_size", defaultPageSize)
	configViper.SetDefault("upstream.timeout", defaultUpstreamTimeout)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		CookieName:         configViper.GetString("auth.cookie_name"),
		GitHubClientID:     configViper.GetString("github.client_id"),
		GitHubClientSecret: configViper.GetString("github.client_secret"),
		CallbackURL:        configViper.GetString("github.callback_url"),
		HomepageURL:        configViper.GetString("homepage.url"),
		AllowedOrigins:     configViper.GetStringSlice("cors.allowed_origins"),
		PageSize:           configViper.GetInt("gists.page_size"),
		UpstreamTimeout:    configViper.GetDuration("upstream.timeout"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.GitHubClientID) == "" {
		return fmt.Errorf("github.client_id is required")
	}
	if strings.TrimSpace(c.GitHubClientSecret) == "" {
		return fmt.Errorf("github.client_secret is required")
	}
	if strings.TrimSpace(c.CallbackURL) == "" {
		return fmt.Errorf("github.callback_url is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("gists.page_size must be positive")
	}
	return nil
}
