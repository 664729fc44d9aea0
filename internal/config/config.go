package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "STOREFRONT"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "storefront.db"
	defaultLogLevel            = "info"
	defaultCookieName          = "app_session"
	defaultIssuer              = "packstudio"
	defaultClockSkew           = 30 * time.Second
	defaultMaxQuantity         = 100
	defaultTemplateCacheTTL    = 5 * time.Minute
	defaultAssetFetchTimeout   = 10 * time.Second
	defaultAssetMaxBytes       = 10 << 20
	defaultPreviewMaxDimension = 1024
	defaultPreviewTimeout      = 20 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	SigningSecret       string
	CookieName          string
	Issuer              string
	ClockSkew           time.Duration
	AllowedOrigins      []string
	MaxQuantity         int
	TemplateCacheTTL    time.Duration
	AssetFetchTimeout   time.Duration
	AssetMaxBytes       int64
	PreviewMaxDimension int
	ChromePath          string
	PreviewTimeout      time.Duration
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
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.clock_skew", defaultClockSkew)
	configViper.SetDefault("cart.max_quantity", defaultMaxQuantity)
	configViper.SetDefault("cache.template_ttl", defaultTemplateCacheTTL)
	configViper.SetDefault("assets.fetch_timeout", defaultAssetFetchTimeout)
	configViper.SetDefault("assets.max_bytes", defaultAssetMaxBytes)
	configViper.SetDefault("assets.preview_max_dimension", defaultPreviewMaxDimension)
	configViper.SetDefault("preview.chrome_path", "")
	configViper.SetDefault("preview.timeout", defaultPreviewTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		CookieName:          configViper.GetString("auth.cookie_name"),
		Issuer:              configViper.GetString("auth.issuer"),
		ClockSkew:           configViper.GetDuration("auth.clock_skew"),
		AllowedOrigins:      configViper.GetStringSlice("http.allowed_origins"),
		MaxQuantity:         configViper.GetInt("cart.max_quantity"),
		TemplateCacheTTL:    configViper.GetDuration("cache.template_ttl"),
		AssetFetchTimeout:   configViper.GetDuration("assets.fetch_timeout"),
		AssetMaxBytes:       configViper.GetInt64("assets.max_bytes"),
		PreviewMaxDimension: configViper.GetInt("assets.preview_max_dimension"),
		ChromePath:          strings.TrimSpace(configViper.GetString("preview.chrome_path")),
		PreviewTimeout:      configViper.GetDuration("preview.timeout"),
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
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("auth.clock_skew must not be negative")
	}
	if c.MaxQuantity < 1 {
		return fmt.Errorf("cart.max_quantity must be positive, got %d", c.MaxQuantity)
	}
	if c.TemplateCacheTTL < 0 {
		return fmt.Errorf("cache.template_ttl must not be negative")
	}
	if c.AssetFetchTimeout <= 0 {
		return fmt.Errorf("assets.fetch_timeout must be positive")
	}
	if c.AssetMaxBytes <= 0 {
		return fmt.Errorf("assets.max_bytes must be positive")
	}
	if c.PreviewMaxDimension <= 0 {
		return fmt.Errorf("assets.preview_max_dimension must be positive")
	}
	return nil
}
