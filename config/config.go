// Package config loads settings from an optional config file and BYBJ_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DevEnv = "dev"
	ProEnv = "pro"

	// insecureSecret fills unset secrets in dev only.
	insecureSecret = "unsecure"
)

type Config struct {
	Env           string `validate:"oneof=dev pro"`
	Address       string
	WhitelistHost string
	CertCache     string

	Content   Content
	Webhook   Webhook
	Cache     Cache
	DB        DB
	Secrets   Secrets
	Prerender Prerender
	Telemetry Telemetry
	Log       Log
}

type Content struct {
	ProjectID  string `validate:"required"`
	Dataset    string `validate:"required"`
	APIVersion string `validate:"required"`
	UseCDN     bool
	Token      string
	BaseURL    string        `validate:"omitempty,url"`
	Timeout    time.Duration `validate:"gt=0"`
	QueryTTL   time.Duration `validate:"gte=0"`
}

type Webhook struct {
	Secret           string
	Mode             string        `validate:"oneof=site targeted"`
	Tolerance        time.Duration `validate:"gte=0"`
	ConsistencyDelay time.Duration `validate:"gte=0"`
}

type Cache struct {
	RedisURL string
	Prefix   string
	PageTTL  time.Duration `validate:"gte=0"`
}

type DB struct {
	Driver string `validate:"oneof=sqlite"`
	URL    string
}

type Secrets struct {
	Preview string
	JWT     string
	Admin   string
}

type Prerender struct {
	Enabled     bool
	Schedule    string
	Concurrency int `validate:"gte=1"`
}

type Telemetry struct {
	Endpoint     string `validate:"omitempty,url"`
	ServiceName  string
	SamplingRate float64 `validate:"gte=0,lte=1"`
}

type Log struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"omitempty,oneof=json text"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", ProEnv)
	v.SetDefault("address", "")
	v.SetDefault("whitelist_host", "")
	v.SetDefault("cert_cache", "/var/www/.cache")

	v.SetDefault("content.project_id", "7sp6215z")
	v.SetDefault("content.dataset", "production")
	v.SetDefault("content.api_version", "2024-11-02")
	v.SetDefault("content.use_cdn", false)
	v.SetDefault("content.token", "")
	v.SetDefault("content.base_url", "")
	v.SetDefault("content.timeout", 10*time.Second)
	v.SetDefault("content.query_ttl", time.Hour)

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.mode", "site")
	v.SetDefault("webhook.tolerance", time.Duration(0))
	v.SetDefault("webhook.consistency_delay", time.Second)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.prefix", "bybj:")
	v.SetDefault("cache.page_ttl", time.Hour)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.url", "")

	v.SetDefault("secrets.preview", "")
	v.SetDefault("secrets.jwt", "")
	v.SetDefault("secrets.admin", "")

	v.SetDefault("prerender.enabled", false)
	v.SetDefault("prerender.schedule", "@every 1h")
	v.SetDefault("prerender.concurrency", 4)

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "breakyourbelljar")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
}

// New returns a viper instance with defaults and environment bindings.
// Keys map to BYBJ_<KEY> with dots replaced by underscores.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BYBJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names the hosting platform and the studio tooling already use
	_ = v.BindEnv("webhook.secret", "BYBJ_WEBHOOK_SECRET", "SANITY_WEBHOOK_SECRET")
	_ = v.BindEnv("secrets.preview", "BYBJ_SECRETS_PREVIEW", "SANITY_PREVIEW_SECRET")
	_ = v.BindEnv("secrets.jwt", "BYBJ_SECRETS_JWT", "JWT_SECRET")
	_ = v.BindEnv("content.token", "BYBJ_CONTENT_TOKEN", "SANITY_API_READ_TOKEN")
	_ = v.BindEnv("env", "BYBJ_ENV", "ENV")
	return v
}

// Load reads path (or ./config.yaml when path is empty and the file exists)
// and the environment, fills dev secrets and validates the result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Env:           v.GetString("env"),
		Address:       v.GetString("address"),
		WhitelistHost: v.GetString("whitelist_host"),
		CertCache:     v.GetString("cert_cache"),
		Content:       getContentConfig(v),
		Webhook: Webhook{
			Secret:           v.GetString("webhook.secret"),
			Mode:             v.GetString("webhook.mode"),
			Tolerance:        v.GetDuration("webhook.tolerance"),
			ConsistencyDelay: v.GetDuration("webhook.consistency_delay"),
		},
		Cache: Cache{
			RedisURL: v.GetString("cache.redis_url"),
			Prefix:   v.GetString("cache.prefix"),
			PageTTL:  v.GetDuration("cache.page_ttl"),
		},
		DB: DB{
			Driver: v.GetString("db.driver"),
			URL:    v.GetString("db.url"),
		},
		Secrets: Secrets{
			Preview: v.GetString("secrets.preview"),
			JWT:     v.GetString("secrets.jwt"),
			Admin:   v.GetString("secrets.admin"),
		},
		Prerender: Prerender{
			Enabled:     v.GetBool("prerender.enabled"),
			Schedule:    v.GetString("prerender.schedule"),
			Concurrency: v.GetInt("prerender.concurrency"),
		},
		Telemetry: Telemetry{
			Endpoint:     v.GetString("telemetry.endpoint"),
			ServiceName:  v.GetString("telemetry.service_name"),
			SamplingRate: v.GetFloat64("telemetry.sampling_rate"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if c.Env == DevEnv {
		c.fillDevSecrets()
		if c.Address == "" {
			c.Address = ":8080"
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func getContentConfig(v *viper.Viper) Content {
	return Content{
		ProjectID:  v.GetString("content.project_id"),
		Dataset:    v.GetString("content.dataset"),
		APIVersion: v.GetString("content.api_version"),
		UseCDN:     v.GetBool("content.use_cdn"),
		Token:      v.GetString("content.token"),
		BaseURL:    v.GetString("content.base_url"),
		Timeout:    v.GetDuration("content.timeout"),
		QueryTTL:   v.GetDuration("content.query_ttl"),
	}
}

func (c *Config) fillDevSecrets() {
	for _, s := range []*string{&c.Webhook.Secret, &c.Secrets.JWT, &c.Secrets.Admin, &c.Secrets.Preview} {
		if *s == "" {
			*s = insecureSecret
		}
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireSecrets fails outside dev unless the webhook, cookie and admin
// secrets are set. Only the server needs them.
func (c *Config) RequireSecrets() error {
	if c.Env == ProEnv {
		var missing []string
		if c.Webhook.Secret == "" {
			missing = append(missing, "webhook.secret")
		}
		if c.Secrets.JWT == "" {
			missing = append(missing, "secrets.jwt")
		}
		if c.Secrets.Admin == "" {
			missing = append(missing, "secrets.admin")
		}
		if len(missing) > 0 {
			return fmt.Errorf("no secret defined: %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// IsDev reports whether insecure defaults are allowed.
func (c *Config) IsDev() bool {
	return c.Env == DevEnv
}
