package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	ServiceName string `env:"SERVICE_NAME" envDefault:"summit-webhook"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:webhook.db"`

	Backend    Backend    `envPrefix:"BACKEND_"`
	Webhook    Webhook    `envPrefix:"WEBHOOK_"`
	DeadLetter DeadLetter `envPrefix:"DEAD_LETTER_"`
}

// Backend is the hosted data/auth service. When URL is empty the SQL
// database behind DatabaseURL holds accounts instead.
type Backend struct {
	URL               string        `env:"URL"`
	ServiceKey        string        `env:"SERVICE_KEY"`
	AccountsTable     string        `env:"ACCOUNTS_TABLE" envDefault:"profiles"`
	TransactionsTable string        `env:"TRANSACTIONS_TABLE" envDefault:"transactions"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Webhook struct {
	Provider     string        `env:"PROVIDER" envDefault:"payment"`
	Secret       string        `env:"SECRET"`
	PaidPlan     string        `env:"PAID_PLAN" envDefault:"pro"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
	MaxBody      string        `env:"MAX_BODY" envDefault:"1M"`
}

type DeadLetter struct {
	AMQPURL    string `env:"AMQP_URL"`
	Exchange   string `env:"EXCHANGE" envDefault:"webhook_events"`
	RoutingKey string `env:"ROUTING_KEY" envDefault:"webhook.fulfillment.failed"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
	// PORT is what most PaaS hosts inject; it wins over HTTP_PORT.
	PlatformPort string `env:"PORT"`
}

// secret values shipped in sample .env files
var placeholderSecrets = map[string]struct{}{
	"your_webhook_secret": {},
	"your-webhook-secret": {},
	"webhook_secret":      {},
	"changeme":            {},
	"placeholder":         {},
	"secret":              {},
	"xxx":                 {},
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Webhook.Provider = strings.ToLower(strings.TrimSpace(cfg.Webhook.Provider))
	if cfg.Webhook.Provider == "" {
		return nil, fmt.Errorf("WEBHOOK_PROVIDER must not be empty")
	}
	if strings.TrimSpace(cfg.Webhook.PaidPlan) == "" {
		return nil, fmt.Errorf("WEBHOOK_PAID_PLAN must not be empty")
	}

	return cfg, nil
}

func (c *Config) Address() string {
	port := c.HTTP.Port
	if c.HTTP.PlatformPort != "" {
		port = c.HTTP.PlatformPort
	}
	return c.HTTP.Host + ":" + port
}

// SecretConfigured reports whether signature verification can run.
func (w Webhook) SecretConfigured() bool {
	s := strings.TrimSpace(w.Secret)
	if s == "" {
		return false
	}
	_, placeholder := placeholderSecrets[strings.ToLower(s)]
	return !placeholder
}

func (b Backend) Enabled() bool {
	return strings.TrimSpace(b.URL) != ""
}

func (b Backend) HasCredential() bool {
	return strings.TrimSpace(b.ServiceKey) != ""
}
