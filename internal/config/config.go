// Package config содержит логику чтения конфигурации сервиса биллинга.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const defaultRunAddress = "localhost:8080"

var defaultTaxRate = decimal.NewFromInt(10)

// Config содержит параметры конфигурации сервиса биллинга.
type Config struct {
	RunAddress       string          `env:"RUN_ADDRESS"`
	DatabaseURI      string          `env:"DATABASE_URI"`
	DefaultTaxRate   decimal.Decimal `env:"DEFAULT_TAX_RATE"`
	AdminToken       string          `env:"ADMIN_TOKEN"`
	StrictTaxReports bool            `env:"STRICT_TAX_REPORTS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envTaxRate := cfg.DefaultTaxRate
	envAdminToken := cfg.AdminToken
	envStrict := cfg.StrictTaxReports

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.TextVar(&cfg.DefaultTaxRate, "t", defaultTaxRate, "default tax rate in percent")
	flag.StringVar(&cfg.AdminToken, "k", "", "bearer token for the admin API, auth disabled when empty")
	flag.BoolVar(&cfg.StrictTaxReports, "s", false, "fail tax reports on store errors instead of returning an empty report")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if !envTaxRate.IsZero() {
		cfg.DefaultTaxRate = envTaxRate
	}
	if envAdminToken != "" {
		cfg.AdminToken = envAdminToken
	}
	if envStrict {
		cfg.StrictTaxReports = true
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.DefaultTaxRate.IsZero() {
		cfg.DefaultTaxRate = defaultTaxRate
	}
	if cfg.DefaultTaxRate.IsNegative() {
		return nil, errors.New("default tax rate must not be negative")
	}

	return cfg, nil
}
