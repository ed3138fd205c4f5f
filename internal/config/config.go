package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/paystreamhq/paystream-backend/internal/domain"
	"github.com/paystreamhq/paystream-backend/internal/usecase/fees"
)

// Config is the full service configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Switch SwitchConfig `yaml:"switch"`
	Fees   FeeConfig    `yaml:"fees"`
	Limits LimitTable   `yaml:"limits"`
}

// ServerConfig holds the HTTP listener settings. An empty APIToken disables
// request authentication.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

// DBConfig holds the Postgres connection settings
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// ConnString builds a lib/pq connection string
func (d DBConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// SwitchConfig holds the interbank switch (NIP) endpoint settings used by the
// verification and settlement clients
type SwitchConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	InstitutionCode string        `yaml:"institution_code"`
	ChannelCode     string        `yaml:"channel_code"`
	VerifyTimeout   time.Duration `yaml:"verify_timeout"`
	SettleTimeout   time.Duration `yaml:"settle_timeout"`
}

// FeeConfig externalizes the fee tables that were embedded as literals in the
// client screens. Amounts are plain numbers in YAML and converted to decimals
// at the boundary.
type FeeConfig struct {
	Internal        float64            `yaml:"internal"`
	ExternalDefault float64            `yaml:"external_default"`
	BillPayment     float64            `yaml:"bill_payment"`
	International   float64            `yaml:"international"`
	Banks           map[string]float64 `yaml:"banks"`
}

// Schedule converts the raw fee numbers into the calculator's schedule
func (f FeeConfig) Schedule() fees.Schedule {
	banks := make(map[string]decimal.Decimal, len(f.Banks))
	for code, fee := range f.Banks {
		banks[code] = decimal.NewFromFloat(fee)
	}
	return fees.Schedule{
		Internal:        decimal.NewFromFloat(f.Internal),
		ExternalDefault: decimal.NewFromFloat(f.ExternalDefault),
		BillPayment:     decimal.NewFromFloat(f.BillPayment),
		International:   decimal.NewFromFloat(f.International),
		Banks:           banks,
	}
}

// LimitPolicy is one row of the limit table
type LimitPolicy struct {
	PerTxMin float64 `yaml:"per_tx_min"`
	PerTxMax float64 `yaml:"per_tx_max"`
	Daily    float64 `yaml:"daily"`
	Monthly  float64 `yaml:"monthly"`
	Currency string  `yaml:"currency"`
}

// Limits builds the per-account limit snapshot from this policy and the
// already-consumed window usage
func (p LimitPolicy) Limits(dailyUsed, monthlyUsed decimal.Decimal) *domain.TransferLimits {
	return &domain.TransferLimits{
		Daily:   domain.LimitWindow{Used: dailyUsed, Limit: decimal.NewFromFloat(p.Daily)},
		Monthly: domain.LimitWindow{Used: monthlyUsed, Limit: decimal.NewFromFloat(p.Monthly)},
		PerTransaction: domain.AmountRange{
			Min: decimal.NewFromFloat(p.PerTxMin),
			Max: decimal.NewFromFloat(p.PerTxMax),
		},
		Currency: p.Currency,
	}
}

// LimitTable maps (role, transfer type) to a limit policy, falling back to
// the "default" role and type when a specific entry is missing
type LimitTable map[string]map[string]LimitPolicy

// PolicyFor resolves the policy for a role and transfer type
func (t LimitTable) PolicyFor(role string, transferType domain.TransferType) (LimitPolicy, bool) {
	for _, r := range []string{role, "default"} {
		byType, ok := t[r]
		if !ok {
			continue
		}
		if p, ok := byType[string(transferType)]; ok {
			return p, true
		}
		if p, ok := byType["default"]; ok {
			return p, true
		}
	}
	return LimitPolicy{}, false
}

// LoadFromPath loads configuration from a YAML file
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Fees.ExternalDefault <= 0 {
		return nil, fmt.Errorf("fees.external_default must be positive")
	}
	if _, ok := cfg.Limits.PolicyFor("default", domain.TransferTypeInternal); !ok {
		return nil, fmt.Errorf("limits must define a default policy")
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the built-in defaults if
// the file is not present
func LoadOrDefault(path string) *Config {
	cfg, err := LoadFromPath(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration: NGN retail defaults with the
// standard interbank processing fee
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "paystream",
		},
		Switch: SwitchConfig{
			BaseURL:         "https://api.nibss.com/nip/api",
			ChannelCode:     "WEB",
			InstitutionCode: "999999",
			VerifyTimeout:   10 * time.Second,
			SettleTimeout:   30 * time.Second,
		},
		Fees: FeeConfig{
			Internal:        0,
			ExternalDefault: 52.50,
			BillPayment:     50,
			International:   2500,
			Banks:           map[string]float64{},
		},
		Limits: LimitTable{
			"default": {
				"default": LimitPolicy{
					PerTxMin: 100,
					PerTxMax: 1_000_000,
					Daily:    5_000_000,
					Monthly:  20_000_000,
					Currency: "NGN",
				},
			},
		},
	}
}
