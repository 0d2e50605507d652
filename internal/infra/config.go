package infra

import (
	"fmt"
	"math/big"
	"os"

	"vault_go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Sensitive values can be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Fund struct {
		Decimals           int             `yaml:"decimals"`
		PerformanceFeeRate int64           `yaml:"performance_fee_rate"`
		ManagementFeeRate  int64           `yaml:"management_fee_rate"`
		DepositCap         decimal.Decimal `yaml:"deposit_cap"` // whole units; 0 = uncapped
		MinDeposit         decimal.Decimal `yaml:"min_deposit"` // whole units
	} `yaml:"fund"`

	Rollover struct {
		Schedule string `yaml:"schedule"` // cron spec with seconds
		AdminKey string `yaml:"admin_key"`
	} `yaml:"rollover"`

	Stream struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"stream"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"` // empty means "logs"
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Fund.Decimals <= 0 || c.Fund.Decimals > 18 {
		return fmt.Errorf("fund decimals must be in (0, 18]: %d", c.Fund.Decimals)
	}
	if c.Fund.PerformanceFeeRate < 0 || c.Fund.PerformanceFeeRate > 100 {
		return fmt.Errorf("performance fee rate must be in [0, 100]: %d", c.Fund.PerformanceFeeRate)
	}
	if c.Fund.ManagementFeeRate < 0 || c.Fund.ManagementFeeRate > 100 {
		return fmt.Errorf("management fee rate must be in [0, 100]: %d", c.Fund.ManagementFeeRate)
	}
	if c.Fund.DepositCap.IsNegative() || c.Fund.MinDeposit.IsNegative() {
		return fmt.Errorf("deposit cap and minimum cannot be negative")
	}
	if c.Rollover.Schedule == "" {
		return fmt.Errorf("rollover schedule is required")
	}
	if c.Rollover.AdminKey == "" {
		return fmt.Errorf("rollover admin key is required")
	}
	if c.Stream.ListenAddr == "" {
		return fmt.Errorf("stream listen address is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	return nil
}

// FundParameters converts the fund section into domain parameters, shifting
// the whole-unit money fields to base units.
func (c *Config) FundParameters() domain.FundParameters {
	params := domain.FundParameters{
		Decimals:           c.Fund.Decimals,
		PerformanceFeeRate: c.Fund.PerformanceFeeRate,
		ManagementFeeRate:  c.Fund.ManagementFeeRate,
	}
	if c.Fund.DepositCap.IsPositive() {
		params.DepositCap = toBaseUnits(c.Fund.DepositCap, c.Fund.Decimals)
	}
	if c.Fund.MinDeposit.IsPositive() {
		params.MinDeposit = toBaseUnits(c.Fund.MinDeposit, c.Fund.Decimals)
	}
	return params
}

func toBaseUnits(value decimal.Decimal, decimals int) *big.Int {
	return value.Shift(int32(decimals)).BigInt()
}

// overrideWithEnv replaces sensitive config values from the environment.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("VAULT_ADMIN_KEY"); key != "" {
		cfg.Rollover.AdminKey = key
	}
	if path := os.Getenv("VAULT_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
}
