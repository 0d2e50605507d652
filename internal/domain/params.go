package domain

import (
	"fmt"
	"math/big"
)

// FundParameters holds the administrative inputs the accounting core reads
// but never mutates: unit precision, fee rates, cap and minimum size.
// Fee rates are whole percentages (20 = 20%).
type FundParameters struct {
	Decimals           int
	PerformanceFeeRate int64
	ManagementFeeRate  int64
	DepositCap         *big.Int // base units; nil means uncapped
	MinDeposit         *big.Int // base units; nil means no minimum
}

// Unit returns 10^Decimals, the base-unit value of one whole share.
func (p FundParameters) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.Decimals)), nil)
}

// Validate checks parameter sanity at construction time.
func (p FundParameters) Validate() error {
	if p.Decimals <= 0 || p.Decimals > 18 {
		return fmt.Errorf("decimals must be in (0, 18], got %d", p.Decimals)
	}
	if p.PerformanceFeeRate < 0 || p.PerformanceFeeRate > 100 {
		return fmt.Errorf("performance fee rate must be in [0, 100], got %d", p.PerformanceFeeRate)
	}
	if p.ManagementFeeRate < 0 || p.ManagementFeeRate > 100 {
		return fmt.Errorf("management fee rate must be in [0, 100], got %d", p.ManagementFeeRate)
	}
	if p.DepositCap != nil && p.DepositCap.Sign() <= 0 {
		return fmt.Errorf("deposit cap must be positive when set")
	}
	if p.MinDeposit != nil && p.MinDeposit.Sign() < 0 {
		return fmt.Errorf("minimum deposit cannot be negative")
	}
	return nil
}
