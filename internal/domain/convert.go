package domain

import "math/big"

// Field widths for committed quantities. Every write to fund state or a
// ledger entry is validated against its width before commit; a violation
// aborts the whole operation via OutOfRangeError.
const (
	RoundBits  = 16
	AmountBits = 104
	ShareBits  = 128
)

// maxForBits returns 2^bits - 1.
func maxForBits(bits uint) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), bits)
	return max.Sub(max, big.NewInt(1))
}

// CheckBits validates that value fits in an unsigned integer of the given
// width. Negative values never fit.
func CheckBits(field string, value *big.Int, bits uint) error {
	if value.Sign() < 0 || value.Cmp(maxForBits(bits)) > 0 {
		return &OutOfRangeError{Field: field, Bits: bits, Value: new(big.Int).Set(value)}
	}
	return nil
}

// AssetToShares converts an asset amount to shares at the given
// price-per-share: asset * unit / price, truncating. A zero price is only
// conceptually valid at genesis, where callers use the sentinel price of one
// unit instead; hitting it here is an arithmetic fault.
func AssetToShares(asset, price, unit *big.Int) (*big.Int, error) {
	if price.Sign() == 0 {
		return nil, ErrArithmeticOverflow
	}
	shares := new(big.Int).Mul(asset, unit)
	return shares.Quo(shares, price), nil
}

// SharesToAsset converts shares back to an asset amount at the given
// price-per-share: shares * price / unit, truncating. The unit is a
// validated fund parameter and is never zero.
func SharesToAsset(shares, price, unit *big.Int) *big.Int {
	asset := new(big.Int).Mul(shares, price)
	return asset.Quo(asset, unit)
}

// PricePerShare computes the asset value of one whole share. With no supply
// it defines the 1:1 genesis price (one unit of asset per share). Pending
// deposits are subtracted from the total value first: assets that arrived
// this round have not been priced yet and must not inflate the value
// attributed to existing shares.
func PricePerShare(supply, totalValue, pending, unit *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return new(big.Int).Set(unit)
	}
	price := new(big.Int).Sub(totalValue, pending)
	price.Mul(price, unit)
	return price.Quo(price, supply)
}
