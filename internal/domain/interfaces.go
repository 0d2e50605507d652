package domain

import (
	"context"
	"math/big"
)

// PriceLookup reads settled round prices.
type PriceLookup interface {
	Get(round uint64) (*big.Int, error)
}

// AssetCustody moves the underlying asset between a depositor and the fund.
// Transfers are atomic from the engine's viewpoint; an error aborts the
// calling operation before any ledger state is committed.
type AssetCustody interface {
	TransferIn(ctx context.Context, holder string, amount *big.Int) error
	TransferOut(ctx context.Context, holder string, amount *big.Int) error
}

// ShareCustody tracks share ownership. Freshly minted shares live in the
// fund's pooled holding until individually claimed; queued-withdrawal shares
// are locked back into the pool until burned at payout.
type ShareCustody interface {
	Mint(ctx context.Context, amount *big.Int) error
	Burn(ctx context.Context, amount *big.Int) error
	Release(ctx context.Context, holder string, amount *big.Int) error
	Lock(ctx context.Context, holder string, amount *big.Int) error
	TotalSupply() *big.Int
	BalanceOf(holder string) *big.Int
}

// PositionSource supplies the fund's current total asset value, including
// any settled external position. The engine treats it as an opaque,
// externally measured number.
type PositionSource interface {
	CurrentAssetValue(ctx context.Context) (*big.Int, error)
}
