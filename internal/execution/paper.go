package execution

import (
	"context"
	"errors"
	"math/big"
	"sync"
)

// Paper implementations of the vault's external collaborators: asset
// custody, share custody and the position source. Everything is in-memory
// and used by the daemon's simulated mode and by tests. Operations are
// atomic; the only failure mode is an insufficient balance, which the engine
// treats as aborting the whole calling operation.

var (
	errInsufficientBalance = errors.New("insufficient balance")
	errNonPositiveAmount   = errors.New("amount must be positive")
)

// PaperAssetCustody tracks depositor asset balances and the fund's own
// asset holding.
type PaperAssetCustody struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	fund     *big.Int
}

// NewPaperAssetCustody creates empty custody.
func NewPaperAssetCustody() *PaperAssetCustody {
	return &PaperAssetCustody{
		balances: make(map[string]*big.Int),
		fund:     big.NewInt(0),
	}
}

// Credit seeds a holder's balance (simulation only).
func (c *PaperAssetCustody) Credit(holder string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[holder] = new(big.Int).Add(c.balanceLocked(holder), amount)
}

// TransferIn moves assets from the holder into the fund.
func (c *PaperAssetCustody) TransferIn(_ context.Context, holder string, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	balance := c.balanceLocked(holder)
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	c.balances[holder] = new(big.Int).Sub(balance, amount)
	c.fund.Add(c.fund, amount)
	return nil
}

// TransferOut pays assets from the fund to the holder.
func (c *PaperAssetCustody) TransferOut(_ context.Context, holder string, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	if c.fund.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	c.fund.Sub(c.fund, amount)
	c.balances[holder] = new(big.Int).Add(c.balanceLocked(holder), amount)
	return nil
}

// Balance returns a holder's asset balance.
func (c *PaperAssetCustody) Balance(holder string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceLocked(holder))
}

// FundBalance returns the fund's asset holding.
func (c *PaperAssetCustody) FundBalance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.fund)
}

func (c *PaperAssetCustody) balanceLocked(holder string) *big.Int {
	if balance, ok := c.balances[holder]; ok {
		return balance
	}
	return big.NewInt(0)
}

// PaperShareCustody tracks per-holder share ownership, the fund's pooled
// (unclaimed or withdrawal-locked) holding and total supply.
type PaperShareCustody struct {
	mu      sync.Mutex
	holders map[string]*big.Int
	pool    *big.Int
	supply  *big.Int
}

// NewPaperShareCustody creates empty custody.
func NewPaperShareCustody() *PaperShareCustody {
	return &PaperShareCustody{
		holders: make(map[string]*big.Int),
		pool:    big.NewInt(0),
		supply:  big.NewInt(0),
	}
}

// Mint creates shares in the pooled holding.
func (c *PaperShareCustody) Mint(_ context.Context, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	c.pool.Add(c.pool, amount)
	c.supply.Add(c.supply, amount)
	return nil
}

// Burn destroys shares held in the pool.
func (c *PaperShareCustody) Burn(_ context.Context, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	if c.pool.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	c.pool.Sub(c.pool, amount)
	c.supply.Sub(c.supply, amount)
	return nil
}

// Release transfers shares from the pool to a holder.
func (c *PaperShareCustody) Release(_ context.Context, holder string, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	if c.pool.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	c.pool.Sub(c.pool, amount)
	c.holders[holder] = new(big.Int).Add(c.holderLocked(holder), amount)
	return nil
}

// Lock transfers shares from a holder back into the pool.
func (c *PaperShareCustody) Lock(_ context.Context, holder string, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	balance := c.holderLocked(holder)
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	c.holders[holder] = new(big.Int).Sub(balance, amount)
	c.pool.Add(c.pool, amount)
	return nil
}

// TotalSupply returns the outstanding share supply.
func (c *PaperShareCustody) TotalSupply() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.supply)
}

// BalanceOf returns a holder's individually-owned shares.
func (c *PaperShareCustody) BalanceOf(holder string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.holderLocked(holder))
}

// PoolBalance returns the pooled holding.
func (c *PaperShareCustody) PoolBalance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.pool)
}

func (c *PaperShareCustody) holderLocked(holder string) *big.Int {
	if balance, ok := c.holders[holder]; ok {
		return balance
	}
	return big.NewInt(0)
}

// PaperPositionSource reports a settable fund value, standing in for the
// externally measured yield position.
type PaperPositionSource struct {
	mu    sync.Mutex
	value *big.Int
}

// NewPaperPositionSource starts at zero.
func NewPaperPositionSource() *PaperPositionSource {
	return &PaperPositionSource{value: big.NewInt(0)}
}

// SetValue fixes the reported fund value.
func (p *PaperPositionSource) SetValue(value *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = new(big.Int).Set(value)
}

// CurrentAssetValue returns the reported fund value.
func (p *PaperPositionSource) CurrentAssetValue(_ context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.value), nil
}
