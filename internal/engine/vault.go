package engine

import (
	"context"
	"math/big"
	"sync"

	"vault_go/internal/domain"
)

// Vault is the round-based fund accounting engine. It owns the round state,
// the per-depositor deposit and withdrawal ledgers, and the append-only
// price history, and drives custody through the domain interfaces.
//
// One mutex guards every operation, rollover included: rollover needs a
// consistent global view of the aggregates and the ledgers, so a single
// mutual-exclusion region replaces any per-depositor locking. Each operation
// validates everything it can, calls custody, and only then commits ledger
// state, so a failure at any point leaves the vault unchanged.
type Vault struct {
	mu     sync.Mutex
	params domain.FundParameters
	unit   *big.Int

	state    *domain.RoundState
	prices   *domain.PriceHistory
	receipts map[string]*domain.DepositReceipt
	requests map[string]*domain.WithdrawalRequest

	assets domain.AssetCustody
	shares domain.ShareCustody
}

// Snapshot is a consistent deep copy of all persisted vault state.
type Snapshot struct {
	State    *domain.RoundState
	Prices   map[uint64]*big.Int
	Receipts map[string]*domain.DepositReceipt
	Requests map[string]*domain.WithdrawalRequest
}

// New creates a vault at genesis (round 1, empty ledgers).
func New(params domain.FundParameters, assets domain.AssetCustody, shares domain.ShareCustody) (*Vault, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Vault{
		params:   params,
		unit:     params.Unit(),
		state:    domain.NewRoundState(),
		prices:   domain.NewPriceHistory(),
		receipts: make(map[string]*domain.DepositReceipt),
		requests: make(map[string]*domain.WithdrawalRequest),
		assets:   assets,
		shares:   shares,
	}, nil
}

// Restore rebuilds a vault from a persisted snapshot.
func Restore(params domain.FundParameters, assets domain.AssetCustody, shares domain.ShareCustody, snap *Snapshot) (*Vault, error) {
	v, err := New(params, assets, shares)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return v, nil
	}
	if snap.State != nil {
		v.state = snap.State.Clone()
	}
	v.prices = domain.RestorePriceHistory(snap.Prices)
	for depositor, receipt := range snap.Receipts {
		v.receipts[depositor] = receipt.Clone()
	}
	for depositor, request := range snap.Requests {
		v.requests[depositor] = request.Clone()
	}
	return v, nil
}

// Params returns the fund parameters.
func (v *Vault) Params() domain.FundParameters {
	return v.params
}

// State returns a copy of the current round state.
func (v *Vault) State() *domain.RoundState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone()
}

// PriceOf returns the settled price of a closed round.
func (v *Vault) PriceOf(round uint64) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.prices.Get(round)
}

// Receipt returns a copy of a depositor's receipt, if any.
func (v *Vault) Receipt(depositor string) (*domain.DepositReceipt, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	receipt, ok := v.receipts[depositor]
	if !ok {
		return nil, false
	}
	return receipt.Clone(), true
}

// Request returns a copy of a depositor's withdrawal request, if any.
func (v *Vault) Request(depositor string) (*domain.WithdrawalRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	request, ok := v.requests[depositor]
	if !ok {
		return nil, false
	}
	return request.Clone(), true
}

// Snapshot returns a deep copy of all persisted state.
func (v *Vault) Snapshot() *Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	receipts := make(map[string]*domain.DepositReceipt, len(v.receipts))
	for depositor, receipt := range v.receipts {
		receipts[depositor] = receipt.Clone()
	}
	requests := make(map[string]*domain.WithdrawalRequest, len(v.requests))
	for depositor, request := range v.requests {
		requests[depositor] = request.Clone()
	}
	return &Snapshot{
		State:    v.state.Clone(),
		Prices:   v.prices.Snapshot(),
		Receipts: receipts,
		Requests: requests,
	}
}

// Deposit records a pending contribution for the current round. Shares are
// not computed here; that happens at the round's close. An existing receipt
// from an earlier round is lazily settled into unredeemed shares first, and
// same-round deposits accumulate.
func (v *Vault) Deposit(ctx context.Context, depositor string, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := domain.CheckBits("deposit amount", amount, domain.AmountBits); err != nil {
		return err
	}

	// Cap and minimum apply to the projected fund value: locked amount plus
	// everything pending this round plus the new contribution.
	total := new(big.Int).Add(v.state.LastSettledAssetAmount, v.state.TotalPendingDeposit)
	total.Add(total, amount)
	if v.params.MinDeposit != nil && total.Cmp(v.params.MinDeposit) < 0 {
		return domain.ErrInvalidAmount
	}
	if v.params.DepositCap != nil && total.Cmp(v.params.DepositCap) > 0 {
		return domain.ErrCapExceeded
	}

	newPending := new(big.Int).Add(v.state.TotalPendingDeposit, amount)
	if err := domain.CheckBits("total pending deposit", newPending, domain.AmountBits); err != nil {
		return err
	}

	// Build the post-deposit receipt on a copy so a custody failure commits
	// nothing.
	next := domain.NewDepositReceipt()
	if receipt, ok := v.receipts[depositor]; ok {
		next = receipt.Clone()
	}
	if next.Round != 0 && next.Round < v.state.Round {
		settled, err := next.SettledShares(v.state.Round, v.prices, v.unit)
		if err != nil {
			return err
		}
		if err := domain.CheckBits("unredeemed shares", settled, domain.ShareBits); err != nil {
			return err
		}
		next.UnredeemedShares = settled
		next.Amount = big.NewInt(0)
	}
	next.Round = v.state.Round
	next.Amount = new(big.Int).Add(next.Amount, amount)
	if err := domain.CheckBits("receipt amount", next.Amount, domain.AmountBits); err != nil {
		return err
	}

	if err := v.assets.TransferIn(ctx, depositor, amount); err != nil {
		return err
	}

	v.receipts[depositor] = next
	v.state.TotalPendingDeposit = newPending
	return nil
}

// ClaimShares transfers up to the requested number of accrued shares from
// the fund's pooled holding to the depositor. Requesting more than is
// available fails with ErrInsufficientShares.
func (v *Vault) ClaimShares(ctx context.Context, depositor string, requested *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claimLocked(ctx, depositor, requested, false)
}

// ClaimAllShares transfers every accrued share to the depositor. Claiming
// nothing is a no-op, not an error.
func (v *Vault) ClaimAllShares(ctx context.Context, depositor string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claimLocked(ctx, depositor, nil, true)
}

// claimLocked resolves the depositor's settled share balance and transfers
// the requested portion out of the pool. Caller holds v.mu.
func (v *Vault) claimLocked(ctx context.Context, depositor string, requested *big.Int, max bool) (*big.Int, error) {
	if !max {
		if requested == nil || requested.Sign() < 0 {
			return nil, domain.ErrInvalidAmount
		}
	}

	receipt, ok := v.receipts[depositor]
	if !ok {
		if !max && requested.Sign() > 0 {
			return nil, domain.ErrInsufficientShares
		}
		return big.NewInt(0), nil
	}

	available, err := receipt.SettledShares(v.state.Round, v.prices, v.unit)
	if err != nil {
		return nil, err
	}

	resolved := available
	if !max {
		if requested.Cmp(available) > 0 {
			return nil, domain.ErrInsufficientShares
		}
		resolved = new(big.Int).Set(requested)
	}
	if resolved.Sign() == 0 {
		return big.NewInt(0), nil
	}

	if err := v.shares.Release(ctx, depositor, resolved); err != nil {
		return nil, err
	}

	receipt.UnredeemedShares = new(big.Int).Sub(available, resolved)
	if receipt.Round < v.state.Round {
		// Pending amount is fully absorbed into shares once its round closed.
		receipt.Amount = big.NewInt(0)
	}
	return resolved, nil
}

// InitiateWithdrawal locks shares for exit at the close of the current
// round. Unclaimed shares are auto-claimed first, so requests are always
// built from recognized share ownership. A still-open request from an
// earlier round rejects the new one.
func (v *Vault) InitiateWithdrawal(ctx context.Context, depositor string, numShares *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if numShares == nil || numShares.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := domain.CheckBits("withdrawal shares", numShares, domain.ShareBits); err != nil {
		return err
	}

	request := v.requests[depositor]
	if request != nil && request.Open() && request.Round < v.state.Round {
		return domain.ErrConflictingWithdrawal
	}

	newQueued := new(big.Int).Add(v.state.QueuedWithdrawShares, numShares)
	if err := domain.CheckBits("queued withdrawal shares", newQueued, domain.ShareBits); err != nil {
		return err
	}
	newRequestShares := new(big.Int).Set(numShares)
	if request != nil && request.Open() {
		newRequestShares.Add(newRequestShares, request.Shares)
	}
	if err := domain.CheckBits("request shares", newRequestShares, domain.ShareBits); err != nil {
		return err
	}

	// The request must be covered by shares the depositor can actually
	// lock: already-owned ones plus whatever the auto-claim would release.
	// Checked before the claim so a rejected request commits nothing.
	settled := big.NewInt(0)
	if receipt, ok := v.receipts[depositor]; ok {
		var err error
		settled, err = receipt.SettledShares(v.state.Round, v.prices, v.unit)
		if err != nil {
			return err
		}
	}
	if new(big.Int).Add(settled, v.shares.BalanceOf(depositor)).Cmp(numShares) < 0 {
		return domain.ErrInsufficientShares
	}

	if _, err := v.claimLocked(ctx, depositor, nil, true); err != nil {
		return err
	}

	if err := v.shares.Lock(ctx, depositor, numShares); err != nil {
		return err
	}

	if request == nil {
		request = domain.NewWithdrawalRequest()
		v.requests[depositor] = request
	}
	request.Round = v.state.Round
	request.Shares = newRequestShares
	v.state.QueuedWithdrawShares = newQueued
	return nil
}

// CompleteWithdrawal burns a closed-round request's locked shares and pays
// out their value at that round's settled price. Completing in the round the
// request was made always fails: that price is not finalized yet.
func (v *Vault) CompleteWithdrawal(ctx context.Context, depositor string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	request := v.requests[depositor]
	if request == nil || !request.Open() {
		return nil, domain.ErrZeroWithdrawal
	}
	if request.Round >= v.state.Round {
		return nil, domain.ErrRoundNotClosed
	}

	price, err := v.prices.Get(request.Round)
	if err != nil {
		return nil, err
	}
	amount := domain.SharesToAsset(request.Shares, price, v.unit)
	if amount.Sign() == 0 {
		return nil, domain.ErrZeroWithdrawal
	}

	// The payout moves first. If custody cannot cover it the request stays
	// open, untouched, and completion can be retried once the fund is
	// funded. The locked shares sit in the pool, so once the assets have
	// left the burn cannot fail.
	locked := new(big.Int).Set(request.Shares)
	if err := v.assets.TransferOut(ctx, depositor, amount); err != nil {
		return nil, err
	}
	if err := v.shares.Burn(ctx, locked); err != nil {
		return nil, err
	}

	v.state.QueuedWithdrawShares = new(big.Int).Sub(v.state.QueuedWithdrawShares, locked)
	// The payout leaves the fund, so the valued-at-last-close aggregate
	// shrinks with it, floored at zero since the payout was priced at the
	// request's own round.
	remaining := new(big.Int).Sub(v.state.QueuedWithdrawAssetAmount, amount)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	v.state.QueuedWithdrawAssetAmount = remaining
	request.Shares = big.NewInt(0)
	return amount, nil
}
