package domain

import "math/big"

// RoundState is the fund-wide aggregate: the current round counter, the sum
// of this round's not-yet-priced deposits, the shares locked for pending
// exits, the value carried over from the previous round (the fee baseline),
// and the queued withdrawals as valued at the last close.
//
// Mutated only by the vault engine under its lock.
type RoundState struct {
	Round                     uint64
	TotalPendingDeposit       *big.Int
	QueuedWithdrawShares      *big.Int
	LastSettledAssetAmount    *big.Int
	QueuedWithdrawAssetAmount *big.Int
}

// NewRoundState returns the genesis state. Rounds start at 1; round 0 is the
// "never deposited" receipt sentinel and must stay unused.
func NewRoundState() *RoundState {
	return &RoundState{
		Round:                     1,
		TotalPendingDeposit:       big.NewInt(0),
		QueuedWithdrawShares:      big.NewInt(0),
		LastSettledAssetAmount:    big.NewInt(0),
		QueuedWithdrawAssetAmount: big.NewInt(0),
	}
}

// Clone returns a deep copy.
func (s *RoundState) Clone() *RoundState {
	return &RoundState{
		Round:                     s.Round,
		TotalPendingDeposit:       new(big.Int).Set(s.TotalPendingDeposit),
		QueuedWithdrawShares:      new(big.Int).Set(s.QueuedWithdrawShares),
		LastSettledAssetAmount:    new(big.Int).Set(s.LastSettledAssetAmount),
		QueuedWithdrawAssetAmount: new(big.Int).Set(s.QueuedWithdrawAssetAmount),
	}
}

// PriceHistory is the append-only map from round number to the
// price-per-share finalized at that round's close. Once a round's price is
// published it never changes.
type PriceHistory struct {
	prices map[uint64]*big.Int
}

// NewPriceHistory creates an empty history.
func NewPriceHistory() *PriceHistory {
	return &PriceHistory{prices: make(map[uint64]*big.Int)}
}

// RestorePriceHistory rebuilds a history from persisted prices.
func RestorePriceHistory(prices map[uint64]*big.Int) *PriceHistory {
	h := NewPriceHistory()
	for round, price := range prices {
		h.prices[round] = new(big.Int).Set(price)
	}
	return h
}

// Publish records the settlement price for a round. Re-publishing is an
// error: settled prices are immutable.
func (h *PriceHistory) Publish(round uint64, price *big.Int) error {
	if _, ok := h.prices[round]; ok {
		return ErrPriceAlreadySet
	}
	h.prices[round] = new(big.Int).Set(price)
	return nil
}

// Get returns the settlement price of a closed round.
func (h *PriceHistory) Get(round uint64) (*big.Int, error) {
	price, ok := h.prices[round]
	if !ok {
		return nil, ErrPriceNotSet
	}
	return new(big.Int).Set(price), nil
}

// Snapshot returns a copy of all published prices.
func (h *PriceHistory) Snapshot() map[uint64]*big.Int {
	out := make(map[uint64]*big.Int, len(h.prices))
	for round, price := range h.prices {
		out[round] = new(big.Int).Set(price)
	}
	return out
}
