package domain

import "math/big"

// DepositReceipt tracks one depositor's pending deposit and the shares
// already computed for them but not yet claimed. Round 0 means "never
// deposited". While Round is behind the fund's current round, Amount is
// eligible for lazy conversion to shares at that round's settled price.
type DepositReceipt struct {
	Round            uint64
	Amount           *big.Int
	UnredeemedShares *big.Int
}

// NewDepositReceipt returns an empty receipt at the round-0 sentinel.
func NewDepositReceipt() *DepositReceipt {
	return &DepositReceipt{Amount: big.NewInt(0), UnredeemedShares: big.NewInt(0)}
}

// Clone returns a deep copy.
func (r *DepositReceipt) Clone() *DepositReceipt {
	return &DepositReceipt{
		Round:            r.Round,
		Amount:           new(big.Int).Set(r.Amount),
		UnredeemedShares: new(big.Int).Set(r.UnredeemedShares),
	}
}

// SettledShares resolves the receipt's total share value as of currentRound:
// the unredeemed balance plus the pending amount converted at the price of
// the round it was deposited in. The pending amount only converts once its
// round has closed; a same-round deposit contributes no shares yet. The
// receipt itself is not modified.
func (r *DepositReceipt) SettledShares(currentRound uint64, prices PriceLookup, unit *big.Int) (*big.Int, error) {
	shares := new(big.Int).Set(r.UnredeemedShares)
	if r.Round == 0 || r.Round >= currentRound || r.Amount.Sign() == 0 {
		return shares, nil
	}
	price, err := prices.Get(r.Round)
	if err != nil {
		return nil, err
	}
	converted, err := AssetToShares(r.Amount, price, unit)
	if err != nil {
		return nil, err
	}
	return shares.Add(shares, converted), nil
}

// WithdrawalRequest tracks shares a depositor locked for exit and the round
// the request was made in. Shares drop to zero on completion; the round is
// retained rather than reset, so zero shares is the "no open request" test.
type WithdrawalRequest struct {
	Round  uint64
	Shares *big.Int
}

// NewWithdrawalRequest returns an empty request.
func NewWithdrawalRequest() *WithdrawalRequest {
	return &WithdrawalRequest{Shares: big.NewInt(0)}
}

// Clone returns a deep copy.
func (w *WithdrawalRequest) Clone() *WithdrawalRequest {
	return &WithdrawalRequest{Round: w.Round, Shares: new(big.Int).Set(w.Shares)}
}

// Open reports whether the request still has locked shares.
func (w *WithdrawalRequest) Open() bool {
	return w.Shares.Sign() > 0
}
