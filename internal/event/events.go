package event

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the websocket stream.
const (
	TypeDeposit             = "deposit"
	TypeSharesClaimed       = "shares_claimed"
	TypeWithdrawalInitiated = "withdrawal_initiated"
	TypeWithdrawalCompleted = "withdrawal_completed"
	TypeRoundClosed         = "round_closed"
)

// DepositEvent announces a pending deposit recorded for the current round.
type DepositEvent struct {
	Type      string          `json:"type"`
	Depositor string          `json:"depositor"`
	Round     uint64          `json:"round"`
	Amount    decimal.Decimal `json:"amount"`
	Ts        time.Time       `json:"ts"`
}

// SharesClaimedEvent announces shares moving from the pooled holding to a
// depositor.
type SharesClaimedEvent struct {
	Type      string          `json:"type"`
	Depositor string          `json:"depositor"`
	Round     uint64          `json:"round"`
	Shares    decimal.Decimal `json:"shares"`
	Ts        time.Time       `json:"ts"`
}

// WithdrawalEvent announces a withdrawal request being queued or paid out.
type WithdrawalEvent struct {
	Type      string          `json:"type"`
	Depositor string          `json:"depositor"`
	Round     uint64          `json:"round"`
	Shares    decimal.Decimal `json:"shares"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Ts        time.Time       `json:"ts"`
}

// RoundClosedEvent announces a finished rollover: the settled price of the
// closed round and the aggregates carried into the next one.
type RoundClosedEvent struct {
	Type           string          `json:"type"`
	Round          uint64          `json:"round"`
	PricePerShare  decimal.Decimal `json:"price_per_share"`
	SharesMinted   decimal.Decimal `json:"shares_minted"`
	LockedAmount   decimal.Decimal `json:"locked_amount"`
	QueuedPayout   decimal.Decimal `json:"queued_payout"`
	PerformanceFee decimal.Decimal `json:"performance_fee"`
	ManagementFee  decimal.Decimal `json:"management_fee"`
	Ts             time.Time       `json:"ts"`
}

// Scale converts a base-unit quantity to its human representation at the
// fund's precision, for event payloads and display.
func Scale(value *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(value, -int32(decimals))
}
