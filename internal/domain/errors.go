package domain

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidAmount is returned for a zero deposit or one that leaves the
	// fund below its minimum size. Not retriable with the same input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCapExceeded is returned when a deposit would push the fund value
	// above the configured cap.
	ErrCapExceeded = errors.New("deposit cap exceeded")

	// ErrOutOfRange signals a bounded-width violation. It is always fatal to
	// the operation that produced it: the value is never truncated and no
	// partial state is committed.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInsufficientShares is returned when a claim or withdrawal request
	// asks for more shares than the depositor has accrued and owns.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrConflictingWithdrawal is returned when a new withdrawal request is
	// made while one from an earlier round is still unresolved.
	ErrConflictingWithdrawal = errors.New("conflicting withdrawal request")

	// ErrRoundNotClosed is returned when completing a withdrawal whose round
	// has not been settled yet.
	ErrRoundNotClosed = errors.New("round not closed")

	// ErrZeroWithdrawal is returned when a withdrawal resolves to nothing.
	ErrZeroWithdrawal = errors.New("zero withdrawal")

	// ErrArithmeticOverflow guards price computation paths, notably division
	// by a zero price where callers were supposed to guarantee otherwise.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrPriceNotSet is returned when looking up the settlement price of a
	// round that has not closed.
	ErrPriceNotSet = errors.New("round price not set")

	// ErrPriceAlreadySet guards the append-only price history: a settled
	// round's price never changes.
	ErrPriceAlreadySet = errors.New("round price already set")

	// ErrUnauthorized is returned when a rollover is attempted without the
	// administrator capability.
	ErrUnauthorized = errors.New("unauthorized")
)

// OutOfRangeError reports which field overflowed its declared bit width.
// It unwraps to ErrOutOfRange so callers can match with errors.Is.
type OutOfRangeError struct {
	Field string
	Bits  uint
	Value *big.Int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s out of range: %s does not fit in %d bits", e.Field, e.Value.String(), e.Bits)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}
