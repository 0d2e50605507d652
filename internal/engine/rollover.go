package engine

import (
	"context"
	"fmt"
	"math/big"

	"vault_go/internal/domain"
)

var big100 = big.NewInt(100)

// RolloverResult reports the outcome of one round transition.
type RolloverResult struct {
	Round                     uint64 // the round that closed
	NewPrice                  *big.Int
	SharesMinted              *big.Int
	NewLockedAmount           *big.Int
	QueuedWithdrawAssetAmount *big.Int
	PerformanceFee            *big.Int
	ManagementFee             *big.Int
	TotalFee                  *big.Int
}

// Rollover closes the current round in one atomic transition: it finalizes
// the closing round's price-per-share, extracts fees, mints the shares owed
// for this round's pending deposits into the pooled holding, revalues queued
// withdrawals, and advances the round counter.
//
// currentAssetValue is the fund's total holding as measured externally,
// post position settlement and pre fee. currentShareSupply is the share
// supply before this round's mint. Everything is computed on temporaries and
// width-checked before any commit, so an error leaves the vault untouched.
func (v *Vault) Rollover(ctx context.Context, currentAssetValue, currentShareSupply *big.Int, performanceRate, managementRate int64) (*RolloverResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if currentAssetValue == nil || currentAssetValue.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if currentShareSupply == nil || currentShareSupply.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if performanceRate < 0 || performanceRate > 100 || managementRate < 0 || managementRate > 100 {
		return nil, domain.ErrInvalidAmount
	}

	pending := v.state.TotalPendingDeposit
	queuedShares := v.state.QueuedWithdrawShares

	// 1-2. Pre-fee price and the pre-fee value of already-queued exits.
	priceBeforeFee := domain.PricePerShare(currentShareSupply, currentAssetValue, pending, v.unit)
	queuedValueBeforeFee := big.NewInt(0)
	if currentShareSupply.Sign() > 0 {
		queuedValueBeforeFee = domain.SharesToAsset(queuedShares, priceBeforeFee, v.unit)
	}

	// 3. Queued withdrawals appreciated since they were last valued. That
	// growth has not left the fund yet, so it stays fee-eligible.
	withdrawalGrowth := new(big.Int).Sub(queuedValueBeforeFee, v.state.QueuedWithdrawAssetAmount)
	if withdrawalGrowth.Sign() < 0 {
		withdrawalGrowth = big.NewInt(0)
	}

	// 4-5. Fee base and fees.
	feeBase := new(big.Int).Sub(currentAssetValue, queuedValueBeforeFee)
	feeBase.Add(feeBase, withdrawalGrowth)
	performanceFee, managementFee, totalFee := computeFees(feeBase, v.state.LastSettledAssetAmount, pending, performanceRate, managementRate)

	// 6-7. Net value and the closing round's settlement price.
	netValue := new(big.Int).Sub(currentAssetValue, totalFee)
	newPrice := domain.PricePerShare(currentShareSupply, netValue, pending, v.unit)
	if err := domain.CheckBits("share price", newPrice, domain.AmountBits); err != nil {
		return nil, err
	}

	// 8-9. Shares owed for this round's deposits and the post-mint
	// revaluation of queued withdrawals.
	sharesToMint, err := domain.AssetToShares(pending, newPrice, v.unit)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckBits("minted shares", sharesToMint, domain.ShareBits); err != nil {
		return nil, err
	}
	newSupply := new(big.Int).Add(currentShareSupply, sharesToMint)
	if err := domain.CheckBits("share supply", newSupply, domain.ShareBits); err != nil {
		return nil, err
	}
	queuedWithdrawAssetAmount := big.NewInt(0)
	if newSupply.Sign() > 0 {
		queuedWithdrawAssetAmount = domain.SharesToAsset(queuedShares, newPrice, v.unit)
	}
	if err := domain.CheckBits("queued withdrawal amount", queuedWithdrawAssetAmount, domain.AmountBits); err != nil {
		return nil, err
	}

	// 10. Value carried into the next round, net of earmarked payouts.
	newLockedAmount := new(big.Int).Sub(netValue, queuedWithdrawAssetAmount)
	if err := domain.CheckBits("locked amount", newLockedAmount, domain.AmountBits); err != nil {
		return nil, err
	}

	closingRound := v.state.Round
	nextRound := new(big.Int).SetUint64(closingRound + 1)
	if err := domain.CheckBits("round", nextRound, domain.RoundBits); err != nil {
		return nil, err
	}

	// 11. Commit. Mint goes to the pooled holding; depositors claim against
	// the price published for the closing round.
	if sharesToMint.Sign() > 0 {
		if err := v.shares.Mint(ctx, sharesToMint); err != nil {
			return nil, err
		}
	}
	if err := v.prices.Publish(closingRound, newPrice); err != nil {
		// Rounds close exactly once, so a duplicate price means the state
		// machine itself is broken.
		return nil, fmt.Errorf("publish price for round %d: %w", closingRound, err)
	}
	v.state.TotalPendingDeposit = big.NewInt(0)
	v.state.Round = closingRound + 1
	v.state.LastSettledAssetAmount = newLockedAmount
	v.state.QueuedWithdrawAssetAmount = queuedWithdrawAssetAmount

	return &RolloverResult{
		Round:                     closingRound,
		NewPrice:                  newPrice,
		SharesMinted:              sharesToMint,
		NewLockedAmount:           newLockedAmount,
		QueuedWithdrawAssetAmount: queuedWithdrawAssetAmount,
		PerformanceFee:            performanceFee,
		ManagementFee:             managementFee,
		TotalFee:                  totalFee,
	}, nil
}

// computeFees applies the profit gate: fees are only charged when the round
// grew net of new deposits. netGrowth = feeBase - pending; when it exceeds
// the previous round's locked amount, the performance fee is taken on the
// excess and the management fee on the whole net growth, both as truncating
// whole-percentage cuts. A loss round pays nothing.
func computeFees(feeBase, lastLockedAmount, pendingDeposit *big.Int, performanceRate, managementRate int64) (performanceFee, managementFee, totalFee *big.Int) {
	netGrowth := new(big.Int).Sub(feeBase, pendingDeposit)
	if netGrowth.Cmp(lastLockedAmount) <= 0 {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	performanceFee = new(big.Int).Sub(netGrowth, lastLockedAmount)
	performanceFee.Mul(performanceFee, big.NewInt(performanceRate))
	performanceFee.Quo(performanceFee, big100)

	managementFee = new(big.Int).Mul(netGrowth, big.NewInt(managementRate))
	managementFee.Quo(managementFee, big100)

	totalFee = new(big.Int).Add(performanceFee, managementFee)
	return performanceFee, managementFee, totalFee
}
