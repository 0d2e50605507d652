package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"math/big"
	"time"

	"vault_go/internal/domain"
	"vault_go/internal/engine"
	"vault_go/internal/event"
	"vault_go/internal/infra"
)

// Publisher pushes events to stream subscribers.
type Publisher interface {
	Broadcast(v any)
}

// SnapshotStore persists committed vault state.
type SnapshotStore interface {
	SaveSnapshot(snap *engine.Snapshot) error
}

// FundService is the operational facade over the vault engine: it gates the
// rollover behind the administrator capability, feeds the engine the
// externally measured fund value and share supply, persists committed state,
// publishes stream events and records metrics.
type FundService struct {
	vault    *engine.Vault
	position domain.PositionSource
	shares   domain.ShareCustody
	store    SnapshotStore // optional
	pub      Publisher     // optional
	adminKey string
	decimals int
}

// NewFundService wires the facade. Store and publisher may be nil.
func NewFundService(vault *engine.Vault, position domain.PositionSource, shares domain.ShareCustody, store SnapshotStore, pub Publisher, adminKey string) *FundService {
	return &FundService{
		vault:    vault,
		position: position,
		shares:   shares,
		store:    store,
		pub:      pub,
		adminKey: adminKey,
		decimals: vault.Params().Decimals,
	}
}

// Vault exposes the underlying engine for read-only queries.
func (s *FundService) Vault() *engine.Vault {
	return s.vault
}

// Deposit records a pending contribution for the current round.
func (s *FundService) Deposit(ctx context.Context, depositor string, amount *big.Int) error {
	start := time.Now()
	if err := s.vault.Deposit(ctx, depositor, amount); err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Warn("deposit rejected", slog.String("depositor", depositor), slog.Any("error", err))
		return err
	}
	infra.GlobalMetrics.RecordDeposit(time.Since(start).Nanoseconds())
	round := s.vault.State().Round
	s.persist()
	s.publish(event.DepositEvent{
		Type:      event.TypeDeposit,
		Depositor: depositor,
		Round:     round,
		Amount:    event.Scale(amount, s.decimals),
		Ts:        time.Now(),
	})
	slog.Info("deposit recorded",
		slog.String("depositor", depositor),
		slog.Uint64("round", round),
		slog.String("amount", amount.String()))
	return nil
}

// ClaimShares transfers the requested accrued shares to the depositor.
func (s *FundService) ClaimShares(ctx context.Context, depositor string, requested *big.Int) (*big.Int, error) {
	return s.claim(ctx, depositor, func() (*big.Int, error) {
		return s.vault.ClaimShares(ctx, depositor, requested)
	})
}

// ClaimAllShares transfers every accrued share to the depositor.
func (s *FundService) ClaimAllShares(ctx context.Context, depositor string) (*big.Int, error) {
	return s.claim(ctx, depositor, func() (*big.Int, error) {
		return s.vault.ClaimAllShares(ctx, depositor)
	})
}

func (s *FundService) claim(_ context.Context, depositor string, op func() (*big.Int, error)) (*big.Int, error) {
	start := time.Now()
	transferred, err := op()
	if err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Warn("claim rejected", slog.String("depositor", depositor), slog.Any("error", err))
		return nil, err
	}
	if transferred.Sign() == 0 {
		return transferred, nil
	}
	infra.GlobalMetrics.RecordClaim(time.Since(start).Nanoseconds())
	round := s.vault.State().Round
	s.persist()
	s.publish(event.SharesClaimedEvent{
		Type:      event.TypeSharesClaimed,
		Depositor: depositor,
		Round:     round,
		Shares:    event.Scale(transferred, s.decimals),
		Ts:        time.Now(),
	})
	slog.Info("shares claimed",
		slog.String("depositor", depositor),
		slog.String("shares", transferred.String()))
	return transferred, nil
}

// InitiateWithdrawal queues shares for exit at the current round's close.
func (s *FundService) InitiateWithdrawal(ctx context.Context, depositor string, numShares *big.Int) error {
	start := time.Now()
	if err := s.vault.InitiateWithdrawal(ctx, depositor, numShares); err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Warn("withdrawal rejected", slog.String("depositor", depositor), slog.Any("error", err))
		return err
	}
	infra.GlobalMetrics.RecordWithdrawalInitiated(time.Since(start).Nanoseconds())
	round := s.vault.State().Round
	s.persist()
	s.publish(event.WithdrawalEvent{
		Type:      event.TypeWithdrawalInitiated,
		Depositor: depositor,
		Round:     round,
		Shares:    event.Scale(numShares, s.decimals),
		Ts:        time.Now(),
	})
	slog.Info("withdrawal initiated",
		slog.String("depositor", depositor),
		slog.Uint64("round", round),
		slog.String("shares", numShares.String()))
	return nil
}

// CompleteWithdrawal pays out a closed-round withdrawal request.
func (s *FundService) CompleteWithdrawal(ctx context.Context, depositor string) (*big.Int, error) {
	start := time.Now()
	request, _ := s.vault.Request(depositor)
	amount, err := s.vault.CompleteWithdrawal(ctx, depositor)
	if err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Warn("withdrawal completion rejected", slog.String("depositor", depositor), slog.Any("error", err))
		return nil, err
	}
	infra.GlobalMetrics.RecordWithdrawalCompleted(time.Since(start).Nanoseconds())
	s.persist()
	completed := event.WithdrawalEvent{
		Type:      event.TypeWithdrawalCompleted,
		Depositor: depositor,
		Amount:    event.Scale(amount, s.decimals),
		Ts:        time.Now(),
	}
	if request != nil {
		completed.Round = request.Round
		completed.Shares = event.Scale(request.Shares, s.decimals)
	}
	s.publish(completed)
	slog.Info("withdrawal completed",
		slog.String("depositor", depositor),
		slog.String("amount", amount.String()))
	return amount, nil
}

// Rollover closes the current round. Only the administrator capability may
// trigger it; the fund value comes from the position source and the share
// supply from custody.
func (s *FundService) Rollover(ctx context.Context, adminKey string) (*engine.RolloverResult, error) {
	if subtle.ConstantTimeCompare([]byte(adminKey), []byte(s.adminKey)) != 1 {
		infra.GlobalMetrics.RecordError()
		return nil, domain.ErrUnauthorized
	}

	start := time.Now()
	value, err := s.position.CurrentAssetValue(ctx)
	if err != nil {
		infra.GlobalMetrics.RecordError()
		return nil, err
	}
	supply := s.shares.TotalSupply()

	result, err := s.vault.Rollover(ctx, value, supply, s.vault.Params().PerformanceFeeRate, s.vault.Params().ManagementFeeRate)
	if err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Error("rollover failed", slog.Any("error", err))
		return nil, err
	}
	infra.GlobalMetrics.RecordRollover(result.Round+1, time.Since(start).Nanoseconds())
	s.persist()
	s.publish(event.RoundClosedEvent{
		Type:           event.TypeRoundClosed,
		Round:          result.Round,
		PricePerShare:  event.Scale(result.NewPrice, s.decimals),
		SharesMinted:   event.Scale(result.SharesMinted, s.decimals),
		LockedAmount:   event.Scale(result.NewLockedAmount, s.decimals),
		QueuedPayout:   event.Scale(result.QueuedWithdrawAssetAmount, s.decimals),
		PerformanceFee: event.Scale(result.PerformanceFee, s.decimals),
		ManagementFee:  event.Scale(result.ManagementFee, s.decimals),
		Ts:             time.Now(),
	})
	slog.Info("round closed",
		slog.Uint64("round", result.Round),
		slog.String("price", result.NewPrice.String()),
		slog.String("minted", result.SharesMinted.String()),
		slog.String("total_fee", result.TotalFee.String()),
		slog.String("locked", result.NewLockedAmount.String()))
	return result, nil
}

// persist saves the committed snapshot. The vault state is already final at
// this point, so a storage failure is logged rather than surfaced: the next
// successful save catches the database back up.
func (s *FundService) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(s.vault.Snapshot()); err != nil {
		infra.GlobalMetrics.RecordError()
		slog.Error("failed to persist vault snapshot", slog.Any("error", err))
	}
}

func (s *FundService) publish(v any) {
	if s.pub != nil {
		s.pub.Broadcast(v)
	}
}
