package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"vault_go/internal/domain"
	"vault_go/internal/execution"
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type testFixture struct {
	vault  *Vault
	assets *execution.PaperAssetCustody
	shares *execution.PaperShareCustody
}

func newTestVault(t *testing.T, params domain.FundParameters) *testFixture {
	t.Helper()
	assets := execution.NewPaperAssetCustody()
	shares := execution.NewPaperShareCustody()
	vault, err := New(params, assets, shares)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testFixture{vault: vault, assets: assets, shares: shares}
}

func defaultParams() domain.FundParameters {
	return domain.FundParameters{Decimals: 18, PerformanceFeeRate: 20, ManagementFeeRate: 2}
}

func mustDeposit(t *testing.T, f *testFixture, depositor string, amount int64) {
	t.Helper()
	f.assets.Credit(depositor, big.NewInt(amount))
	if err := f.vault.Deposit(context.Background(), depositor, big.NewInt(amount)); err != nil {
		t.Fatalf("Deposit(%s, %d) failed: %v", depositor, amount, err)
	}
}

func mustRollover(t *testing.T, f *testFixture, value int64, perfRate, mgmtRate int64) *RolloverResult {
	t.Helper()
	result, err := f.vault.Rollover(context.Background(), big.NewInt(value), f.shares.TotalSupply(), perfRate, mgmtRate)
	if err != nil {
		t.Fatalf("Rollover failed: %v", err)
	}
	return result
}

func TestVault_ScenarioA_GenesisRound(t *testing.T) {
	f := newTestVault(t, defaultParams())
	ctx := context.Background()

	mustDeposit(t, f, "alice", 100)

	state := f.vault.State()
	if state.TotalPendingDeposit.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected pending 100, got %s", state.TotalPendingDeposit)
	}

	result := mustRollover(t, f, 100, 20, 2)

	if result.NewPrice.Cmp(unit) != 0 {
		t.Errorf("expected genesis round price %s, got %s", unit, result.NewPrice)
	}
	if result.SharesMinted.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected 100 shares minted, got %s", result.SharesMinted)
	}
	if result.TotalFee.Sign() != 0 {
		t.Errorf("expected no fee in genesis round, got %s", result.TotalFee)
	}
	if got := f.vault.State().Round; got != 2 {
		t.Errorf("expected round 2, got %d", got)
	}

	claimed, err := f.vault.ClaimAllShares(ctx, "alice")
	if err != nil {
		t.Fatalf("ClaimAllShares failed: %v", err)
	}
	if claimed.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected 100 shares claimed, got %s", claimed)
	}
	if got := f.shares.BalanceOf("alice"); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected alice to own 100 shares, got %s", got)
	}
}

func TestVault_ScenarioB_ProfitableRound(t *testing.T) {
	f := newTestVault(t, defaultParams())

	// Round 1: alice deposits 100, fund settles 1:1.
	mustDeposit(t, f, "alice", 100)
	mustRollover(t, f, 100, 20, 2)

	// Round 2: bob deposits 50; the fund grew 100 -> 110 externally.
	mustDeposit(t, f, "bob", 50)
	result := mustRollover(t, f, 160, 20, 2)

	if result.PerformanceFee.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("expected performance fee 2, got %s", result.PerformanceFee)
	}
	if result.ManagementFee.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("expected management fee 2 (truncated from 2.2), got %s", result.ManagementFee)
	}
	if result.TotalFee.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("expected total fee 4, got %s", result.TotalFee)
	}

	wantPrice, _ := new(big.Int).SetString("1060000000000000000", 10) // 1.06 * unit
	if result.NewPrice.Cmp(wantPrice) != 0 {
		t.Errorf("expected price %s, got %s", wantPrice, result.NewPrice)
	}
	if result.SharesMinted.Cmp(big.NewInt(47)) != 0 {
		t.Errorf("expected 47 shares minted (truncated), got %s", result.SharesMinted)
	}
	if result.NewLockedAmount.Cmp(big.NewInt(156)) != 0 {
		t.Errorf("expected locked amount 156, got %s", result.NewLockedAmount)
	}

	// Conservation: newSupply * newPrice / unit never exceeds net value.
	supplyValue := domain.SharesToAsset(f.shares.TotalSupply(), result.NewPrice, unit)
	if supplyValue.Cmp(big.NewInt(156)) > 0 {
		t.Errorf("supply value %s exceeds net value 156", supplyValue)
	}
}

func TestVault_ScenarioC_RoundGating(t *testing.T) {
	f := newTestVault(t, defaultParams())
	ctx := context.Background()

	mustDeposit(t, f, "alice", 100)
	mustRollover(t, f, 100, 20, 2)

	// Round 2: queue 30 shares for exit. Auto-claim recognizes the 100
	// shares first.
	if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(30)); err != nil {
		t.Fatalf("InitiateWithdrawal failed: %v", err)
	}
	if got := f.vault.State().QueuedWithdrawShares; got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected 30 queued shares, got %s", got)
	}

	// Same-round completion must fail: round 2's price is not final.
	if _, err := f.vault.CompleteWithdrawal(ctx, "alice"); !errors.Is(err, domain.ErrRoundNotClosed) {
		t.Fatalf("expected ErrRoundNotClosed, got %v", err)
	}

	mustRollover(t, f, 100, 20, 2)

	amount, err := f.vault.CompleteWithdrawal(ctx, "alice")
	if err != nil {
		t.Fatalf("CompleteWithdrawal failed: %v", err)
	}
	if amount.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("expected payout 30, got %s", amount)
	}
	if got := f.assets.Balance("alice"); got.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("expected alice asset balance 30, got %s", got)
	}
	if got := f.vault.State().QueuedWithdrawShares; got.Sign() != 0 {
		t.Errorf("expected queued shares cleared, got %s", got)
	}
	if got := f.shares.TotalSupply(); got.Cmp(big.NewInt(70)) != 0 {
		t.Errorf("expected supply 70 after burn, got %s", got)
	}
}

func TestVault_Deposit(t *testing.T) {
	t.Run("zero amount rejected", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		err := f.vault.Deposit(context.Background(), "alice", big.NewInt(0))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("below minimum rejected", func(t *testing.T) {
		params := defaultParams()
		params.MinDeposit = big.NewInt(10)
		f := newTestVault(t, params)
		f.assets.Credit("alice", big.NewInt(5))
		err := f.vault.Deposit(context.Background(), "alice", big.NewInt(5))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("cap enforced on projected fund value", func(t *testing.T) {
		params := defaultParams()
		params.DepositCap = big.NewInt(100)
		f := newTestVault(t, params)
		mustDeposit(t, f, "alice", 60)
		f.assets.Credit("bob", big.NewInt(50))
		err := f.vault.Deposit(context.Background(), "bob", big.NewInt(50))
		if !errors.Is(err, domain.ErrCapExceeded) {
			t.Errorf("expected ErrCapExceeded, got %v", err)
		}
		// Nothing committed for bob.
		if _, ok := f.vault.Receipt("bob"); ok {
			t.Error("rejected deposit left a receipt behind")
		}
		if got := f.vault.State().TotalPendingDeposit; got.Cmp(big.NewInt(60)) != 0 {
			t.Errorf("pending changed to %s", got)
		}
	})

	t.Run("same round deposits accumulate", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		mustDeposit(t, f, "alice", 60)
		mustDeposit(t, f, "alice", 40)
		receipt, ok := f.vault.Receipt("alice")
		if !ok {
			t.Fatal("missing receipt")
		}
		if receipt.Round != 1 || receipt.Amount.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("expected round 1 amount 100, got round %d amount %s", receipt.Round, receipt.Amount)
		}
	})

	t.Run("new round deposit folds old pending into shares", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)
		mustDeposit(t, f, "alice", 50)

		receipt, _ := f.vault.Receipt("alice")
		if receipt.Round != 2 {
			t.Errorf("expected receipt at round 2, got %d", receipt.Round)
		}
		if receipt.Amount.Cmp(big.NewInt(50)) != 0 {
			t.Errorf("expected pending 50, got %s", receipt.Amount)
		}
		if receipt.UnredeemedShares.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("expected 100 unredeemed shares, got %s", receipt.UnredeemedShares)
		}
	})

	t.Run("oversized amount aborts without partial state", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		huge := new(big.Int).Lsh(big.NewInt(1), domain.AmountBits)
		f.assets.Credit("alice", huge)
		err := f.vault.Deposit(context.Background(), "alice", huge)
		if !errors.Is(err, domain.ErrOutOfRange) {
			t.Fatalf("expected ErrOutOfRange, got %v", err)
		}
		if f.vault.State().TotalPendingDeposit.Sign() != 0 {
			t.Error("pending mutated by rejected deposit")
		}
		if got := f.assets.FundBalance(); got.Sign() != 0 {
			t.Errorf("custody moved %s on rejected deposit", got)
		}
	})
}

func TestVault_ClaimShares(t *testing.T) {
	t.Run("max claim is idempotent", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		first, err := f.vault.ClaimAllShares(ctx, "alice")
		if err != nil {
			t.Fatalf("first claim failed: %v", err)
		}
		if first.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("expected 100, got %s", first)
		}

		second, err := f.vault.ClaimAllShares(ctx, "alice")
		if err != nil {
			t.Fatalf("second claim failed: %v", err)
		}
		if second.Sign() != 0 {
			t.Errorf("expected second claim to transfer nothing, got %s", second)
		}
	})

	t.Run("partial claim keeps remainder", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		claimed, err := f.vault.ClaimShares(ctx, "alice", big.NewInt(40))
		if err != nil {
			t.Fatalf("ClaimShares failed: %v", err)
		}
		if claimed.Cmp(big.NewInt(40)) != 0 {
			t.Fatalf("expected 40, got %s", claimed)
		}
		receipt, _ := f.vault.Receipt("alice")
		if receipt.UnredeemedShares.Cmp(big.NewInt(60)) != 0 {
			t.Errorf("expected 60 unredeemed, got %s", receipt.UnredeemedShares)
		}
		if receipt.Amount.Sign() != 0 {
			t.Errorf("expected absorbed pending amount zeroed, got %s", receipt.Amount)
		}
	})

	t.Run("over-claim rejected", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		_, err := f.vault.ClaimShares(ctx, "alice", big.NewInt(101))
		if !errors.Is(err, domain.ErrInsufficientShares) {
			t.Errorf("expected ErrInsufficientShares, got %v", err)
		}
	})

	t.Run("unknown depositor claims nothing", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		claimed, err := f.vault.ClaimAllShares(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("ClaimAllShares failed: %v", err)
		}
		if claimed.Sign() != 0 {
			t.Errorf("expected 0, got %s", claimed)
		}
	})
}

func TestVault_Withdrawals(t *testing.T) {
	t.Run("same round requests accumulate", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(10)); err != nil {
			t.Fatalf("first initiate failed: %v", err)
		}
		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(5)); err != nil {
			t.Fatalf("second initiate failed: %v", err)
		}
		request, _ := f.vault.Request("alice")
		if request.Shares.Cmp(big.NewInt(15)) != 0 {
			t.Errorf("expected 15 shares queued, got %s", request.Shares)
		}
		if got := f.vault.State().QueuedWithdrawShares; got.Cmp(big.NewInt(15)) != 0 {
			t.Errorf("expected aggregate 15, got %s", got)
		}
	})

	t.Run("open request from earlier round conflicts", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(10)); err != nil {
			t.Fatalf("initiate failed: %v", err)
		}
		mustRollover(t, f, 100, 20, 2)

		err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(5))
		if !errors.Is(err, domain.ErrConflictingWithdrawal) {
			t.Errorf("expected ErrConflictingWithdrawal, got %v", err)
		}
	})

	t.Run("completed request allows a new one", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(10)); err != nil {
			t.Fatalf("initiate failed: %v", err)
		}
		mustRollover(t, f, 100, 20, 2)
		if _, err := f.vault.CompleteWithdrawal(ctx, "alice"); err != nil {
			t.Fatalf("complete failed: %v", err)
		}

		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(5)); err != nil {
			t.Errorf("new request after completion failed: %v", err)
		}
	})

	t.Run("uncovered request rejects without claiming", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(150))
		if !errors.Is(err, domain.ErrInsufficientShares) {
			t.Fatalf("expected ErrInsufficientShares, got %v", err)
		}
		// The rejection must not have run the auto-claim.
		if got := f.shares.BalanceOf("alice"); got.Sign() != 0 {
			t.Errorf("rejected request released %s shares", got)
		}
		receipt, _ := f.vault.Receipt("alice")
		if receipt.Amount.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("rejected request absorbed the pending amount, got %s", receipt.Amount)
		}
		if got := f.vault.State().QueuedWithdrawShares; got.Sign() != 0 {
			t.Errorf("rejected request queued %s shares", got)
		}

		// The covered amount still goes through.
		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(100)); err != nil {
			t.Errorf("covered request failed: %v", err)
		}
	})

	t.Run("already claimed shares cover a request", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 20, 2)

		if _, err := f.vault.ClaimAllShares(ctx, "alice"); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(100)); err != nil {
			t.Errorf("request against owned shares failed: %v", err)
		}
	})

	t.Run("underfunded completion leaves the request collectable", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		ctx := context.Background()
		mustDeposit(t, f, "alice", 100)
		mustRollover(t, f, 100, 0, 0)
		if err := f.vault.InitiateWithdrawal(ctx, "alice", big.NewInt(100)); err != nil {
			t.Fatalf("initiate failed: %v", err)
		}
		// The position doubled on paper, but the gains never reached asset
		// custody: the payout of 200 exceeds the fund's 100.
		mustRollover(t, f, 200, 0, 0)

		if _, err := f.vault.CompleteWithdrawal(ctx, "alice"); err == nil {
			t.Fatal("expected completion against underfunded custody to fail")
		}
		if got := f.shares.TotalSupply(); got.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("failed completion burned shares, supply %s", got)
		}
		request, _ := f.vault.Request("alice")
		if !request.Open() || request.Shares.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("failed completion mutated the request: %+v", request)
		}
		if got := f.vault.State().QueuedWithdrawShares; got.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("failed completion changed queued shares to %s", got)
		}

		// Once custody catches up the same request pays out in full.
		mustDeposit(t, f, "bob", 150)
		amount, err := f.vault.CompleteWithdrawal(ctx, "alice")
		if err != nil {
			t.Fatalf("retried completion failed: %v", err)
		}
		if amount.Cmp(big.NewInt(200)) != 0 {
			t.Errorf("expected payout 200, got %s", amount)
		}
		if got := f.assets.Balance("alice"); got.Cmp(big.NewInt(200)) != 0 {
			t.Errorf("expected alice asset balance 200, got %s", got)
		}
		if got := f.shares.TotalSupply(); got.Sign() != 0 {
			t.Errorf("expected supply burned to zero, got %s", got)
		}
	})

	t.Run("no open request is a zero withdrawal", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		_, err := f.vault.CompleteWithdrawal(context.Background(), "alice")
		if !errors.Is(err, domain.ErrZeroWithdrawal) {
			t.Errorf("expected ErrZeroWithdrawal, got %v", err)
		}
	})

	t.Run("zero share request rejected", func(t *testing.T) {
		f := newTestVault(t, defaultParams())
		err := f.vault.InitiateWithdrawal(context.Background(), "alice", big.NewInt(0))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})
}
