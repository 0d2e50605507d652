package storage

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"vault_go/internal/domain"
	"vault_go/internal/engine"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// FundStateRecord is the singleton round-state row. Big integers are stored
// as decimal strings; SQLite integers cannot carry 104/128-bit quantities.
type FundStateRecord struct {
	ID                        uint `gorm:"primaryKey"`
	Round                     uint64
	TotalPendingDeposit       string
	QueuedWithdrawShares      string
	LastSettledAssetAmount    string
	QueuedWithdrawAssetAmount string
	UpdatedAt                 time.Time
}

// RoundPriceRecord is one settled round price. Append-only.
type RoundPriceRecord struct {
	Round     uint64 `gorm:"primaryKey"`
	Price     string
	CreatedAt time.Time
}

// DepositReceiptRecord is one depositor's receipt.
type DepositReceiptRecord struct {
	Depositor        string `gorm:"primaryKey"`
	Round            uint64
	Amount           string
	UnredeemedShares string
	UpdatedAt        time.Time
}

// WithdrawalRequestRecord is one depositor's withdrawal request.
type WithdrawalRequestRecord struct {
	Depositor string `gorm:"primaryKey"`
	Round     uint64
	Shares    string
	UpdatedAt time.Time
}

// Storage persists vault state to SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path and migrates the
// schema.
func NewStorage(path string) (*Storage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&FundStateRecord{}, &RoundPriceRecord{}, &DepositReceiptRecord{}, &WithdrawalRequestRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveSnapshot writes the whole vault snapshot in one transaction.
func (s *Storage) SaveSnapshot(snap *engine.Snapshot) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		state := &FundStateRecord{
			ID:                        1,
			Round:                     snap.State.Round,
			TotalPendingDeposit:       snap.State.TotalPendingDeposit.String(),
			QueuedWithdrawShares:      snap.State.QueuedWithdrawShares.String(),
			LastSettledAssetAmount:    snap.State.LastSettledAssetAmount.String(),
			QueuedWithdrawAssetAmount: snap.State.QueuedWithdrawAssetAmount.String(),
			UpdatedAt:                 time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error; err != nil {
			return err
		}

		for round, price := range snap.Prices {
			record := &RoundPriceRecord{Round: round, Price: price.String()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error; err != nil {
				return err
			}
		}

		for depositor, receipt := range snap.Receipts {
			record := &DepositReceiptRecord{
				Depositor:        depositor,
				Round:            receipt.Round,
				Amount:           receipt.Amount.String(),
				UnredeemedShares: receipt.UnredeemedShares.String(),
				UpdatedAt:        time.Now(),
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
				return err
			}
		}

		for depositor, request := range snap.Requests {
			record := &WithdrawalRequestRecord{
				Depositor: depositor,
				Round:     request.Round,
				Shares:    request.Shares.String(),
				UpdatedAt: time.Now(),
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot reconstitutes the persisted vault state. A fresh database
// returns nil, nil: never having saved is not an error.
func (s *Storage) LoadSnapshot() (*engine.Snapshot, error) {
	var state FundStateRecord
	err := s.db.First(&state, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &engine.Snapshot{
		State:    domain.NewRoundState(),
		Prices:   make(map[uint64]*big.Int),
		Receipts: make(map[string]*domain.DepositReceipt),
		Requests: make(map[string]*domain.WithdrawalRequest),
	}
	snap.State.Round = state.Round
	if snap.State.TotalPendingDeposit, err = parseBig("total pending deposit", state.TotalPendingDeposit); err != nil {
		return nil, err
	}
	if snap.State.QueuedWithdrawShares, err = parseBig("queued withdrawal shares", state.QueuedWithdrawShares); err != nil {
		return nil, err
	}
	if snap.State.LastSettledAssetAmount, err = parseBig("last settled amount", state.LastSettledAssetAmount); err != nil {
		return nil, err
	}
	if snap.State.QueuedWithdrawAssetAmount, err = parseBig("queued withdrawal amount", state.QueuedWithdrawAssetAmount); err != nil {
		return nil, err
	}

	var prices []RoundPriceRecord
	if err := s.db.Find(&prices).Error; err != nil {
		return nil, err
	}
	for _, record := range prices {
		price, err := parseBig("round price", record.Price)
		if err != nil {
			return nil, err
		}
		snap.Prices[record.Round] = price
	}

	var receipts []DepositReceiptRecord
	if err := s.db.Find(&receipts).Error; err != nil {
		return nil, err
	}
	for _, record := range receipts {
		receipt := domain.NewDepositReceipt()
		receipt.Round = record.Round
		if receipt.Amount, err = parseBig("receipt amount", record.Amount); err != nil {
			return nil, err
		}
		if receipt.UnredeemedShares, err = parseBig("unredeemed shares", record.UnredeemedShares); err != nil {
			return nil, err
		}
		snap.Receipts[record.Depositor] = receipt
	}

	var requests []WithdrawalRequestRecord
	if err := s.db.Find(&requests).Error; err != nil {
		return nil, err
	}
	for _, record := range requests {
		request := domain.NewWithdrawalRequest()
		request.Round = record.Round
		if request.Shares, err = parseBig("request shares", record.Shares); err != nil {
			return nil, err
		}
		snap.Requests[record.Depositor] = request
	}

	return snap, nil
}

func parseBig(field, value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt %s in database: %q", field, value)
	}
	return parsed, nil
}
