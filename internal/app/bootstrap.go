package app

import (
	"log/slog"

	"vault_go/internal/engine"
	"vault_go/internal/execution"
	"vault_go/internal/infra"
	"vault_go/internal/infra/storage"
	"vault_go/internal/infra/stream"
	"vault_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Vault    *engine.Vault
	Service  *service.FundService
	Hub      *stream.Hub
	Assets   *execution.PaperAssetCustody
	Shares   *execution.PaperShareCustody
	Position *execution.PaperPositionSource
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, storage,
// state restore and service wiring.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping vault daemon...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Paper collaborators (simulated custody and position)
	b.Assets = execution.NewPaperAssetCustody()
	b.Shares = execution.NewPaperShareCustody()
	b.Position = execution.NewPaperPositionSource()

	// 5. Restore vault state, or start at genesis
	snap, err := store.LoadSnapshot()
	if err != nil {
		return err
	}
	vault, err := engine.Restore(cfg.FundParameters(), b.Assets, b.Shares, snap)
	if err != nil {
		return err
	}
	b.Vault = vault
	if snap != nil {
		slog.Info("✅ Vault state restored", slog.Uint64("round", snap.State.Round))
	} else {
		slog.Info("✅ Vault started at genesis")
	}
	infra.GlobalMetrics.SetCurrentRound(vault.State().Round)

	// 6. Stream hub and service facade
	b.Hub = stream.NewHub()
	b.Service = service.NewFundService(vault, b.Position, b.Shares, store, b.Hub, cfg.Rollover.AdminKey)

	return nil
}
