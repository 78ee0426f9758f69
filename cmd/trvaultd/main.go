package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"trvault/audit"
	"trvault/config"
	"trvault/crypto"
	"trvault/native/treasury"
	"trvault/observability/logging"
	"trvault/rpc"
	treasurystate "trvault/state/treasury"
	"trvault/storage"
)

const keystorePassEnv = "TRVAULT_KEYSTORE_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TRVAULT_ENV"))
	logger := logging.Setup("trvaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	key, err := crypto.LoadFromKeystore(cfg.VaultKeystorePath, os.Getenv(keystorePassEnv))
	if err != nil {
		logger.Error("Failed to unlock vault keystore", slog.Any("error", err))
		os.Exit(1)
	}
	vault := key.PubKey().Address()
	logger.Info("Vault address loaded", slog.String("address", vault.String()))

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	gate := treasury.NewStaticGate()
	gate.SetModulePaused("treasury", cfg.Pauses.Treasury)

	engine := treasury.NewEngine(vault)
	engine.SetState(treasurystate.NewManager(db))
	engine.SetGate(gate)
	engine.SetTransport(treasury.NewBankTransport())

	if err := applyPolicies(engine, cfg.PolicyFile); err != nil {
		logger.Error("Failed to apply token policies", slog.Any("error", err))
		os.Exit(1)
	}

	journal, err := audit.Open(cfg.AuditDatabasePath)
	if err != nil {
		logger.Error("Failed to open audit journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	server := rpc.NewServer(engine, journal, logger, rpc.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Treasury vault listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}

// applyPolicies registers the operator's token policies: reserve routing plus
// per-strategy ceilings. Missing policy files are tolerated so a bare daemon
// can come up and be configured later.
func applyPolicies(engine *treasury.Engine, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	policies, err := config.LoadPolicies(path)
	if err != nil {
		return err
	}
	for _, policy := range policies {
		cfg := treasury.TokenConfig{
			Token:                policy.Token,
			BaseStrategy:         policy.BaseStrategy,
			BufferThreshold:      policy.BufferThreshold,
			BufferThresholdUpper: policy.BufferThresholdUpper,
		}
		if err := engine.SetBorrowToken(cfg, treasury.NewDebtToken()); err != nil {
			return fmt.Errorf("token %s: %w", policy.Token, err)
		}
		for _, ceiling := range policy.Ceilings {
			if err := engine.SetStrategyCeiling(ceiling.Strategy, policy.Token, ceiling.Ceiling); err != nil {
				return fmt.Errorf("token %s strategy %s: %w", policy.Token, ceiling.Strategy.String(), err)
			}
		}
	}
	return nil
}
