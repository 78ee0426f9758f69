package common

import (
	"errors"

	"trvault/crypto"
)

var (
	ErrModulePaused     = errors.New("module paused")
	ErrStrategyPaused   = errors.New("strategy paused")
	ErrStrategyShutdown = errors.New("strategy shutting down")
)

// PauseView reports module-wide pause switches.
type PauseView interface {
	IsPaused(module string) bool
}

// StrategyView reports per-strategy pause and shutdown flags. The treasury
// core queries these but never mutates them.
type StrategyView interface {
	IsStrategyPaused(strategy crypto.Address) bool
	IsShuttingDown(strategy crypto.Address) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StrategyGuard rejects operations against a paused strategy and, when
// borrowing is true, against a strategy that is shutting down. Repayments stay
// collectible through shutdown.
func StrategyGuard(v StrategyView, strategy crypto.Address, borrowing bool) error {
	if v == nil {
		return nil
	}
	if v.IsStrategyPaused(strategy) {
		return ErrStrategyPaused
	}
	if borrowing && v.IsShuttingDown(strategy) {
		return ErrStrategyShutdown
	}
	return nil
}
