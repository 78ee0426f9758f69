package treasury

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrNilState           = errors.New("treasury engine: state not configured")
	ErrNotEnabled         = errors.New("treasury engine: token or strategy not enabled")
	ErrPaused             = errors.New("treasury engine: paused")
	ErrShutdown           = errors.New("treasury engine: strategy shutting down")
	ErrZeroAmount         = errors.New("treasury engine: amount must be positive")
	ErrCeilingBreached    = errors.New("treasury engine: borrow exceeds available ceiling")
	ErrInsufficientFunds  = errors.New("treasury engine: insufficient balance")
	ErrArithmeticOverflow = errors.New("treasury engine: arithmetic overflow")
	ErrTransferFailed     = errors.New("treasury engine: transfer failed")
	ErrLedgerInvariant    = errors.New("treasury engine: ledger invariant violation")
	ErrNoIssuer           = errors.New("treasury engine: debt surface not bound for token")
	ErrInvalidConfig      = errors.New("treasury engine: invalid token config")
)

// CeilingBreachedError reports a borrow request above the strategy's
// available ceiling. It unwraps to ErrCeilingBreached.
type CeilingBreachedError struct {
	Available *uint256.Int
	Requested *uint256.Int
}

func (e *CeilingBreachedError) Error() string {
	return fmt.Sprintf("treasury engine: borrow of %s exceeds available %s", e.Requested.Dec(), e.Available.Dec())
}

func (e *CeilingBreachedError) Unwrap() error { return ErrCeilingBreached }

// InsufficientBalanceError reports a withdrawal the reserve hierarchy cannot
// source. It unwraps to ErrInsufficientFunds.
type InsufficientBalanceError struct {
	Token     string
	Requested *uint256.Int
	Available *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("treasury engine: %s withdrawal of %s exceeds available %s", e.Token, e.Requested.Dec(), e.Available.Dec())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientFunds }
