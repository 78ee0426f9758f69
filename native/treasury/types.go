package treasury

import (
	"github.com/holiman/uint256"

	"trvault/crypto"
)

// Position tracks the credit/debt pair for a (strategy, token) key. Amounts
// are 256-bit unsigned integers in base units; at most one of Credit and Debt
// is ever positive. The record is created implicitly when a ceiling is first
// registered for the pair and is never destroyed.
type Position struct {
	// Credit is the reverse balance created when repayments exceed
	// outstanding debt. It extends the effective borrowing ceiling.
	Credit *uint256.Int
	// Debt is the net outstanding amount issued through the debt surface.
	Debt *uint256.Int
	// Ceiling is the maximum net debt the strategy may hold for the token.
	Ceiling *uint256.Int
	// Enabled gates new borrows. Removing a strategy clears the flag while
	// leaving existing debt collectible through repay.
	Enabled bool
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Enabled: p.Enabled}
	if p.Credit != nil {
		clone.Credit = p.Credit.Clone()
	}
	if p.Debt != nil {
		clone.Debt = p.Debt.Clone()
	}
	if p.Ceiling != nil {
		clone.Ceiling = p.Ceiling.Clone()
	}
	return clone
}

func (p *Position) ensureDefaults() {
	if p.Credit == nil {
		p.Credit = uint256.NewInt(0)
	}
	if p.Debt == nil {
		p.Debt = uint256.NewInt(0)
	}
	if p.Ceiling == nil {
		p.Ceiling = uint256.NewInt(0)
	}
}

// TokenConfig captures the reserve routing parameters for a borrowable token.
type TokenConfig struct {
	// Token is the opaque token identifier the config applies to.
	Token string
	// BaseStrategy designates the delegate reserve withdrawals may pull
	// through when the local balance is short. Zero address means none.
	BaseStrategy crypto.Address
	// BufferThreshold is the minimum local balance the vault retains before
	// pulling from the base strategy. Borrow-forced pulls refill the local
	// balance to exactly this level.
	BufferThreshold *uint256.Int
	// BufferThresholdUpper is the idle-refill target, and the high-water mark
	// above which repayment inflows are forwarded to the base strategy.
	BufferThresholdUpper *uint256.Int
}

// Clone returns a deep copy of the token config.
func (c *TokenConfig) Clone() *TokenConfig {
	if c == nil {
		return nil
	}
	clone := &TokenConfig{Token: c.Token, BaseStrategy: c.BaseStrategy}
	if c.BufferThreshold != nil {
		clone.BufferThreshold = c.BufferThreshold.Clone()
	}
	if c.BufferThresholdUpper != nil {
		clone.BufferThresholdUpper = c.BufferThresholdUpper.Clone()
	}
	return clone
}

func (c *TokenConfig) ensureDefaults() {
	if c.BufferThreshold == nil {
		c.BufferThreshold = uint256.NewInt(0)
	}
	if c.BufferThresholdUpper == nil {
		c.BufferThresholdUpper = uint256.NewInt(0)
	}
}
