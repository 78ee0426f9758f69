package treasury

import (
	"sync"

	"github.com/holiman/uint256"

	"trvault/crypto"
)

// DebtAccountingSurface is the external mint/burn ledger mirroring net debt
// per strategy. It is the untrusted boundary of the engine: nothing prevents
// an implementation from reentering the engine during Mint or Burn, so the
// engine commits all position state before calling in.
type DebtAccountingSurface interface {
	// Mint records amount of new debt attributed to the debtor.
	Mint(debtor crypto.Address, amount *uint256.Int) error
	// Burn retires up to amount of the debtor's recorded debt and returns the
	// amount actually burned, which may be less than requested when the
	// surface's balance is short.
	Burn(debtor crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	// BalanceOf reports the debtor's recorded debt.
	BalanceOf(debtor crypto.Address) *uint256.Int
}

// DebtToken is the minimal honest DebtAccountingSurface: a per-debtor balance
// map with saturating burns.
type DebtToken struct {
	mu       sync.Mutex
	balances map[string]*uint256.Int
}

func NewDebtToken() *DebtToken {
	return &DebtToken{balances: make(map[string]*uint256.Int)}
}

func (t *DebtToken) Mint(debtor crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(debtor.Bytes())
	current := t.balances[key]
	if current == nil {
		current = uint256.NewInt(0)
	}
	updated, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrArithmeticOverflow
	}
	t.balances[key] = updated
	return nil
}

func (t *DebtToken) Burn(debtor crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return uint256.NewInt(0), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(debtor.Bytes())
	current := t.balances[key]
	if current == nil {
		current = uint256.NewInt(0)
	}
	burned := amount.Clone()
	if burned.Cmp(current) > 0 {
		burned = current.Clone()
	}
	t.balances[key] = new(uint256.Int).Sub(current, burned)
	return burned, nil
}

func (t *DebtToken) BalanceOf(debtor crypto.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.balances[string(debtor.Bytes())]
	if current == nil {
		return uint256.NewInt(0)
	}
	return current.Clone()
}
