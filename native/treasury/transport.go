package treasury

import (
	"sync"

	"github.com/holiman/uint256"

	"trvault/crypto"
)

// FundsTransport moves tokens between holders. The engine mirrors the vault's
// local balance in its own state and uses the transport for the actual moves;
// it never trusts transport balances for ledger arithmetic.
type FundsTransport interface {
	BalanceOf(holder crypto.Address, token string) *uint256.Int
	Transfer(token string, from, to crypto.Address, amount *uint256.Int) error
}

// BankTransport is an in-memory FundsTransport keyed by (token, holder).
type BankTransport struct {
	mu       sync.Mutex
	balances map[string]map[string]*uint256.Int
}

func NewBankTransport() *BankTransport {
	return &BankTransport{balances: make(map[string]map[string]*uint256.Int)}
}

func (b *BankTransport) holders(token string) map[string]*uint256.Int {
	m := b.balances[token]
	if m == nil {
		m = make(map[string]*uint256.Int)
		b.balances[token] = m
	}
	return m
}

// Fund credits a holder out of thin air. Bootstrap and test helper.
func (b *BankTransport) Fund(holder crypto.Address, token string, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.holders(token)
	key := string(holder.Bytes())
	current := m[key]
	if current == nil {
		current = uint256.NewInt(0)
	}
	m[key] = new(uint256.Int).Add(current, amount)
}

func (b *BankTransport) BalanceOf(holder crypto.Address, token string) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.holders(token)[string(holder.Bytes())]
	if current == nil {
		return uint256.NewInt(0)
	}
	return current.Clone()
}

func (b *BankTransport) Transfer(token string, from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.holders(token)
	fromKey := string(from.Bytes())
	fromBal := m[fromKey]
	if fromBal == nil || fromBal.Cmp(amount) < 0 {
		return ErrTransferFailed
	}
	toKey := string(to.Bytes())
	toBal := m[toKey]
	if toBal == nil {
		toBal = uint256.NewInt(0)
	}
	m[fromKey] = new(uint256.Int).Sub(fromBal, amount)
	m[toKey] = new(uint256.Int).Add(toBal, amount)
	return nil
}
