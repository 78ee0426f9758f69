package treasury

import "github.com/holiman/uint256"

// The position ledger is pure arithmetic over a single Position. It never
// moves funds or touches the debt surface; callers act on the returned deltas
// after the mutated position has been committed to state. Keeping the two
// concerns apart is what lets a reentrant debt surface observe only fully
// settled positions.

// settleBorrow nets a borrow against existing credit. The returned debtDelta
// is the residual that must be issued as new debt; it is zero when credit
// covered the whole amount. Mutates pos in place.
func settleBorrow(pos *Position, amount *uint256.Int) (*uint256.Int, error) {
	pos.ensureDefaults()
	if pos.Credit.Cmp(amount) >= 0 {
		pos.Credit = new(uint256.Int).Sub(pos.Credit, amount)
		return uint256.NewInt(0), nil
	}
	debtDelta := new(uint256.Int).Sub(amount, pos.Credit)
	pos.Credit = uint256.NewInt(0)
	newDebt, overflow := new(uint256.Int).AddOverflow(pos.Debt, debtDelta)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	pos.Debt = newDebt
	return debtDelta, nil
}

// settleRepay nets a repayment against outstanding debt. debtBurned is the
// amount the caller must redeem through the debt surface; creditDelta is the
// remainder recorded as credit. Mutates pos in place.
func settleRepay(pos *Position, amount *uint256.Int) (debtBurned, creditDelta *uint256.Int, err error) {
	pos.ensureDefaults()
	debtBurned = amount.Clone()
	if debtBurned.Cmp(pos.Debt) > 0 {
		debtBurned = pos.Debt.Clone()
	}
	newDebt, underflow := new(uint256.Int).SubOverflow(pos.Debt, debtBurned)
	if underflow {
		return nil, nil, ErrLedgerInvariant
	}
	pos.Debt = newDebt
	creditDelta = new(uint256.Int).Sub(amount, debtBurned)
	if !creditDelta.IsZero() {
		newCredit, overflow := new(uint256.Int).AddOverflow(pos.Credit, creditDelta)
		if overflow {
			return nil, nil, ErrArithmeticOverflow
		}
		pos.Credit = newCredit
	}
	return debtBurned, creditDelta, nil
}

// checkPositionInvariant reports whether the mutual-exclusion invariant
// holds: credit and debt are never both positive.
func checkPositionInvariant(pos *Position) bool {
	if pos == nil {
		return true
	}
	pos.ensureDefaults()
	return pos.Credit.IsZero() || pos.Debt.IsZero()
}
