package treasury

import (
	"github.com/holiman/uint256"

	"trvault/crypto"
)

// The reserve allocator decides how a withdrawal is sourced across the
// two-tier reserve: the vault's local balance first, then a pull through the
// configured base strategy that also refills the local balance to the buffer
// floor. Plans are computed before any mutation so a borrow either applies
// fully or not at all.

type withdrawalPlan struct {
	// pull is the amount drawn from the base strategy, zero for local-only.
	pull *uint256.Int
	// newReserve is the vault's local balance after the withdrawal.
	newReserve *uint256.Int
}

// planWithdrawal sizes the sourcing of amount out of the local reserve and,
// when it is short, the base strategy. A borrow-forced pull refills the local
// balance to exactly BufferThreshold; with no buffer configured it pulls just
// the shortfall. When the borrowing strategy is itself the base strategy the
// delegate path is skipped entirely.
func (e *Engine) planWithdrawal(cfg *TokenConfig, strategy crypto.Address, token string, amount *uint256.Int) (*withdrawalPlan, error) {
	local, err := e.loadReserve(token)
	if err != nil {
		return nil, err
	}
	if local.Cmp(amount) >= 0 {
		return &withdrawalPlan{
			pull:       uint256.NewInt(0),
			newReserve: new(uint256.Int).Sub(local, amount),
		}, nil
	}
	selfPull := cfg.BaseStrategy.Equal(strategy)
	if cfg.BaseStrategy.IsZero() || selfPull {
		return nil, &InsufficientBalanceError{Token: token, Requested: amount.Clone(), Available: local}
	}

	shortfall := new(uint256.Int).Sub(amount, local)
	pull, overflow := new(uint256.Int).AddOverflow(shortfall, cfg.BufferThreshold)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	baseBalance := e.transport.BalanceOf(cfg.BaseStrategy, token)
	if baseBalance.Cmp(shortfall) < 0 {
		reachable, overflow := new(uint256.Int).AddOverflow(local, baseBalance)
		if overflow {
			return nil, ErrArithmeticOverflow
		}
		return nil, &InsufficientBalanceError{Token: token, Requested: amount.Clone(), Available: reachable}
	}
	if baseBalance.Cmp(pull) < 0 {
		// Base strategy cannot refill the whole buffer; take what it has.
		pull = baseBalance.Clone()
	}
	newReserve := new(uint256.Int).Add(local, pull)
	newReserve.Sub(newReserve, amount)
	return &withdrawalPlan{pull: pull, newReserve: newReserve}, nil
}

type depositPlan struct {
	// forward is the amount pushed on to the base strategy, zero when the
	// inflow stays local.
	forward *uint256.Int
	// newReserve is the vault's local balance after the deposit.
	newReserve *uint256.Int
}

// planDeposit routes a repayment inflow. Funds land locally; once the local
// balance would exceed BufferThresholdUpper the excess above BufferThreshold
// is forwarded to the base strategy, so the retained balance never drops
// below the buffer floor.
func (e *Engine) planDeposit(cfg *TokenConfig, strategy crypto.Address, token string, amount *uint256.Int) (*depositPlan, error) {
	local, err := e.loadReserve(token)
	if err != nil {
		return nil, err
	}
	newReserve, overflow := new(uint256.Int).AddOverflow(local, amount)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	plan := &depositPlan{forward: uint256.NewInt(0), newReserve: newReserve}
	if cfg.BaseStrategy.IsZero() || cfg.BaseStrategy.Equal(strategy) {
		return plan, nil
	}
	if newReserve.Cmp(cfg.BufferThresholdUpper) <= 0 {
		return plan, nil
	}
	plan.forward = new(uint256.Int).Sub(newReserve, cfg.BufferThreshold)
	plan.newReserve = cfg.BufferThreshold.Clone()
	return plan, nil
}

// pullFromBase settles a draw on the base strategy's own position (an inflow
// to the vault nets against the base strategy's debt as a repayment, any
// remainder becoming base credit), commits it, then performs the transfer and
// burn. Callers must hold an open journal frame.
func (e *Engine) pullFromBase(cfg *TokenConfig, token string, pull *uint256.Int, issuer DebtAccountingSurface) error {
	if pull == nil || pull.IsZero() {
		return nil
	}
	basePos, err := e.loadOrCreatePosition(cfg.BaseStrategy, token)
	if err != nil {
		return err
	}
	baseBurn, _, err := settleRepay(basePos, pull)
	if err != nil {
		return err
	}
	if err := e.writePosition(cfg.BaseStrategy, token, basePos); err != nil {
		return err
	}
	if err := e.transferJournaled(token, cfg.BaseStrategy, e.vault, pull); err != nil {
		return err
	}
	return e.burnSettledDebt(cfg.BaseStrategy, token, baseBurn, issuer)
}

// pushToBase settles a forward to the base strategy (an outflow from the
// vault nets against the base strategy's credit, the residual minted as base
// debt), commits it, then transfers and mints. Callers must hold an open
// journal frame.
func (e *Engine) pushToBase(cfg *TokenConfig, token string, forward *uint256.Int, issuer DebtAccountingSurface) error {
	if forward == nil || forward.IsZero() {
		return nil
	}
	basePos, err := e.loadOrCreatePosition(cfg.BaseStrategy, token)
	if err != nil {
		return err
	}
	baseDebt, err := settleBorrow(basePos, forward)
	if err != nil {
		return err
	}
	if err := e.writePosition(cfg.BaseStrategy, token, basePos); err != nil {
		return err
	}
	if err := e.transferJournaled(token, e.vault, cfg.BaseStrategy, forward); err != nil {
		return err
	}
	if baseDebt.IsZero() {
		return nil
	}
	return e.mintJournaled(issuer, cfg.BaseStrategy, baseDebt)
}

// burnSettledDebt redeems debt already removed from the ledger. A burn that
// comes back short (a non-conforming debt surface) is re-netted through the
// repay arithmetic on a freshly loaded position, so the credit ultimately
// created equals the repaid amount minus what was actually burned.
func (e *Engine) burnSettledDebt(debtor crypto.Address, token string, debtBurned *uint256.Int, issuer DebtAccountingSurface) error {
	if debtBurned == nil || debtBurned.IsZero() {
		return nil
	}
	actual, err := e.burnJournaled(issuer, debtor, debtBurned)
	if err != nil {
		return err
	}
	if actual.Cmp(debtBurned) >= 0 {
		return nil
	}
	shortfall := new(uint256.Int).Sub(debtBurned, actual)
	// Reload: the burn may have reentered and moved the position.
	pos, err := e.loadOrCreatePosition(debtor, token)
	if err != nil {
		return err
	}
	if _, _, err := settleRepay(pos, shortfall); err != nil {
		return err
	}
	return e.writePosition(debtor, token, pos)
}
