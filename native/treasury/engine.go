package treasury

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"

	"trvault/crypto"
	nativecommon "trvault/native/common"
)

const moduleName = "treasury"

type engineState interface {
	TokenConfig(token string) (*TokenConfig, error)
	PutTokenConfig(cfg *TokenConfig) error
	Position(strategy crypto.Address, token string) (*Position, error)
	PutPosition(strategy crypto.Address, token string, pos *Position) error
	Reserve(token string) (*uint256.Int, error)
	PutReserve(token string, balance *uint256.Int) error
}

// Engine orchestrates borrow and repay settlement against the treasury
// reserves. All position and reserve mutations for an operation are committed
// to the state store before the debt surface or the funds transport is
// invoked, so a reentrant call through either boundary only ever observes
// fully settled positions. Any failure after the first mutation rolls the
// whole operation back.
type Engine struct {
	state     engineState
	gate      AccessGate
	transport FundsTransport
	issuers   map[string]DebtAccountingSurface
	vault     crypto.Address
	journal   journal
}

// NewEngine constructs an engine custodying funds under the vault address.
func NewEngine(vault crypto.Address) *Engine {
	return &Engine{
		vault:   vault,
		issuers: make(map[string]DebtAccountingSurface),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetGate wires the pause/shutdown view consulted before every mutation.
func (e *Engine) SetGate(gate AccessGate) {
	if e == nil {
		return
	}
	e.gate = gate
}

// SetTransport wires the funds transport used for actual token moves.
func (e *Engine) SetTransport(transport FundsTransport) {
	if e == nil {
		return
	}
	e.transport = transport
}

// VaultAddress returns the custody address the engine operates.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

// --- administration ---

// SetBorrowToken registers or updates the reserve routing config for a token
// and binds its debt accounting surface.
func (e *Engine) SetBorrowToken(cfg TokenConfig, surface DebtAccountingSurface) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return ErrInvalidConfig
	}
	cfg.ensureDefaults()
	if cfg.BufferThresholdUpper.Cmp(cfg.BufferThreshold) < 0 {
		return ErrInvalidConfig
	}
	if err := e.state.PutTokenConfig(cfg.Clone()); err != nil {
		return err
	}
	if surface != nil {
		e.issuers[cfg.Token] = surface
	}
	return nil
}

// SetStrategyCeiling enables the strategy for the token and sets its debt
// ceiling, creating the position implicitly on first registration.
func (e *Engine) SetStrategyCeiling(strategy crypto.Address, token string, ceiling *uint256.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if _, err := e.tokenConfig(token); err != nil {
		return err
	}
	pos, err := e.loadOrCreatePosition(strategy, token)
	if err != nil {
		return err
	}
	if ceiling == nil {
		ceiling = uint256.NewInt(0)
	}
	pos.Ceiling = ceiling.Clone()
	pos.Enabled = true
	return e.writePosition(strategy, token, pos)
}

// RemoveStrategy zeroes the strategy's ceiling and disables further borrows.
// Outstanding debt remains collectible through repay.
func (e *Engine) RemoveStrategy(strategy crypto.Address, token string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrNotEnabled
	}
	pos.Ceiling = uint256.NewInt(0)
	pos.Enabled = false
	return e.writePosition(strategy, token, pos)
}

// DepositReserve moves funds from the funder into the vault's local reserve
// without touching any position. Bootstrap path for seeding liquidity.
func (e *Engine) DepositReserve(funder crypto.Address, token string, amount *uint256.Int) error {
	if e == nil || e.state == nil || e.transport == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if _, err := e.tokenConfig(token); err != nil {
		return err
	}
	local, err := e.loadReserve(token)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(local, amount)
	if overflow {
		return ErrArithmeticOverflow
	}
	if err := e.transport.Transfer(token, funder, e.vault, amount); err != nil {
		return ErrTransferFailed
	}
	return e.writeReserve(token, updated)
}

// TopUpBuffer is the idle refill path: when the local balance has fallen
// below BufferThreshold it pulls from the base strategy up to
// BufferThresholdUpper. Borrow-forced refills target BufferThreshold instead;
// the asymmetry is deliberate.
func (e *Engine) TopUpBuffer(token string) error {
	if e == nil || e.state == nil || e.transport == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.gate, moduleName); err != nil {
		return ErrPaused
	}
	cfg, err := e.tokenConfig(token)
	if err != nil {
		return err
	}
	if cfg.BaseStrategy.IsZero() {
		return ErrNotEnabled
	}
	issuer, err := e.issuerFor(token)
	if err != nil {
		return err
	}
	local, err := e.loadReserve(token)
	if err != nil {
		return err
	}
	if local.Cmp(cfg.BufferThreshold) >= 0 {
		return nil
	}
	pull := new(uint256.Int).Sub(cfg.BufferThresholdUpper, local)
	baseBalance := e.transport.BalanceOf(cfg.BaseStrategy, token)
	if baseBalance.Cmp(pull) < 0 {
		pull = baseBalance.Clone()
	}
	if pull.IsZero() {
		return nil
	}

	e.journal.begin()
	if err := e.topUp(cfg, token, local, pull, issuer); err != nil {
		e.journal.revert()
		return err
	}
	e.journal.commit()
	return nil
}

func (e *Engine) topUp(cfg *TokenConfig, token string, local, pull *uint256.Int, issuer DebtAccountingSurface) error {
	if err := e.writeReserve(token, new(uint256.Int).Add(local, pull)); err != nil {
		return err
	}
	return e.pullFromBase(cfg, token, pull, issuer)
}

// --- queries ---

// StrategyPosition returns a copy of the (strategy, token) position.
func (e *Engine) StrategyPosition(strategy crypto.Address, token string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNotEnabled
	}
	return pos, nil
}

// AvailableToBorrow reports the strategy's remaining headroom for the token:
// ceiling plus credit minus outstanding debt.
func (e *Engine) AvailableToBorrow(strategy crypto.Address, token string) (*uint256.Int, error) {
	pos, err := e.StrategyPosition(strategy, token)
	if err != nil {
		return nil, err
	}
	return availableToBorrow(pos)
}

// LocalBalance reports the vault's tracked local reserve for the token.
func (e *Engine) LocalBalance(token string) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadReserve(token)
}

// TotalAvailable reports the local reserve plus whatever the base strategy
// holds on the transport.
func (e *Engine) TotalAvailable(token string) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, err := e.tokenConfig(token)
	if err != nil {
		return nil, err
	}
	local, err := e.loadReserve(token)
	if err != nil {
		return nil, err
	}
	if cfg.BaseStrategy.IsZero() {
		return local, nil
	}
	total, overflow := new(uint256.Int).AddOverflow(local, e.transport.BalanceOf(cfg.BaseStrategy, token))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return total, nil
}

// --- borrow ---

// Borrow validates the request, settles the ledger, sources the funds across
// the reserve hierarchy, mints the residual debt and pays the recipient. The
// borrowed amount is returned.
func (e *Engine) Borrow(strategy crypto.Address, token string, amount *uint256.Int, recipient crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil || e.transport == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.gate, moduleName); err != nil {
		return nil, ErrPaused
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	cfg, err := e.tokenConfig(token)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return nil, err
	}
	if pos == nil || !pos.Enabled {
		return nil, ErrNotEnabled
	}
	if err := strategyGuardErr(e.gate, strategy, true); err != nil {
		return nil, err
	}
	available, err := availableToBorrow(pos)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(available) > 0 {
		return nil, &CeilingBreachedError{Available: available, Requested: amount.Clone()}
	}
	issuer, err := e.issuerFor(token)
	if err != nil {
		return nil, err
	}
	plan, err := e.planWithdrawal(cfg, strategy, token, amount)
	if err != nil {
		return nil, err
	}

	e.journal.begin()
	if err := e.executeBorrow(cfg, strategy, token, amount, recipient, pos, plan, issuer); err != nil {
		e.journal.revert()
		return nil, err
	}
	e.journal.commit()
	return amount.Clone(), nil
}

// BorrowMax borrows exactly the strategy's available headroom.
func (e *Engine) BorrowMax(strategy crypto.Address, token string, recipient crypto.Address) (*uint256.Int, error) {
	available, err := e.AvailableToBorrow(strategy, token)
	if err != nil {
		return nil, err
	}
	if available.IsZero() {
		return nil, ErrZeroAmount
	}
	return e.Borrow(strategy, token, available, recipient)
}

func (e *Engine) executeBorrow(cfg *TokenConfig, strategy crypto.Address, token string, amount *uint256.Int, recipient crypto.Address, pos *Position, plan *withdrawalPlan, issuer DebtAccountingSurface) error {
	debtDelta, err := settleBorrow(pos, amount)
	if err != nil {
		return err
	}
	if err := e.writePosition(strategy, token, pos); err != nil {
		return err
	}
	if err := e.writeReserve(token, plan.newReserve); err != nil {
		return err
	}
	// Ledger fully committed; external calls from here on.
	if err := e.pullFromBase(cfg, token, plan.pull, issuer); err != nil {
		return err
	}
	if !debtDelta.IsZero() {
		if err := e.mintJournaled(issuer, strategy, debtDelta); err != nil {
			return err
		}
	}
	return e.transferJournaled(token, e.vault, recipient, amount)
}

// --- repay ---

// Repay pulls funds from the payer and settles them against the strategy's
// position: outstanding debt is burned first, any remainder becomes credit.
// Inflows above the buffer high-water mark are forwarded to the base
// strategy.
func (e *Engine) Repay(payer, strategy crypto.Address, token string, amount *uint256.Int) error {
	if e == nil || e.state == nil || e.transport == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.gate, moduleName); err != nil {
		return ErrPaused
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	cfg, err := e.tokenConfig(token)
	if err != nil {
		return err
	}
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrNotEnabled
	}
	if err := strategyGuardErr(e.gate, strategy, false); err != nil {
		return err
	}
	issuer, err := e.issuerFor(token)
	if err != nil {
		return err
	}
	payerBalance := e.transport.BalanceOf(payer, token)
	if payerBalance.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Token: token, Requested: amount.Clone(), Available: payerBalance}
	}
	plan, err := e.planDeposit(cfg, strategy, token, amount)
	if err != nil {
		return err
	}

	e.journal.begin()
	if err := e.executeRepay(cfg, payer, strategy, token, amount, pos, plan, issuer); err != nil {
		e.journal.revert()
		return err
	}
	e.journal.commit()
	return nil
}

// RepayAll repays exactly the strategy's outstanding debt.
func (e *Engine) RepayAll(payer, strategy crypto.Address, token string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrNotEnabled
	}
	pos.ensureDefaults()
	if pos.Debt.IsZero() {
		return ErrZeroAmount
	}
	return e.Repay(payer, strategy, token, pos.Debt.Clone())
}

func (e *Engine) executeRepay(cfg *TokenConfig, payer, strategy crypto.Address, token string, amount *uint256.Int, pos *Position, plan *depositPlan, issuer DebtAccountingSurface) error {
	debtBurned, _, err := settleRepay(pos, amount)
	if err != nil {
		return err
	}
	if err := e.writePosition(strategy, token, pos); err != nil {
		return err
	}
	if err := e.writeReserve(token, plan.newReserve); err != nil {
		return err
	}
	// Ledger fully committed; external calls from here on.
	if err := e.transferJournaled(token, payer, e.vault, amount); err != nil {
		return err
	}
	if err := e.burnSettledDebt(strategy, token, debtBurned, issuer); err != nil {
		return err
	}
	return e.pushToBase(cfg, token, plan.forward, issuer)
}

// --- state access helpers ---

func (e *Engine) tokenConfig(token string) (*TokenConfig, error) {
	cfg, err := e.state.TokenConfig(token)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotEnabled
	}
	cfg = cfg.Clone()
	cfg.ensureDefaults()
	return cfg, nil
}

func (e *Engine) issuerFor(token string) (DebtAccountingSurface, error) {
	issuer := e.issuers[token]
	if issuer == nil {
		return nil, ErrNoIssuer
	}
	return issuer, nil
}

func (e *Engine) loadPosition(strategy crypto.Address, token string) (*Position, error) {
	pos, err := e.state.Position(strategy, token)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	pos = pos.Clone()
	pos.ensureDefaults()
	return pos, nil
}

func (e *Engine) loadOrCreatePosition(strategy crypto.Address, token string) (*Position, error) {
	pos, err := e.loadPosition(strategy, token)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{}
		pos.ensureDefaults()
	}
	return pos, nil
}

func (e *Engine) loadReserve(token string) (*uint256.Int, error) {
	balance, err := e.state.Reserve(token)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return uint256.NewInt(0), nil
	}
	return balance.Clone(), nil
}

func (e *Engine) writePosition(strategy crypto.Address, token string, pos *Position) error {
	prev, err := e.state.Position(strategy, token)
	if err != nil {
		return err
	}
	prevClone := prev.Clone()
	if err := e.state.PutPosition(strategy, token, pos.Clone()); err != nil {
		return err
	}
	e.journal.record(func() error {
		if prevClone == nil {
			restored := &Position{}
			restored.ensureDefaults()
			return e.state.PutPosition(strategy, token, restored)
		}
		return e.state.PutPosition(strategy, token, prevClone)
	})
	return nil
}

func (e *Engine) writeReserve(token string, balance *uint256.Int) error {
	prev, err := e.state.Reserve(token)
	if err != nil {
		return err
	}
	var prevClone *uint256.Int
	if prev != nil {
		prevClone = prev.Clone()
	} else {
		prevClone = uint256.NewInt(0)
	}
	if err := e.state.PutReserve(token, balance.Clone()); err != nil {
		return err
	}
	e.journal.record(func() error {
		return e.state.PutReserve(token, prevClone)
	})
	return nil
}

// --- journaled external calls ---

// The debt surface and the funds transport sit outside the state store, so
// the journal cannot restore their pre-images. Instead every external call
// made inside a frame records its compensating call; a revert replays them in
// reverse alongside the state undos.

func (e *Engine) transferJournaled(token string, from, to crypto.Address, amount *uint256.Int) error {
	if err := e.transport.Transfer(token, from, to, amount); err != nil {
		return ErrTransferFailed
	}
	moved := amount.Clone()
	e.journal.record(func() error {
		return e.transport.Transfer(token, to, from, moved)
	})
	return nil
}

func (e *Engine) mintJournaled(issuer DebtAccountingSurface, debtor crypto.Address, amount *uint256.Int) error {
	if err := issuer.Mint(debtor, amount); err != nil {
		return err
	}
	minted := amount.Clone()
	e.journal.record(func() error {
		_, err := issuer.Burn(debtor, minted)
		return err
	})
	return nil
}

func (e *Engine) burnJournaled(issuer DebtAccountingSurface, debtor crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	actual, err := issuer.Burn(debtor, amount)
	if err != nil {
		return nil, err
	}
	if actual != nil && !actual.IsZero() {
		burned := actual.Clone()
		e.journal.record(func() error {
			return issuer.Mint(debtor, burned)
		})
	}
	return actual, nil
}

func strategyGuardErr(gate AccessGate, strategy crypto.Address, borrowing bool) error {
	var view nativecommon.StrategyView
	if gate != nil {
		view = gate
	}
	err := nativecommon.StrategyGuard(view, strategy, borrowing)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nativecommon.ErrStrategyShutdown):
		return ErrShutdown
	default:
		return ErrPaused
	}
}
