package treasury

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

// newTieredEnv wires a token with a base strategy behind the vault and funds
// the base on the transport.
func newTieredEnv(t *testing.T, threshold, upper, reserve, baseFunds *uint256.Int) *testEnv {
	t.Helper()
	env := newTestEnv(t, TokenConfig{}, reserve)
	if err := env.engine.SetBorrowToken(TokenConfig{
		Token:                testToken,
		BaseStrategy:         env.base,
		BufferThreshold:      threshold,
		BufferThresholdUpper: upper,
	}, env.debt); err != nil {
		t.Fatalf("SetBorrowToken: %v", err)
	}
	if baseFunds != nil && !baseFunds.IsZero() {
		env.bank.Fund(env.base, testToken, baseFunds)
	}
	return env
}

func (env *testEnv) basePosition(t *testing.T) *Position {
	t.Helper()
	pos, err := env.engine.StrategyPosition(env.base, testToken)
	if err != nil {
		t.Fatalf("StrategyPosition(base): %v", err)
	}
	return pos
}

func TestBorrowPullsFromBaseAndRefillsBuffer(t *testing.T) {
	env := newTieredEnv(t,
		amt("7750000000000000000"),
		amt("10000000000000000000"),
		amt("1623000000000000000"),
		amt("100000000000000000000"))
	env.setCeiling(t, amt("5000000000000000000"))

	if _, err := env.engine.Borrow(env.strategy, testToken, amt("5000000000000000000"), env.recipient); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	// Shortfall 3.377e18 plus the 7.75e18 buffer floor is pulled, so the
	// local balance lands exactly on the floor.
	if env.reserve(t).Cmp(amt("7750000000000000000")) != 0 {
		t.Fatalf("expected local balance at buffer floor, got %s", env.reserve(t).Dec())
	}
	if got := env.bank.BalanceOf(env.recipient, testToken); got.Cmp(amt("5000000000000000000")) != 0 {
		t.Fatalf("expected recipient 5e18, got %s", got.Dec())
	}
	if got := env.bank.BalanceOf(env.base, testToken); got.Cmp(amt("88873000000000000000")) != 0 {
		t.Fatalf("expected base drained by 11.127e18, got %s", got.Dec())
	}
	// The pull is an inflow to the vault; with no base debt outstanding it
	// lands as base credit.
	basePos := env.basePosition(t)
	if basePos.Credit.Cmp(amt("11127000000000000000")) != 0 {
		t.Fatalf("expected base credit 11.127e18, got %s", basePos.Credit.Dec())
	}
	if !basePos.Debt.IsZero() {
		t.Fatalf("expected no base debt, got %s", basePos.Debt.Dec())
	}
}

func TestBorrowNeverPullsFromItself(t *testing.T) {
	env := newTieredEnv(t,
		amt("5000000000000000000"),
		amt("8000000000000000000"),
		amt("1000000000000000000"),
		amt("100000000000000000000"))
	// The base strategy itself borrows beyond the local balance.
	if err := env.engine.SetStrategyCeiling(env.base, testToken, amt("5000000000000000000")); err != nil {
		t.Fatalf("SetStrategyCeiling: %v", err)
	}

	_, err := env.engine.Borrow(env.base, testToken, amt("2000000000000000000"), env.recipient)
	var short *InsufficientBalanceError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if short.Available.Cmp(amt("1000000000000000000")) != 0 {
		t.Fatalf("expected only the local balance reported, got %s", short.Available.Dec())
	}
}

func TestBorrowPullCappedAtBaseBalance(t *testing.T) {
	env := newTieredEnv(t,
		amt("5000000000000000000"),
		amt("8000000000000000000"),
		amt("1000000000000000000"),
		amt("3000000000000000000"))
	env.setCeiling(t, amt("5000000000000000000"))

	// Shortfall is 1e18, the full buffer refill would need 6e18 but the base
	// only holds 3e18: take what it has.
	if _, err := env.engine.Borrow(env.strategy, testToken, amt("2000000000000000000"), env.recipient); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if env.reserve(t).Cmp(amt("2000000000000000000")) != 0 {
		t.Fatalf("expected local 2e18, got %s", env.reserve(t).Dec())
	}
	if !env.bank.BalanceOf(env.base, testToken).IsZero() {
		t.Fatalf("expected base drained, got %s", env.bank.BalanceOf(env.base, testToken).Dec())
	}
}

func TestBorrowFailsWhenBaseCannotCoverShortfall(t *testing.T) {
	env := newTieredEnv(t,
		amt("5000000000000000000"),
		amt("8000000000000000000"),
		amt("1000000000000000000"),
		amt("500000000000000000"))
	env.setCeiling(t, amt("5000000000000000000"))

	_, err := env.engine.Borrow(env.strategy, testToken, amt("2000000000000000000"), env.recipient)
	var short *InsufficientBalanceError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if short.Available.Cmp(amt("1500000000000000000")) != 0 {
		t.Fatalf("expected reachable 1.5e18, got %s", short.Available.Dec())
	}
	pos := env.position(t)
	if !pos.Debt.IsZero() {
		t.Fatalf("expected untouched position, got debt %s", pos.Debt.Dec())
	}
}

func TestRepayForwardsExcessAboveUpper(t *testing.T) {
	env := newTieredEnv(t,
		amt("2000000000000000000"),
		amt("4000000000000000000"),
		amt("8000000000000000000"),
		nil)
	env.setCeiling(t, amt("5000000000000000000"))
	if _, err := env.engine.Borrow(env.strategy, testToken, amt("5000000000000000000"), env.recipient); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	if err := env.engine.Repay(env.recipient, env.strategy, testToken, amt("5000000000000000000")); err != nil {
		t.Fatalf("Repay: %v", err)
	}
	// 3e18 local plus the 5e18 inflow breaches the 4e18 high-water mark, so
	// everything above the 2e18 floor moves to the base.
	if env.reserve(t).Cmp(amt("2000000000000000000")) != 0 {
		t.Fatalf("expected local at buffer floor, got %s", env.reserve(t).Dec())
	}
	if got := env.bank.BalanceOf(env.base, testToken); got.Cmp(amt("6000000000000000000")) != 0 {
		t.Fatalf("expected base funded 6e18, got %s", got.Dec())
	}
	// The forward is an outflow from the vault; with no base credit it is
	// recorded as base debt and minted externally.
	basePos := env.basePosition(t)
	if basePos.Debt.Cmp(amt("6000000000000000000")) != 0 {
		t.Fatalf("expected base debt 6e18, got %s", basePos.Debt.Dec())
	}
	if env.debt.BalanceOf(env.base).Cmp(amt("6000000000000000000")) != 0 {
		t.Fatalf("expected base external debt 6e18, got %s", env.debt.BalanceOf(env.base).Dec())
	}
	if !env.debt.BalanceOf(env.strategy).IsZero() {
		t.Fatal("expected strategy debt fully burned")
	}
}

func TestRepayStaysLocalBelowUpper(t *testing.T) {
	env := newTieredEnv(t,
		amt("2000000000000000000"),
		amt("10000000000000000000"),
		amt("8000000000000000000"),
		nil)
	env.setCeiling(t, amt("5000000000000000000"))
	if _, err := env.engine.Borrow(env.strategy, testToken, amt("5000000000000000000"), env.recipient); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	if err := env.engine.Repay(env.recipient, env.strategy, testToken, amt("5000000000000000000")); err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if env.reserve(t).Cmp(amt("8000000000000000000")) != 0 {
		t.Fatalf("expected local 8e18, got %s", env.reserve(t).Dec())
	}
	if !env.bank.BalanceOf(env.base, testToken).IsZero() {
		t.Fatal("expected no forward to base")
	}
}

func TestTopUpBufferRefillsToUpper(t *testing.T) {
	env := newTieredEnv(t,
		amt("5000000000000000000"),
		amt("8000000000000000000"),
		amt("2000000000000000000"),
		amt("100000000000000000000"))

	if err := env.engine.TopUpBuffer(testToken); err != nil {
		t.Fatalf("TopUpBuffer: %v", err)
	}
	// Idle refills target the high-water mark, not the floor.
	if env.reserve(t).Cmp(amt("8000000000000000000")) != 0 {
		t.Fatalf("expected local at upper 8e18, got %s", env.reserve(t).Dec())
	}

	// Above the floor the refill is a no-op.
	if err := env.engine.TopUpBuffer(testToken); err != nil {
		t.Fatalf("TopUpBuffer: %v", err)
	}
	if env.reserve(t).Cmp(amt("8000000000000000000")) != 0 {
		t.Fatalf("expected local unchanged, got %s", env.reserve(t).Dec())
	}
}

func TestTopUpBufferCappedAtBaseBalance(t *testing.T) {
	env := newTieredEnv(t,
		amt("5000000000000000000"),
		amt("8000000000000000000"),
		amt("2000000000000000000"),
		amt("1000000000000000000"))

	if err := env.engine.TopUpBuffer(testToken); err != nil {
		t.Fatalf("TopUpBuffer: %v", err)
	}
	if env.reserve(t).Cmp(amt("3000000000000000000")) != 0 {
		t.Fatalf("expected local 3e18, got %s", env.reserve(t).Dec())
	}
}

func TestTopUpBufferRequiresBaseStrategy(t *testing.T) {
	env := newTestEnv(t, TokenConfig{}, amt("1000000000000000000"))
	if err := env.engine.TopUpBuffer(testToken); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled without base strategy, got %v", err)
	}
}

func TestDepositReserveRequiresFunderBalance(t *testing.T) {
	env := newTestEnv(t, TokenConfig{}, nil)
	err := env.engine.DepositReserve(env.funder, testToken, amt("1000000000000000000"))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !env.reserve(t).IsZero() {
		t.Fatalf("expected reserve untouched, got %s", env.reserve(t).Dec())
	}
}
