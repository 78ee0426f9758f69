package treasury

import "github.com/holiman/uint256"

// availableToBorrow computes ceiling + credit - debt with overflow-checked
// arithmetic. A ceiling plus accumulated credit that exceeds 256 bits fails
// with ErrArithmeticOverflow instead of wrapping to a small headroom. When
// outstanding debt exceeds the extended ceiling (a ceiling lowered after
// borrowing) the result saturates at zero.
func availableToBorrow(pos *Position) (*uint256.Int, error) {
	pos.ensureDefaults()
	extended, overflow := new(uint256.Int).AddOverflow(pos.Ceiling, pos.Credit)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	if pos.Debt.Cmp(extended) >= 0 {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(extended, pos.Debt), nil
}
