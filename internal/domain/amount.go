package domain

import (
	"math"

	"github.com/holiman/uint256"
)

// MaxAmount is the largest quote or base amount the core accepts. Ledger
// legs carry signed 64-bit deltas, so every amount must fit in int64.
const MaxAmount = math.MaxInt64

// QuoteAmount returns price × quantity. The product is computed in 256
// bits and ErrOverflow is returned when it exceeds MaxAmount; negative
// operands are rejected the same way.
func QuoteAmount(price, quantity int64) (int64, error) {
	if price < 0 || quantity < 0 {
		return 0, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(
		uint256.NewInt(uint64(price)),
		uint256.NewInt(uint64(quantity)),
	)
	if overflow || !product.IsUint64() || product.Uint64() > MaxAmount {
		return 0, ErrOverflow
	}
	return int64(product.Uint64()), nil
}
