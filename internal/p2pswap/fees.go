package p2pswap

import "github.com/holiman/uint256"

// fixedFeeDiscountBps is the share of a capped fixed fee that may be left
// unpaid by a filler landing in the discount band.
const fixedFeeDiscountBps = 1_000

// ProportionalFee returns amount*feeBps/BasisPoints truncated toward zero.
func ProportionalFee(amount *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	return mulDiv(amount, feeBps, BasisPoints)
}

// FixedFee returns the proportional fee capped at maxFee. When the cap
// applies, fee10 is 10% of the capped fee and widens the acceptance band to
// [amount+fee-fee10, amount+fee). Otherwise fee10 is zero.
func FixedFee(amount *uint256.Int, feeBps uint64, maxFee *uint256.Int) (fee, fee10 *uint256.Int, err error) {
	proportional, err := ProportionalFee(amount, feeBps)
	if err != nil {
		return nil, nil, err
	}
	if proportional.Gt(maxFee) {
		fee = clone(maxFee)
		fee10, err = mulDiv(fee, fixedFeeDiscountBps, BasisPoints)
		if err != nil {
			return nil, nil, err
		}
		return fee, fee10, nil
	}
	return proportional, new(uint256.Int), nil
}

// FinalFixedFee is the fee actually distributed for a fixed-fee fill of
// amountB paying fill. A fill inside [amountB+fee-fee10, amountB+fee) pays
// only what it brought above amountB; any other accepted fill pays fee.
func FinalFixedFee(fill, amountB, fee, fee10 *uint256.Int) *uint256.Int {
	upper := new(uint256.Int).Add(amountB, fee)
	lower := new(uint256.Int).Sub(upper, fee10)
	if !fill.Lt(lower) && fill.Lt(upper) {
		return new(uint256.Int).Sub(fill, amountB)
	}
	return clone(fee)
}

// shareOf returns fee*bps/BasisPoints.
func shareOf(fee *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDiv(fee, bps, BasisPoints)
}

func mulDiv(a *uint256.Int, mul, div uint64) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(zeroIfNil(a), uint256.NewInt(mul))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return product.Div(product, uint256.NewInt(div)), nil
}

func addChecked(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(zeroIfNil(a), zeroIfNil(b))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return sum, nil
}
