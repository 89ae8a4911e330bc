package vault

import (
	"math"
	"math/big"
)

var (
	rateScale = big.NewInt(RateScale)
	// Amounts are confined to the signed 128-bit range.
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func bounded(v *big.Int) (*big.Int, error) {
	if v.Cmp(maxAmount) > 0 || v.Cmp(minAmount) < 0 {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	return bounded(new(big.Int).Add(cloneAmount(a), cloneAmount(b)))
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	return bounded(new(big.Int).Sub(cloneAmount(a), cloneAmount(b)))
}

func checkedMul(a, b *big.Int) (*big.Int, error) {
	return bounded(new(big.Int).Mul(cloneAmount(a), cloneAmount(b)))
}

// applyRate converts a sale-token amount into purchase-token units at rate,
// truncating toward zero.
func applyRate(amount *big.Int, rate Rate) (*big.Int, error) {
	product, err := checkedMul(amount, big.NewInt(int64(rate)))
	if err != nil {
		return nil, err
	}
	return product.Quo(product, rateScale), nil
}

func nextEpoch(epochID uint32) (uint32, error) {
	if epochID == math.MaxUint32 {
		return 0, ErrArithmeticOverflow
	}
	return epochID + 1, nil
}
