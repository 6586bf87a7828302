package dispatcher

import (
	"fmt"
	"math/big"
)

const (
	// BipsDenominator is the basis-point scale: 10000 bips == 100%.
	BipsDenominator = 10000

	// DefaultMaxPercFeeBips caps SetFee at 1%.
	DefaultMaxPercFeeBips uint16 = 100
)

var (
	bipsDenominator = big.NewInt(BipsDenominator)
	maxUint256      = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// FeeRule is the fee configured for one destination domain. The zero value is
// the "no rule configured" sentinel.
type FeeRule struct {
	PercFeeBips uint16   `json:"perc_fee_bips"`
	FlatFee     *big.Int `json:"flat_fee"`
	Initialized bool     `json:"initialized"`
}

func (r FeeRule) flatFee() *big.Int {
	if r.FlatFee == nil {
		return new(big.Int)
	}
	return r.FlatFee
}

func (r FeeRule) clone() FeeRule {
	out := r
	if r.FlatFee != nil {
		out.FlatFee = new(big.Int).Set(r.FlatFee)
	}
	return out
}

// MaxUint256 returns 2^256-1.
func MaxUint256() *big.Int {
	return new(big.Int).Set(maxUint256)
}

// IsUint256 reports whether v fits an unsigned 256-bit integer.
func IsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(maxUint256) <= 0
}

// ComputeFee returns the fee charged for amount under rule and the remainder
// that gets forwarded. The percentage part is rounded down.
func ComputeFee(amount *big.Int, rule FeeRule) (fee, remainder *big.Int, err error) {
	if !rule.Initialized {
		return nil, nil, ErrFeeNotFound
	}
	if !IsUint256(amount) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	fee = new(big.Int).Mul(amount, big.NewInt(int64(rule.PercFeeBips)))
	fee.Quo(fee, bipsDenominator)
	fee.Add(fee, rule.flatFee())

	if fee.Cmp(amount) >= 0 {
		return nil, nil, fmt.Errorf("%w: amount=%s fee=%s", ErrBurnAmountTooLow, amount, fee)
	}

	remainder = new(big.Int).Sub(amount, fee)
	return fee, remainder, nil
}
