package gas

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultMargin 默认在估算值上加 10%
var DefaultMargin = decimal.RequireFromString("0.10")

// Estimator 在原始 gas 估算值上加安全余量，每次写链上交易前使用
type Estimator struct {
	Margin decimal.Decimal
}

// NewEstimator margin 为小数形式（0.1 = 10%），负数按 0 处理
func NewEstimator(margin decimal.Decimal) *Estimator {
	if margin.IsNegative() {
		margin = decimal.Zero
	}
	return &Estimator{Margin: margin}
}

// WithMargin 返回 floor(raw * (1 + margin))
func (e *Estimator) WithMargin(raw uint64) uint64 {
	margin := DefaultMargin
	if e != nil {
		margin = e.Margin
	}
	adjusted := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0).
		Mul(decimal.NewFromInt(1).Add(margin)).
		Floor().
		BigInt()
	if !adjusted.IsUint64() {
		return raw
	}
	return adjusted.Uint64()
}
