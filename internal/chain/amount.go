package chain

import "math/big"

// TokenDecimals is the stablecoin's implied decimal places. Amounts cross
// this layer as integer base units; division happens only at the rendering
// edge.
const TokenDecimals = 6

var tokenUnit = big.NewFloat(1e6)

// BaseUnitsToUSDT converts integer base units to a human-readable token
// amount.
func BaseUnitsToUSDT(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, tokenUnit)
	v, _ := f.Float64()
	return v
}
