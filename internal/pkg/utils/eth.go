package utils

import (
	"fmt"
	"math/big"
)

var (
	weiPerEth  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weiPerGwei = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
)

// EthToWei converts a whole ether amount to wei.
func EthToWei(eth *big.Int) *big.Int {
	return new(big.Int).Mul(eth, weiPerEth)
}

// WeiToEth converts wei to whole ether, truncating any sub-ether remainder.
// For amounts produced by EthToWei the conversion round-trips exactly.
func WeiToEth(wei *big.Int) *big.Int {
	return new(big.Int).Div(wei, weiPerEth)
}

// GweiToWei converts gwei to wei, the usual unit for gas prices.
func GweiToWei(gwei *big.Int) *big.Int {
	return new(big.Int).Mul(gwei, weiPerGwei)
}

// ParseWei parses a non-negative decimal wei amount.
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount: %q", s)
	}
	return v, nil
}
