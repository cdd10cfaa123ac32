// Package pricing turns a requested token budget into a payable amount.
package pricing

import "math"

const (
	// MinMicros is the floor of every estimate, 0.01 USD.
	MinMicros int64 = 10_000

	microsPerUSD   = 1_000_000
	microsPerToken = 8

	// fallbackUSD is charged when an estimate cannot be expressed in USD.
	fallbackUSD = 0.01
)

// Estimate returns the payable estimate in micro-units for the default per-call
// amount plus the requested completion budget. Negative budgets contribute nothing.
func Estimate(defaultAmountUSD float64, maxTokens int) int64 {
	base := defaultAmountUSD
	if math.IsNaN(base) || math.IsInf(base, 0) || base < 0 {
		base = 0
	}
	tokens := maxTokens
	if tokens < 0 {
		tokens = 0
	}

	micros := int64(math.Round(base*microsPerUSD + float64(tokens)*microsPerToken))
	if micros < MinMicros {
		return MinMicros
	}
	return micros
}

// MicrosToUSD converts micro-units to a USD amount (six decimals at most).
// Non-positive inputs map to the 0.01 USD floor.
func MicrosToUSD(micros int64) float64 {
	if micros <= 0 {
		return fallbackUSD
	}
	return float64(micros) / microsPerUSD
}
