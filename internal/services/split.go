package services

import (
	"math"

	"github.com/google/uuid"
)

// PlatformFeeCents rounds the platform's cut of the captured amount to the
// nearest cent, half to even.
func PlatformFeeCents(capturedCents int64, feeFraction float64) int64 {
	return roundHalfEven(float64(capturedCents) * feeFraction)
}

// SplitShares divides the post-fee amount across the assigned cleaners in
// assignment order. Fractions come from the per-appointment overrides when
// present, otherwise the split is equal. Each share rounds half to even;
// any leftover minor units from rounding go to the first cleaner so the
// shares always sum exactly to the post-fee amount.
func SplitShares(capturedCents int64, feeFraction float64, cleaners []uuid.UUID, overrides map[string]float64) []int64 {
	n := len(cleaners)
	if n == 0 {
		return nil
	}

	postFee := capturedCents - PlatformFeeCents(capturedCents, feeFraction)

	shares := make([]int64, n)
	var allocated int64
	for i, id := range cleaners {
		frac := 1.0 / float64(n)
		if f, ok := overrides[id.String()]; ok {
			frac = f
		}
		shares[i] = roundHalfEven(float64(postFee) * frac)
		allocated += shares[i]
	}

	shares[0] += postFee - allocated
	return shares
}

func roundHalfEven(x float64) int64 {
	return int64(math.RoundToEven(x))
}
