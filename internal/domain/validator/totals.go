// Package validator checks that money parts add up to the totals they claim.
//
// Comparison happens on the fixed-decimal grid: both sides are rounded to
// the requested number of decimal places and must then be equal.
package validator

import (
	"fmt"
	"math"
)

// TotalValidation contains the result of comparing parts against a total.
type TotalValidation struct {
	// Valid is true if the parts sum to the expected total
	Valid bool

	// PartsSum is the rounded sum of all parts
	PartsSum float64

	// ExpectedSum is the rounded expected total
	ExpectedSum float64

	// Difference is PartsSum - ExpectedSum
	Difference float64

	// Reason explains why validation failed (empty if valid)
	Reason string
}

// ValidateTotal checks that parts sum to expected at dp decimal places.
func ValidateTotal(parts []float64, expected float64, dp int) *TotalValidation {
	var sum float64
	for _, p := range parts {
		sum += p
	}
	sum = roundTo(sum, dp)
	expected = roundTo(expected, dp)
	diff := roundTo(sum-expected, dp)

	if diff == 0 {
		return &TotalValidation{
			Valid:       true,
			PartsSum:    sum,
			ExpectedSum: expected,
		}
	}

	var reason string
	if diff < 0 {
		reason = fmt.Sprintf("parts (%.*f) are %.*f short of total (%.*f)", dp, sum, dp, -diff, dp, expected)
	} else {
		reason = fmt.Sprintf("parts (%.*f) exceed total (%.*f) by %.*f", dp, sum, dp, expected, dp, diff)
	}

	return &TotalValidation{
		Valid:       false,
		PartsSum:    sum,
		ExpectedSum: expected,
		Difference:  diff,
		Reason:      reason,
	}
}

// ValidateCents is ValidateTotal at 2 decimal places.
func ValidateCents(parts []float64, expected float64) *TotalValidation {
	return ValidateTotal(parts, expected, 2)
}

// roundTo rounds a float to dp decimal places, half away from zero.
func roundTo(amount float64, dp int) float64 {
	factor := math.Pow10(dp)
	return math.Round(amount*factor) / factor
}
