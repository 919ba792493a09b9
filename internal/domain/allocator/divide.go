package allocator

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrInvalidTotal is returned when the target total rounds to zero at the
	// requested precision.
	ErrInvalidTotal = errors.New("total cannot be zero after rounding")

	// ErrNoValues is returned when there is nothing to share a nonzero total over.
	ErrNoValues = errors.New("no values to divide")

	// ErrZeroWeight is returned when the weights cancel out, leaving no ratio.
	ErrZeroWeight = errors.New("values sum to zero")

	// ErrDuplicateKey is returned when the same key appears twice.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidPrecision is returned for a number of decimal places outside
	// [0, MaxPrecision].
	ErrInvalidPrecision = errors.New("decimal places out of range")

	// ErrOutOfRange is returned when the scaled total or weights cannot be
	// held exactly in a float64.
	ErrOutOfRange = errors.New("values out of range at this precision")
)

// MaxPrecision is the largest number of decimal places accepted. 10^15 is
// the last power of ten below 2^53.
const MaxPrecision = 15

// maxExact is the largest magnitude below which float64 holds every whole
// number.
const maxExact = 1 << 53

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// Share is a single keyed weight (on input) or allocation (on output).
type Share[K comparable] struct {
	Key   K
	Value float64
}

// Shares is an ordered key/value mapping. Order is whatever the caller built
// it in, and every function in this package preserves it.
type Shares[K comparable] []Share[K]

// Sum returns the total of all values.
func (s Shares[K]) Sum() float64 {
	var sum float64
	for _, sh := range s {
		sum += sh.Value
	}
	return sum
}

// Get returns the value stored for key.
func (s Shares[K]) Get(key K) (float64, bool) {
	for _, sh := range s {
		if sh.Key == key {
			return sh.Value, true
		}
	}
	return 0, false
}

// Keys returns the keys in order.
func (s Shares[K]) Keys() []K {
	keys := make([]K, len(s))
	for i, sh := range s {
		keys[i] = sh.Key
	}
	return keys
}

// Map returns the shares as an unordered map.
func (s Shares[K]) Map() map[K]float64 {
	m := make(map[K]float64, len(s))
	for _, sh := range s {
		m[sh.Key] = sh.Value
	}
	return m
}

// DivideRounded shares total over values in proportion to their weights,
// rounding every result to dp decimal places such that the results sum to
// exactly round(total, dp).
//
// All arithmetic happens after multiplying by 10^dp, where whole numbers are
// exactly representable. Residual rounding error is resolved by the
// largest-remainder method: on over-count the keys with the smallest
// remainders lose a unit, on under-count the keys with the largest
// remainders gain one. Ties keep input order (the sort is stable), so on
// under-count the later of two tied keys gains first.
//
// Weights may be negative. The result has the same keys in the same order.
func DivideRounded[K comparable](values Shares[K], total float64, dp int) (Shares[K], error) {
	if dp < 0 || dp > MaxPrecision {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrecision, dp)
	}

	factor := math.Pow10(dp)
	scaledTotal := math.Round(factor * total)
	if !finite(scaledTotal) || math.Abs(scaledTotal) > maxExact {
		return nil, fmt.Errorf("%w: total %v at %d decimal places", ErrOutOfRange, total, dp)
	}
	if scaledTotal == 0 {
		return nil, ErrInvalidTotal
	}
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	seen := make(map[K]struct{}, len(values))
	var weightSum float64
	for _, v := range values {
		if _, dup := seen[v.Key]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateKey, v.Key)
		}
		seen[v.Key] = struct{}{}
		weightSum += factor * v.Value
	}
	if !finite(weightSum) {
		return nil, fmt.Errorf("%w: weights", ErrOutOfRange)
	}
	if weightSum == 0 {
		return nil, ErrZeroWeight
	}

	ratio := scaledTotal / weightSum
	if !finite(ratio) {
		return nil, fmt.Errorf("%w: weights", ErrOutOfRange)
	}
	ideal := make([]float64, len(values))
	rounded := make([]float64, len(values))
	var roundedSum float64
	for i, v := range values {
		ideal[i] = factor * v.Value * ratio
		rounded[i] = math.Round(ideal[i])
		roundedSum += rounded[i]
	}

	if excess := int(roundedSum - scaledTotal); excess != 0 {
		order := make([]int, len(values))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return cmp.Compare(ideal[a]-rounded[a], ideal[b]-rounded[b])
		})

		n := len(order)
		if excess > 0 {
			// Too large: take a unit from those rounded up the most.
			for i := 0; i < excess; i++ {
				rounded[order[i%n]]--
			}
		} else {
			// Too small: give a unit to those rounded down the most.
			for i := 0; i < -excess; i++ {
				rounded[order[n-1-i%n]]++
			}
		}
	}

	out := make(Shares[K], len(values))
	for i, v := range values {
		out[i] = Share[K]{Key: v.Key, Value: rounded[i] / factor}
	}
	return out, nil
}
