package allocator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shares(pairs ...any) Shares[string] {
	out := make(Shares[string], 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Share[string]{Key: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return out
}

func TestDivideRounded_EqualThirds(t *testing.T) {
	result, err := DivideRounded(shares("a", 10.0, "b", 10.0, "c", 10.0), 10, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, result.Keys())
	assert.Equal(t, 10.0, result.Sum())

	// Ties keep input order; on under-count the last tied key gains
	assert.Equal(t, map[string]float64{"a": 3, "b": 3, "c": 4}, result.Map())
}

func TestDivideRounded_AlreadyBalanced(t *testing.T) {
	result, err := DivideRounded(shares("a", 33.33, "b", 33.33, "c", 33.34), 100, 2)
	require.NoError(t, err)

	a, _ := result.Get("a")
	b, _ := result.Get("b")
	c, _ := result.Get("c")
	assert.InDelta(t, 33.33, a, 1e-9)
	assert.InDelta(t, 33.33, b, 1e-9)
	assert.InDelta(t, 33.34, c, 1e-9)
	assert.InDelta(t, 100.00, result.Sum(), 1e-9)
}

func TestDivideRounded_NegativeWeights(t *testing.T) {
	result, err := DivideRounded(shares("a", -5.0, "b", 15.0), 10, 0)
	require.NoError(t, err)

	assert.Equal(t, 10.0, result.Sum())
	a, _ := result.Get("a")
	b, _ := result.Get("b")
	assert.Equal(t, -5.0, a)
	assert.Equal(t, 15.0, b)
}

func TestDivideRounded_OverCount(t *testing.T) {
	// Ideal shares 0.5 each round up to 1, one too many in total.
	result, err := DivideRounded(shares("x", 1.0, "y", 1.0), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.Sum())
	// Equal remainders: the first key in input order loses the unit
	assert.Equal(t, map[string]float64{"x": 0, "y": 1}, result.Map())
}

func TestDivideRounded_LargestRemainderGains(t *testing.T) {
	// Ideal: 1.4, 1.4, 2.2 at dp=0; naive rounding gives 1+1+2 = 4.
	result, err := DivideRounded(shares("a", 1.4, "b", 1.4, "c", 2.2), 5, 0)
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Sum())
	assert.Equal(t, map[string]float64{"a": 1, "b": 2, "c": 2}, result.Map())
}

func TestDivideRounded_SmallestRemainderLoses(t *testing.T) {
	// Ideal: 1.6, 1.6, 1.8 round to 2+2+2 = 6; total is 5.
	result, err := DivideRounded(shares("a", 1.6, "b", 1.6, "c", 1.8), 5, 0)
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Sum())
	// a and b share the smallest remainder (-0.4); a comes first and loses

	assert.Equal(t, map[string]float64{"a": 1, "b": 2, "c": 2}, result.Map())
}

func TestDivideRounded_NoAdjustmentWhenNaiveRoundingSums(t *testing.T) {
	values := shares("a", 12.5, "b", 7.25, "c", 80.25)

	result, err := DivideRounded(values, 100, 2)
	require.NoError(t, err)

	for i, sh := range result {
		assert.Equal(t, values[i].Key, sh.Key)
		assert.InDelta(t, values[i].Value, sh.Value, 1e-9)
	}
}

func TestDivideRounded_ConvertedCurrency(t *testing.T) {
	// Line amounts in USD converted at 0.7913 to a GBP total
	values := shares("li-1", 19.99, "li-2", 4.50, "li-3", 0.99, "li-4", 105.00)
	total := math.Round(0.7913*values.Sum()*100) / 100

	result, err := DivideRounded(values, total, 2)
	require.NoError(t, err)

	assert.InDelta(t, total, result.Sum(), 1e-9)
	for i, sh := range result {
		ideal := values[i].Value * total / values.Sum()
		assert.Less(t, math.Abs(sh.Value-ideal), 0.01, "key %s", sh.Key)

		// Every output sits on the 2 d.p. grid
		assert.InDelta(t, math.Round(sh.Value*100), sh.Value*100, 1e-6)
	}
}

func TestDivideRounded_SumInvariant(t *testing.T) {
	cases := []struct {
		name   string
		values Shares[string]
		total  float64
		dp     int
	}{
		{"three ways", shares("a", 1.0, "b", 1.0, "c", 1.0), 100, 2},
		{"seven ways", shares("a", 1.0, "b", 2.0, "c", 3.0, "d", 4.0, "e", 5.0, "f", 6.0, "g", 7.0), 9.99, 2},
		{"fees", shares("x", 0.35, "y", 1.27, "z", 12.18), 10.93, 2},
		{"three d.p.", shares("x", 2.0, "y", 3.0), 1.001, 3},
		{"negative total", shares("x", 2.0, "y", 1.0), -10, 2},
		{"mixed signs", shares("x", -3.0, "y", 7.0, "z", 1.0), 4.44, 2},
		{"tiny total", shares("x", 50.0, "y", 50.0, "z", 50.0), 0.01, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := DivideRounded(tc.values, tc.total, tc.dp)
			require.NoError(t, err)

			factor := math.Pow10(tc.dp)
			var scaledSum float64
			for _, sh := range result {
				scaledSum += math.Round(sh.Value * factor)
			}
			assert.Equal(t, math.Round(tc.total*factor), scaledSum)
		})
	}
}

func TestDivideRounded_Errors(t *testing.T) {
	t.Run("zero total", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 5.0, "b", 3.0), 0, 2)
		assert.ErrorIs(t, err, ErrInvalidTotal)
	})

	t.Run("total rounds to zero", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 5.0), 0.004, 2)
		assert.ErrorIs(t, err, ErrInvalidTotal)
	})

	t.Run("no values", func(t *testing.T) {
		_, err := DivideRounded(Shares[string]{}, 10, 2)
		assert.ErrorIs(t, err, ErrNoValues)
	})

	t.Run("weights cancel", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 5.0, "b", -5.0), 10, 2)
		assert.ErrorIs(t, err, ErrZeroWeight)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 5.0, "a", 3.0), 10, 2)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("negative precision", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 5.0), 10, -1)
		assert.ErrorIs(t, err, ErrInvalidPrecision)
	})

	t.Run("precision too large", func(t *testing.T) {
		out, err := DivideRounded(shares("a", 1.0, "b", 2.0), 10, 400)
		assert.ErrorIs(t, err, ErrInvalidPrecision)
		assert.Nil(t, out)

		_, err = DivideRounded(shares("a", 1.0, "b", 2.0), 10, MaxPrecision+1)
		assert.ErrorIs(t, err, ErrInvalidPrecision)
	})

	t.Run("scaled total past exact range", func(t *testing.T) {
		_, err := DivideRounded(shares("a", 1.0, "b", 2.0), 10, MaxPrecision)
		assert.ErrorIs(t, err, ErrOutOfRange)

		_, err = DivideRounded(shares("a", 1.0), 1e300, 2)
		assert.ErrorIs(t, err, ErrOutOfRange)

		_, err = DivideRounded(shares("a", 1.0), math.Inf(1), 0)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("weights overflow", func(t *testing.T) {
		_, err := DivideRounded(shares("a", math.MaxFloat64, "b", math.MaxFloat64), 10, 2)
		assert.ErrorIs(t, err, ErrOutOfRange)

		_, err = DivideRounded(shares("a", math.NaN()), 10, 2)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestDivideRounded_MaxPrecisionSmallTotal(t *testing.T) {
	out, err := DivideRounded(shares("a", 1.0, "b", 1.0), 0.001, MaxPrecision)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, out.Sum(), 1e-15)
	for _, s := range out {
		assert.False(t, math.IsNaN(s.Value))
	}
}

func TestDivideRounded_DoesNotModifyInput(t *testing.T) {
	values := shares("a", 10.0, "b", 10.0, "c", 10.0)

	_, err := DivideRounded(values, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, shares("a", 10.0, "b", 10.0, "c", 10.0), values)
}

func TestShares_Helpers(t *testing.T) {
	s := shares("a", 1.5, "b", 2.5)

	assert.Equal(t, 4.0, s.Sum())
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	v, ok := s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func BenchmarkDivideRounded(b *testing.B) {
	values := make(Shares[int], 50)
	for i := range values {
		values[i] = Share[int]{Key: i, Value: float64(i%7) + 0.13}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DivideRounded(values, 999.99, 2)
	}
}
