package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
)

// geometric builds closes with constant daily log return r
func geometric(n int, start, r float64) []float64 {
	out := make([]float64, n)
	out[0] = start
	for i := 1; i < n; i++ {
		out[i] = out[i-1] * math.Exp(r)
	}
	return out
}

// zigzag alternates +a and -b log returns
func zigzag(n int, a, b float64) []float64 {
	out := make([]float64, n)
	out[0] = 100
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			out[i] = out[i-1] * math.Exp(a)
		} else {
			out[i] = out[i-1] * math.Exp(-b)
		}
	}
	return out
}

func TestLogReturns(t *testing.T) {
	r, err := LogReturns([]float64{100, 110, 99})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), r[1], 1e-12)

	_, err = LogReturns([]float64{100})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = LogReturns([]float64{0, 1})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}
	vol, err := Volatility(returns)
	require.NoError(t, err)
	assert.InDelta(t, StdDev(returns)*math.Sqrt(252)*100, vol, 1e-9)

	flat, err := Volatility([]float64{0.01, 0.01, 0.01})
	require.NoError(t, err)
	assert.Equal(t, 0.0, flat)
}

func TestMaxDrawdown(t *testing.T) {
	dd, err := MaxDrawdown([]float64{100, 120, 90, 130, 117})
	require.NoError(t, err)
	assert.InDelta(t, -25.0, dd, 1e-9)

	up, err := MaxDrawdown([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, up)

	_, err = MaxDrawdown([]float64{0, 0})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestBeta(t *testing.T) {
	bench, err := LogReturns(zigzag(41, 0.02, 0.015))
	require.NoError(t, err)

	double := make([]float64, len(bench))
	for i, r := range bench {
		double[i] = 2 * r
	}
	beta, err := Beta(double, bench)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, beta, 1e-9)

	_, err = Beta(double[:19], bench[:19])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBetaZeroBenchmarkVariance(t *testing.T) {
	flat := make([]float64, 30)
	asset := make([]float64, 30)
	for i := range asset {
		asset[i] = float64(i%3) * 0.01
	}

	beta, err := Beta(asset, flat)
	assert.ErrorIs(t, err, ErrDegenerate)
	assert.Nil(t, Ptr(beta, err), "degenerate beta is nil, never NaN or Inf")
}

func TestSharpeAndSortino(t *testing.T) {
	returns, err := LogReturns(zigzag(61, 0.012, 0.008))
	require.NoError(t, err)

	sharpe, err := Sharpe(returns, 0.045)
	require.NoError(t, err)
	want := (Mean(returns)*252 - 0.045) / (StdDev(returns) * math.Sqrt(252))
	assert.InDelta(t, want, sharpe, 1e-12)

	sortino, err := Sortino(returns, 0.045)
	require.NoError(t, err)
	assert.Greater(t, sortino, sharpe, "only half the returns are losses")

	_, err = Sharpe([]float64{0.01, 0.01, 0.01}, 0)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = Sortino([]float64{0.01, 0.02, 0.03}, 0)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestVaRAndExpectedShortfall(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 1000 // -5.0% .. +4.9%
	}

	v95, err := VaR(returns, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, -4.5, v95, 1e-9)

	v99, err := VaR(returns, 0.99)
	require.NoError(t, err)
	assert.InDelta(t, -4.9, v99, 1e-9)
	assert.Less(t, v99, v95)

	es95, err := ExpectedShortfall(returns, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, -4.75, es95, 1e-9)
	assert.LessOrEqual(t, es95, v95)

	_, err = VaR(returns[:10], 0.95)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSMAAndEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	sma := SMA(values, 3)
	assert.Nil(t, sma[0])
	assert.Nil(t, sma[1])
	require.NotNil(t, sma[2])
	assert.InDelta(t, 2.0, *sma[2], 1e-12)
	assert.InDelta(t, 4.0, *sma[4], 1e-12)

	ema := EMA(values, 3)
	assert.Nil(t, ema[1])
	require.NotNil(t, ema[2])
	assert.InDelta(t, 2.0, *ema[2], 1e-12)
	assert.InDelta(t, 3.0, *ema[3], 1e-12) // 4×0.5 + 2×0.5
	assert.InDelta(t, 4.0, *ema[4], 1e-12)

	assert.Len(t, SMA(values, 10), 5)
	assert.Nil(t, SMA(values, 10)[4])
}

func TestRSI(t *testing.T) {
	up := geometric(30, 100, 0.01)
	rsi := RSI(up, DefaultRSIPeriod)
	assert.Nil(t, rsi[13])
	last, ok := Last(rsi)
	require.True(t, ok)
	assert.Equal(t, 100.0, last)

	mixed := zigzag(40, 0.01, 0.01)
	last, ok = Last(RSI(mixed, DefaultRSIPeriod))
	require.True(t, ok)
	assert.InDelta(t, 50, last, 5)

	_, ok = Last(RSI(up[:10], DefaultRSIPeriod))
	assert.False(t, ok)
}

func TestLinearRegression(t *testing.T) {
	m, b, err := LinearRegression([]float64{3, 5, 7, 9})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m, 1e-12)
	assert.InDelta(t, 3.0, b, 1e-12)

	_, _, err = LinearRegression([]float64{1})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	c := []float64{5, 4, 3, 2, 1}

	r, err := Correlation(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, err = Correlation(a, c)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-12)

	m := CorrelationMatrix([][]float64{a, c, {1, 1, 1, 1, 1}})
	require.NotNil(t, m[0][1])
	assert.InDelta(t, -1.0, *m[1][0], 1e-12)
	assert.Nil(t, m[2][0], "constant series has no correlation")
	assert.Nil(t, m[2][2])
}

func TestCumulativeReturn(t *testing.T) {
	r, err := CumulativeReturn([]float64{100, 90, 106})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, r, 1e-9)
}

func TestAlignReturns(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	asset := []contracts.PricePoint{{Date: day(2), Close: 10}, {Date: day(3), Close: 11}, {Date: day(4), Close: 12}, {Date: day(5), Close: 13}}
	bench := []contracts.PricePoint{{Date: day(2), Close: 100}, {Date: day(4), Close: 110}, {Date: day(5), Close: 121}}

	ra, rb, err := AlignReturns(asset, bench)
	require.NoError(t, err)
	require.Len(t, ra, 2)
	require.Len(t, rb, 2)
	assert.InDelta(t, math.Log(12.0/10.0), ra[0], 1e-12)
	assert.InDelta(t, math.Log(1.1), rb[1], 1e-12)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 3.0, Percentile(sorted, 50))
	assert.InDelta(t, 4.6, Percentile(sorted, 90), 1e-12)
	assert.Equal(t, 5.0, Percentile(sorted, 100))
}
