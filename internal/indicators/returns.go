package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
)

// LogReturns computes r[i] = ln(p[i]/p[i-1])
func LogReturns(closes []float64) ([]float64, error) {
	if len(closes) < 2 {
		return nil, fmt.Errorf("log returns need 2 closes, got %d: %w", len(closes), ErrInsufficientData)
	}

	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return nil, fmt.Errorf("non-positive close at %d: %w", i, ErrDegenerate)
		}
		out[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return out, nil
}

// SimpleReturns computes p[i]/p[i-1] - 1
func SimpleReturns(closes []float64) ([]float64, error) {
	if len(closes) < 2 {
		return nil, fmt.Errorf("simple returns need 2 closes, got %d: %w", len(closes), ErrInsufficientData)
	}

	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return nil, fmt.Errorf("zero close at %d: %w", i-1, ErrDegenerate)
		}
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out, nil
}

// CumulativeReturn is (last/first - 1) × 100
func CumulativeReturn(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, ErrInsufficientData
	}
	if closes[0] == 0 {
		return 0, ErrDegenerate
	}
	return (closes[len(closes)-1]/closes[0] - 1) * 100, nil
}

// AlignReturns intersects two series by date and returns their log returns
// over the shared dates only.
func AlignReturns(asset, bench []contracts.PricePoint) ([]float64, []float64, error) {
	benchByDate := make(map[time.Time]float64, len(bench))
	for _, p := range bench {
		benchByDate[contracts.DateOnly(p.Date)] = p.Close
	}

	var a, b []float64
	for _, p := range asset {
		if bc, ok := benchByDate[contracts.DateOnly(p.Date)]; ok {
			a = append(a, p.Close)
			b = append(b, bc)
		}
	}

	ra, err := LogReturns(a)
	if err != nil {
		return nil, nil, err
	}
	rb, err := LogReturns(b)
	if err != nil {
		return nil, nil, err
	}
	return ra, rb, nil
}
