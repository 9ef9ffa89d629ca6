package prices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
)

// memStore is an in-memory Store keyed by (ticker, date)
type memStore struct {
	mu      sync.Mutex
	rows    map[string]map[time.Time]float64
	failing error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[time.Time]float64)}
}

func (s *memStore) LatestDate(_ context.Context, ticker string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	for d := range s.rows[ticker] {
		if d.After(latest) {
			latest = d
		}
	}
	return latest, !latest.IsZero(), nil
}

func (s *memStore) UpsertBatch(_ context.Context, points []contracts.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return s.failing
	}
	for _, p := range points {
		if s.rows[p.Ticker] == nil {
			s.rows[p.Ticker] = make(map[time.Time]float64)
		}
		s.rows[p.Ticker][p.Date] = p.Close
	}
	return nil
}

func (s *memStore) history(ticker string) []contracts.PricePoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.PricePoint
	for d, c := range s.rows[ticker] {
		out = append(out, contracts.PricePoint{Ticker: ticker, Date: d, Close: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// scriptedProvider returns queued results, then repeats the last one
type scriptedProvider struct {
	mu      sync.Mutex
	name    string
	results []scriptedResult
	calls   []string
}

type scriptedResult struct {
	points []contracts.PricePoint
	err    error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) FetchDailyHistory(_ context.Context, ticker string, _ int) ([]contracts.PricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, ticker)
	if len(p.results) == 0 {
		return nil, NewFetchError(p.name, ticker, KindNotFound, nil)
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return r.points, r.err
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// weekdaySeries builds n weekday closes ending at end
func weekdaySeries(end time.Time, n int) []contracts.PricePoint {
	out := make([]contracts.PricePoint, 0, n)
	d := end
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, contracts.PricePoint{Date: d, Close: 100 + float64(len(out))})
		}
		d = d.AddDate(0, 0, -1)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
