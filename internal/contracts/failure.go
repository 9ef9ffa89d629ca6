package contracts

import "time"

// FailureKind classifies a failed price fetch
type FailureKind string

const (
	FailureNotFound    FailureKind = "not_found"
	FailureRateLimited FailureKind = "rate_limited"
	FailureAPIError    FailureKind = "api_error"
)

// TTL returns how long a failure of this kind suppresses new fetches
func (k FailureKind) TTL() time.Duration {
	switch k {
	case FailureNotFound:
		return 24 * time.Hour
	case FailureRateLimited:
		return time.Hour
	default:
		return 6 * time.Hour
	}
}

// FailureRecord is a memoized fetch failure for one ticker
type FailureRecord struct {
	Ticker   string        `json:"ticker"`
	Kind     FailureKind   `json:"kind"`
	FailedAt time.Time     `json:"failed_at"`
	TTL      time.Duration `json:"ttl"`
	Message  string        `json:"message,omitempty"`
}

// ExpiresAt is the instant the record stops suppressing fetches
func (r FailureRecord) ExpiresAt() time.Time {
	return r.FailedAt.Add(r.TTL)
}

// LiveAt reports whether the record still applies at now
func (r FailureRecord) LiveAt(now time.Time) bool {
	return now.Sub(r.FailedAt) < r.TTL
}
