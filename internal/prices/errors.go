package prices

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/httputil"
)

var (
	// ErrNotFound means every provider resolved the ticker to no data
	ErrNotFound = errors.New("ticker not found")
	// ErrRateLimited means the provider refused the call for quota reasons
	ErrRateLimited = errors.New("provider rate limited")
	// ErrCachedFailure means a live failure record suppressed the fetch
	ErrCachedFailure = errors.New("cached fetch failure")
	// ErrNoProvider means the chain has nothing to route the ticker to
	ErrNoProvider = errors.New("no price provider configured")
)

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindBadResponse ErrorKind = "bad_response"
	KindParse       ErrorKind = "parse"
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
)

// Transient reports whether another pass across the chain may succeed
func (k ErrorKind) Transient() bool {
	return k == KindNetwork || k == KindBadResponse || k == KindParse
}

// FetchError is a classified provider failure
type FetchError struct {
	Provider string
	Ticker   string
	Kind     ErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Ticker, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Ticker, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	}
	return false
}

// FailureKind maps the provider kind onto the failure-cache kind
func (e *FetchError) FailureKind() contracts.FailureKind {
	switch e.Kind {
	case KindNotFound:
		return contracts.FailureNotFound
	case KindRateLimited:
		return contracts.FailureRateLimited
	default:
		return contracts.FailureAPIError
	}
}

// NewFetchError builds a classified error
func NewFetchError(provider, ticker string, kind ErrorKind, err error) *FetchError {
	return &FetchError{Provider: provider, Ticker: ticker, Kind: kind, Err: err}
}

// ClassifyHTTPError turns an httputil error into a FetchError
func ClassifyHTTPError(provider, ticker string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	kind := KindNetwork
	var se *httputil.StatusError
	switch {
	case errors.Is(err, httputil.ErrQuotaExceeded):
		kind = KindRateLimited
	case errors.As(err, &se):
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			kind = KindRateLimited
		case http.StatusNotFound:
			kind = KindNotFound
		default:
			kind = KindBadResponse
		}
	case errors.Is(err, httputil.ErrDecode):
		kind = KindParse
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindNetwork
	}

	return NewFetchError(provider, ticker, kind, err)
}

// CachedFailureError carries the record that suppressed a fetch
type CachedFailureError struct {
	Record contracts.FailureRecord
}

func (e *CachedFailureError) Error() string {
	return fmt.Sprintf("%s: %s failed with %s, retry after %s",
		ErrCachedFailure, e.Record.Ticker, e.Record.Kind, e.Record.ExpiresAt().Format("2006-01-02 15:04:05"))
}

func (e *CachedFailureError) Is(target error) bool {
	return target == ErrCachedFailure
}

// kindOf extracts the failure kind of any error out of the ingestion path
func kindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetwork
}
