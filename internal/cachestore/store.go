package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
	"github.com/wonny/folio/backend/pkg/redis"
)

// Entry is one stored payload with its lifetime
type Entry struct {
	Key          Key
	Payload      json.RawMessage
	CalculatedAt time.Time
	ExpiresAt    time.Time
}

// LiveAt reports whether a reader at now may use the entry
func (e Entry) LiveAt(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// Backend is the authoritative store, one table per kind
type Backend interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key Key) error
	DeleteKind(ctx context.Context, kind Kind) (int64, error)
	DeleteExpired(ctx context.Context, kind Kind, now time.Time) (int64, error)
}

// Option configures a Store
type Option func(*Store)

// WithHotLayer puts a Redis read-through layer in front of the backend
func WithHotLayer(c *redis.Cache) Option {
	return func(s *Store) { s.hot = c }
}

// WithMetrics records hits and misses per kind
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = rec }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the TTL-bound artifact cache
// ⭐ SSOT: 분석 결과 캐시는 여기서만 (Postgres가 원본, Redis는 선택)
type Store struct {
	backend Backend
	hot     *redis.Cache
	metrics *metrics.Recorder
	now     func() time.Time
	logger  *logger.Logger
}

// New creates a cache store
func New(backend Backend, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  log.Component("cachestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get decodes the live payload for key into dest. A miss returns false.
func (s *Store) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	if _, err := key.validate(); err != nil {
		return false, err
	}

	if s.hot != nil {
		data, ok, err := s.hot.GetRaw(ctx, string(key.Kind), key.String())
		if err != nil {
			s.logger.WithError(err).Debug("Hot cache read failed")
		} else if ok {
			if err := json.Unmarshal(data, dest); err == nil {
				s.metrics.RecordCacheLookup(string(key.Kind), true)
				return true, nil
			}
		}
	}

	e, ok, err := s.Entry(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return false, fmt.Errorf("decode %s payload: %w", key.Kind, err)
	}
	s.warm(ctx, e)
	return true, nil
}

// Entry returns the live backend entry for key, recording the lookup
func (s *Store) Entry(ctx context.Context, key Key) (Entry, bool, error) {
	if _, err := key.validate(); err != nil {
		return Entry{}, false, err
	}

	e, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("read %s cache: %w", key.Kind, err)
	}
	if !ok || !e.LiveAt(s.now()) {
		s.metrics.RecordCacheLookup(string(key.Kind), false)
		return Entry{}, false, nil
	}
	s.metrics.RecordCacheLookup(string(key.Kind), true)
	return e, true, nil
}

// Fresh reports whether a live entry exists
func (s *Store) Fresh(ctx context.Context, key Key) (bool, error) {
	_, ok, err := s.Entry(ctx, key)
	return ok, err
}

// Put encodes payload and upserts it with calculated_at = now and
// expires_at = now + ttl. A non-positive ttl uses the kind's default.
func (s *Store) Put(ctx context.Context, key Key, payload interface{}, ttl time.Duration) error {
	spec, err := key.validate()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = spec.ttl
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", key.Kind, err)
	}

	now := s.now()
	e := Entry{Key: key, Payload: data, CalculatedAt: now, ExpiresAt: now.Add(ttl)}
	if err := s.backend.Put(ctx, e); err != nil {
		return fmt.Errorf("write %s cache: %w", key.Kind, err)
	}
	s.warm(ctx, e)
	return nil
}

// Invalidate removes one entry from both layers
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	if _, err := key.validate(); err != nil {
		return err
	}
	if s.hot != nil {
		if err := s.hot.Delete(ctx, string(key.Kind), key.String()); err != nil {
			s.logger.WithError(err).Debug("Hot cache delete failed")
		}
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s cache: %w", key.Kind, err)
	}
	return nil
}

// InvalidateKind removes every entry of a kind
func (s *Store) InvalidateKind(ctx context.Context, kind Kind) (int64, error) {
	if _, err := kind.TTL(); err != nil {
		return 0, err
	}
	if s.hot != nil {
		if _, err := s.hot.DeleteKind(ctx, string(kind)); err != nil {
			s.logger.WithError(err).Debug("Hot cache kind delete failed")
		}
	}
	n, err := s.backend.DeleteKind(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("delete %s cache: %w", kind, err)
	}
	return n, nil
}

// Sweep removes expired rows of one kind
func (s *Store) Sweep(ctx context.Context, kind Kind) (int64, error) {
	if _, err := kind.TTL(); err != nil {
		return 0, err
	}
	n, err := s.backend.DeleteExpired(ctx, kind, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep %s cache: %w", kind, err)
	}
	return n, nil
}

// SweepAll sweeps every kind, continuing past failures; the first error is returned
func (s *Store) SweepAll(ctx context.Context) (map[Kind]int64, error) {
	removed := make(map[Kind]int64, len(kinds))
	var firstErr error
	for _, kind := range Kinds() {
		n, err := s.Sweep(ctx, kind)
		if err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("Cache sweep failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed[kind] = n
	}
	return removed, firstErr
}

// warm copies an entry into the hot layer for its remaining lifetime
func (s *Store) warm(ctx context.Context, e Entry) {
	if s.hot == nil {
		return
	}
	remaining := e.ExpiresAt.Sub(s.now())
	if err := s.hot.SetRaw(ctx, string(e.Key.Kind), e.Key.String(), e.Payload, remaining); err != nil {
		s.logger.WithError(err).Debug("Hot cache write failed")
	}
}
