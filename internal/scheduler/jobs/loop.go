package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/pkg/logger"
)

const (
	// DefaultUnitDelay spaces units to smooth provider load
	DefaultUnitDelay = time.Second
	// DefaultUnitTimeout bounds one unit of work
	DefaultUnitTimeout = 60 * time.Second
)

// errSkip marks a unit whose cached artifact is still fresh
var errSkip = errors.New("fresh, skipped")

// unitLoop is the shared job shape: enumerate, space, time-box, tolerate.
// Unit failures are counted and logged; only cancellation stops the loop.
type unitLoop struct {
	Delay   time.Duration
	Timeout time.Duration
}

func defaultLoop() unitLoop {
	return unitLoop{Delay: DefaultUnitDelay, Timeout: DefaultUnitTimeout}
}

func (l unitLoop) run(ctx context.Context, log *logger.Logger, units []string, fn func(ctx context.Context, unit string) error) (scheduler.Result, error) {
	var res scheduler.Result
	skipped := 0

	for i, unit := range units {
		if i > 0 && l.Delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(l.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := l.one(ctx, unit, fn)
		switch {
		case err == nil:
			res.ItemsProcessed++
		case errors.Is(err, errSkip):
			res.ItemsProcessed++
			skipped++
		default:
			res.ItemsFailed++
			log.WithError(err).WithField("unit", unit).Warn("Unit failed")
		}
	}

	log.WithFields(map[string]interface{}{
		"units":     len(units),
		"processed": res.ItemsProcessed,
		"failed":    res.ItemsFailed,
		"skipped":   skipped,
	}).Info("Units processed")
	return res, nil
}

func (l unitLoop) one(ctx context.Context, unit string, fn func(ctx context.Context, unit string) error) error {
	if l.Timeout <= 0 {
		return fn(ctx, unit)
	}
	uctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	return fn(uctx, unit)
}
