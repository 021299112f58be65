package core

// export_limiter.go bounds the number of exports streaming at once.
//
// Exports iterate every matching record, so each one holds a database
// connection (or walks a large slice) for its whole duration. The limiter is
// a semaphore: when every slot is busy a request waits up to maxWait and then
// fails with ErrTooManyExports. WaitForDrain lets shutdown wait for running
// exports.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyExports is returned when every export slot stays occupied for
// the whole wait. Clients should retry after a short delay.
var ErrTooManyExports = errors.New("too many concurrent exports, please try again later")

// DefaultMaxConcurrentExports is the default limit for parallel exports.
const DefaultMaxConcurrentExports = 4

// DefaultExportWait is how long to wait for a slot before rejecting.
const DefaultExportWait = 10 * time.Second

// ExportLimiter controls concurrent exports using a semaphore.
type ExportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
	served  atomic.Int64
}

// NewExportLimiter allows at most maxConcurrent simultaneous exports.
// Non-positive arguments select the defaults.
func NewExportLimiter(maxConcurrent int, maxWait time.Duration) *ExportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentExports
	}
	if maxWait <= 0 {
		maxWait = DefaultExportWait
	}
	return &ExportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes an export slot. The caller must call the returned release
// exactly once.
func (l *ExportLimiter) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		var once atomic.Bool
		return func() {
			if once.CompareAndSwap(false, true) {
				l.active.Add(-1)
				l.served.Add(1)
				<-l.slots
			}
		}, nil
	case <-timer.C:
		return nil, ErrTooManyExports
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run executes fn while holding a slot.
func (l *ExportLimiter) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// ActiveCount returns the number of exports in progress.
func (l *ExportLimiter) ActiveCount() int { return int(l.active.Load()) }

// Available returns the number of free slots.
func (l *ExportLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no export is running or ctx is done.
func (l *ExportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ExportLimiterStatus is a snapshot of the limiter.
type ExportLimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Served        int64 `json:"served"`
}

// Status returns the current limiter state for health reporting.
func (l *ExportLimiter) Status() ExportLimiterStatus {
	return ExportLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
		Served:        l.served.Load(),
	}
}
