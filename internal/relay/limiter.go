package relay

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited is returned when runs are started faster than allowed.
	ErrRateLimited = errors.New("run rate limit exceeded")
	// ErrAtCapacity is returned when the concurrent-run cap is reached.
	ErrAtCapacity = errors.New("too many concurrent runs")
)

// Limiter gates run starts with a token bucket and a concurrent-run cap.
// A nil *Limiter admits everything.
type Limiter struct {
	rate  *rate.Limiter
	slots chan struct{}
}

// NewLimiter creates a Limiter. Zero for either argument disables that check.
func NewLimiter(runsPerMinute, maxConcurrent int) *Limiter {
	l := &Limiter{}
	if runsPerMinute > 0 {
		burst := max(1, runsPerMinute/6)
		l.rate = rate.NewLimiter(rate.Every(time.Minute/time.Duration(runsPerMinute)), burst)
	}
	if maxConcurrent > 0 {
		l.slots = make(chan struct{}, maxConcurrent)
	}
	return l
}

// Acquire admits one run. On success the caller must call release when the
// run ends.
func (l *Limiter) Acquire() (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		default:
			return nil, ErrAtCapacity
		}
	}
	if l.rate != nil && !l.rate.Allow() {
		l.free()
		return nil, ErrRateLimited
	}
	return sync.OnceFunc(l.free), nil
}

// InFlight returns the number of admitted runs not yet released.
func (l *Limiter) InFlight() int {
	if l == nil || l.slots == nil {
		return 0
	}
	return len(l.slots)
}

func (l *Limiter) free() {
	if l.slots != nil {
		<-l.slots
	}
}
