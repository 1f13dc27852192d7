package scoring

import (
	"errors"
	"sync"
	"time"
)

// breakerState represents the state of the circuit breaker.
type breakerState string

const (
	// breakerClosed lets calls through normally.
	breakerClosed breakerState = "closed"
	// breakerOpen fails calls immediately until the cooldown elapses.
	breakerOpen breakerState = "open"
	// breakerHalfOpen lets a single probe through.
	breakerHalfOpen breakerState = "half_open"
)

// errBreakerOpen is returned by allow while remote calls are being skipped.
var errBreakerOpen = errors.New("scoring circuit breaker is open")

// breaker opens after maxFailures consecutive failures and lets one probe
// through once cooldown has passed.
type breaker struct {
	maxFailures uint32
	cooldown    time.Duration
	now         func() time.Time

	mu           sync.Mutex
	state        breakerState
	failures     uint32
	lastFailTime time.Time
	probing      bool
}

func newBreaker(maxFailures uint32, cooldown time.Duration) *breaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		state:       breakerClosed,
	}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.lastFailTime) < b.cooldown {
			return errBreakerOpen
		}
		b.state = breakerHalfOpen
		b.probing = true
		return nil
	case breakerHalfOpen:
		if b.probing {
			return errBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

// recordFailure returns true when this failure opened the breaker.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailTime = b.now()
	b.failures++
	b.probing = false

	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		return true
	case breakerClosed:
		if b.failures >= b.maxFailures {
			b.state = breakerOpen
			return true
		}
	}
	return false
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
