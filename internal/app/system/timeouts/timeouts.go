// Package timeouts provides centralized timeout values for backend and
// database operations.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing    = 2 * time.Second
	DefaultShort   = 5 * time.Second
	DefaultRequest = 10 * time.Second
	DefaultWait    = 2 * time.Second
	DefaultAction  = 10 * time.Minute
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

var (
	ping    = DefaultPing
	short   = DefaultShort
	request = DefaultRequest
	wait    = DefaultWait
	action  = DefaultAction
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for simple database operations.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Request returns the timeout for a single backend request.
func Request() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return request
}

// Wait returns how long a page handler waits for a loading cycle before
// rendering the loading state.
func Wait() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return wait
}

// Action returns the timeout for a retrain or switch action.
func Action() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return action
}

// Config holds timeout configuration values. Zero fields keep the current value.
type Config struct {
	Ping    time.Duration
	Short   time.Duration
	Request time.Duration
	Wait    time.Duration
	Action  time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Request > 0 {
		request = cfg.Request
	}
	if cfg.Wait > 0 {
		wait = cfg.Wait
	}
	if cfg.Action > 0 {
		action = cfg.Action
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	request = DefaultRequest
	wait = DefaultWait
	action = DefaultAction
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:    ping,
		Short:   short,
		Request: request,
		Wait:    wait,
		Action:  action,
	}
}

// WithTimeout creates a context with timeout and logs when the deadline is hit.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
