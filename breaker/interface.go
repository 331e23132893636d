/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package breaker implements a per-key circuit breaker: closed, open,
// half-open, with bounded probing and an eager recovery sweep.
//
// CircuitBreakerOpenException is modeled as a distinct registered error
// kind (gwerr.BreakerOpen) so callers can branch on it without
// inspecting the error message.
package breaker

import (
	"context"
	"sync"
	"time"
)

// State is one of the three breaker states for a key.
type State uint8

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Info is a point-in-time snapshot of a key's breaker state.
type Info struct {
	Key             string
	State           State
	Failures        int
	Successes       int
	TotalRequests   int64
	LastFailure     time.Time
	NextRetry       time.Time
	HalfOpenAttempt int
}

// maxHalfOpenAttempts bounds the number of trial calls allowed while
// HalfOpen, per spec section 4.2.
const maxHalfOpenAttempts = 3

// Breaker guards arbitrary operations keyed by an opaque string.
type Breaker interface {
	// Execute runs fn under the breaker for key, using threshold and
	// openDuration if the key has no existing state. Returns
	// gwerr.BreakerOpen without calling fn if the breaker is open, or if
	// it is half-open with no attempts remaining. Any error fn returns
	// is recorded as a failure and re-surfaced: a liberr.Error is
	// returned unchanged, any other error wrapped as
	// gwerr.TransportFailure.
	Execute(ctx context.Context, key string, threshold int, openDuration time.Duration, fn func(ctx context.Context) error) error

	// Open forces key into the Open state.
	Open(key string)

	// Close forces key into the Closed state, clearing its failure and
	// half-open attempt counts. Successes and total requests are kept.
	Close(key string)

	// Remove drops all state for key.
	Remove(key string)

	// Info reports the current snapshot for key. A key never seen
	// reports Closed with zero counters.
	Info(key string) Info

	// Stats reports a snapshot for every key with live state.
	Stats() []Info

	// Run starts the periodic recovery sweep, which eagerly transitions
	// Open keys whose retry time has passed into HalfOpen. It blocks
	// until ctx is cancelled.
	Run(ctx context.Context, interval time.Duration)
}

var _ Breaker = (*breaker)(nil)

type keyState struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	total           int64
	lastFailure     time.Time
	nextRetry       time.Time
	halfOpenAttempt int
	threshold       int
	openDuration    time.Duration
}

type breaker struct {
	now  func() time.Time
	mu   sync.RWMutex
	keys map[string]*keyState
}

// New returns a ready-to-use Breaker.
func New() Breaker {
	return &breaker{
		now:  time.Now,
		keys: make(map[string]*keyState),
	}
}
