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

// Package ratelimit implements a per-key token bucket rate limiter with
// refill-on-read semantics and administrative rate changes.
package ratelimit

import (
	"sync"
	"time"
)

// State is a point-in-time snapshot of one key's bucket.
type State struct {
	Tokens       float64
	Capacity     float64
	RefillRate   float64
	FractionLeft float64
}

// Limiter decides, per opaque key, whether a call is allowed under a
// token-bucket budget. Distinct keys never block each other.
type Limiter interface {
	// Allow reports whether a token is available for key at the given
	// rate (tokens per second). The bucket's capacity and refill rate
	// both equal rate: steady state throughput is rate/sec, burst
	// capacity is rate tokens. A rate differing from the key's current
	// bucket replaces it with a fresh, full bucket sized to the new
	// rate.
	Allow(key string, rate float64) bool

	// State reports the current token count, capacity, refill rate and
	// fraction remaining for key. The zero value is returned, with
	// FractionLeft 0, if key has never been seen.
	State(key string) State

	// Reset drops the bucket for key, if any.
	Reset(key string)
}

// clock abstracts time.Now for deterministic tests.
type clock func() time.Time

// bucket is one key's token-bucket state, individually synchronized so
// that distinct keys never contend on the same lock.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

var _ Limiter = (*limiter)(nil)

type limiter struct {
	now     clock
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// New returns a ready-to-use Limiter. Buckets are created lazily on
// first Allow call for a key.
func New() Limiter {
	return &limiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}
