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

package ratelimit

import "time"

func (l *limiter) getBucket(key string, rate float64) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if ok && b.refillRate == rate {
		return b
	}

	// First use of this key, or an administrative rate change: replace
	// with a fresh, full bucket. This loses in-flight tokens, which is
	// acceptable since rate changes are administrative.
	nb := &bucket{
		capacity:   rate,
		refillRate: rate,
		tokens:     rate,
		lastRefill: l.now(),
	}

	l.mu.Lock()
	l.buckets[key] = nb
	l.mu.Unlock()

	return nb
}

// refillLocked advances tokens by the elapsed time since lastRefill, at
// refillRate tokens per second, clamped to capacity. Caller must hold
// b.mu.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

func (l *limiter) Allow(key string, rate float64) bool {
	if rate <= 0 {
		return false
	}

	b := l.getBucket(key, rate)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.now())

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *limiter) State(key string) State {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		return State{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.now())

	frac := 0.0
	if b.capacity > 0 {
		frac = b.tokens / b.capacity
	}

	return State{
		Tokens:       b.tokens,
		Capacity:     b.capacity,
		RefillRate:   b.refillRate,
		FractionLeft: frac,
	}
}

func (l *limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}
