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

package breaker

import (
	"context"
	"time"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/l4gw/gwerr"
)

func (b *breaker) getOrCreate(key string, threshold int, openDuration time.Duration) *keyState {
	b.mu.RLock()
	ks, ok := b.keys[key]
	b.mu.RUnlock()
	if ok {
		return ks
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ks, ok = b.keys[key]; ok {
		return ks
	}
	ks = &keyState{
		state:        Closed,
		threshold:    threshold,
		openDuration: openDuration,
	}
	b.keys[key] = ks
	return ks
}

// Execute implements the transition table from spec section 4.2.
func (b *breaker) Execute(ctx context.Context, key string, threshold int, openDuration time.Duration, fn func(ctx context.Context) error) error {
	ks := b.getOrCreate(key, threshold, openDuration)

	ks.mu.Lock()
	now := b.now()

	switch ks.state {
	case Open:
		if now.Before(ks.nextRetry) {
			ks.mu.Unlock()
			return gwerr.New(gwerr.BreakerOpen)
		}
		// Recovery tick is normally eager via Run, but a call arriving
		// after next-retry also performs the Open->HalfOpen transition
		// so correctness never depends on the sweep's cadence.
		ks.state = HalfOpen
		ks.halfOpenAttempt = 0
		fallthrough
	case HalfOpen:
		if ks.state == HalfOpen {
			if ks.halfOpenAttempt >= maxHalfOpenAttempts {
				ks.mu.Unlock()
				return gwerr.New(gwerr.BreakerOpen)
			}
			ks.halfOpenAttempt++
		}
	}
	ks.total++
	ks.mu.Unlock()

	err := fn(ctx)

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if err != nil {
		ks.failures++
		ks.lastFailure = b.now()
		switch ks.state {
		case Closed:
			if ks.failures >= ks.threshold {
				ks.state = Open
				ks.nextRetry = ks.lastFailure.Add(ks.openDuration)
			}
		case HalfOpen:
			ks.state = Open
			ks.nextRetry = ks.lastFailure.Add(ks.openDuration)
			ks.halfOpenAttempt = 0
		}
		if le, ok := err.(liberr.Error); ok {
			return le
		}
		return gwerr.New(gwerr.TransportFailure, err)
	}

	ks.successes++
	switch ks.state {
	case Closed:
		ks.failures = 0
	case HalfOpen:
		ks.state = Closed
		ks.failures = 0
		ks.halfOpenAttempt = 0
	}
	return nil
}

func (b *breaker) Open(key string) {
	ks := b.getOrCreate(key, 1, 0)
	ks.mu.Lock()
	ks.state = Open
	ks.nextRetry = b.now().Add(ks.openDuration)
	ks.mu.Unlock()
}

func (b *breaker) Close(key string) {
	ks := b.getOrCreate(key, 1, 0)
	ks.mu.Lock()
	ks.state = Closed
	ks.failures = 0
	ks.halfOpenAttempt = 0
	ks.mu.Unlock()
}

func (b *breaker) Remove(key string) {
	b.mu.Lock()
	delete(b.keys, key)
	b.mu.Unlock()
}

func snapshot(key string, ks *keyState) Info {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return Info{
		Key:             key,
		State:           ks.state,
		Failures:        ks.failures,
		Successes:       ks.successes,
		TotalRequests:   ks.total,
		LastFailure:     ks.lastFailure,
		NextRetry:       ks.nextRetry,
		HalfOpenAttempt: ks.halfOpenAttempt,
	}
}

func (b *breaker) Info(key string) Info {
	b.mu.RLock()
	ks, ok := b.keys[key]
	b.mu.RUnlock()
	if !ok {
		return Info{Key: key, State: Closed}
	}
	return snapshot(key, ks)
}

func (b *breaker) Stats() []Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Info, 0, len(b.keys))
	for k, ks := range b.keys {
		out = append(out, snapshot(k, ks))
	}
	return out
}

// Run performs the Open->HalfOpen recovery sweep eagerly, on a single
// cancellable ticker per spec section 9's design note (one scheduler
// task per sweep, not a ticker per component).
func (b *breaker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.sweep()
		}
	}
}

func (b *breaker) sweep() {
	b.mu.RLock()
	keys := make([]*keyState, 0, len(b.keys))
	for _, ks := range b.keys {
		keys = append(keys, ks)
	}
	b.mu.RUnlock()

	now := b.now()
	for _, ks := range keys {
		ks.mu.Lock()
		if ks.state == Open && !now.Before(ks.nextRetry) {
			ks.state = HalfOpen
			ks.halfOpenAttempt = 0
		}
		ks.mu.Unlock()
	}
}
