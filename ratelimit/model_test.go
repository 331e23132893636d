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

import (
	"testing"
	"time"
)

// newTestLimiter returns a limiter whose clock is a manually-advanced
// fake, so refill math is exact instead of racing wall-clock jitter.
func newTestLimiter() (*limiter, *fakeClock) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	return &limiter{now: fc.now, buckets: make(map[string]*bucket)}, fc
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func TestAllow_FirstUseGrantsFullBurst(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3) {
			t.Fatalf("call %d: expected allow within initial burst of 3", i)
		}
	}
	if l.Allow("k", 3) {
		t.Fatalf("4th call should be refused, bucket should be exhausted")
	}
}

func TestAllow_RefillOverTime(t *testing.T) {
	l, fc := newTestLimiter()

	for i := 0; i < 2; i++ {
		if !l.Allow("k", 2) {
			t.Fatalf("expected allow at burst capacity")
		}
	}
	if l.Allow("k", 2) {
		t.Fatalf("expected refusal once burst is spent")
	}

	fc.advance(500 * time.Millisecond)
	if !l.Allow("k", 2) {
		t.Fatalf("expected one token to have refilled after 0.5s at rate 2/s")
	}
	if l.Allow("k", 2) {
		t.Fatalf("expected no further tokens immediately after consuming the refill")
	}
}

func TestAllow_RateChangeReplacesBucket(t *testing.T) {
	l, _ := newTestLimiter()

	l.Allow("k", 1)
	st := l.State("k")
	if st.Capacity != 1 {
		t.Fatalf("expected capacity 1, got %v", st.Capacity)
	}

	l.Allow("k", 5)
	st = l.State("k")
	if st.Capacity != 5 {
		t.Fatalf("rate change should replace the bucket, got capacity %v", st.Capacity)
	}
}

func TestState_NeverSeenKeyIsZeroValue(t *testing.T) {
	l, _ := newTestLimiter()
	st := l.State("absent")
	if st.FractionLeft != 0 || st.Capacity != 0 {
		t.Fatalf("expected zero value, got %+v", st)
	}
}

func TestReset_DropsBucket(t *testing.T) {
	l, _ := newTestLimiter()
	l.Allow("k", 2)
	l.Reset("k")
	if st := l.State("k"); st.Capacity != 0 {
		t.Fatalf("expected bucket to be gone after reset, got %+v", st)
	}
}

func TestTokensNeverExceedCapacity(t *testing.T) {
	l, fc := newTestLimiter()
	l.Allow("k", 2)
	fc.advance(10 * time.Hour)
	st := l.State("k")
	if st.Tokens > st.Capacity {
		t.Fatalf("tokens %v exceeded capacity %v", st.Tokens, st.Capacity)
	}
}

// literal scenario 2 from the testable-properties section: default
// rate 2, three rapid calls from the same key, third is refused.
func TestScenario_RateLimitThreeRapidCalls(t *testing.T) {
	l, fc := newTestLimiter()
	const key = "10.0.0.1"

	if !l.Allow(key, 2) {
		t.Fatalf("1st call should be allowed")
	}
	fc.advance(time.Millisecond)
	if !l.Allow(key, 2) {
		t.Fatalf("2nd call should be allowed")
	}
	fc.advance(time.Millisecond)
	if l.Allow(key, 2) {
		t.Fatalf("3rd call within 10ms should be refused")
	}
}
