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
	"errors"
	"testing"
	"time"

	"github.com/nabbar/l4gw/gwerr"
)

func newTestBreaker() (*breaker, *fakeClock) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	return &breaker{now: fc.now, keys: make(map[string]*keyState)}, fc
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func ok(context.Context) error      { return nil }

func isBreakerOpen(err error) bool {
	return gwerr.Is(err, gwerr.BreakerOpen)
}

// literal scenario 3: threshold 3, four successive failing calls; the
// 4th is rejected with BreakerOpen; after the open duration, the next
// call half-opens and, on success, closes.
func TestScenario_BreakerOpensAfterThreshold(t *testing.T) {
	b, fc := newTestBreaker()
	const key = "transport_tcp_T1"

	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), key, 3, 60*time.Second, failing); err == nil {
			t.Fatalf("call %d: expected failure to propagate", i)
		}
	}
	if info := b.Info(key); info.State != Open {
		t.Fatalf("expected Open after 3 failures at threshold 3, got %s", info.State)
	}

	if err := b.Execute(context.Background(), key, 3, 60*time.Second, failing); !isBreakerOpen(err) {
		t.Fatalf("4th call should fail fast with BreakerOpen, got %v", err)
	}

	fc.advance(60 * time.Second)
	if err := b.Execute(context.Background(), key, 3, 60*time.Second, ok); err != nil {
		t.Fatalf("half-open probe should have been allowed and succeeded: %v", err)
	}
	if info := b.Info(key); info.State != Closed {
		t.Fatalf("expected Closed after a successful half-open probe, got %s", info.State)
	}
}

// blocking holds fn open until release is closed, so concurrent
// half-open probes can be admitted before any of them completes.
func blocking(release chan struct{}) func(context.Context) error {
	return func(context.Context) error {
		<-release
		return nil
	}
}

func TestHalfOpen_BoundsAttemptsAtThree(t *testing.T) {
	b, _ := newTestBreaker()
	const key = "k"

	ks := &keyState{state: HalfOpen, threshold: 1, openDuration: time.Second}
	b.keys[key] = ks

	release := make(chan struct{})
	done := make(chan error, maxHalfOpenAttempts)
	for i := 0; i < maxHalfOpenAttempts; i++ {
		go func() {
			done <- b.Execute(context.Background(), key, 1, time.Second, blocking(release))
		}()
	}
	// Wait until all three probes have been admitted (attempt counter at
	// the bound) before trying a fourth.
	for {
		if b.Info(key).HalfOpenAttempt == maxHalfOpenAttempts {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Execute(context.Background(), key, 1, time.Second, ok); !isBreakerOpen(err) {
		t.Fatalf("4th concurrent half-open attempt should fail fast, got %v", err)
	}

	close(release)
	for i := 0; i < maxHalfOpenAttempts; i++ {
		<-done
	}
}

func TestClosed_SuccessStaysClosed(t *testing.T) {
	b, _ := newTestBreaker()
	const key = "k"

	if err := b.Execute(context.Background(), key, 2, time.Second, ok); err != nil {
		t.Fatalf("closed+success should stay closed without error: %v", err)
	}
	if info := b.Info(key); info.State != Closed {
		t.Fatalf("expected closed, got %s", info.State)
	}
}

func TestRun_SweepsOpenToHalfOpenOnSchedule(t *testing.T) {
	b, fc := newTestBreaker()
	const key = "k"
	b.Execute(context.Background(), key, 1, 5*time.Second, failing)

	fc.advance(5 * time.Second)
	b.sweep()

	if info := b.Info(key); info.State != HalfOpen {
		t.Fatalf("expected half-open after sweep past next-retry, got %s", info.State)
	}
}
