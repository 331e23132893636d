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

package conntable

import (
	"testing"
	"time"
)

func newTestTable() (*table, *fakeClock) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	tb := New().(*table)
	tb.now = fc.now
	return tb, fc
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestAdd_IndexesByEndpoint(t *testing.T) {
	tb, _ := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1"})

	entries := tb.ByEndpoint("10.0.0.1")
	if len(entries) != 1 || entries[0].ID != "c1" {
		t.Fatalf("expected c1 indexed under 10.0.0.1, got %+v", entries)
	}
}

func TestAdd_ReplacesExistingIDAndReindexes(t *testing.T) {
	tb, _ := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1"})
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.2"})

	if got := tb.ByEndpoint("10.0.0.1"); len(got) != 0 {
		t.Fatalf("expected old address index cleared, got %+v", got)
	}
	if got := tb.ByEndpoint("10.0.0.2"); len(got) != 1 {
		t.Fatalf("expected c1 reindexed under new address, got %+v", got)
	}
}

func TestTouch_AccumulatesBytesAndRevivesIdle(t *testing.T) {
	tb, fc := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1"})
	fc.advance(time.Hour)
	tb.sweep(30*time.Minute, 2*time.Hour)

	e, _ := tb.Get("c1")
	if e.State != Idle {
		t.Fatalf("expected Idle after sweep past idleAfter, got %s", e.State)
	}

	tb.Touch("c1", 100, 50)
	e, _ = tb.Get("c1")
	if e.State != Active {
		t.Fatalf("expected Touch to revive to Active, got %s", e.State)
	}
	if e.BytesSent != 100 || e.BytesReceived != 50 {
		t.Fatalf("unexpected byte counters: %+v", e)
	}
}

func TestSweep_ClosesAndRemovesPastCloseAfter(t *testing.T) {
	tb, fc := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1"})
	fc.advance(3 * time.Hour)
	tb.sweep(30*time.Minute, 2*time.Hour)

	if _, ok := tb.Get("c1"); ok {
		t.Fatalf("expected c1 removed after exceeding closeAfter")
	}
	if got := tb.ByEndpoint("10.0.0.1"); len(got) != 0 {
		t.Fatalf("expected secondary index cleaned up, got %+v", got)
	}
}

func TestRemove_DropsBothIndexes(t *testing.T) {
	tb, _ := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1"})
	tb.Remove("c1")

	if _, ok := tb.Get("c1"); ok {
		t.Fatalf("expected c1 removed from primary index")
	}
	if got := tb.ByEndpoint("10.0.0.1"); len(got) != 0 {
		t.Fatalf("expected c1 removed from secondary index, got %+v", got)
	}
}

func TestCloseWhere_RemovesMatchingEntriesOnly(t *testing.T) {
	tb, _ := newTestTable()
	tb.Add(Entry{ID: "c1", TransportType: "tcp", RemoteAddress: "10.0.0.1"})
	tb.Add(Entry{ID: "c2", TransportType: "udp", RemoteAddress: "10.0.0.2"})

	removed := tb.CloseWhere(func(e Entry) bool { return e.TransportType == "tcp" })
	if len(removed) != 1 || removed[0].ID != "c1" {
		t.Fatalf("expected only c1 removed, got %+v", removed)
	}
	if _, ok := tb.Get("c1"); ok {
		t.Fatalf("expected c1 gone")
	}
	if _, ok := tb.Get("c2"); !ok {
		t.Fatalf("expected c2 untouched")
	}
}

func TestStats_AggregatesByState(t *testing.T) {
	tb, fc := newTestTable()
	tb.Add(Entry{ID: "c1", RemoteAddress: "10.0.0.1", BytesSent: 10})
	tb.Add(Entry{ID: "c2", RemoteAddress: "10.0.0.2", BytesReceived: 20})
	fc.advance(time.Hour)
	tb.sweep(30*time.Minute, 2*time.Hour)

	s := tb.Stats()
	if s.Total != 2 || s.Idle != 2 || s.Active != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.BytesSent != 10 || s.BytesReceived != 20 {
		t.Fatalf("unexpected byte totals: %+v", s)
	}
}
