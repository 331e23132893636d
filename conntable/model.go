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
	"context"
	"time"
)

func (t *table) Add(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byID[entry.ID]; ok {
		t.unindexLocked(existing)
	}

	if entry.EstablishedAt.IsZero() {
		entry.EstablishedAt = t.now()
	}
	if entry.LastActivityAt.IsZero() {
		entry.LastActivityAt = entry.EstablishedAt
	}

	e := entry
	t.byID[e.ID] = &e
	t.indexLocked(&e)
}

func (t *table) indexLocked(e *Entry) {
	set, ok := t.byAddress[e.RemoteAddress]
	if !ok {
		set = make(map[string]struct{})
		t.byAddress[e.RemoteAddress] = set
	}
	set[e.ID] = struct{}{}
}

func (t *table) unindexLocked(e *Entry) {
	if set, ok := t.byAddress[e.RemoteAddress]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(t.byAddress, e.RemoteAddress)
		}
	}
}

func (t *table) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *table) Touch(id string, sent, received uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return
	}
	e.BytesSent += sent
	e.BytesReceived += received
	e.LastActivityAt = t.now()
	if e.State == Idle {
		e.State = Active
	}
}

func (t *table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return
	}
	t.unindexLocked(e)
	delete(t.byID, id)
}

func (t *table) ByEndpoint(address string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.byAddress[address]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(set))
	for id := range set {
		out = append(out, *t.byID[id])
	}
	return out
}

func (t *table) CloseWhere(predicate func(Entry) bool) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Entry
	for id, e := range t.byID {
		if !predicate(*e) {
			continue
		}
		e.State = Closed
		removed = append(removed, *e)
		t.unindexLocked(e)
		delete(t.byID, id)
	}
	return removed
}

func (t *table) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.byID))
	for _, e := range t.byID {
		out = append(out, *e)
	}
	return out
}

func (t *table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{}
	for _, e := range t.byID {
		s.Total++
		switch e.State {
		case Active:
			s.Active++
		case Idle:
			s.Idle++
		}
		s.BytesSent += e.BytesSent
		s.BytesReceived += e.BytesReceived
	}
	return s
}

func (t *table) Run(ctx context.Context, interval, idleAfter, closeAfter time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	if closeAfter <= 0 {
		closeAfter = DefaultCloseAfter
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(idleAfter, closeAfter)
		}
	}
}

func (t *table) sweep(idleAfter, closeAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, e := range t.byID {
		since := now.Sub(e.LastActivityAt)
		switch {
		case since >= closeAfter:
			e.State = Closed
			t.unindexLocked(e)
			delete(t.byID, id)
		case since >= idleAfter:
			e.State = Idle
		}
	}
}
