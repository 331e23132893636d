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

package routing

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/nabbar/l4gw/gwerr"
)

func (t *table) Add(entry Entry) error {
	if entry.ID == "" {
		entry.ID = NewEntryID()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.ID == entry.ID {
			return gwerr.New(gwerr.AlreadyRegistered)
		}
	}

	entry.CreatedAt = time.Now()
	t.entries = append(t.entries, &entry)
	t.stats[entry.ID] = &hitCounters{}
	t.sortLocked()
	return nil
}

func (t *table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			delete(t.stats, id)
			return
		}
	}
}

func (t *table) Update(entry Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.ID == entry.ID {
			entry.CreatedAt = e.CreatedAt
			t.entries[i] = &entry
			t.sortLocked()
			return true
		}
	}
	return false
}

func (t *table) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.ID == id {
			return t.snapshot(e), true
		}
	}
	return Entry{}, false
}

func (t *table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

func (t *table) List(direction *Direction) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if direction != nil && e.Direction != *direction && e.Direction != Both {
			continue
		}
		out = append(out, t.snapshot(e))
	}
	return out
}

// Lookup takes the table's read lock, not its write lock: matching
// never mutates t.entries, and the match-count/last-used bookkeeping
// below lives in atomics keyed by entry ID, so concurrent lookups
// never serialize against each other.
func (t *table) Lookup(info Info, direction Direction) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if Matches(*e, info, &direction) {
			if c, ok := t.stats[e.ID]; ok {
				atomic.AddUint64(&c.matchCount, 1)
				atomic.StoreInt64(&c.lastUsedAt, time.Now().UnixNano())
			}
			return t.snapshot(e), true
		}
	}
	return Entry{}, false
}

func (t *table) LookupInbound(info Info) (Entry, bool) {
	return t.Lookup(info, Inbound)
}

func (t *table) LookupOutbound(info Info) (Entry, bool) {
	return t.Lookup(info, Outbound)
}

func (t *table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{ByAction: make(map[Action]int)}
	for _, e := range t.entries {
		s.Total++
		if e.Enabled {
			s.Enabled++
		}
		s.ByAction[e.Action]++
		if c, ok := t.stats[e.ID]; ok {
			s.TotalHits += atomic.LoadUint64(&c.matchCount)
		}
	}
	return s
}

// sortLocked orders entries by descending priority, breaking ties by
// insertion order (stable sort keeps the earlier-added entry first so
// lookups are deterministic across equal priorities).
func (t *table) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Priority > t.entries[j].Priority
	})
}
