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

// Package conntable tracks live connections: a primary map keyed by
// connection id, and a secondary index keyed by remote endpoint, kept
// consistent under a single lock. It also runs the idle-eviction sweep
// described in the gateway's design notes.
package conntable

import (
	"context"
	"sync"
	"time"

	libctx "github.com/nabbar/golib/context"
)

// State is the lifecycle state of a tracked connection.
type State uint8

const (
	Active State = iota
	Idle
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Idle:
		return "idle"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry is one tracked connection.
type Entry struct {
	ID              string
	TransportType   string
	TransportName   string
	RemoteAddress   string
	RemotePort      int
	State           State
	BytesSent       uint64
	BytesReceived   uint64
	EstablishedAt   time.Time
	LastActivityAt  time.Time
	Metadata        libctx.Config[string]
}

// Default idle-eviction thresholds, per the gateway design note: a
// connection idle 30 minutes moves to Idle, and one idle 2 hours is
// closed and removed outright.
const (
	DefaultIdleAfter = 30 * time.Minute
	DefaultCloseAfter = 2 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Table tracks live connections by id, with a secondary lookup by
// remote endpoint. All methods are safe for concurrent use.
type Table interface {
	// Add registers entry, replacing any previous entry with the same
	// ID.
	Add(entry Entry)

	// Get returns the entry for id, if tracked.
	Get(id string) (Entry, bool)

	// Touch refreshes the last-activity time for id and adds the given
	// byte counts, resetting it to Active if it had gone Idle.
	Touch(id string, sent, received uint64)

	// Remove drops id from both indexes.
	Remove(id string)

	// ByEndpoint returns every entry whose remote address matches
	// address.
	ByEndpoint(address string) []Entry

	// CloseWhere marks every entry for which predicate returns true as
	// Closed and removes it, returning the removed entries.
	CloseWhere(predicate func(Entry) bool) []Entry

	// List returns every tracked entry.
	List() []Entry

	// Stats reports aggregate counters over the table.
	Stats() Stats

	// Run starts the idle-eviction sweep on a fixed interval, a single
	// cancellable scheduler task per the gateway design note. It blocks
	// until ctx is cancelled.
	Run(ctx context.Context, interval, idleAfter, closeAfter time.Duration)
}

// Stats is a snapshot of connection-table aggregate counters.
type Stats struct {
	Total           int
	Active          int
	Idle            int
	BytesSent       uint64
	BytesReceived   uint64
}

var _ Table = (*table)(nil)

type table struct {
	mu        sync.RWMutex
	byID      map[string]*Entry
	byAddress map[string]map[string]struct{} // address -> set of ids
	now       func() time.Time
}

// New returns an empty, ready-to-use Table.
func New() Table {
	return &table{
		byID:      make(map[string]*Entry),
		byAddress: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}
