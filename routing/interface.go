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

// Package routing implements the priority-ordered routing table:
// CIDR/port/protocol matching and priority resolution over RouteEntry
// values.
package routing

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	libctx "github.com/nabbar/golib/context"
)

// Direction is the applicability of a route entry to inbound, outbound,
// or both lookup directions.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
	Both
)

// Protocol is the transport-layer protocol a route or connection uses.
type Protocol uint8

const (
	Any Protocol = iota
	TCP
	UDP
	ICMP
	Raw
)

// Action is what the gateway does once a route matches.
type Action uint8

const (
	Accept Action = iota
	Reject
	Drop
	Connect
	Forward
)

// TransportMode says how the matched transport should treat the
// handoff.
type TransportMode uint8

const (
	ModeServer TransportMode = iota
	ModeClient
	ModeProxy
)

// Endpoint is an address/port pair. A zero-value Endpoint (empty
// Address) represents "unset"/"unbound".
type Endpoint struct {
	Address string
	Port    int
}

// IsZero reports whether e carries no address.
func (e Endpoint) IsZero() bool {
	return e.Address == ""
}

// Info is the five-tuple context of one connection, used both to look
// up a route and to extract into a ConnectionInfo on admission.
type Info struct {
	Source      Endpoint
	Destination Endpoint
	Protocol    Protocol
	Established time.Time
	Metadata    libctx.Config[string]
}

// Entry is one routing rule. A zero value for any filter field is a
// wildcard. Entries are immutable from the matching algorithm's point
// of view; mutation always goes through the Table.
type Entry struct {
	ID                 string
	Direction          Direction
	Protocol            Protocol
	SourceNetwork       string // plain IP or CIDR, empty = wildcard
	SourcePort          int    // 0 = wildcard
	DestinationNetwork  string
	DestinationPort     int
	Action              Action
	TargetTransportType string
	TargetTransportName string
	TransportMode       TransportMode
	Priority            int
	Enabled             bool
	LBStrategy          string // empty = use gateway default
	RateLimit           float64 // 0 = use gateway default
	CreatedAt           time.Time
	LastUsedAt          time.Time
	MatchCount          uint64
}

// NewEntryID returns a fresh unique route id.
func NewEntryID() string {
	return uuid.NewString()
}

// Table is the priority-ordered routing table. Reads (Lookup, Get,
// List, Stats) may proceed concurrently with each other; writes (Add,
// Update, Remove, Clear) are exclusive.
type Table interface {
	// Add inserts entry, failing with gwerr.AlreadyRegistered if an
	// entry with the same ID already exists.
	Add(entry Entry) error

	// Remove deletes the entry with id, if present.
	Remove(id string)

	// Update replaces the entry with the same ID as entry. It is a
	// no-op, returning false, if no such entry exists.
	Update(entry Entry) bool

	// Get returns the entry with id, if present.
	Get(id string) (Entry, bool)

	// Clear removes every entry.
	Clear()

	// List returns every entry matching direction, in priority order.
	// A nil direction returns every entry regardless of direction.
	List(direction *Direction) []Entry

	// Lookup returns the highest-priority enabled entry matching info
	// under the given direction, incrementing its match counter and
	// refreshing its last-used time. Absent a match, ok is false.
	Lookup(info Info, direction Direction) (entry Entry, ok bool)

	// LookupInbound is Lookup with direction fixed to Inbound.
	LookupInbound(info Info) (Entry, bool)

	// LookupOutbound is Lookup with direction fixed to Outbound.
	LookupOutbound(info Info) (Entry, bool)

	// Stats reports aggregate counters over the table.
	Stats() Stats
}

// Stats is a snapshot of routing-table aggregate counters.
type Stats struct {
	Total     int
	Enabled   int
	ByAction  map[Action]int
	TotalHits uint64
}

var _ Table = (*table)(nil)

// hitCounters holds the per-entry match bookkeeping Lookup updates on
// every call. It is kept out of Entry itself and behind atomics, not
// table.mu, so concurrent Lookup calls never block each other; only
// structural changes (Add, Remove) take the write lock.
type hitCounters struct {
	matchCount uint64 // atomic
	lastUsedAt int64  // atomic, UnixNano
}

type table struct {
	mu      sync.RWMutex
	entries []*Entry
	stats   map[string]*hitCounters
}

// New returns an empty, ready-to-use Table.
func New() Table {
	return &table{
		stats: make(map[string]*hitCounters),
	}
}

// snapshot copies e and overlays its live match-count/last-used values
// from the entry's hit counters, if any are tracked yet.
func (t *table) snapshot(e *Entry) Entry {
	out := *e
	if c, ok := t.stats[e.ID]; ok {
		out.MatchCount = atomic.LoadUint64(&c.matchCount)
		if ns := atomic.LoadInt64(&c.lastUsedAt); ns != 0 {
			out.LastUsedAt = time.Unix(0, ns)
		}
	}
	return out
}

// Matches reports whether entry matches info under the (optional)
// direction filter, per the algorithm in spec section 4.5. It is pure:
// it neither mutates entry nor depends on anything but entry and info.
func Matches(entry Entry, info Info, direction *Direction) bool {
	if !entry.Enabled {
		return false
	}
	if direction != nil && entry.Direction != *direction && entry.Direction != Both {
		return false
	}
	if entry.Protocol != Any && entry.Protocol != info.Protocol {
		return false
	}
	if entry.SourceNetwork != "" {
		if info.Source.IsZero() {
			return false
		}
		if !addressInNetwork(info.Source.Address, entry.SourceNetwork) {
			return false
		}
	}
	if entry.SourcePort != 0 && info.Source.Port != entry.SourcePort {
		return false
	}
	if entry.DestinationNetwork != "" {
		if info.Destination.IsZero() {
			return false
		}
		if !addressInNetwork(info.Destination.Address, entry.DestinationNetwork) {
			return false
		}
	}
	if entry.DestinationPort != 0 && info.Destination.Port != entry.DestinationPort {
		return false
	}
	return true
}

// addressInNetwork reports whether addr equals network (plain address)
// or is contained in it (CIDR). Mismatched address families never
// match.
func addressInNetwork(addr, network string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	if !containsSlash(network) {
		other := net.ParseIP(network)
		return other != nil && sameFamily(ip, other) && ip.Equal(other)
	}

	_, cidr, err := net.ParseCIDR(network)
	if err != nil {
		return false
	}
	if !sameFamily(ip, cidr.IP) {
		return false
	}
	return cidr.Contains(ip)
}

func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
