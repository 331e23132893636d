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

// Package loadbalancer selects one target transport instance among
// several candidates, under one of five selectable strategies.
package loadbalancer

import (
	"crypto/sha1"
	"sort"
	"sync"
)

// Strategy names the selection algorithm a pool uses.
type Strategy string

const (
	RoundRobin        Strategy = "round_robin"
	LeastConnections  Strategy = "least_connections"
	Random            Strategy = "random"
	WeightedRoundRobin Strategy = "weighted_round_robin"
	IPHash            Strategy = "ip_hash"
)

// Candidate is one selectable target: a transport instance identified
// by (type, name), along with the data the strategies need.
type Candidate struct {
	TransportType string
	TransportName string
	Connected     bool
	ActiveConns   int64
	Weight        int
}

func (c Candidate) key() string {
	return c.TransportType + "/" + c.TransportName
}

// Balancer picks one candidate from a list under a configured
// strategy. Implementations must be safe for concurrent use; state
// such as round-robin cursors and WRR current-weight accumulators is
// kept per distinct candidate set (identified by its sorted key list)
// so independent pools never interfere with one another.
type Balancer interface {
	// Select returns one connected candidate from candidates, or false
	// if none is eligible (all disconnected, or the slice is empty).
	// sourceAddress is used by the IPHash strategy and ignored by the
	// others.
	Select(candidates []Candidate, sourceAddress string) (Candidate, bool)

	// SetWeight records the weight to use for (transportType, name)
	// under WeightedRoundRobin. A weight of zero is treated as "no
	// preference" and falls back to RoundRobin if every candidate in a
	// selection has zero weight.
	SetWeight(transportType, name string, weight int)

	// Strategy reports the strategy this balancer applies.
	Strategy() Strategy
}

var _ Balancer = (*balancer)(nil)

type wrrState struct {
	current map[string]int
}

type balancer struct {
	strategy Strategy
	mu       sync.Mutex

	rrCursor map[string]int // keyed by the joined candidate key set
	wrr      map[string]*wrrState
	weights  map[string]int // keyed by "type/name"
}

// New returns a Balancer applying the given strategy.
func New(strategy Strategy) Balancer {
	return &balancer{
		strategy: strategy,
		rrCursor: make(map[string]int),
		wrr:      make(map[string]*wrrState),
		weights:  make(map[string]int),
	}
}

func (b *balancer) Strategy() Strategy {
	return b.strategy
}

func (b *balancer) SetWeight(transportType, name string, weight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weights[transportType+"/"+name] = weight
}

// poolKey identifies a candidate set for cursor/state purposes: the
// sorted list of candidate keys, joined. Two calls with the same
// logical pool (same members, any order) share one cursor.
func poolKey(candidates []Candidate) string {
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.key()
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + ","
	}
	return out
}

// sortedPool returns a copy of candidates ordered by candidate key. The
// pool the gateway builds from a transport registry's map iteration
// arrives in a different physical order on every call; any strategy
// that indexes into the pool by position needs this to keep its
// cursor meaningful across calls.
func sortedPool(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

func connectedOnly(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Connected {
			out = append(out, c)
		}
	}
	return out
}

// hashSource reduces sourceAddress to a bucket index in [0, n) using
// the first four bytes of its SHA-1 digest.
func hashSource(sourceAddress string, n int) int {
	sum := sha1.Sum([]byte(sourceAddress))
	v := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	return int(v % uint32(n))
}
