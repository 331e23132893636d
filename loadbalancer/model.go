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

package loadbalancer

import "math/rand"

func (b *balancer) Select(candidates []Candidate, sourceAddress string) (Candidate, bool) {
	pool := connectedOnly(candidates)
	if len(pool) == 0 {
		return Candidate{}, false
	}

	switch b.strategy {
	case LeastConnections:
		return b.selectLeastConnections(pool), true
	case Random:
		return pool[rand.Intn(len(pool))], true
	case WeightedRoundRobin:
		if c, ok := b.selectWeightedRoundRobin(pool); ok {
			return c, true
		}
		return b.selectRoundRobin(pool), true
	case IPHash:
		if sourceAddress != "" {
			sorted := sortedPool(pool)
			return sorted[hashSource(sourceAddress, len(sorted))], true
		}
		return b.selectRoundRobin(pool), true
	case RoundRobin:
		fallthrough
	default:
		return b.selectRoundRobin(pool), true
	}
}

func (b *balancer) selectRoundRobin(pool []Candidate) Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	sorted := sortedPool(pool)
	pk := poolKey(sorted)
	idx := b.rrCursor[pk] % len(sorted)
	b.rrCursor[pk] = idx + 1
	return sorted[idx]
}

func (b *balancer) selectLeastConnections(pool []Candidate) Candidate {
	best := pool[0]
	for _, c := range pool[1:] {
		if c.ActiveConns < best.ActiveConns {
			best = c
		}
	}
	return best
}

// selectWeightedRoundRobin implements the smooth WRR algorithm (as
// used by nginx upstreams): each candidate accrues its weight every
// call, the highest current value is chosen, and the chosen
// candidate's current value is reduced by the pool's total weight.
// Falls back (ok=false) when every candidate in the pool has weight
// zero.
func (b *balancer) selectWeightedRoundRobin(pool []Candidate) (Candidate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	weights := make([]int, len(pool))
	for i, c := range pool {
		w := b.weights[c.key()]
		if w <= 0 {
			w = c.Weight
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return Candidate{}, false
	}

	pk := poolKey(pool)
	st, ok := b.wrr[pk]
	if !ok {
		st = &wrrState{current: make(map[string]int)}
		b.wrr[pk] = st
	}

	bestIdx := -1
	bestCurrent := 0
	for i, c := range pool {
		st.current[c.key()] += weights[i]
		if bestIdx == -1 || st.current[c.key()] > bestCurrent {
			bestIdx = i
			bestCurrent = st.current[c.key()]
		}
	}

	chosen := pool[bestIdx]
	st.current[chosen.key()] -= total
	return chosen, true
}
