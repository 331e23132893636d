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

package routing_test

import (
	"github.com/nabbar/l4gw/routing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	var tbl routing.Table

	BeforeEach(func() {
		tbl = routing.New()
	})

	Describe("Add", func() {
		It("assigns an id when none is given", func() {
			Expect(tbl.Add(routing.Entry{Enabled: true})).To(Succeed())
			list := tbl.List(nil)
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).ToNot(BeEmpty())
		})

		It("rejects a duplicate id", func() {
			e := routing.Entry{ID: "r1", Enabled: true}
			Expect(tbl.Add(e)).To(Succeed())
			Expect(tbl.Add(e)).To(HaveOccurred())
		})
	})

	Describe("priority ordering", func() {
		It("returns the highest-priority match first", func() {
			low := routing.Entry{ID: "low", Enabled: true, Priority: 1, Direction: routing.Both, DestinationPort: 80}
			high := routing.Entry{ID: "high", Enabled: true, Priority: 100, Direction: routing.Both, DestinationPort: 80}
			Expect(tbl.Add(low)).To(Succeed())
			Expect(tbl.Add(high)).To(Succeed())

			entry, ok := tbl.Lookup(routing.Info{Destination: routing.Endpoint{Port: 80}}, routing.Inbound)
			Expect(ok).To(BeTrue())
			Expect(entry.ID).To(Equal("high"))
		})

		It("breaks ties by insertion order", func() {
			first := routing.Entry{ID: "first", Enabled: true, Priority: 5, Direction: routing.Both, DestinationPort: 80}
			second := routing.Entry{ID: "second", Enabled: true, Priority: 5, Direction: routing.Both, DestinationPort: 80}
			Expect(tbl.Add(first)).To(Succeed())
			Expect(tbl.Add(second)).To(Succeed())

			entry, ok := tbl.Lookup(routing.Info{Destination: routing.Endpoint{Port: 80}}, routing.Inbound)
			Expect(ok).To(BeTrue())
			Expect(entry.ID).To(Equal("first"))
		})

		It("falls through to the next entry when the top priority doesn't match", func() {
			specific := routing.Entry{ID: "specific", Enabled: true, Priority: 100, Direction: routing.Both, DestinationPort: 443}
			fallback := routing.Entry{ID: "fallback", Enabled: true, Priority: 1, Direction: routing.Both}
			Expect(tbl.Add(specific)).To(Succeed())
			Expect(tbl.Add(fallback)).To(Succeed())

			entry, ok := tbl.Lookup(routing.Info{Destination: routing.Endpoint{Port: 80}}, routing.Inbound)
			Expect(ok).To(BeTrue())
			Expect(entry.ID).To(Equal("fallback"))
		})
	})

	Describe("Lookup bookkeeping", func() {
		It("increments the match count and sets last-used time", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true, Direction: routing.Both})).To(Succeed())

			_, ok := tbl.Lookup(routing.Info{}, routing.Inbound)
			Expect(ok).To(BeTrue())

			e, found := tbl.Get("r1")
			Expect(found).To(BeTrue())
			Expect(e.MatchCount).To(BeEquivalentTo(1))
			Expect(e.LastUsedAt.IsZero()).To(BeFalse())
		})

		It("reports no match when nothing qualifies", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true, Direction: routing.Inbound, DestinationPort: 22})).To(Succeed())
			_, ok := tbl.Lookup(routing.Info{Destination: routing.Endpoint{Port: 80}}, routing.Inbound)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Update", func() {
		It("replaces the entry in place and preserves creation metadata", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true, Priority: 1})).To(Succeed())
			original, _ := tbl.Get("r1")

			ok := tbl.Update(routing.Entry{ID: "r1", Enabled: true, Priority: 50})
			Expect(ok).To(BeTrue())

			updated, _ := tbl.Get("r1")
			Expect(updated.Priority).To(Equal(50))
			Expect(updated.CreatedAt).To(Equal(original.CreatedAt))
		})

		It("returns false for an unknown id", func() {
			Expect(tbl.Update(routing.Entry{ID: "ghost"})).To(BeFalse())
		})
	})

	Describe("Remove and Clear", func() {
		It("removes a single entry by id", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true})).To(Succeed())
			Expect(tbl.Add(routing.Entry{ID: "r2", Enabled: true})).To(Succeed())

			tbl.Remove("r1")
			Expect(tbl.List(nil)).To(HaveLen(1))
		})

		It("empties the table", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true})).To(Succeed())
			tbl.Clear()
			Expect(tbl.List(nil)).To(BeEmpty())
		})
	})

	Describe("Stats", func() {
		It("aggregates totals, enabled count, and per-action counts", func() {
			Expect(tbl.Add(routing.Entry{ID: "r1", Enabled: true, Action: routing.Accept})).To(Succeed())
			Expect(tbl.Add(routing.Entry{ID: "r2", Enabled: false, Action: routing.Reject})).To(Succeed())

			s := tbl.Stats()
			Expect(s.Total).To(Equal(2))
			Expect(s.Enabled).To(Equal(1))
			Expect(s.ByAction[routing.Accept]).To(Equal(1))
			Expect(s.ByAction[routing.Reject]).To(Equal(1))
		})
	})
})
