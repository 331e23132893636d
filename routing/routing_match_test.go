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

var _ = Describe("Matches", func() {
	baseInfo := func(src, dst string, srcPort, dstPort int) routing.Info {
		return routing.Info{
			Source:      routing.Endpoint{Address: src, Port: srcPort},
			Destination: routing.Endpoint{Address: dst, Port: dstPort},
			Protocol:    routing.TCP,
		}
	}

	disabledEntry := func() routing.Entry {
		return routing.Entry{Enabled: false}
	}

	Context("with a disabled entry", func() {
		It("never matches regardless of filters", func() {
			e := disabledEntry()
			Expect(routing.Matches(e, baseInfo("10.0.0.1", "10.0.0.2", 1000, 80), nil)).To(BeFalse())
		})
	})

	Context("with CIDR destination filters", func() {
		It("matches an address inside the network", func() {
			e := routing.Entry{Enabled: true, DestinationNetwork: "192.168.1.0/24"}
			info := baseInfo("10.0.0.1", "192.168.1.42", 0, 0)
			Expect(routing.Matches(e, info, nil)).To(BeTrue())
		})

		It("rejects an address outside the network", func() {
			e := routing.Entry{Enabled: true, DestinationNetwork: "192.168.1.0/24"}
			info := baseInfo("10.0.0.1", "192.168.2.42", 0, 0)
			Expect(routing.Matches(e, info, nil)).To(BeFalse())
		})

		It("matches a /32 host route only for the exact address", func() {
			e := routing.Entry{Enabled: true, DestinationNetwork: "10.1.1.5/32"}
			Expect(routing.Matches(e, baseInfo("", "10.1.1.5", 0, 0), nil)).To(BeTrue())
			Expect(routing.Matches(e, baseInfo("", "10.1.1.6", 0, 0), nil)).To(BeFalse())
		})

		It("never matches across address families", func() {
			e := routing.Entry{Enabled: true, DestinationNetwork: "10.0.0.0/8"}
			info := baseInfo("", "::1", 0, 0)
			Expect(routing.Matches(e, info, nil)).To(BeFalse())
		})

		It("matches a plain IP network as an exact address", func() {
			e := routing.Entry{Enabled: true, DestinationNetwork: "10.0.0.9"}
			Expect(routing.Matches(e, baseInfo("", "10.0.0.9", 0, 0), nil)).To(BeTrue())
			Expect(routing.Matches(e, baseInfo("", "10.0.0.10", 0, 0), nil)).To(BeFalse())
		})
	})

	Context("with port filters", func() {
		It("requires an exact destination port match when set", func() {
			e := routing.Entry{Enabled: true, DestinationPort: 443}
			Expect(routing.Matches(e, baseInfo("", "", 0, 443), nil)).To(BeTrue())
			Expect(routing.Matches(e, baseInfo("", "", 0, 80), nil)).To(BeFalse())
		})

		It("treats a zero port as a wildcard", func() {
			e := routing.Entry{Enabled: true}
			Expect(routing.Matches(e, baseInfo("", "", 0, 12345), nil)).To(BeTrue())
		})
	})

	Context("with protocol filters", func() {
		It("matches any protocol when unset", func() {
			e := routing.Entry{Enabled: true, Protocol: routing.Any}
			info := routing.Info{Protocol: routing.UDP}
			Expect(routing.Matches(e, info, nil)).To(BeTrue())
		})

		It("rejects a mismatched protocol", func() {
			e := routing.Entry{Enabled: true, Protocol: routing.TCP}
			info := routing.Info{Protocol: routing.UDP}
			Expect(routing.Matches(e, info, nil)).To(BeFalse())
		})
	})

	Context("with direction filters", func() {
		It("matches Both regardless of the requested direction", func() {
			e := routing.Entry{Enabled: true, Direction: routing.Both}
			dir := routing.Outbound
			Expect(routing.Matches(e, routing.Info{}, &dir)).To(BeTrue())
		})

		It("rejects an Inbound entry when Outbound is requested", func() {
			e := routing.Entry{Enabled: true, Direction: routing.Inbound}
			dir := routing.Outbound
			Expect(routing.Matches(e, routing.Info{}, &dir)).To(BeFalse())
		})

		It("ignores direction entirely when no filter is given", func() {
			e := routing.Entry{Enabled: true, Direction: routing.Inbound}
			Expect(routing.Matches(e, routing.Info{}, nil)).To(BeTrue())
		})
	})
})
