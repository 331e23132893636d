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

// Package gateway composes the routing table, rate limiter, circuit
// breaker, connection table, transport registry, and load balancer
// into the end-to-end connection pipeline.
package gateway

import (
	"context"
	"io"
	"sync"
	"time"

	liblog "github.com/nabbar/golib/logger"
	logcfg "github.com/nabbar/golib/logger/config"
	loglvl "github.com/nabbar/golib/logger/level"
	libsem "github.com/nabbar/golib/semaphore/sem"

	"github.com/nabbar/l4gw/breaker"
	"github.com/nabbar/l4gw/config"
	"github.com/nabbar/l4gw/conntable"
	"github.com/nabbar/l4gw/loadbalancer"
	"github.com/nabbar/l4gw/metrics"
	"github.com/nabbar/l4gw/ratelimit"
	"github.com/nabbar/l4gw/routing"
	"github.com/nabbar/l4gw/socket"
	"github.com/nabbar/l4gw/transport"
)

// Response is the envelope every process_connection call returns, per
// the external-interfaces contract.
type Response struct {
	Success    bool
	StatusCode int
	Message    string
	Error      string
}

func okResp(code int, msg string) Response { return Response{Success: true, StatusCode: code, Message: msg} }
func fail(code int, msg string) Response   { return Response{Success: false, StatusCode: code, Message: msg} }
func failErr(code int, msg string, err error) Response {
	r := fail(code, msg)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// EventSink receives lifecycle and admission notifications. A nil
// sink is valid; the gateway never requires one for correctness.
type EventSink interface {
	OnAccepted(info routing.Info, route routing.Entry)
	OnRejected(info routing.Info, reason string)
}

// Stats aggregates the orchestrator's view across its collaborators.
type Stats struct {
	Running           bool
	Connections       conntable.Stats
	Routing           routing.Stats
	TransportHealth   map[string]bool
	BoundPorts        []int
	ServerBindings    int
	ClientEndpoints   int
	RegisteredTransports int
}

// Gateway is the top-level orchestrator.
type Gateway interface {
	// Start validates the configuration, installs static routes, starts
	// every registered transport, binds every enabled server binding's
	// listener, spawns an accept loop for each TCP binding, and spawns a
	// dial loop for every enabled auto-connect client endpoint.
	Start(ctx context.Context) error

	// ProcessConnection runs the full admission pipeline for one
	// inbound connection.
	ProcessConnection(ctx context.Context, info routing.Info, stream io.ReadWriteCloser) Response

	// CreateOutbound dials an outbound connection via a matching
	// Outbound route whose action is Connect.
	CreateOutbound(ctx context.Context, dest routing.Endpoint, proto routing.Protocol) (io.ReadWriteCloser, error)

	// RegisterTransport adds t to the transport registry. Call it before
	// Start so that StartAll and the admit sub-flow can see it.
	RegisterTransport(t transport.Transport) error

	// Stats reports the orchestrator's aggregate counters.
	Stats() Stats

	// Shutdown stops accepting new work, cancels every background task,
	// unbinds listeners, closes tracked connections, and stops every
	// transport.
	Shutdown(ctx context.Context)
}

var _ Gateway = (*gateway)(nil)

type gateway struct {
	cfg config.Config

	routes      routing.Table
	limiter     ratelimit.Limiter
	breakers    breaker.Breaker
	conns       conntable.Table
	transports  transport.Registry
	balancers   map[loadbalancer.Strategy]loadbalancer.Balancer
	sockets     map[string]socket.Manager // keyed by "binding:<bind address>:<port>"
	metrics     *metrics.Collectors
	sink        EventSink
	log         liblog.Logger

	admission libsem.Sem

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	boundPorts []int
}

// New builds a Gateway from cfg. It does not start anything; call
// Start to bring it up.
func New(cfg config.Config, sink EventSink) Gateway {
	log := liblog.New(context.Background())
	log.SetLevel(loglvl.InfoLevel)
	_ = log.SetOptions(&logcfg.Options{})

	return &gateway{
		cfg:        cfg,
		routes:     routing.New(),
		limiter:    ratelimit.New(),
		breakers:   breaker.New(),
		conns:      conntable.New(),
		transports: transport.New(),
		balancers: map[loadbalancer.Strategy]loadbalancer.Balancer{
			loadbalancer.RoundRobin:         loadbalancer.New(loadbalancer.RoundRobin),
			loadbalancer.LeastConnections:   loadbalancer.New(loadbalancer.LeastConnections),
			loadbalancer.Random:             loadbalancer.New(loadbalancer.Random),
			loadbalancer.WeightedRoundRobin: loadbalancer.New(loadbalancer.WeightedRoundRobin),
			loadbalancer.IPHash:             loadbalancer.New(loadbalancer.IPHash),
		},
		sockets: make(map[string]socket.Manager),
		metrics: metrics.New(),
		sink:    sink,
		log:     log,
	}
}

const admissionWait = 30 * time.Second
