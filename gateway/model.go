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

package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	libsem "github.com/nabbar/golib/semaphore/sem"

	"github.com/nabbar/l4gw/config"
	"github.com/nabbar/l4gw/conntable"
	"github.com/nabbar/l4gw/gwerr"
	"github.com/nabbar/l4gw/loadbalancer"
	"github.com/nabbar/l4gw/routing"
	"github.com/nabbar/l4gw/socket"
	"github.com/nabbar/l4gw/transport"
)

func (g *gateway) RegisterTransport(t transport.Transport) error {
	return g.transports.Register(t)
}

// Start validates cfg, installs static routes, starts every registered
// transport, binds every enabled server binding, and spawns every
// enabled auto-connect client endpoint's dial loop.
func (g *gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("gateway already running"))
	}
	if err := g.cfg.Validate(); err != nil {
		return err
	}
	if g.cfg.EnableRateLimiting && g.cfg.DefaultRateLimit <= 0 {
		return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("default_rate_limit must be positive when rate limiting is enabled"))
	}
	if g.cfg.CircuitBreakerFailureThreshold <= 0 {
		return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("circuit_breaker_failure_threshold must be positive"))
	}

	for _, r := range g.cfg.StaticRoutes {
		if err := g.routes.Add(r.ToRouteEntry()); err != nil {
			return err
		}
	}

	if errs := g.transports.StartAll(ctx); len(errs) > 0 {
		g.log.Warning("some transports failed to start during gateway startup: %v", nil, errs)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.admission = libsem.New(runCtx, g.cfg.MaxConcurrentConnections)

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.breakers.Run(runCtx, g.cfg.CircuitBreakerRecoveryInterval.Time())
	}()
	go func() {
		defer g.wg.Done()
		g.conns.Run(runCtx, conntable.DefaultSweepInterval, g.cfg.IdleConnectionTimeout.Time(), conntable.DefaultCloseAfter)
	}()

	for _, b := range g.cfg.ServerBindings {
		if !b.Enabled {
			continue
		}
		mgr := socket.New()
		addr := fmt.Sprintf("%s:%d", b.BindAddress, b.Port)
		network := b.Protocol
		if network == "" {
			network = "tcp"
		}
		if err := mgr.Bind(socket.Options{
			Network:      network,
			Address:      addr,
			ReadTimeout:  b.SocketOptions.ReadTimeout.Time(),
			WriteTimeout: b.SocketOptions.WriteTimeout.Time(),
			KeepAlive:    b.SocketOptions.KeepAlive.Time(),
		}); err != nil {
			return err
		}
		g.sockets[fmt.Sprintf("binding:%s", addr)] = mgr
		g.boundPorts = append(g.boundPorts, b.Port)

		if network == "tcp" {
			g.wg.Add(1)
			go g.acceptLoop(runCtx, mgr, b)
		}
	}

	for _, e := range g.cfg.ClientEndpoints {
		if !e.Enabled || !e.AutoConnect {
			continue
		}
		g.wg.Add(1)
		go g.dialLoop(runCtx, e)
	}

	g.running = true
	return nil
}

func (g *gateway) acceptLoop(ctx context.Context, mgr socket.Manager, binding config.ServerBinding) {
	defer g.wg.Done()
	for {
		conn, info, err := mgr.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		ri := routing.Info{
			Source:      routing.Endpoint{Address: info.RemoteAddress, Port: info.RemotePort},
			Destination: routing.Endpoint{Address: info.LocalAddress, Port: info.LocalPort},
			Protocol:    routing.TCP,
			Established: time.Now(),
		}

		g.wg.Add(1)
		go func(c net.Conn, i routing.Info) {
			defer g.wg.Done()
			g.ProcessConnection(ctx, i, c)
		}(conn, ri)
	}
}

func (g *gateway) dialLoop(ctx context.Context, ep config.ClientEndpoint) {
	defer g.wg.Done()

	attempts := ep.RetryPolicy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := ep.RetryPolicy.InitialInterval.Time()
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := ep.RetryPolicy.MaxInterval.Time()
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	mgr := socket.New()
	network := ep.Protocol
	if network == "" {
		network = "tcp"
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		conn, info, err := mgr.Connect(ctx, socket.Options{
			Network:      network,
			Address:      ep.Endpoint,
			ReadTimeout:  ep.SocketOptions.ReadTimeout.Time(),
			WriteTimeout: ep.SocketOptions.WriteTimeout.Time(),
			KeepAlive:    ep.SocketOptions.KeepAlive.Time(),
		})
		if err == nil {
			g.conns.Add(conntable.Entry{
				ID:             routing.NewEntryID(),
				TransportType:  ep.Transport,
				TransportName:  ep.Name,
				RemoteAddress:  info.RemoteAddress,
				RemotePort:     info.RemotePort,
				State:          conntable.Active,
				EstablishedAt:  time.Now(),
				LastActivityAt: time.Now(),
			})
			_ = conn
			return
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if ep.RetryPolicy.Multiplier > 1 {
			delay = time.Duration(float64(delay) * ep.RetryPolicy.Multiplier)
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}

	g.log.Error("client endpoint %s exhausted its retry policy without connecting", nil, ep.Name)
}

// ProcessConnection runs the admission pipeline described in the
// gateway design: admission semaphore, routing lookup, rate limiting,
// action dispatch, and (for Accept) the breaker-wrapped transport
// handoff.
func (g *gateway) ProcessConnection(ctx context.Context, info routing.Info, stream io.ReadWriteCloser) Response {
	g.mu.RLock()
	running := g.running
	g.mu.RUnlock()
	if !running {
		return fail(503, "not running")
	}

	if !g.acquireAdmission(ctx) {
		return fail(503, "Connection limit exceeded")
	}
	defer g.admission.DeferWorker()

	route, hasRoute := g.routes.LookupInbound(info)

	if g.cfg.EnableRateLimiting {
		key := info.Source.Address
		if key == "" {
			key = "unknown"
		}
		rate := g.cfg.DefaultRateLimit
		if hasRoute && route.RateLimit > 0 {
			rate = route.RateLimit
		}
		if !g.limiter.Allow(key, rate) {
			g.metrics.RateLimited.WithLabelValues(key).Inc()
			return fail(429, "Rate limit exceeded")
		}
	}

	if !hasRoute {
		return fail(404, "No route")
	}
	g.metrics.RouteHits.WithLabelValues(route.ID).Inc()

	switch route.Action {
	case routing.Accept:
		return g.admit(ctx, route, info, stream)
	case routing.Reject:
		_ = stream.Close()
		if g.sink != nil {
			g.sink.OnRejected(info, "rejected by routing rules")
		}
		return fail(403, "Connection rejected by routing rules")
	case routing.Drop:
		_ = stream.Close()
		return fail(444, "dropped")
	default:
		return fail(500, "unsupported action")
	}
}

// admit resolves a target transport (directly or via load balancing),
// wraps the handoff in the chosen transport's breaker key
// ("transport_<type>_<name>"), and records the
// resulting ConnectionState on success.
func (g *gateway) admit(ctx context.Context, route routing.Entry, info routing.Info, stream io.ReadWriteCloser) Response {
	t, ok := g.resolveTransport(route, info)
	if !ok {
		_ = stream.Close()
		return fail(502, "no transport")
	}

	breakerKey := fmt.Sprintf("transport_%s_%s", t.Type(), t.Name())
	connID := routing.NewEntryID()

	err := g.breakers.Execute(ctx, breakerKey, g.cfg.CircuitBreakerFailureThreshold, g.cfg.CircuitBreakerTimeout.Time(), func(ctx context.Context) error {
		return t.AcceptConnection(ctx, stream, transport.ConnectionInfo{
			ID:            connID,
			RemoteAddress: info.Source.Address,
			RemotePort:    info.Source.Port,
			LocalAddress:  info.Destination.Address,
			LocalPort:     info.Destination.Port,
		})
	})

	if err != nil {
		if gwerr.Is(err, gwerr.BreakerOpen) {
			return fail(503, "Transport circuit breaker is open")
		}
		return failErr(500, "transport error", err)
	}

	g.conns.Add(conntable.Entry{
		ID:             connID,
		TransportType:  t.Type(),
		TransportName:  t.Name(),
		RemoteAddress:  info.Source.Address,
		RemotePort:     info.Source.Port,
		State:          conntable.Active,
		EstablishedAt:  time.Now(),
		LastActivityAt: time.Now(),
	})
	g.metrics.ConnectionsActive.Inc()
	if g.sink != nil {
		g.sink.OnAccepted(info, route)
	}
	return okResp(200, "accepted")
}

// resolveTransport chooses a target transport for route: its declared
// target directly if it has no LB strategy, otherwise the result of
// running the load balancer over every registered transport of the
// target's type.
func (g *gateway) resolveTransport(route routing.Entry, info routing.Info) (transport.Transport, bool) {
	if route.LBStrategy == "" || route.TargetTransportType == "" {
		if route.TargetTransportName != "" {
			return g.transports.Get(route.TargetTransportType, route.TargetTransportName)
		}
	}

	pool := g.transports.ByType(route.TargetTransportType)
	if len(pool) == 0 {
		return nil, false
	}
	if len(pool) == 1 {
		return pool[0], true
	}

	lb, ok := g.balancers[loadbalancer.Strategy(route.LBStrategy)]
	if !ok {
		lb = g.balancers[loadbalancer.RoundRobin]
	}

	candidates := make([]loadbalancer.Candidate, 0, len(pool))
	byKey := make(map[string]transport.Transport, len(pool))
	for _, t := range pool {
		stats := t.Stats()
		candidates = append(candidates, loadbalancer.Candidate{
			TransportType: t.Type(),
			TransportName: t.Name(),
			Connected:     stats.Connected,
			ActiveConns:   stats.ActiveConnections,
		})
		byKey[t.Type()+"/"+t.Name()] = t
	}

	chosen, ok := lb.Select(candidates, info.Source.Address)
	if !ok {
		return nil, false
	}
	t, ok := byKey[chosen.TransportType+"/"+chosen.TransportName]
	return t, ok
}

// acquireAdmission waits for an admission slot up to the fixed
// deadline. libsem's NewWorker blocks with no per-call timeout, so the
// wait runs in its own goroutine; on timeout or cancellation this
// returns false immediately, and a later-arriving permit is released
// without ever being used.
func (g *gateway) acquireAdmission(ctx context.Context) bool {
	acquired := make(chan error, 1)
	go func() {
		acquired <- g.admission.NewWorker()
	}()

	timer := time.NewTimer(admissionWait)
	defer timer.Stop()

	select {
	case err := <-acquired:
		return err == nil
	case <-timer.C:
		go func() {
			if err := <-acquired; err == nil {
				g.admission.DeferWorker()
			}
		}()
		return false
	case <-ctx.Done():
		go func() {
			if err := <-acquired; err == nil {
				g.admission.DeferWorker()
			}
		}()
		return false
	}
}

// CreateOutbound looks up an Outbound route requiring action=Connect,
// dials through a socket manager, and records the resulting
// connection.
func (g *gateway) CreateOutbound(ctx context.Context, dest routing.Endpoint, proto routing.Protocol) (io.ReadWriteCloser, error) {
	route, ok := g.routes.LookupOutbound(routing.Info{Destination: dest, Protocol: proto})
	if !ok {
		return nil, gwerr.New(gwerr.NoRoute, fmt.Errorf("no outbound route to %s:%d", dest.Address, dest.Port))
	}
	if route.Action != routing.Connect {
		return nil, gwerr.New(gwerr.UnsupportedAction, fmt.Errorf("outbound route %s does not permit connect", route.ID))
	}

	network := "tcp"
	if proto == routing.UDP {
		network = "udp"
	}

	mgr := socket.New()
	conn, info, err := mgr.Connect(ctx, socket.Options{
		Network: network,
		Address: fmt.Sprintf("%s:%d", dest.Address, dest.Port),
	})
	if err != nil {
		return nil, err
	}

	g.conns.Add(conntable.Entry{
		ID:             routing.NewEntryID(),
		TransportType:  route.TargetTransportType,
		TransportName:  route.TargetTransportName,
		RemoteAddress:  info.RemoteAddress,
		RemotePort:     info.RemotePort,
		State:          conntable.Active,
		EstablishedAt:  time.Now(),
		LastActivityAt: time.Now(),
	})
	return conn, nil
}

// Stats aggregates the connection table, routing table, transport
// health, bound ports, and collaborator counts.
func (g *gateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ports := make([]int, len(g.boundPorts))
	copy(ports, g.boundPorts)

	return Stats{
		Running:              g.running,
		Connections:          g.conns.Stats(),
		Routing:              g.routes.Stats(),
		TransportHealth:      g.transports.Health(),
		BoundPorts:           ports,
		ServerBindings:       len(g.cfg.ServerBindings),
		ClientEndpoints:      len(g.cfg.ClientEndpoints),
		RegisteredTransports: len(g.transports.List()),
	}
}

// Shutdown stops accepting new work, cancels every background task,
// unbinds listeners, closes tracked connections, and stops every
// transport.
func (g *gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	cancel := g.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	g.mu.RLock()
	sockets := make([]socket.Manager, 0, len(g.sockets))
	for _, s := range g.sockets {
		sockets = append(sockets, s)
	}
	g.mu.RUnlock()
	for _, s := range sockets {
		s.Dispose()
	}

	g.conns.CloseWhere(func(conntable.Entry) bool { return true })
	g.transports.StopAll(ctx)

	if g.admission != nil {
		g.admission.DeferMain()
	}

	g.wg.Wait()
}
