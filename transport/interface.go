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

// Package transport defines the Transport contract that every
// protocol handler implements, and the registry the gateway uses to
// look handlers up by type and name.
package transport

import (
	"context"
	"io"
	"sync"

	liberr "github.com/nabbar/golib/errors"
)

// Stats is a point-in-time snapshot of a transport's activity.
type Stats struct {
	Connected        bool
	ActiveConnections int64
	TotalAccepted     uint64
	TotalBytesIn      uint64
	TotalBytesOut     uint64
}

// Transport is the contract every protocol handler (TCP listener, UDP
// listener, client-side dialer) implements. Instances are registered
// with the gateway by its caller through Gateway.RegisterTransport.
type Transport interface {
	// Type identifies the transport's protocol family, e.g. "tcp" or
	// "udp".
	Type() string

	// Name is the transport's unique instance name, stable across
	// restarts (matches the configuration entry it was built from).
	Name() string

	// IsConnected reports whether the transport is currently bound
	// (server side) or connected (client side).
	IsConnected() bool

	// Connect starts the transport: binds a listener or dials out,
	// depending on its mode.
	Connect(ctx context.Context) liberr.Error

	// Disconnect stops the transport and releases its resources.
	Disconnect(ctx context.Context) liberr.Error

	// Stats reports the transport's current counters.
	Stats() Stats

	// AcceptConnection hands a live connection stream to the
	// transport for framing/handling, given the already-resolved
	// connection info. This is the intake point the gateway's
	// admission pipeline calls after a route, rate limit, and breaker
	// have all cleared the connection.
	AcceptConnection(ctx context.Context, stream io.ReadWriteCloser, info ConnectionInfo) liberr.Error
}

// ConnectionInfo is the minimal context a transport needs to handle an
// admitted connection.
type ConnectionInfo struct {
	ID            string
	RemoteAddress string
	RemotePort    int
	LocalAddress  string
	LocalPort     int
}

// Registry tracks every live Transport by (type, name).
type Registry interface {
	// Register adds t to the registry, failing with
	// gwerr.AlreadyRegistered if (t.Type(), t.Name()) is already taken.
	Register(t Transport) error

	// Unregister drops the transport with the given type and name.
	Unregister(transportType, name string) error

	// Get returns the transport with the given type and name.
	Get(transportType, name string) (Transport, bool)

	// ByType returns every registered transport of the given type.
	ByType(transportType string) []Transport

	// List returns every registered transport.
	List() []Transport

	// StartAll calls Connect on every registered transport, collecting
	// and returning every error encountered rather than stopping at the
	// first.
	StartAll(ctx context.Context) []error

	// StopAll calls Disconnect on every registered transport,
	// collecting and returning every error encountered.
	StopAll(ctx context.Context) []error

	// Health reports IsConnected for every registered transport, keyed
	// by "type/name".
	Health() map[string]bool
}

var _ Registry = (*registry)(nil)

type registry struct {
	mu    sync.RWMutex
	byKey map[string]Transport
}

// New returns an empty, ready-to-use Registry.
func New() Registry {
	return &registry{byKey: make(map[string]Transport)}
}

func key(transportType, name string) string {
	return transportType + "/" + name
}
