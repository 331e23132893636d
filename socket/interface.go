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

// Package socket manages the raw listener/dialer lifecycle beneath a
// transport: binding, accepting, dialing, and extracting the
// five-tuple info the routing table matches on. The accept loop itself
// stays with the caller (the gateway orchestrator); this package only
// owns the socket.
package socket

import (
	"context"
	"net"
	"sync"
	"time"

	libsck "github.com/nabbar/golib/socket"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/l4gw/gwerr"
)

// Options configures how a Manager binds or dials.
type Options struct {
	Network       string // "tcp", "udp"
	Address       string
	DialTimeout   time.Duration
	KeepAlive     time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return 10 * time.Second
}

// Info is the resolved address pair of an accepted or dialed
// connection, in the shape the routing table's Info.Source/Destination
// fields need.
type Info struct {
	LocalAddress  string
	LocalPort     int
	RemoteAddress string
	RemotePort    int
}

// Manager owns at most one bound listener at a time. Connections
// returned by Accept and Connect belong to the caller.
type Manager interface {
	// Bind opens a listener for opts.Network/opts.Address. Fails with
	// gwerr.AlreadyBound if a listener is already open. Bind opens
	// stream listeners only (net.Listen): a "udp" network fails with
	// gwerr.ConfigurationInvalid.
	Bind(opts Options) error

	// Accept blocks for the next inbound connection on the bound
	// listener. Returns gwerr.NoTransport if nothing is bound.
	Accept(ctx context.Context) (net.Conn, Info, error)

	// Connect dials opts.Network/opts.Address and returns the
	// connection along with its resolved Info.
	Connect(ctx context.Context, opts Options) (net.Conn, Info, error)

	// Unbind closes the listener, if any.
	Unbind() error

	// Dispose closes the listener and releases all resources. Safe to
	// call more than once.
	Dispose()
}

var _ Manager = (*manager)(nil)

type manager struct {
	mu       sync.Mutex
	listener net.Listener
	opts     Options
}

// New returns an idle, ready-to-use Manager.
func New() Manager {
	return &manager{}
}

// ExtractInfo resolves the local/remote address pair of conn into an
// Info. Connections that don't expose usable addresses (e.g. a closed
// conn) return a zero Info.
func ExtractInfo(conn net.Conn) Info {
	var info Info
	if local, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		info.LocalAddress = local.IP.String()
		info.LocalPort = local.Port
	} else if local, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		info.LocalAddress = local.IP.String()
		info.LocalPort = local.Port
	}
	if remote, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		info.RemoteAddress = remote.IP.String()
		info.RemotePort = remote.Port
	} else if remote, ok := conn.RemoteAddr().(*net.UDPAddr); ok {
		info.RemoteAddress = remote.IP.String()
		info.RemotePort = remote.Port
	}
	return info
}

// filterClose wraps libsck.ErrorFilter to drop the "closed network
// connection" noise every listener produces on a clean shutdown.
func filterClose(err error) error {
	if e := libsck.ErrorFilter(err); e != nil {
		return toLibErr(e)
	}
	return nil
}

func toLibErr(err error) liberr.Error {
	if err == nil {
		return nil
	}
	if le, ok := err.(liberr.Error); ok {
		return le
	}
	return gwerr.New(gwerr.TransportFailure, err)
}
