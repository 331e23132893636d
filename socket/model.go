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

package socket

import (
	"context"
	"net"

	"github.com/nabbar/l4gw/gwerr"
)

func (m *manager) Bind(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener != nil {
		return gwerr.New(gwerr.AlreadyBound)
	}

	network := opts.Network
	if network == "" {
		network = "tcp"
	}

	ln, err := net.Listen(network, opts.Address)
	if err != nil {
		return gwerr.New(gwerr.ConfigurationInvalid, err)
	}
	m.listener = ln
	m.opts = opts
	return nil
}

func (m *manager) Accept(ctx context.Context) (net.Conn, Info, error) {
	m.mu.Lock()
	ln := m.listener
	m.mu.Unlock()

	if ln == nil {
		return nil, Info{}, gwerr.New(gwerr.NoTransport)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, Info{}, gwerr.New(gwerr.Cancelled, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if fe := filterClose(r.err); fe != nil {
				return nil, Info{}, fe
			}
			return nil, Info{}, gwerr.New(gwerr.Cancelled)
		}
		return r.conn, ExtractInfo(r.conn), nil
	}
}

func (m *manager) Connect(ctx context.Context, opts Options) (net.Conn, Info, error) {
	network := opts.Network
	if network == "" {
		network = "tcp"
	}

	d := net.Dialer{Timeout: opts.dialTimeout(), KeepAlive: opts.KeepAlive}
	conn, err := d.DialContext(ctx, network, opts.Address)
	if err != nil {
		return nil, Info{}, gwerr.New(gwerr.TransportFailure, err)
	}
	return conn, ExtractInfo(conn), nil
}

func (m *manager) Unbind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener == nil {
		return nil
	}
	err := m.listener.Close()
	m.listener = nil
	if fe := filterClose(err); fe != nil {
		return fe
	}
	return nil
}

func (m *manager) Dispose() {
	_ = m.Unbind()
}
