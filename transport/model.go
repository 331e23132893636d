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

package transport

import (
	"context"

	"github.com/nabbar/l4gw/gwerr"
)

func (r *registry) Register(t Transport) error {
	k := key(t.Type(), t.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[k]; ok {
		return gwerr.New(gwerr.AlreadyRegistered)
	}
	r.byKey[k] = t
	return nil
}

func (r *registry) Unregister(transportType, name string) error {
	k := key(transportType, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[k]; !ok {
		return gwerr.New(gwerr.NoTransport)
	}
	delete(r.byKey, k)
	return nil
}

func (r *registry) Get(transportType, name string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byKey[key(transportType, name)]
	return t, ok
}

func (r *registry) ByType(transportType string) []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Transport
	for _, t := range r.byKey {
		if t.Type() == transportType {
			out = append(out, t)
		}
	}
	return out
}

func (r *registry) List() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Transport, 0, len(r.byKey))
	for _, t := range r.byKey {
		out = append(out, t)
	}
	return out
}

func (r *registry) StartAll(ctx context.Context) []error {
	r.mu.RLock()
	list := make([]Transport, 0, len(r.byKey))
	for _, t := range r.byKey {
		list = append(list, t)
	}
	r.mu.RUnlock()

	var errs []error
	for _, t := range list {
		if err := t.Connect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *registry) StopAll(ctx context.Context) []error {
	r.mu.RLock()
	list := make([]Transport, 0, len(r.byKey))
	for _, t := range r.byKey {
		list = append(list, t)
	}
	r.mu.RUnlock()

	var errs []error
	for _, t := range list {
		if err := t.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *registry) Health() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.byKey))
	for k, t := range r.byKey {
		out[k] = t.IsConnected()
	}
	return out
}
