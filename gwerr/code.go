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

// Package gwerr registers the gateway's error taxonomy on top of
// github.com/nabbar/golib/errors, mapping each kind from the error
// handling design to a numeric status usable in the response envelope.
package gwerr

import (
	liberr "github.com/nabbar/golib/errors"
)

// Error kinds, in the order the routing/admission/breaker pipeline can
// produce them. Values are arbitrary but stable; they are never
// serialized outside this process.
const (
	ConfigurationInvalid liberr.CodeError = iota + 1000
	AlreadyBound
	AlreadyRegistered
	BreakerOpen
	RateLimited
	AdmissionTimeout
	NoRoute
	NoTransport
	TransportFailure
	Cancelled
	UnsupportedAction
)

// statusByCode is the mapping onto the response-envelope status codes
// from spec section 6.
var statusByCode = map[liberr.CodeError]int{
	ConfigurationInvalid: 500,
	AlreadyBound:         500,
	AlreadyRegistered:    500,
	BreakerOpen:          503,
	RateLimited:          429,
	AdmissionTimeout:     503,
	NoRoute:              404,
	NoTransport:          502,
	TransportFailure:     500,
	Cancelled:            499,
	UnsupportedAction:    500,
}

var messageByCode = map[liberr.CodeError]string{
	ConfigurationInvalid: "invalid configuration",
	AlreadyBound:         "port already bound",
	AlreadyRegistered:    "transport already registered",
	BreakerOpen:          "circuit breaker is open",
	RateLimited:          "rate limit exceeded",
	AdmissionTimeout:     "connection limit exceeded",
	NoRoute:              "no route",
	NoTransport:          "no transport",
	TransportFailure:     "transport error",
	Cancelled:            "cancelled",
	UnsupportedAction:    "unsupported action",
}

func init() {
	for code, msg := range messageByCode {
		m := msg
		liberr.RegisterIdFctMessage(code, func(_ liberr.CodeError) string {
			return m
		})
	}
}

// StatusCode returns the response-envelope status code for a gateway
// error kind. Unregistered codes, and any error that is not a
// liberr.Error, map to 500.
func StatusCode(err error) int {
	if err == nil {
		return 200
	}
	le, ok := err.(liberr.Error)
	if !ok {
		return 500
	}
	for code, status := range statusByCode {
		if le.IsCode(code) {
			return status
		}
	}
	return 500
}

// New builds a liberr.Error of the given kind with optional parent
// errors attached.
func New(code liberr.CodeError, parent ...error) liberr.Error {
	return code.Error(parent...)
}

// Is reports whether err is a liberr.Error carrying the given kind.
func Is(err error, code liberr.CodeError) bool {
	le, ok := err.(liberr.Error)
	return ok && le.IsCode(code)
}
