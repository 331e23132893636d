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

// Package config loads and validates the gateway's configuration
// surface, backed by spf13/viper so the same struct can come from a
// file, environment variables, or defaults.
package config

import (
	libdur "github.com/nabbar/golib/duration"

	"github.com/nabbar/l4gw/routing"
)

// SocketOptions mirrors the per-binding/per-endpoint socket tuning
// knobs from the configuration surface.
type SocketOptions struct {
	ReadTimeout  libdur.Duration `mapstructure:"read_timeout"`
	WriteTimeout libdur.Duration `mapstructure:"write_timeout"`
	KeepAlive    libdur.Duration `mapstructure:"keep_alive"`
	BufferSize   int             `mapstructure:"buffer_size"`
}

// RetryPolicy bounds the client-endpoint dial loop's retry behavior.
type RetryPolicy struct {
	MaxAttempts     int             `mapstructure:"max_attempts"`
	InitialInterval libdur.Duration `mapstructure:"initial_interval"`
	MaxInterval     libdur.Duration `mapstructure:"max_interval"`
	Multiplier      float64         `mapstructure:"multiplier"`
}

// ServerBinding describes one inbound listener the gateway manages.
type ServerBinding struct {
	Port              int    `mapstructure:"port"`
	BindAddress       string `mapstructure:"bind_address"`
	Protocol          string `mapstructure:"protocol"`
	DefaultTransport  string `mapstructure:"default_transport"`
	SocketOptions     SocketOptions `mapstructure:"socket_options"`
	Enabled           bool   `mapstructure:"enabled"`
	Description       string `mapstructure:"description"`
	TransportMode     string `mapstructure:"transport_mode"`
}

// ClientEndpoint describes one outbound dial target the gateway
// maintains.
type ClientEndpoint struct {
	Name            string        `mapstructure:"name"`
	Endpoint        string        `mapstructure:"endpoint"`
	Transport       string        `mapstructure:"transport"`
	Protocol        string        `mapstructure:"protocol"`
	AutoConnect     bool          `mapstructure:"auto_connect"`
	RetryPolicy     RetryPolicy   `mapstructure:"retry_policy"`
	SocketOptions   SocketOptions `mapstructure:"socket_options"`
	MaxConnections  int           `mapstructure:"max_connections"`
	ConnectionPool  int           `mapstructure:"connection_pool"`
	Enabled         bool          `mapstructure:"enabled"`
}

// StaticRoute is a configuration-file representation of a
// routing.Entry, with enum fields as plain strings for serialization.
type StaticRoute struct {
	ID                  string  `mapstructure:"id"`
	Direction           string  `mapstructure:"direction"`
	Protocol            string  `mapstructure:"protocol"`
	SourceNetwork       string  `mapstructure:"source_network"`
	SourcePort          int     `mapstructure:"source_port"`
	DestinationNetwork  string  `mapstructure:"destination_network"`
	DestinationPort     int     `mapstructure:"destination_port"`
	Action              string  `mapstructure:"action"`
	TargetTransportType string  `mapstructure:"target_transport_type"`
	TargetTransportName string  `mapstructure:"target_transport_name"`
	TransportMode       string  `mapstructure:"transport_mode"`
	Priority            int     `mapstructure:"priority"`
	Enabled             bool    `mapstructure:"enabled"`
	LBStrategy          string  `mapstructure:"lb_strategy"`
	RateLimit           float64 `mapstructure:"rate_limit"`
}

// Config is the gateway's full configuration surface.
type Config struct {
	Name                            string           `mapstructure:"name"`
	MaxConcurrentConnections        int64            `mapstructure:"max_concurrent_connections"`
	IdleConnectionTimeout           libdur.Duration  `mapstructure:"idle_connection_timeout"`
	DefaultRateLimit                float64          `mapstructure:"default_rate_limit"`
	EnableRateLimiting              bool             `mapstructure:"enable_rate_limiting"`
	CircuitBreakerFailureThreshold  int              `mapstructure:"circuit_breaker_failure_threshold"`
	CircuitBreakerTimeout           libdur.Duration  `mapstructure:"circuit_breaker_timeout"`
	CircuitBreakerRecoveryInterval  libdur.Duration  `mapstructure:"circuit_breaker_recovery_interval"`
	EnablePerRouteCircuitBreakers   bool             `mapstructure:"enable_per_route_circuit_breakers"`
	BurstCapacityMultiplier         float64          `mapstructure:"burst_capacity_multiplier"`
	ServerBindings                  []ServerBinding  `mapstructure:"server_bindings"`
	ClientEndpoints                 []ClientEndpoint `mapstructure:"client_endpoints"`
	StaticRoutes                    []StaticRoute    `mapstructure:"static_routes"`
}

// Default returns a Config with every numeric/duration knob except
// DefaultRateLimit set to a sane non-zero value, and no bindings,
// endpoints, or routes. Rate limiting is disabled and DefaultRateLimit
// is 0.
func Default() Config {
	return Config{
		Name:                           "l4gw",
		MaxConcurrentConnections:       10000,
		IdleConnectionTimeout:          libdur.Minutes(30),
		DefaultRateLimit:               0,
		EnableRateLimiting:             false,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerTimeout:          libdur.Seconds(30),
		CircuitBreakerRecoveryInterval: libdur.Seconds(30),
		EnablePerRouteCircuitBreakers:  false,
		BurstCapacityMultiplier:        1.5,
	}
}

// ToRouteEntry converts a StaticRoute into the routing.Entry it
// represents, resolving its string-valued enum fields.
func (s StaticRoute) ToRouteEntry() routing.Entry {
	return routing.Entry{
		ID:                  s.ID,
		Direction:           parseDirection(s.Direction),
		Protocol:            parseProtocol(s.Protocol),
		SourceNetwork:       s.SourceNetwork,
		SourcePort:          s.SourcePort,
		DestinationNetwork:  s.DestinationNetwork,
		DestinationPort:     s.DestinationPort,
		Action:              parseAction(s.Action),
		TargetTransportType: s.TargetTransportType,
		TargetTransportName: s.TargetTransportName,
		TransportMode:       parseTransportMode(s.TransportMode),
		Priority:            s.Priority,
		Enabled:             s.Enabled,
		LBStrategy:          s.LBStrategy,
		RateLimit:           s.RateLimit,
	}
}

func parseDirection(s string) routing.Direction {
	switch s {
	case "inbound":
		return routing.Inbound
	case "outbound":
		return routing.Outbound
	default:
		return routing.Both
	}
}

func parseProtocol(s string) routing.Protocol {
	switch s {
	case "tcp":
		return routing.TCP
	case "udp":
		return routing.UDP
	case "icmp":
		return routing.ICMP
	case "raw":
		return routing.Raw
	default:
		return routing.Any
	}
}

func parseAction(s string) routing.Action {
	switch s {
	case "reject":
		return routing.Reject
	case "drop":
		return routing.Drop
	case "connect":
		return routing.Connect
	case "forward":
		return routing.Forward
	default:
		return routing.Accept
	}
}

func parseTransportMode(s string) routing.TransportMode {
	switch s {
	case "client":
		return routing.ModeClient
	case "proxy":
		return routing.ModeProxy
	default:
		return routing.ModeServer
	}
}
