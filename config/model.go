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

package config

import (
	"fmt"
	"strings"

	libdur "github.com/nabbar/golib/duration"
	"github.com/spf13/viper"

	"github.com/nabbar/l4gw/gwerr"
)

// Load reads configuration from path (any format viper supports: yaml,
// json, toml) layered over environment variables prefixed L4GW_, and
// returns the validated result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("l4gw")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := Default()
	v.SetDefault("name", def.Name)
	v.SetDefault("max_concurrent_connections", def.MaxConcurrentConnections)
	v.SetDefault("idle_connection_timeout", def.IdleConnectionTimeout)
	v.SetDefault("circuit_breaker_failure_threshold", def.CircuitBreakerFailureThreshold)
	v.SetDefault("circuit_breaker_timeout", def.CircuitBreakerTimeout)
	v.SetDefault("circuit_breaker_recovery_interval", def.CircuitBreakerRecoveryInterval)
	v.SetDefault("burst_capacity_multiplier", def.BurstCapacityMultiplier)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, gwerr.New(gwerr.ConfigurationInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(libdur.ViperDecoderHook())); err != nil {
		return Config{}, gwerr.New(gwerr.ConfigurationInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration surface for internal consistency,
// returning a gwerr.ConfigurationInvalid on the first problem found.
func (c Config) Validate() error {
	if c.Name == "" {
		return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("name must not be empty"))
	}
	if c.MaxConcurrentConnections <= 0 {
		return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("max_concurrent_connections must be positive"))
	}

	seenBindings := make(map[string]struct{}, len(c.ServerBindings))
	for _, b := range c.ServerBindings {
		if b.Port <= 0 || b.Port > 65535 {
			return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("server binding %q: invalid port %d", b.Description, b.Port))
		}
		k := fmt.Sprintf("%s:%d", b.BindAddress, b.Port)
		if _, dup := seenBindings[k]; dup {
			return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("duplicate server binding %s", k))
		}
		seenBindings[k] = struct{}{}
	}

	seenEndpoints := make(map[string]struct{}, len(c.ClientEndpoints))
	for _, e := range c.ClientEndpoints {
		if e.Name == "" {
			return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("client endpoint missing a name"))
		}
		if _, dup := seenEndpoints[e.Name]; dup {
			return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("duplicate client endpoint name %q", e.Name))
		}
		seenEndpoints[e.Name] = struct{}{}
	}

	seenRoutes := make(map[string]struct{}, len(c.StaticRoutes))
	for _, r := range c.StaticRoutes {
		if r.ID == "" {
			continue
		}
		if _, dup := seenRoutes[r.ID]; dup {
			return gwerr.New(gwerr.ConfigurationInvalid, fmt.Errorf("duplicate static route id %q", r.ID))
		}
		seenRoutes[r.ID] = struct{}{}
	}

	return nil
}
