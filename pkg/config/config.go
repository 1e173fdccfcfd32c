// Copyright 2013 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config implements the JSON configuration schema and loader
// described in spec.md §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// BackendConfig is one entry in statsd.backends. Exactly one of ShardMap and
// ShardMapSource is effective at a time; ShardMapSource wins when both are
// set (spec.md §6).
type BackendConfig struct {
	ShardMap       []string `json:"shard_map,omitempty"`
	ShardMapSource string   `json:"shard_map_source,omitempty"`
	Prefix         string   `json:"prefix,omitempty"`
	Suffix         string   `json:"suffix,omitempty"`
	InputFilter    string   `json:"input_filter,omitempty"`
	InputBlocklist string   `json:"input_blocklist,omitempty"`
}

// StatsdConfig is the statsd section: bind address plus the named backend
// map.
type StatsdConfig struct {
	Bind     string                   `json:"bind"`
	Backends map[string]BackendConfig `json:"backends"`
}

// Transform is one entry in a discovery source's transforms list.
// DiscoveryTransform variants are a closed set modeled as a tagged union
// (spec.md §9 "Dynamic dispatch"): Type selects which of Pattern/Count
// applies.
type Transform struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// DiscoverySource is one entry in discovery.sources. Type selects between
// "static_file" and "s3"; the irrelevant fields for a given type are left
// zero-valued.
type DiscoverySource struct {
	Type       string      `json:"type"`
	Path       string      `json:"path,omitempty"`
	Bucket     string      `json:"bucket,omitempty"`
	Key        string      `json:"key,omitempty"`
	Interval   int         `json:"interval"`
	Transforms []Transform `json:"transforms,omitempty"`
}

// Discovery holds the named discovery sources.
type Discovery struct {
	Sources map[string]DiscoverySource `json:"sources"`
}

// Admin holds the admin HTTP surface's configuration.
type Admin struct {
	Port int `json:"port,omitempty"`
}

// Config is the top-level configuration document (spec.md §6).
type Config struct {
	Statsd    StatsdConfig    `json:"statsd"`
	Discovery *Discovery      `json:"discovery,omitempty"`
	Processor json.RawMessage `json:"processor,omitempty"`
	Admin     *Admin          `json:"admin,omitempty"`
}

// UnknownDiscoverySourceError reports a shard_map_source that does not name
// a configured discovery source.
type UnknownDiscoverySourceError struct {
	Source string
}

func (e *UnknownDiscoverySourceError) Error() string {
	return fmt.Sprintf("could not locate discovery source %q", e.Source)
}

// Validate checks cross-references within c: every backend's
// shard_map_source (if set) must name a configured discovery source
// (spec.md §6 "Validation at load").
func Validate(c *Config) error {
	var sources map[string]DiscoverySource
	if c.Discovery != nil {
		sources = c.Discovery.Sources
	}
	for name, b := range c.Statsd.Backends {
		if b.ShardMapSource == "" {
			continue
		}
		if _, ok := sources[b.ShardMapSource]; !ok {
			return fmt.Errorf("backend %q: %w", name, &UnknownDiscoverySourceError{Source: b.ShardMapSource})
		}
	}
	return nil
}

// Load reads and parses the config file at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
