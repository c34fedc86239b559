// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading of monitor configuration files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

// Configuration describes one monitor. Files are YAML or JSON; field names
// are the json tags.
type Configuration struct {
	Monitor        string                `json:"monitor,omitempty"`
	Paths          []string              `json:"paths,omitempty"`
	LatencyS       float64               `json:"latency,omitempty"`
	Recursive      bool                  `json:"recursive,omitempty"`
	FollowSymlinks bool                  `json:"followSymlinks,omitempty"`
	AllowOverflow  bool                  `json:"allowOverflow,omitempty"`
	Properties     map[string]string     `json:"properties,omitempty"`
	Filters        []FilterConfiguration `json:"filters,omitempty"`
	EventTypes     []string              `json:"eventTypes,omitempty"`
}

// FilterConfiguration is one filter entry. In a file, an omitted type means
// include, an omitted syntax basic and an omitted caseSensitive true.
type FilterConfiguration struct {
	Pattern       string       `json:"pattern"`
	Type          FilterType   `json:"type"`
	CaseSensitive bool         `json:"caseSensitive"`
	Syntax        FilterSyntax `json:"syntax"`
}

func (f *FilterConfiguration) UnmarshalJSON(bs []byte) error {
	type plain FilterConfiguration
	p := plain{CaseSensitive: true}
	dec := json.NewDecoder(bytes.NewReader(bs))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*f = FilterConfiguration(p)
	return nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (Configuration, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	cfg, err := Parse(bs)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	l.Debugf("loaded %s: %d paths, %d filters", path, len(cfg.Paths), len(cfg.Filters))
	return cfg, nil
}

// Parse decodes and validates a YAML or JSON configuration. Unknown fields
// are an error.
func Parse(bs []byte) (Configuration, error) {
	var cfg Configuration
	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func (cfg Configuration) Validate() error {
	if cfg.LatencyS < 0 || math.IsNaN(cfg.LatencyS) || math.IsInf(cfg.LatencyS, 0) {
		return fmt.Errorf("%w: latency %v", ErrInvalidConfiguration, cfg.LatencyS)
	}
	if cfg.Monitor != "" && !monitor.ExistsType(cfg.Monitor) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfiguration, monitor.ErrUnknownMonitorType, cfg.Monitor)
	}
	for i, f := range cfg.Filters {
		if f.Type == FilterTypeUnknown {
			return fmt.Errorf("%w: filter %d (%q): unknown type", ErrInvalidConfiguration, i, f.Pattern)
		}
		if f.Syntax == FilterSyntaxUnknown {
			return fmt.Errorf("%w: filter %d (%q): unknown syntax", ErrInvalidConfiguration, i, f.Pattern)
		}
	}
	if _, err := cfg.eventFlags(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

// Latency returns the configured latency, or zero if unset.
func (cfg Configuration) Latency() time.Duration {
	return time.Duration(cfg.LatencyS * float64(time.Second))
}

// MonitorFilters converts the filter section into monitor filters.
func (cfg Configuration) MonitorFilters() []monitor.Filter {
	filters := make([]monitor.Filter, len(cfg.Filters))
	for i, f := range cfg.Filters {
		filters[i] = f.Filter()
	}
	return filters
}

func (cfg Configuration) eventFlags() ([]monitor.EventFlag, error) {
	flags := make([]monitor.EventFlag, 0, len(cfg.EventTypes))
	for _, name := range cfg.EventTypes {
		flag, err := monitor.ParseEventFlag(name)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, nil
}

// Apply sets every configured option on m. Options left at their zero value
// keep the monitor's current setting, except the boolean switches which
// are always applied. Configured filters and event types are appended to
// those already present on m.
func (cfg Configuration) Apply(m *monitor.Monitor) error {
	flags, err := cfg.eventFlags()
	if err != nil {
		return err
	}
	for _, f := range cfg.Filters {
		if err := m.AddFilter(f.Filter()); err != nil {
			return err
		}
	}
	for _, flag := range flags {
		m.AddEventTypeFilter(flag)
	}
	if cfg.LatencyS > 0 {
		m.SetLatency(cfg.Latency())
	}
	if len(cfg.Properties) > 0 {
		props := m.Properties()
		for k, v := range cfg.Properties {
			props[k] = v
		}
		m.SetProperties(props)
	}
	m.SetRecursive(cfg.Recursive)
	m.SetFollowSymlinks(cfg.FollowSymlinks)
	m.SetAllowOverflow(cfg.AllowOverflow)
	l.Debugln("applied configuration to", m)
	return nil
}

func (f FilterConfiguration) Filter() monitor.Filter {
	return monitor.Filter{
		Text:          f.Pattern,
		Type:          f.Type.monitorType(),
		CaseSensitive: f.CaseSensitive,
		Syntax:        f.Syntax.monitorSyntax(),
	}
}
