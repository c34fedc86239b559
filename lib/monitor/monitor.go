// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/backend.go --fake-name Backend . Backend

// Package monitor implements the platform independent part of filesystem
// change monitoring: configuration, path and event type filtering, event
// delivery and the registry through which backends are found.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultLatency = time.Second

	// Number of AcceptPath decisions remembered per monitor.
	pathCacheSize = 4096
)

// Callback receives every non-empty batch of accepted events, together with
// the context value of the monitor. It is called on the goroutine running
// the backend, so it must return quickly.
type Callback func(events []Event, context any)

// A Backend discovers changes under the monitor's paths. Run blocks until
// ctx is cancelled or an unrecoverable error occurs. Discovered changes are
// handed to m.NotifyEvents, lost changes are reported through
// m.NotifyOverflow, whose error must terminate Run.
type Backend interface {
	Run(ctx context.Context, m *Monitor) error
}

// Monitor holds the configuration of one watch session and filters the
// events produced by its backend. Configuration must be complete before
// Start is called; the setters are not safe for use while running.
type Monitor struct {
	backend    Backend
	name       string
	paths      []string
	properties map[string]string
	callback   Callback
	context    any

	latency        time.Duration
	allowOverflow  bool
	recursive      bool
	followSymlinks bool

	filters          []compiledFilter
	eventTypeFilters []EventFlag
	pathCache        *lru.Cache[string, bool]

	runMut    sync.Mutex
	running   atomic.Bool
	cancelMut sync.Mutex
	cancel    context.CancelCauseFunc
}

// New returns a monitor watching paths with the given backend. The context
// value is passed to every callback invocation; the monitor does not own it.
func New(backend Backend, paths []string, callback Callback, context any) *Monitor {
	cache, _ := lru.New[string, bool](pathCacheSize)
	return &Monitor{
		backend:    backend,
		name:       fmt.Sprintf("%T", backend),
		paths:      slices.Clone(paths),
		properties: make(map[string]string),
		callback:   callback,
		context:    context,
		latency:    DefaultLatency,
		pathCache:  cache,
	}
}

// Name returns the registered name of the backend, or its Go type for
// monitors constructed directly.
func (m *Monitor) Name() string {
	return m.name
}

func (m *Monitor) Paths() []string {
	return slices.Clone(m.paths)
}

// SetProperties replaces all backend specific properties.
func (m *Monitor) SetProperties(properties map[string]string) {
	m.properties = maps.Clone(properties)
	if m.properties == nil {
		m.properties = make(map[string]string)
	}
}

// Property returns the named property, or an error wrapping
// ErrPropertyNotFound.
func (m *Monitor) Property(name string) (string, error) {
	val, ok := m.properties[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPropertyNotFound, name)
	}
	return val, nil
}

func (m *Monitor) Properties() map[string]string {
	return maps.Clone(m.properties)
}

// SetLatency sets the interval over which backends batch events.
func (m *Monitor) SetLatency(latency time.Duration) {
	m.latency = latency
}

func (m *Monitor) Latency() time.Duration {
	return m.latency
}

// SetAllowOverflow decides whether an overflow is reported as an event
// (true) or ends the run loop with ErrMonitorOverflow (false).
func (m *Monitor) SetAllowOverflow(allow bool) {
	m.allowOverflow = allow
}

func (m *Monitor) AllowOverflow() bool {
	return m.allowOverflow
}

func (m *Monitor) SetRecursive(recursive bool) {
	m.recursive = recursive
}

func (m *Monitor) Recursive() bool {
	return m.recursive
}

func (m *Monitor) SetFollowSymlinks(follow bool) {
	m.followSymlinks = follow
}

func (m *Monitor) FollowSymlinks() bool {
	return m.followSymlinks
}

func (m *Monitor) Context() any {
	return m.context
}

func (m *Monitor) SetContext(context any) {
	m.context = context
}

// AddFilter compiles the filter and appends it to the filter list.
func (m *Monitor) AddFilter(filter Filter) error {
	cf, err := compileFilter(filter)
	if err != nil {
		return err
	}
	m.filters = append(m.filters, cf)
	m.pathCache.Purge()
	return nil
}

// SetFilters replaces the filter list. If any filter fails to compile the
// current list is kept.
func (m *Monitor) SetFilters(filters []Filter) error {
	compiled := make([]compiledFilter, 0, len(filters))
	for _, filter := range filters {
		cf, err := compileFilter(filter)
		if err != nil {
			return err
		}
		compiled = append(compiled, cf)
	}
	m.filters = compiled
	m.pathCache.Purge()
	return nil
}

// Filters returns the configured filters in evaluation order.
func (m *Monitor) Filters() []Filter {
	filters := make([]Filter, len(m.filters))
	for i, cf := range m.filters {
		filters[i] = cf.filter
	}
	return filters
}

func (m *Monitor) AddEventTypeFilter(flag EventFlag) {
	m.eventTypeFilters = append(m.eventTypeFilters, flag)
}

func (m *Monitor) SetEventTypeFilters(flags []EventFlag) {
	m.eventTypeFilters = slices.Clone(flags)
}

func (m *Monitor) EventTypeFilters() []EventFlag {
	return slices.Clone(m.eventTypeFilters)
}

// AcceptPath evaluates the filters in order. The first matching filter
// decides; a path matched by no filter is accepted.
func (m *Monitor) AcceptPath(path string) bool {
	if len(m.filters) == 0 {
		return true
	}
	if res, ok := m.pathCache.Get(path); ok {
		return res
	}

	res := true
	for _, cf := range m.filters {
		if cf.match(path) {
			res = cf.filter.Type == FilterInclude
			break
		}
	}
	m.pathCache.Add(path, res)
	return res
}

// AcceptEventType returns true if no event type filters are configured or
// flag is one of them.
func (m *Monitor) AcceptEventType(flag EventFlag) bool {
	if len(m.eventTypeFilters) == 0 {
		return true
	}
	return slices.Contains(m.eventTypeFilters, flag)
}

// FilterFlags returns the subset of the event's flags that are accepted.
func (m *Monitor) FilterFlags(ev Event) EventFlag {
	if len(m.eventTypeFilters) == 0 {
		return ev.Flags
	}
	var res EventFlag
	for _, flag := range ev.Flags.Split() {
		if m.AcceptEventType(flag) {
			res |= flag
		}
	}
	return res
}

// NotifyEvents filters the events and passes the remainder, in the received
// order, to the callback in a single call. Nothing is delivered if no event
// survives filtering.
func (m *Monitor) NotifyEvents(events []Event) {
	metricEventsReceived.WithLabelValues(m.name).Add(float64(len(events)))

	filtered := make([]Event, 0, len(events))
	for _, ev := range events {
		if !m.AcceptPath(ev.Path) {
			l.Debugln(m, "rejected path", ev.Path)
			continue
		}
		flags := m.FilterFlags(ev)
		if flags == NoOp {
			l.Debugln(m, "rejected event types", ev.Flags, "for", ev.Path)
			continue
		}
		ev.Flags = flags
		filtered = append(filtered, ev)
	}

	if len(filtered) == 0 {
		return
	}
	m.deliver(filtered)
}

// NotifyOverflow reports that the backend lost track of changes. If
// overflow is allowed an event carrying only the Overflow flag and an empty
// path is delivered, bypassing all filters, and nil is returned. Otherwise
// the run is cancelled and ErrMonitorOverflow returned; the backend must
// return from Run.
func (m *Monitor) NotifyOverflow() error {
	metricOverflows.WithLabelValues(m.name).Inc()

	if !m.allowOverflow {
		l.Debugln(m, "overflow, stopping")
		m.cancelMut.Lock()
		if m.cancel != nil {
			m.cancel(ErrMonitorOverflow)
		}
		m.cancelMut.Unlock()
		return ErrMonitorOverflow
	}

	l.Debugln(m, "overflow, notifying")
	m.deliver([]Event{{Time: time.Now(), Flags: Overflow}})
	return nil
}

func (m *Monitor) deliver(events []Event) {
	metricBatchesDelivered.WithLabelValues(m.name).Inc()
	metricEventsDelivered.WithLabelValues(m.name).Add(float64(len(events)))
	if m.callback != nil {
		m.callback(events, m.context)
	}
}

// Start runs the backend and blocks until it returns. Only one run can be
// in progress at a time; a call made while running fails immediately with
// ErrAlreadyRunning. Cancelling ctx stops the monitor, in which case Start
// returns nil. After Start has returned the monitor may be started again.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.runMut.TryLock() {
		return ErrAlreadyRunning
	}
	defer m.runMut.Unlock()
	m.running.Store(true)
	defer m.running.Store(false)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.cancelMut.Lock()
	m.cancel = cancel
	m.cancelMut.Unlock()
	defer func() {
		m.cancelMut.Lock()
		m.cancel = nil
		m.cancelMut.Unlock()
	}()

	metricRunning.WithLabelValues(m.name).Set(1)
	defer metricRunning.WithLabelValues(m.name).Set(0)

	l.Debugln(m, "starting, latency", m.latency, "recursive", m.recursive, "follow symlinks", m.followSymlinks)
	err := m.backend.Run(runCtx, m)

	if cause := context.Cause(runCtx); errors.Is(cause, ErrMonitorOverflow) {
		l.Debugln(m, "stopped due to overflow")
		return ErrMonitorOverflow
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	l.Debugln(m, "stopped:", err)
	return err
}

// Running returns true while a run loop is in progress.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) String() string {
	return fmt.Sprintf("monitor@%p(%s)", m, m.name)
}
