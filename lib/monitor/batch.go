// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"sync"
	"time"
)

// Not meant to be changed, but must be changeable for tests
var maxPending = 4096

// A Batcher collects events on behalf of a backend until the next latency
// tick. Repeated events for one path are merged into the first one, keeping
// its timestamp and position and adding the flags.
type Batcher struct {
	m       *Monitor
	mut     sync.Mutex
	pending []Event
	index   map[string]int
}

func NewBatcher(m *Monitor) *Batcher {
	return &Batcher{
		m:     m,
		index: make(map[string]int),
	}
}

// Add queues an event. When more distinct paths are pending than can be
// tracked the queue is dropped and the overflow is reported, with the
// result of NotifyOverflow returned.
func (b *Batcher) Add(ev Event) error {
	b.mut.Lock()
	if i, ok := b.index[ev.Path]; ok {
		b.pending[i].Flags |= ev.Flags
		b.mut.Unlock()
		return nil
	}
	if len(b.pending) >= maxPending {
		l.Debugln(b.m, "batch overflow with", len(b.pending), "pending events")
		b.reset()
		b.mut.Unlock()
		return b.m.NotifyOverflow()
	}
	b.index[ev.Path] = len(b.pending)
	b.pending = append(b.pending, ev)
	b.mut.Unlock()
	return nil
}

// Len returns the number of pending events.
func (b *Batcher) Len() int {
	b.mut.Lock()
	defer b.mut.Unlock()
	return len(b.pending)
}

// Flush hands the pending events to the monitor.
func (b *Batcher) Flush() {
	b.mut.Lock()
	events := b.pending
	b.reset()
	b.mut.Unlock()

	if len(events) > 0 {
		l.Debugf("%v flushing %d events", b.m, len(events))
		b.m.NotifyEvents(events)
	}
}

func (b *Batcher) reset() {
	b.pending = nil
	clear(b.index)
}

// Interval returns the flush interval for the monitor's latency, which is
// at least floor.
func Interval(m *Monitor, floor time.Duration) time.Duration {
	if lat := m.Latency(); lat > floor {
		return lat
	}
	return floor
}
