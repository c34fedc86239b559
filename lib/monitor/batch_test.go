// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestBatcherCoalesces(t *testing.T) {
	var batches [][]Event
	m := New(nopBackend{}, nil, func(evs []Event, _ any) { batches = append(batches, evs) }, nil)
	b := NewBatcher(m)

	t0 := time.Now()
	b.Add(Event{Path: "/b", Time: t0, Flags: Created})
	b.Add(Event{Path: "/a", Time: t0.Add(time.Second), Flags: Updated})
	b.Add(Event{Path: "/b", Time: t0.Add(2 * time.Second), Flags: Updated})

	if b.Len() != 2 {
		t.Fatalf("expected 2 pending events, got %d", b.Len())
	}
	b.Flush()
	b.Flush()

	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
	batch := batches[0]
	if len(batch) != 2 || batch[0].Path != "/b" || batch[1].Path != "/a" {
		t.Fatalf("unexpected batch %v", batch)
	}
	if batch[0].Flags != Created|Updated || !batch[0].Time.Equal(t0) {
		t.Errorf("unexpected merged event %v", batch[0])
	}
}

func TestBatcherOverflow(t *testing.T) {
	maxPending = 10
	defer func() {
		maxPending = 4096
	}()

	m := New(nopBackend{}, nil, nil, nil)
	b := NewBatcher(m)

	var err error
	for i := 0; i < 11 && err == nil; i++ {
		err = b.Add(Event{Path: strconv.Itoa(i), Flags: Created})
	}
	if !errors.Is(err, ErrMonitorOverflow) {
		t.Errorf("expected ErrMonitorOverflow, got %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("pending events kept after overflow: %d", b.Len())
	}

	var got []Event
	m = New(nopBackend{}, nil, func(evs []Event, _ any) { got = evs }, nil)
	m.SetAllowOverflow(true)
	b = NewBatcher(m)
	for i := 0; i < 11; i++ {
		if err := b.Add(Event{Path: strconv.Itoa(i), Flags: Created}); err != nil {
			t.Fatal(err)
		}
	}
	if len(got) != 1 || got[0].Flags != Overflow {
		t.Errorf("expected overflow event, got %v", got)
	}
}

func TestInterval(t *testing.T) {
	m := New(nopBackend{}, nil, nil, nil)
	m.SetLatency(10 * time.Millisecond)
	if got := Interval(m, 100*time.Millisecond); got != 100*time.Millisecond {
		t.Errorf("got %v", got)
	}
	m.SetLatency(2 * time.Second)
	if got := Interval(m, 100*time.Millisecond); got != 2*time.Second {
		t.Errorf("got %v", got)
	}
}
