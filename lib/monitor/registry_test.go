// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

type nopBackend struct{}

func (nopBackend) Run(context.Context, *Monitor) error { return nil }

type countingBackend struct {
	runs int
}

func (b *countingBackend) Run(context.Context, *Monitor) error {
	b.runs++
	return nil
}

func nopCreator(paths []string, callback Callback, context any) *Monitor {
	return New(nopBackend{}, paths, callback, context)
}

func TestRegistryUnknown(t *testing.T) {
	r := newRegistry()
	if _, err := r.createMonitor("bogus-name", nil, nil, nil); !errors.Is(err, ErrUnknownMonitorType) {
		t.Errorf("expected ErrUnknownMonitorType, got %v", err)
	}
	if _, err := r.createMonitorByType(TypePoll, nil, nil, nil); !errors.Is(err, ErrUnknownMonitorType) {
		t.Errorf("expected ErrUnknownMonitorType, got %v", err)
	}
	if _, err := r.createMonitorByType(TypeSystemDefault, nil, nil, nil); !errors.Is(err, ErrUnknownMonitorType) {
		t.Errorf("expected ErrUnknownMonitorType, got %v", err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := newRegistry()
	var first bool
	if err := r.registerCreator("x", func(paths []string, cb Callback, ctx any) *Monitor {
		first = true
		return nopCreator(paths, cb, ctx)
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.registerCreator("x", nopCreator); !errors.Is(err, ErrDuplicateMonitorType) {
		t.Errorf("expected ErrDuplicateMonitorType, got %v", err)
	}

	if _, err := r.createMonitor("x", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("second registration replaced the first creator")
	}
}

func TestRegistryCreate(t *testing.T) {
	r := newRegistry()
	if err := r.registerCreator("nop_monitor", nopCreator); err != nil {
		t.Fatal(err)
	}

	cb := func([]Event, any) {}
	m, err := r.createMonitor("nop_monitor", []string{"/a", "/b"}, cb, "user")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(m.Paths(), []string{"/a", "/b"}) {
		t.Errorf("unexpected paths %v", m.Paths())
	}
	if m.Context() != "user" {
		t.Errorf("unexpected context %v", m.Context())
	}
	if m.Name() != "nop_monitor" {
		t.Errorf("unexpected name %q", m.Name())
	}
}

func TestRegistryNilCreator(t *testing.T) {
	r := newRegistry()
	if err := r.registerCreator("nil_monitor", func([]string, Callback, any) *Monitor { return nil }); err != nil {
		t.Fatal(err)
	}
	m, err := r.createMonitor("nil_monitor", nil, nil, nil)
	if !errors.Is(err, ErrNoMonitor) || m != nil {
		t.Errorf("expected ErrNoMonitor, got %v, %v", m, err)
	}
}

func TestRegistryTypes(t *testing.T) {
	r := newRegistry()
	for _, name := range []string{"poll_monitor", "fsnotify_monitor", "notify_monitor"} {
		if err := r.registerCreator(name, nopCreator); err != nil {
			t.Fatal(err)
		}
	}

	if got := r.types(); !slices.Equal(got, []string{"fsnotify_monitor", "notify_monitor", "poll_monitor"}) {
		t.Errorf("unexpected types %v", got)
	}
	if !r.existsType("poll_monitor") || r.existsType("bogus") {
		t.Error("existsType is wrong")
	}
}

func TestRegistrySystemDefault(t *testing.T) {
	r := newRegistry()
	if err := register[nopBackend](r, "poll_monitor", TypePoll); err != nil {
		t.Fatal(err)
	}

	name, err := r.resolveType(TypeSystemDefault)
	if err != nil || name != "poll_monitor" {
		t.Errorf("default resolved to %q, %v", name, err)
	}

	if err := register[nopBackend](r, "fsnotify_monitor", TypeFsnotify); err != nil {
		t.Fatal(err)
	}
	name, _ = r.resolveType(TypeSystemDefault)
	if name != "fsnotify_monitor" {
		t.Errorf("default resolved to %q, expected the preferred fsnotify_monitor", name)
	}

	m, err := r.createMonitorByType(TypePoll, nil, nil, nil)
	if err != nil || m.Name() != "poll_monitor" {
		t.Errorf("create by type: %v, %v", m, err)
	}
}

func TestRegisterBackend(t *testing.T) {
	r := newRegistry()
	if err := register[countingBackend](r, "counting_monitor", TypePoll); err != nil {
		t.Fatal(err)
	}
	if err := register[countingBackend](r, "counting_monitor", TypeFsnotify); !errors.Is(err, ErrDuplicateMonitorType) {
		t.Errorf("expected ErrDuplicateMonitorType for name, got %v", err)
	}
	if err := register[nopBackend](r, "other_monitor", TypePoll); !errors.Is(err, ErrDuplicateMonitorType) {
		t.Errorf("expected ErrDuplicateMonitorType for type, got %v", err)
	}
	if r.existsType("other_monitor") {
		t.Error("failed registration left the name registered")
	}
	if err := register[nopBackend](r, "other_monitor", TypeNotify); err != nil {
		t.Errorf("name not reusable after failed registration: %v", err)
	}

	m1, _ := r.createMonitor("counting_monitor", nil, nil, nil)
	m2, _ := r.createMonitor("counting_monitor", nil, nil, nil)
	if err := m1.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m1.backend == m2.backend {
		t.Error("monitors share a backend instance")
	}
	if m1.backend.(*countingBackend).runs != 1 || m2.backend.(*countingBackend).runs != 0 {
		t.Error("backend runs are not independent")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.registerCreator("same", nopCreator); err != nil {
				errs <- err
			}
			_, _ = r.createMonitor("same", nil, nil, nil)
		}()
	}
	wg.Wait()
	close(errs)

	n := 0
	for err := range errs {
		if !errors.Is(err, ErrDuplicateMonitorType) {
			t.Error(err)
		}
		n++
	}
	if n != 15 {
		t.Errorf("expected 15 duplicate errors, got %d", n)
	}
}
