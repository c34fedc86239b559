// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

// Type identifies a family of backends independently of its registered
// name.
type Type int

const (
	TypeSystemDefault Type = iota
	TypeNotify
	TypeFsnotify
	TypePoll
)

func (t Type) String() string {
	switch t {
	case TypeSystemDefault:
		return "system_default"
	case TypeNotify:
		return "notify"
	case TypeFsnotify:
		return "fsnotify"
	case TypePoll:
		return "poll"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Order in which registered types are tried for TypeSystemDefault.
var defaultPreference = []Type{TypeNotify, TypeFsnotify, TypePoll}

// A Creator constructs a monitor of one particular backend.
type Creator func(paths []string, callback Callback, context any) *Monitor

type registry struct {
	creators  *xsync.MapOf[string, Creator]
	typeNames *xsync.MapOf[Type, string]
}

func newRegistry() *registry {
	return &registry{
		creators:  xsync.NewMapOf[string, Creator](),
		typeNames: xsync.NewMapOf[Type, string](),
	}
}

var defaultRegistry = newRegistry()

func (r *registry) registerCreator(name string, creator Creator) error {
	if _, loaded := r.creators.LoadOrStore(name, creator); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateMonitorType, name)
	}
	l.Debugln("registered monitor", name)
	return nil
}

func (r *registry) registerType(typ Type, name string) error {
	if typ == TypeSystemDefault {
		return fmt.Errorf("%w: %v cannot be bound", ErrDuplicateMonitorType, typ)
	}
	if existing, loaded := r.typeNames.LoadOrStore(typ, name); loaded {
		return fmt.Errorf("%w: %v already bound to %q", ErrDuplicateMonitorType, typ, existing)
	}
	return nil
}

func (r *registry) createMonitor(name string, paths []string, callback Callback, context any) (*Monitor, error) {
	creator, ok := r.creators.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMonitorType, name)
	}
	m := creator(paths, callback, context)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoMonitor, name)
	}
	m.name = name
	return m, nil
}

func (r *registry) resolveType(typ Type) (string, error) {
	if typ != TypeSystemDefault {
		name, ok := r.typeNames.Load(typ)
		if !ok {
			return "", fmt.Errorf("%w: %v", ErrUnknownMonitorType, typ)
		}
		return name, nil
	}
	for _, candidate := range defaultPreference {
		if name, ok := r.typeNames.Load(candidate); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no backend available for %v", ErrUnknownMonitorType, typ)
}

func (r *registry) createMonitorByType(typ Type, paths []string, callback Callback, context any) (*Monitor, error) {
	name, err := r.resolveType(typ)
	if err != nil {
		return nil, err
	}
	return r.createMonitor(name, paths, callback, context)
}

func (r *registry) types() []string {
	names := make([]string, 0, r.creators.Size())
	r.creators.Range(func(name string, _ Creator) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

func (r *registry) existsType(name string) bool {
	_, ok := r.creators.Load(name)
	return ok
}

// RegisterCreator makes creator available under name. Registering a name
// twice fails with ErrDuplicateMonitorType and keeps the first creator.
func RegisterCreator(name string, creator Creator) error {
	return defaultRegistry.registerCreator(name, creator)
}

// RegisterType binds typ to the registered name, making the monitor
// available through CreateMonitorByType.
func RegisterType(typ Type, name string) error {
	return defaultRegistry.registerType(typ, name)
}

// CreateMonitor returns a new monitor of the backend registered under name.
// A creator returning nil yields ErrNoMonitor.
func CreateMonitor(name string, paths []string, callback Callback, context any) (*Monitor, error) {
	return defaultRegistry.createMonitor(name, paths, callback, context)
}

// CreateMonitorByType returns a new monitor of the backend bound to typ.
// TypeSystemDefault selects the preferred backend available on this
// platform.
func CreateMonitorByType(typ Type, paths []string, callback Callback, context any) (*Monitor, error) {
	return defaultRegistry.createMonitorByType(typ, paths, callback, context)
}

// Types returns the sorted names of all registered monitors.
func Types() []string {
	return defaultRegistry.types()
}

func ExistsType(name string) bool {
	return defaultRegistry.existsType(name)
}

// DefaultType returns the name TypeSystemDefault currently resolves to.
func DefaultType() (string, error) {
	return defaultRegistry.resolveType(TypeSystemDefault)
}
