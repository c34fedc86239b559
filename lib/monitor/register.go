// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

// Register makes the backend type B available under name and typ. The
// registered creator constructs a zero B for every monitor, so B must be
// ready for use without initialization. If typ is already bound nothing is
// registered. Backend packages call MustRegister
// from init:
//
//	func init() {
//		monitor.MustRegister[backend]("poll_monitor", monitor.TypePoll)
//	}
func Register[B any, PB interface {
	*B
	Backend
}](name string, typ Type) error {
	return register[B, PB](defaultRegistry, name, typ)
}

// MustRegister is like Register but panics on error.
func MustRegister[B any, PB interface {
	*B
	Backend
}](name string, typ Type) {
	if err := register[B, PB](defaultRegistry, name, typ); err != nil {
		panic("bug: " + err.Error())
	}
}

func register[B any, PB interface {
	*B
	Backend
}](r *registry, name string, typ Type) error {
	creator := func(paths []string, callback Callback, context any) *Monitor {
		return New(PB(new(B)), paths, callback, context)
	}
	if err := r.registerCreator(name, creator); err != nil {
		return err
	}
	if typ == TypeSystemDefault {
		return nil
	}
	if err := r.registerType(typ, name); err != nil {
		// Leave the registry as it was.
		r.creators.Delete(name)
		return err
	}
	return nil
}
